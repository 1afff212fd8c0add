package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	Auth    AuthConfig
	Tickets TicketConfig
	Panels  []Panel
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// AuthConfig defines token verification parameters for the HTTP surface.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// TicketConfig holds the lifecycle, queue and persistence knobs.
type TicketConfig struct {
	DataDir                string
	MaxTicketsPerUser      int
	CooldownSeconds        int
	AutoCloseHours         int
	ArchiveRetentionMonths int
	QueueDelaySeconds      int
	SaveIntervalMinutes    int
	CleanupIntervalMinutes int
	VerifyIntervalHours    int
	LogChannelID           string
	TranscriptChannelID    string
	StaffRoles             []string
}

// Load reads configuration from environment variables, applying defaults
// where possible, and loads the panel definitions file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-core"),
			Env:                   env,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: env != "production",
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Tickets: TicketConfig{
			DataDir:                getEnv("TICKET_DATA_DIR", "data"),
			MaxTicketsPerUser:      getEnvAsInt("TICKET_MAX_PER_USER", 3),
			CooldownSeconds:        getEnvAsInt("TICKET_COOLDOWN_SECONDS", 300),
			AutoCloseHours:         getEnvAsInt("TICKET_AUTO_CLOSE_HOURS", 24),
			ArchiveRetentionMonths: getEnvAsInt("TICKET_ARCHIVE_RETENTION_MONTHS", 6),
			QueueDelaySeconds:      getEnvAsInt("TICKET_QUEUE_DELAY_SECONDS", 2),
			SaveIntervalMinutes:    getEnvAsInt("TICKET_SAVE_INTERVAL_MINUTES", 5),
			CleanupIntervalMinutes: getEnvAsInt("TICKET_CLEANUP_INTERVAL_MINUTES", 60),
			VerifyIntervalHours:    getEnvAsInt("TICKET_VERIFY_INTERVAL_HOURS", 6),
			LogChannelID:           getEnv("TICKET_LOG_CHANNEL", ""),
			TranscriptChannelID:    getEnv("TICKET_TRANSCRIPT_CHANNEL", ""),
			StaffRoles:             splitList(getEnv("TICKET_STAFF_ROLES", "")),
		},
	}

	if cfg.Tickets.MaxTicketsPerUser <= 0 {
		return nil, fmt.Errorf("TICKET_MAX_PER_USER must be positive, got %d", cfg.Tickets.MaxTicketsPerUser)
	}
	if cfg.Tickets.AutoCloseHours <= 0 {
		return nil, fmt.Errorf("TICKET_AUTO_CLOSE_HOURS must be positive, got %d", cfg.Tickets.AutoCloseHours)
	}
	if cfg.Tickets.ArchiveRetentionMonths <= 0 {
		return nil, fmt.Errorf("TICKET_ARCHIVE_RETENTION_MONTHS must be positive, got %d", cfg.Tickets.ArchiveRetentionMonths)
	}

	panelsFile := getEnv("PANELS_FILE", "panels.json")
	panels, err := LoadPanels(panelsFile)
	if err != nil {
		return nil, fmt.Errorf("load panels from %s: %w", panelsFile, err)
	}
	cfg.Panels = panels

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Cooldown returns the creation cooldown as a duration.
func (t TicketConfig) Cooldown() time.Duration {
	return time.Duration(t.CooldownSeconds) * time.Second
}

// AutoClose returns how long a closed ticket lingers before archival.
func (t TicketConfig) AutoClose() time.Duration {
	return time.Duration(t.AutoCloseHours) * time.Hour
}

// QueueDelay returns the pause inserted between queued creations.
func (t TicketConfig) QueueDelay() time.Duration {
	return time.Duration(t.QueueDelaySeconds) * time.Second
}

// SaveInterval returns the snapshot flush interval.
func (t TicketConfig) SaveInterval() time.Duration {
	return time.Duration(t.SaveIntervalMinutes) * time.Minute
}

// CleanupInterval returns the archive sweep period.
func (t TicketConfig) CleanupInterval() time.Duration {
	return time.Duration(t.CleanupIntervalMinutes) * time.Minute
}

// VerifyInterval returns the consistency verification period.
func (t TicketConfig) VerifyInterval() time.Duration {
	return time.Duration(t.VerifyIntervalHours) * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
