package observability

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/panel-kit/ticket-core/internal/config"
)

func TestNewLoggerModes(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggerConfig
	}{
		{"production json", config.LoggerConfig{Level: "info"}},
		{"development console", config.LoggerConfig{Level: "debug", Development: true}},
		{"bad level falls back to info", config.LoggerConfig{Level: "shouting"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if logger == nil {
				t.Fatal("nil logger")
			}
		})
	}
}

func TestNewLoggerLevelParsing(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "warn"})
	if err != nil {
		t.Fatal(err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info enabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatal("warn disabled at warn level")
	}
}
