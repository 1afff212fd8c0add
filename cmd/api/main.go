package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/panel-kit/ticket-core/internal/api/http"
	"github.com/panel-kit/ticket-core/internal/api/http/handlers"
	"github.com/panel-kit/ticket-core/internal/auth"
	"github.com/panel-kit/ticket-core/internal/config"
	"github.com/panel-kit/ticket-core/internal/events"
	"github.com/panel-kit/ticket-core/internal/lifecycle"
	"github.com/panel-kit/ticket-core/internal/observability"
	"github.com/panel-kit/ticket-core/internal/platform"
	"github.com/panel-kit/ticket-core/internal/queue"
	"github.com/panel-kit/ticket-core/internal/scheduler"
	"github.com/panel-kit/ticket-core/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	tickets := store.NewTicketStore(cfg.Tickets.DataDir, logger)
	tickets.Load()
	archive := store.NewArchiveStore(filepath.Join(cfg.Tickets.DataDir, "archive"), logger)

	// Sequence floors from the archive, so numbers used by archived
	// tickets are never reissued after a restart.
	if maxIDs, err := archive.MaxIDs(); err != nil {
		logger.Warn("archive sequence seed failed", zap.Error(err))
	} else {
		for community, max := range maxIDs {
			tickets.SeedSequence(community, max)
		}
	}

	// Every committed transition marks the snapshot for flush and bumps
	// the transition counters.
	dispatcher.SubscribeAll(func(_ context.Context, event events.Event) error {
		metrics.RecordTransition(string(event.Type))
		tickets.Kick()
		return nil
	})

	// The dev client stands in for the chat platform until a real
	// adapter is attached.
	dev := platform.NewDevClient(logger)

	lc := lifecycle.NewManager(cfg.Tickets, lifecycle.Dependencies{
		Tickets:    tickets,
		Archive:    archive,
		Channels:   dev,
		Notifier:   dev,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	defer lc.Shutdown()

	queueManager := queue.NewManager(ctx, func(ctx context.Context, req queue.Request) error {
		_, err := lc.Create(ctx, req)
		return err
	}, dev, metrics, logger, cfg.Tickets.QueueDelay())

	go tickets.Run(ctx, cfg.Tickets.SaveInterval())
	go scheduler.NewCleanup(cfg.Tickets, tickets, archive, lc, logger).Run(ctx)
	go scheduler.NewVerifier(cfg.Tickets, tickets, dev, dev, lc, logger).Run(ctx)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokenManager)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(func() bool { return true }),
		Tickets:        handlers.NewTicketsHandler(cfg, queueManager, lc, tickets),
		Queue:          handlers.NewQueueHandler(queueManager),
		History:        handlers.NewHistoryHandler(lc),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
	if err := tickets.Persist(); err != nil {
		logger.Error("final snapshot flush failed", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
