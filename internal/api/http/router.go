package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/panel-kit/ticket-core/internal/api/http/handlers"
	"github.com/panel-kit/ticket-core/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Queue          *handlers.QueueHandler
	History        *handlers.HistoryHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	v1 := app.Group("/v1", cfg.AuthMiddleware.Handle)

	communities := v1.Group("/communities/:community")
	communities.Post("/tickets", cfg.Tickets.Enqueue)
	communities.Get("/queue", cfg.Queue.Status)
	communities.Get("/queue/position", cfg.Queue.Position)
	communities.Get("/queue/metrics", cfg.Queue.Metrics)
	communities.Delete("/queue", cfg.Queue.Withdraw)

	tickets := v1.Group("/tickets/:channel")
	tickets.Get("", cfg.Tickets.Get)
	tickets.Post("/close", cfg.Tickets.Close)
	tickets.Post("/claim", auth.RequireStaff(), cfg.Tickets.Claim)
	tickets.Post("/reopen", auth.RequireStaff(), cfg.Tickets.Reopen)

	v1.Get("/users/:user/history", cfg.History.ForUser)
}
