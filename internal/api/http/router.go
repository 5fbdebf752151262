package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/lead-router/internal/api/http/handlers"
	"github.com/spec-kit/lead-router/internal/auth"
	"github.com/spec-kit/lead-router/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Orders         *handlers.OrdersHandler
	Call           *handlers.CallHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        http.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	supervisors := auth.RequireRole(domain.RoleSupervisor, domain.RoleAdmin)
	orders := api.Group("/orders")
	orders.Get("/", supervisors, cfg.Orders.List)
	orders.Post("/", supervisors, cfg.Orders.Create)
	orders.Get("/:id", auth.RequireRole(), cfg.Orders.Get)
	orders.Put("/:id", supervisors, cfg.Orders.Update)
	orders.Post("/:id/dispatch", supervisors, cfg.Orders.Dispatch)
	orders.Get("/:id/erp-status", supervisors, cfg.Orders.ERPStatus)

	callers := auth.RequireRole(domain.RoleOperator, domain.RoleSupervisor)
	call := api.Group("/call", callers)
	call.Get("/next", cfg.Call.Next)
	call.Post("/:id", cfg.Call.Submit)
}
