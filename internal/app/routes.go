package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/seif/internal/middleware"
	"github.com/keyxmakerx/seif/internal/plugins/admin"
	"github.com/keyxmakerx/seif/internal/plugins/audit"
	"github.com/keyxmakerx/seif/internal/plugins/auth"
	"github.com/keyxmakerx/seif/internal/plugins/inbox"
	"github.com/keyxmakerx/seif/internal/plugins/notes"
	"github.com/keyxmakerx/seif/internal/plugins/secrets"
	"github.com/keyxmakerx/seif/internal/plugins/settings"
	"github.com/keyxmakerx/seif/internal/plugins/smtp"
	"github.com/keyxmakerx/seif/internal/templates/pages"
)

// RegisterRoutes sets up all application routes. It registers public routes
// directly and delegates to each plugin's route registration function.
//
// This is the single place where all routes are aggregated. The access
// gate is global, so only the admin group adds a middleware of its own.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// --- Public Routes (exempt from the gate) ---

	e.GET("/", func(c echo.Context) error {
		return middleware.Render(c, http.StatusOK, pages.Landing())
	})
	e.GET("/privacy", func(c echo.Context) error {
		return middleware.Render(c, http.StatusOK, pages.Privacy())
	})
	e.GET("/healthz", a.health)

	var limit echo.MiddlewareFunc
	if a.Limiter != nil {
		limit = a.Limiter.Middleware()
	}
	auth.RegisterRoutes(e, a.handlers.auth, limit)

	// --- Vault API (validated sessions only) ---
	api := e.Group("/api/v1")
	secrets.RegisterRoutes(api, a.handlers.secrets)
	notes.RegisterRoutes(api, a.handlers.notes)
	inbox.RegisterRoutes(api, a.handlers.inbox)

	// --- Admin API ---
	adminGroup := api.Group("/admin", auth.RequireAdmin(a.audit))
	admin.RegisterRoutes(adminGroup, a.handlers.admin)
	audit.RegisterRoutes(adminGroup, a.handlers.audit)
	settings.RegisterRoutes(adminGroup, a.handlers.settings)
	smtp.RegisterRoutes(adminGroup, a.handlers.smtp)
}

// health pings every registered dependency with a short timeout and
// reports 503 when any of them fails.
func (a *App) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body[name] = "unreachable"
			continue
		}
		body[name] = "ok"
	}
	return c.JSON(status, body)
}
