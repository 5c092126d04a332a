package secrets

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the secrets API on the gated /api/v1 group.
// Reveals are POSTs so they carry the CSRF token.
func RegisterRoutes(api *echo.Group, h *Handler) {
	g := api.Group("/secrets")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.POST("/:id/password", h.RevealPassword)
	g.POST("/:id/details", h.RevealDetails)
	g.POST("/:id/share", h.Share)
	g.DELETE("/:id", h.Delete)
}
