package notes

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the notes API on the gated /api/v1 group.
func RegisterRoutes(api *echo.Group, h *Handler) {
	g := api.Group("/notes")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.POST("/:id/share", h.Share)
	g.DELETE("/:id", h.Delete)
}
