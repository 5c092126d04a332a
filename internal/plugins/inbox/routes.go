package inbox

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the inbox API on the gated /api/v1 group.
func RegisterRoutes(api *echo.Group, h *Handler) {
	g := api.Group("/inbox")
	g.GET("", h.List)
	g.POST("/:id/password", h.RevealPassword)
	g.POST("/:id/details", h.RevealDetails)
	g.POST("/:id/accept", h.Accept)
	g.DELETE("/:id", h.Discard)
}
