package settings

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the settings API on the admin group. The caller
// applies the admin middleware.
func RegisterRoutes(adminGroup *echo.Group, h *Handler) {
	adminGroup.GET("/settings", h.Get)
	adminGroup.PUT("/settings", h.Update)
}
