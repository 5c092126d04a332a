package smtp

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up SMTP admin routes on the given admin route group.
// All routes require the admin gate (applied by the caller).
func RegisterRoutes(adminGroup *echo.Group, h *Handler) {
	adminGroup.GET("/smtp", h.Status)
	adminGroup.POST("/smtp/test", h.SendTest)
}
