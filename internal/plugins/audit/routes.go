package audit

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the audit viewer on the admin API group. The group
// must already require a validated admin session.
func RegisterRoutes(admin *echo.Group, h *Handler) {
	admin.GET("/audit", h.List)
}
