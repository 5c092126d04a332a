package admin

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts account administration on the admin group.
func RegisterRoutes(adminGroup *echo.Group, h *Handler) {
	adminGroup.GET("/accounts", h.Accounts)
	adminGroup.PUT("/accounts/:id/admin", h.SetAdmin)
	adminGroup.PUT("/accounts/:id/active", h.SetActive)
}
