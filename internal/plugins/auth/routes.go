package auth

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up the /account routes. They are exempt from the
// access gate. limit is applied to every POST to slow down credential
// stuffing and code guessing; it may be nil.
func RegisterRoutes(e *echo.Echo, h *Handler, limit echo.MiddlewareFunc) {
	g := e.Group("/account")

	var post []echo.MiddlewareFunc
	if limit != nil {
		post = append(post, limit)
	}

	g.GET("/login", h.LoginForm)
	g.GET("/status", h.Status)

	g.POST("/register", h.Register, post...)
	g.POST("/login", h.Login, post...)
	g.POST("/external/send-code", h.ExternalSendCode, post...)
	g.POST("/platform/send-code", h.PlatformSendCode, post...)
	g.POST("/verify", h.Verify, post...)
	g.POST("/logout", h.Logout)

	g.POST("/password/forgot", h.ForgotPassword, post...)
	g.POST("/password/verify", h.VerifyReset, post...)
	g.POST("/password/reset", h.ResetPassword, post...)
}
