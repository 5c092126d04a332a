package middleware

import (
	"strings"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// IsHTMX returns true if the current request was initiated by HTMX and is NOT
// a boosted navigation. Boosted requests behave like normal page navigations
// and expect full page responses.
func IsHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true" &&
		c.Request().Header.Get("HX-Boosted") != "true"
}

// IsAPI reports whether the request targets the JSON API.
func IsAPI(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api/")
}

// WantsJSON reports whether the response should be JSON rather than a page:
// API calls, and requests that send or accept JSON.
func WantsJSON(c echo.Context) bool {
	if IsAPI(c) {
		return true
	}
	req := c.Request()
	return strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) ||
		strings.Contains(req.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}

// Render writes a Templ component to the response with the given status code.
// The CSRF token is placed in the Go context so forms can embed it.
func Render(c echo.Context, statusCode int, component templ.Component) error {
	ctx := WithCSRFToken(c.Request().Context(), GetCSRFToken(c))

	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	c.Response().WriteHeader(statusCode)
	return component.Render(ctx, c.Response().Writer)
}
