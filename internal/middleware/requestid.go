package middleware

import (
	"regexp"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader carries the correlation id in and out.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// inboundID accepts only short, boring ids from upstream proxies so a
// client cannot inject arbitrary text into logs and audit rows.
var inboundID = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// RequestID returns middleware that assigns every request a correlation id.
// An id set by a trusted proxy is reused; otherwise a new UUID is minted.
// The id is echoed in the response header and stored in the context.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(RequestIDHeader)
			if !inboundID.MatchString(id) {
				id = uuid.NewString()
			}
			c.Set(requestIDKey, id)
			c.Response().Header().Set(RequestIDHeader, id)
			return next(c)
		}
	}
}

// RequestIDFrom returns the request's correlation id, or "" outside the
// middleware.
func RequestIDFrom(c echo.Context) string {
	id, _ := c.Get(requestIDKey).(string)
	return id
}
