package audit

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/seif/internal/middleware"
	"github.com/keyxmakerx/seif/internal/session"
)

// RequestInfo is the request metadata stamped on entries.
type RequestInfo struct {
	Actor         string
	ClientIP      string
	UserAgent     string
	CorrelationID string
}

type requestInfoKey struct{}

// FromRequest captures the request metadata. The actor is the validated
// owner key, else the pending owner of an OTP in flight, else the platform
// user, else "anonymous".
func FromRequest(c echo.Context) RequestInfo {
	st := session.StateOf(c)
	actor := ActorAnonymous
	switch {
	case st.OwnerKey != "":
		actor = st.OwnerKey
	case st.PendingOwner != "":
		actor = st.PendingOwner
	case st.PlatformUser != "":
		actor = st.PlatformUser
	}

	return RequestInfo{
		Actor:         actor,
		ClientIP:      c.RealIP(),
		UserAgent:     c.Request().UserAgent(),
		CorrelationID: middleware.RequestIDFrom(c),
	}
}

// WithRequestInfo stores info in ctx for Log to pick up.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom returns the info stored by WithRequestInfo, or the zero value.
func RequestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// Middleware copies FromRequest into the request context so services can
// audit with only a context.Context. Install it after the session
// middleware.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(WithRequestInfo(req.Context(), FromRequest(c))))
			return next(c)
		}
	}
}
