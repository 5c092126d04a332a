package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/middleware"
	"github.com/keyxmakerx/seif/internal/plugins/audit"
	"github.com/keyxmakerx/seif/internal/session"
)

// LoginPath is where unauthenticated browsers are sent.
const LoginPath = "/account/login"

// exemptPaths are reachable without a validated session.
var exemptPaths = map[string]bool{
	"/":            true,
	"/favicon.ico": true,
	"/robots.txt":  true,
	"/privacy":     true,
	"/error":       true,
	"/healthz":     true,
	"/account":     true,
}

// exemptPrefixes are reachable without a validated session, with everything below them.
var exemptPrefixes = []string{
	"/static/",
	"/.well-known/",
	"/account/",
}

// IsExempt reports whether path bypasses the access gate.
func IsExempt(path string) bool {
	if exemptPaths[path] {
		return true
	}
	for _, p := range exemptPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Require2FA is the access gate. Every request outside the exempt list must
// carry a session that passed the second factor and is bound to an owner
// key. Rejected requests are audited and never reach the handler:
// browsers are redirected to the login page, HTMX gets an HX-Redirect and
// API clients get a JSON 401.
func Require2FA(auditLog audit.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if IsExempt(c.Request().URL.Path) {
				return next(c)
			}
			if session.StateOf(c).Authorized() {
				return next(c)
			}
			logDenied(c, auditLog, apperror.ReasonNotValidated)
			return handleUnauthenticated(c)
		}
	}
}

// RequireAdmin allows only validated administrator sessions.
func RequireAdmin(auditLog audit.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			st := session.StateOf(c)
			if !st.Authorized() {
				logDenied(c, auditLog, apperror.ReasonNotValidated)
				return handleUnauthenticated(c)
			}
			if !st.IsAdmin {
				logDenied(c, auditLog, apperror.ReasonNotAdmin)
				return apperror.NewForbidden("administrator access required").WithReason(apperror.ReasonNotAdmin)
			}
			return next(c)
		}
	}
}

func logDenied(c echo.Context, auditLog audit.Logger, reason string) {
	req := c.Request()
	auditLog.Log(req.Context(), audit.Entry{
		EventType:  audit.EventAccessDenied,
		TargetType: "Route",
		TargetID:   req.URL.Path,
		Outcome:    audit.OutcomeFail,
		Reason:     reason,
		Details:    map[string]any{"method": req.Method, "path": req.URL.Path},
	})
}

// handleUnauthenticated returns the appropriate response for unauthenticated
// requests: redirect for browsers, 401 JSON for API clients.
func handleUnauthenticated(c echo.Context) error {
	// API requests get a JSON 401 response.
	if middleware.WantsJSON(c) {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error":   "unauthorized",
			"message": "sign in and verify your code first",
			"reason":  apperror.ReasonNotValidated,
		})
	}

	// HTMX requests get a redirect header so the full page navigates.
	if middleware.IsHTMX(c) {
		c.Response().Header().Set("HX-Redirect", LoginPath)
		return c.NoContent(http.StatusNoContent)
	}

	// Regular browser requests get a 303 redirect to login.
	return c.Redirect(http.StatusSeeOther, LoginPath)
}

// --- Exported getters for other plugins ---

// OwnerKey returns the validated owner key of the request, or "" when the
// session is not validated. Vault plugins scope every query with it.
func OwnerKey(c echo.Context) string {
	st := session.StateOf(c)
	if !st.Authorized() {
		return ""
	}
	return st.OwnerKey
}

// RequireOwnerKey returns the validated owner key or a 500 when there is
// none. Handlers behind the access gate call it; an empty key there means
// the gate was not installed.
func RequireOwnerKey(c echo.Context) (string, error) {
	owner := OwnerKey(c)
	if owner == "" {
		return "", apperror.NewMissingContext()
	}
	return owner, nil
}

// OwnerUser returns who is acting, for the legacy owner_user columns: the
// platform identity when signed in through the directory, otherwise the
// owner key.
func OwnerUser(c echo.Context) string {
	st := session.StateOf(c)
	if st.PlatformUser != "" {
		return st.PlatformUser
	}
	return OwnerKey(c)
}
