package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/middleware"
	"github.com/keyxmakerx/seif/internal/session"
	"github.com/keyxmakerx/seif/internal/templates/pages"
)

// HeaderSource reads identity headers only when they come from a trusted
// proxy. *middleware.ProxyTrust satisfies it.
type HeaderSource interface {
	TrustedHeader(req *http.Request, name string) string
}

// Handler serves the /account routes. It binds the request, runs the flow
// and answers with JSON for API-style clients or the login page for
// browsers.
type Handler struct {
	flow           *Flow
	headers        HeaderSource
	platformHeader string
}

// NewHandler creates a new auth handler. platformHeader is the name of the
// identity header set by the proxy; empty disables the platform channel.
func NewHandler(flow *Flow, headers HeaderSource, platformHeader string) *Handler {
	return &Handler{flow: flow, headers: headers, platformHeader: platformHeader}
}

// LoginForm renders the sign-in page (GET /account/login).
func (h *Handler) LoginForm(c echo.Context) error {
	s, err := sessionOf(c)
	if err != nil {
		return err
	}
	st := s.State()
	if st.Authorized() {
		return c.Redirect(http.StatusSeeOther, "/")
	}

	status := h.flow.Status(s)
	view := pages.LoginView{
		Step:            pages.StepCredentials,
		PlatformEnabled: h.platformEnabled(),
		CooldownSeconds: status.CooldownSeconds,
	}
	switch {
	case c.QueryParam("step") == pages.StepResetRequest:
		view.Step = pages.StepResetRequest
	case s.StateAt(session.PrefixReset).Authorized():
		view.Step = pages.StepResetPassword
	case status.CodePending:
		view.Step = pages.StepCode
		view.Email = st.PendingOwner
	}
	return middleware.Render(c, http.StatusOK, pages.Login(view))
}

// Register creates an account and sends a code (POST /account/register).
func (h *Handler) Register(c echo.Context) error {
	var req CredentialsRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	s, err := sessionOf(c)
	if err != nil {
		return err
	}
	resp, err := h.flow.Register(c.Request().Context(), s, req)
	return h.respond(c, resp, err, pages.LoginView{Step: pages.StepCredentials, Email: req.Email})
}

// Login checks the password and sends a code (POST /account/login).
func (h *Handler) Login(c echo.Context) error {
	var req CredentialsRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	s, err := sessionOf(c)
	if err != nil {
		return err
	}
	resp, err := h.flow.Login(c.Request().Context(), s, req)
	return h.respond(c, resp, err, pages.LoginView{Step: pages.StepCredentials, Email: req.Email})
}

// ExternalSendCode sends an email-only code (POST /account/external/send-code).
func (h *Handler) ExternalSendCode(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	s, err := sessionOf(c)
	if err != nil {
		return err
	}
	resp, err := h.flow.ExternalSendCode(c.Request().Context(), s, req.Email)
	return h.respond(c, resp, err, pages.LoginView{Step: pages.StepCredentials, Email: req.Email})
}

// PlatformSendCode resolves the proxy-asserted identity and sends a code
// (POST /account/platform/send-code).
func (h *Handler) PlatformSendCode(c echo.Context) error {
	s, err := sessionOf(c)
	if err != nil {
		return err
	}
	platformUser := ""
	if h.platformHeader != "" && h.headers != nil {
		platformUser = h.headers.TrustedHeader(c.Request(), h.platformHeader)
	}
	resp, err := h.flow.PlatformSendCode(c.Request().Context(), s, platformUser)
	return h.respond(c, resp, err, pages.LoginView{Step: pages.StepCredentials})
}

// Verify checks the sign-in code (POST /account/verify).
func (h *Handler) Verify(c echo.Context) error {
	var req CodeRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	s, err := sessionOf(c)
	if err != nil {
		return err
	}
	resp, err := h.flow.Verify(c.Request().Context(), s, req.Code)
	return h.respond(c, resp, err, pages.LoginView{Step: pages.StepCode})
}

// Status reports the login state (GET /account/status).
func (h *Handler) Status(c echo.Context) error {
	s, err := sessionOf(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.flow.Status(s))
}

// Logout ends the session (POST /account/logout).
func (h *Handler) Logout(c echo.Context) error {
	s, err := sessionOf(c)
	if err != nil {
		return err
	}
	resp, err := h.flow.Logout(c.Request().Context(), s)
	return h.respond(c, resp, err, pages.LoginView{Step: pages.StepCredentials})
}

// ForgotPassword sends a reset code (POST /account/password/forgot).
func (h *Handler) ForgotPassword(c echo.Context) error {
	var req EmailRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	s, err := sessionOf(c)
	if err != nil {
		return err
	}
	resp, err := h.flow.ForgotPassword(c.Request().Context(), s, req.Email)
	return h.respond(c, resp, err, pages.LoginView{Step: pages.StepResetRequest, Email: req.Email})
}

// VerifyReset checks the reset code (POST /account/password/verify).
func (h *Handler) VerifyReset(c echo.Context) error {
	var req CodeRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	s, err := sessionOf(c)
	if err != nil {
		return err
	}
	resp, err := h.flow.VerifyReset(c.Request().Context(), s, req.Code)
	return h.respond(c, resp, err, pages.LoginView{Step: pages.StepResetCode})
}

// ResetPassword stores the new password (POST /account/password/reset).
func (h *Handler) ResetPassword(c echo.Context) error {
	var req NewPasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	s, err := sessionOf(c)
	if err != nil {
		return err
	}
	resp, err := h.flow.ResetPassword(c.Request().Context(), s, req)
	return h.respond(c, resp, err, pages.LoginView{Step: pages.StepResetPassword})
}

// respond renders a flow outcome. JSON clients get the FlowResponse or the
// error (rendered by the global error handler); browsers get the login
// page at the next step, or a redirect.
func (h *Handler) respond(c echo.Context, resp FlowResponse, err error, onError pages.LoginView) error {
	if middleware.WantsJSON(c) {
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, resp)
	}

	if err != nil {
		code := apperror.SafeCode(err)
		if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
			return err
		}
		onError.Error = apperror.SafeMessage(err)
		onError.PlatformEnabled = h.platformEnabled()
		return middleware.Render(c, code, pages.Login(onError))
	}

	if resp.Redirect != "" && resp.Status != StatusPasswordReset {
		if middleware.IsHTMX(c) {
			c.Response().Header().Set("HX-Redirect", resp.Redirect)
			return c.NoContent(http.StatusNoContent)
		}
		return c.Redirect(http.StatusSeeOther, resp.Redirect)
	}

	view := pages.LoginView{Info: resp.Message, PlatformEnabled: h.platformEnabled()}
	switch resp.Status {
	case StatusCodeSent:
		view.Step = pages.StepCode
		if onError.Step == pages.StepResetRequest {
			view.Step = pages.StepResetCode
		}
		view.CooldownSeconds = resp.CooldownSeconds
	case StatusResetVerified:
		view.Step = pages.StepResetPassword
	default:
		view.Step = pages.StepCredentials
	}
	return middleware.Render(c, http.StatusOK, pages.Login(view))
}

func (h *Handler) platformEnabled() bool {
	return h.platformHeader != "" && h.flow.PlatformEnabled()
}

// sessionOf returns the request's session or a 500 when the session
// middleware is missing.
func sessionOf(c echo.Context) (*session.Handle, error) {
	s := session.From(c)
	if s == nil {
		return nil, apperror.NewMissingContext()
	}
	return s, nil
}

