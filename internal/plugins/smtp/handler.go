package smtp

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/session"
)

// Handler serves the admin mail endpoints. All routes require the admin
// gate (applied by the caller).
type Handler struct {
	service Service
}

// NewHandler creates a new SMTP handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Status returns the redacted transport settings (GET /api/v1/admin/smtp).
func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Status())
}

// SendTest mails a test message to the signed-in admin
// (POST /api/v1/admin/smtp/test).
func (h *Handler) SendTest(c echo.Context) error {
	to := session.StateOf(c).OwnerKey
	if to == "" {
		return apperror.NewUnauthorized("sign in first")
	}

	err := h.service.SendMail(c.Request().Context(), []string{to},
		"Seif test message", "This is a test message from Seif.\r\n")
	if err != nil {
		return apperror.NewUnavailable("could not send the test message", apperror.ReasonSMTPError, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "sent", "to": to})
}
