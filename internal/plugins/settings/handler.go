package settings

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/plugins/audit"
)

// Handler serves the admin settings API. All routes require the admin
// group's middleware.
type Handler struct {
	service SettingsService
	audit   audit.Logger
}

// NewHandler creates a new settings handler.
func NewHandler(service SettingsService, auditLog audit.Logger) *Handler {
	return &Handler{service: service, audit: auditLog}
}

// Get returns the current settings (GET /api/v1/admin/settings).
func (h *Handler) Get(c echo.Context) error {
	view, err := h.service.View(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// Update applies the non-nil fields of the body (PUT /api/v1/admin/settings).
// Retention values outside the allowed range are clamped, not rejected.
func (h *Handler) Update(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.AuditRetentionDays == nil && req.AllowedUploadExtensions == nil {
		return apperror.NewValidation("nothing to update")
	}

	ctx := c.Request().Context()
	changed := map[string]any{}

	if req.AuditRetentionDays != nil {
		stored, err := h.service.SetRetentionDays(ctx, *req.AuditRetentionDays)
		if err != nil {
			h.logUpdate(c, audit.OutcomeFail, apperror.ReasonOf(err), changed)
			return err
		}
		changed[KeyAuditRetentionDays] = stored
	}
	if req.AllowedUploadExtensions != nil {
		exts, err := h.service.SetAllowedExtensions(ctx, *req.AllowedUploadExtensions)
		if err != nil {
			h.logUpdate(c, audit.OutcomeFail, apperror.ReasonOf(err), changed)
			return err
		}
		changed[KeyAllowedUploadExtensions] = exts
	}

	h.logUpdate(c, audit.OutcomeSuccess, "", changed)

	view, err := h.service.View(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) logUpdate(c echo.Context, outcome, reason string, changed map[string]any) {
	h.audit.Log(c.Request().Context(), audit.Entry{
		EventType:  audit.EventSettingsUpdate,
		TargetType: "Settings",
		Outcome:    outcome,
		Reason:     reason,
		Details:    changed,
	})
}
