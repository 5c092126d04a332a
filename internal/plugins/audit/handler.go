package audit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/seif/internal/apperror"
)

// Handler serves the admin audit viewer.
type Handler struct {
	service AuditService
}

// NewHandler creates a new audit handler.
func NewHandler(service AuditService) *Handler {
	return &Handler{service: service}
}

// listResponse is the JSON body of GET /api/v1/admin/audit.
type listResponse struct {
	Entries []Entry `json:"entries"`
	Limit   int     `json:"limit"`
}

// List returns filtered entries, newest first (GET /api/v1/admin/audit).
// Query: actor, event, outcome, target, from, to (RFC 3339), limit.
func (h *Handler) List(c echo.Context) error {
	f := Filter{
		Actor:     c.QueryParam("actor"),
		EventType: c.QueryParam("event"),
		Outcome:   c.QueryParam("outcome"),
		TargetID:  c.QueryParam("target"),
	}

	var err error
	if f.From, err = parseTimeParam(c, "from"); err != nil {
		return err
	}
	if f.To, err = parseTimeParam(c, "to"); err != nil {
		return err
	}
	if raw := c.QueryParam("limit"); raw != "" {
		f.Limit, err = strconv.Atoi(raw)
		if err != nil || f.Limit < 1 {
			return apperror.NewValidation("limit must be a positive integer")
		}
	}
	if f.Limit <= 0 || f.Limit > MaxListRows {
		f.Limit = MaxListRows
	}

	entries, err := h.service.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{Entries: entries, Limit: f.Limit})
}

func parseTimeParam(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperror.NewValidation("'" + name + "' must be an RFC 3339 timestamp")
	}
	t = t.UTC()
	return &t, nil
}
