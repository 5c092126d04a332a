package inbox

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/seif/internal/plugins/auth"
)

// Handler serves the inbox JSON API.
type Handler struct {
	service InboxService
}

// NewHandler creates a new inbox handler.
func NewHandler(service InboxService) *Handler {
	return &Handler{service: service}
}

// List returns the caller's shares (GET /api/v1/inbox).
func (h *Handler) List(c echo.Context) error {
	owner, err := auth.RequireOwnerKey(c)
	if err != nil {
		return err
	}
	views, err := h.service.List(c.Request().Context(), owner)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": views})
}

// RevealPassword decrypts a shared password (POST /api/v1/inbox/:id/password).
func (h *Handler) RevealPassword(c echo.Context) error {
	owner, err := auth.RequireOwnerKey(c)
	if err != nil {
		return err
	}
	value, err := h.service.RevealPassword(c.Request().Context(), owner, ParseID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RevealResponse{Value: value})
}

// RevealDetails decrypts shared details (POST /api/v1/inbox/:id/details).
func (h *Handler) RevealDetails(c echo.Context) error {
	owner, err := auth.RequireOwnerKey(c)
	if err != nil {
		return err
	}
	value, err := h.service.RevealDetails(c.Request().Context(), owner, ParseID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RevealResponse{Value: value})
}

// Accept saves a share into the caller's vault (POST /api/v1/inbox/:id/accept).
func (h *Handler) Accept(c echo.Context) error {
	owner, err := auth.RequireOwnerKey(c)
	if err != nil {
		return err
	}
	resp, err := h.service.Accept(c.Request().Context(), owner, auth.OwnerUser(c), ParseID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

// Discard deletes a share (DELETE /api/v1/inbox/:id).
func (h *Handler) Discard(c echo.Context) error {
	owner, err := auth.RequireOwnerKey(c)
	if err != nil {
		return err
	}
	if err := h.service.Discard(c.Request().Context(), owner, ParseID(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ParseID reads the :id path parameter. Anything that is not a positive
// integer yields 0, which the services treat as not found.
func ParseID(c echo.Context) int64 {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}
