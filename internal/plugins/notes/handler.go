package notes

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/plugins/auth"
	"github.com/keyxmakerx/seif/internal/plugins/inbox"
)

// Handler serves the notes JSON API.
type Handler struct {
	service NoteService
}

// NewHandler creates a new notes handler.
func NewHandler(service NoteService) *Handler {
	return &Handler{service: service}
}

// List handles GET /api/v1/notes?q=&page=.
func (h *Handler) List(c echo.Context) error {
	owner, err := auth.RequireOwnerKey(c)
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))

	resp, err := h.service.List(c.Request().Context(), owner, c.QueryParam("q"), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Create handles POST /api/v1/notes.
func (h *Handler) Create(c echo.Context) error {
	owner, err := auth.RequireOwnerKey(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	note, err := h.service.Create(c.Request().Context(), owner, auth.OwnerUser(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, note)
}

// Share handles POST /api/v1/notes/:id/share.
func (h *Handler) Share(c echo.Context) error {
	owner, err := auth.RequireOwnerKey(c)
	if err != nil {
		return err
	}
	var req inbox.ShareRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	if err := h.service.Share(c.Request().Context(), owner, inbox.ParseID(c), req.Email); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete handles DELETE /api/v1/notes/:id.
func (h *Handler) Delete(c echo.Context) error {
	owner, err := auth.RequireOwnerKey(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), owner, inbox.ParseID(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
