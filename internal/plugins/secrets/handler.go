package secrets

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/plugins/auth"
	"github.com/keyxmakerx/seif/internal/plugins/inbox"
)

// Handler serves the secrets JSON API.
type Handler struct {
	service SecretService
}

// NewHandler creates a new secrets handler.
func NewHandler(service SecretService) *Handler {
	return &Handler{service: service}
}

// List returns one page of the vault (GET /api/v1/secrets?q=&page=).
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

// Create stores a new secret (POST /api/v1/secrets).
func (h *Handler) Create(c echo.Context) error {
	owner, err := auth.RequireOwnerKey(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	item, err := h.service.Create(c.Request().Context(), owner, auth.OwnerUser(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, item)
}

// RevealPassword decrypts the password (POST /api/v1/secrets/:id/password).
func (h *Handler) RevealPassword(c echo.Context) error {
	owner, err := auth.RequireOwnerKey(c)
	if err != nil {
		return err
	}
	value, err := h.service.RevealPassword(c.Request().Context(), owner, inbox.ParseID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inbox.RevealResponse{Value: value})
}

// RevealDetails decrypts the details (POST /api/v1/secrets/:id/details).
func (h *Handler) RevealDetails(c echo.Context) error {
	owner, err := auth.RequireOwnerKey(c)
	if err != nil {
		return err
	}
	value, err := h.service.RevealDetails(c.Request().Context(), owner, inbox.ParseID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inbox.RevealResponse{Value: value})
}

// Share sends a copy to another account (POST /api/v1/secrets/:id/share).
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

// Delete removes a secret (DELETE /api/v1/secrets/:id).
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
