package admin

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/plugins/auth"
)

// Handler serves the account administration endpoints.
type Handler struct {
	service AccountService
}

// NewHandler creates a new admin handler.
func NewHandler(service AccountService) *Handler {
	return &Handler{service: service}
}

// Accounts lists accounts (GET /api/v1/admin/accounts?page=).
func (h *Handler) Accounts(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	resp, err := h.service.List(c.Request().Context(), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// SetAdmin sets the admin flag (PUT /api/v1/admin/accounts/:id/admin).
func (h *Handler) SetAdmin(c echo.Context) error {
	return h.setFlag(c, h.service.SetAdmin)
}

// SetActive sets the active flag (PUT /api/v1/admin/accounts/:id/active).
func (h *Handler) SetActive(c echo.Context) error {
	return h.setFlag(c, h.service.SetActive)
}

func (h *Handler) setFlag(c echo.Context, set func(ctx context.Context, actor, id string, value bool) (*Account, error)) error {
	actor, err := auth.RequireOwnerKey(c)
	if err != nil {
		return err
	}
	var req FlagRequest
	if err := c.Bind(&req); err != nil || req.Value == nil {
		return apperror.NewBadRequest(`body must be {"value": true|false}`)
	}

	acct, err := set(c.Request().Context(), actor, c.Param("id"), *req.Value)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, acct)
}
