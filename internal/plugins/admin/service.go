package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/plugins/audit"
)

// AccountService is the business logic behind account administration.
// actor is the owner key of the administrator making the change.
type AccountService interface {
	List(ctx context.Context, page int) (*ListResponse, error)
	SetAdmin(ctx context.Context, actor, id string, isAdmin bool) (*Account, error)
	SetActive(ctx context.Context, actor, id string, isActive bool) (*Account, error)
}

type accountService struct {
	repo  AccountRepository
	audit audit.Logger
}

// NewAccountService creates a new account administration service.
func NewAccountService(repo AccountRepository, auditLog audit.Logger) AccountService {
	return &accountService{repo: repo, audit: auditLog}
}

// List returns one page of accounts.
func (s *accountService) List(ctx context.Context, page int) (*ListResponse, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * PerPage
	items, total, err := s.repo.List(ctx, offset, PerPage)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing accounts: %w", err))
	}
	if items == nil {
		items = []Account{}
	}
	return &ListResponse{
		Items:   items,
		Page:    page,
		PerPage: PerPage,
		Total:   total,
		HasMore: offset+len(items) < total,
	}, nil
}

// SetAdmin grants or revokes administrator rights. Administrators cannot
// change their own flag, and the last active administrator cannot be
// demoted.
func (s *accountService) SetAdmin(ctx context.Context, actor, id string, isAdmin bool) (*Account, error) {
	return s.change(ctx, actor, id, "is_admin", isAdmin, func(a *Account) bool {
		return a.IsAdmin && a.IsActive && !isAdmin
	}, s.repo.SetAdmin, func(a *Account) { a.IsAdmin = isAdmin })
}

// SetActive enables or disables an account. A disabled account cannot
// sign in or receive shares; sessions it already validated expire with
// their idle timeout.
func (s *accountService) SetActive(ctx context.Context, actor, id string, isActive bool) (*Account, error) {
	return s.change(ctx, actor, id, "is_active", isActive, func(a *Account) bool {
		return a.IsAdmin && a.IsActive && !isActive
	}, s.repo.SetActive, func(a *Account) { a.IsActive = isActive })
}

// change applies one flag update. losesAdmin reports whether the update
// removes an active administrator.
func (s *accountService) change(
	ctx context.Context,
	actor, id, field string,
	value bool,
	losesAdmin func(*Account) bool,
	store func(context.Context, string, bool) error,
	apply func(*Account),
) (*Account, error) {
	acct, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if _, ok := err.(*apperror.AppError); !ok {
			err = apperror.NewInternal(err)
		}
		s.log(ctx, id, field, value, err)
		return nil, err
	}

	if acct.Email == actor {
		err := apperror.NewBadRequest("you cannot change your own account").WithReason(ReasonSelfChange)
		s.log(ctx, id, field, value, err)
		return nil, err
	}

	if losesAdmin(acct) {
		n, err := s.repo.CountActiveAdmins(ctx)
		if err != nil {
			appErr := apperror.NewInternal(err)
			s.log(ctx, id, field, value, appErr)
			return nil, appErr
		}
		if n <= 1 {
			err := apperror.NewConflict("cannot remove the last administrator").WithReason(ReasonLastAdmin)
			s.log(ctx, id, field, value, err)
			return nil, err
		}
	}

	if err := store(ctx, id, value); err != nil {
		if _, ok := err.(*apperror.AppError); !ok {
			err = apperror.NewInternal(err)
		}
		s.log(ctx, id, field, value, err)
		return nil, err
	}
	apply(acct)

	slog.Info("account updated",
		slog.String("target", acct.Email),
		slog.String("field", field),
		slog.Bool("value", value),
	)
	s.log(ctx, id, field, value, nil)
	return acct, nil
}

func (s *accountService) log(ctx context.Context, id, field string, value bool, err error) {
	e := audit.Entry{
		EventType:  audit.EventAccountUpdate,
		TargetType: "Account",
		TargetID:   id,
		Details:    map[string]any{field: value},
	}
	if err != nil {
		e.Outcome = audit.OutcomeFail
		e.Reason = apperror.ReasonOf(err)
	}
	s.audit.Log(ctx, e)
}
