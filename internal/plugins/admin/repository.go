package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keyxmakerx/seif/internal/apperror"
)

// AccountRepository is the administrative data access to the accounts table.
type AccountRepository interface {
	List(ctx context.Context, offset, limit int) ([]Account, int, error)
	FindByID(ctx context.Context, id string) (*Account, error)

	// CountActiveAdmins counts accounts that can still reach the admin API.
	CountActiveAdmins(ctx context.Context) (int, error)

	SetAdmin(ctx context.Context, id string, isAdmin bool) error
	SetActive(ctx context.Context, id string, isActive bool) error
}

type accountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new account repository backed by the given DB pool.
func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

// List returns a page of accounts, oldest first, with the total count.
func (r *accountRepository) List(ctx context.Context, offset, limit int) ([]Account, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting accounts: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, is_active, is_admin, created_at, updated_at
		 FROM accounts ORDER BY created_at, email LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Email, &a.IsActive, &a.IsAdmin, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning account: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// FindByID returns one account or NotFound.
func (r *accountRepository) FindByID(ctx context.Context, id string) (*Account, error) {
	var a Account
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, is_active, is_admin, created_at, updated_at FROM accounts WHERE id = ?`, id,
	).Scan(&a.ID, &a.Email, &a.IsActive, &a.IsAdmin, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying account by id: %w", err)
	}
	return &a, nil
}

// CountActiveAdmins counts active administrator accounts.
func (r *accountRepository) CountActiveAdmins(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE is_admin = TRUE AND is_active = TRUE`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting admins: %w", err)
	}
	return n, nil
}

// SetAdmin sets the is_admin flag.
func (r *accountRepository) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	return r.setFlag(ctx, `UPDATE accounts SET is_admin = ?, updated_at = UTC_TIMESTAMP(6) WHERE id = ?`, isAdmin, id)
}

// SetActive sets the is_active flag.
func (r *accountRepository) SetActive(ctx context.Context, id string, isActive bool) error {
	return r.setFlag(ctx, `UPDATE accounts SET is_active = ?, updated_at = UTC_TIMESTAMP(6) WHERE id = ?`, isActive, id)
}

func (r *accountRepository) setFlag(ctx context.Context, query string, value bool, id string) error {
	result, err := r.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NewNotFound("account not found")
	}
	return nil
}
