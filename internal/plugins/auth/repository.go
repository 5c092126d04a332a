package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/seif/internal/apperror"
)

// erDupEntry is the MariaDB error number for a unique key violation.
const erDupEntry = 1062

// AccountRepository defines the data access contract for accounts.
// All SQL lives in the concrete implementation; no SQL leaks out.
type AccountRepository interface {
	// Create inserts a new account. A duplicate email returns a Conflict.
	Create(ctx context.Context, a *Account) error

	// FindByEmail returns the account for a normalized email, or NotFound.
	FindByEmail(ctx context.Context, email string) (*Account, error)

	EmailExists(ctx context.Context, email string) (bool, error)

	// Count returns the number of accounts, used to make the first one admin.
	Count(ctx context.Context) (int, error)

	// UpdatePassword replaces the hash and salt of the account.
	UpdatePassword(ctx context.Context, id string, hash, salt []byte) error
}

// accountRepository implements AccountRepository with hand-written MariaDB queries.
type accountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new account repository backed by the given DB pool.
func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create inserts a new row into the accounts table.
func (r *accountRepository) Create(ctx context.Context, a *Account) error {
	query := `INSERT INTO accounts (id, email, password_hash, password_salt, is_active, is_admin, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.Email,
		a.PasswordHash,
		a.PasswordSalt,
		a.IsActive,
		a.IsAdmin,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if isDuplicateEntry(err) {
		return apperror.NewConflict("an account with this email already exists")
	}
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// FindByEmail retrieves an account by its normalized email.
// Returns apperror.NotFound if no account exists with this email.
func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	query := `SELECT id, email, password_hash, password_salt, is_active, is_admin, created_at, updated_at
	          FROM accounts WHERE email = ?`

	a := &Account{}
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.PasswordSalt,
		&a.IsActive,
		&a.IsAdmin,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying account by email: %w", err)
	}
	return a, nil
}

// EmailExists returns true if an account with the given email already
// exists. Checked before hashing so a duplicate registration is cheap.
func (r *accountRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = ?)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}

// Count returns the total number of accounts.
func (r *accountRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return count, nil
}

// UpdatePassword sets a new hash and salt for an account.
func (r *accountRepository) UpdatePassword(ctx context.Context, id string, hash, salt []byte) error {
	query := `UPDATE accounts SET password_hash = ?, password_salt = ?, updated_at = UTC_TIMESTAMP(6) WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, hash, salt, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("account not found")
	}
	return nil
}

// isDuplicateEntry reports whether err is a unique key violation.
func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == erDupEntry
}
