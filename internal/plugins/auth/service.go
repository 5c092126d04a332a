package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/identity"
)

// argon2id parameters. Hash and salt lengths match the fixed-width
// password_hash and password_salt columns.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MiB in KiB
	argonThreads = 4
	argonKeyLen  = 64
	argonSaltLen = 16
)

// Password policy.
const (
	MinPasswordLength = 12
	MaxPasswordLength = 256
)

// errInvalidCredentials is returned for every failed password login so
// callers cannot tell a missing account from a wrong password.
var errInvalidCredentials = apperror.NewUnauthorized("invalid email or password").
	WithReason(apperror.ReasonInvalidCredentials)

// dummySalt is hashed against when the account does not exist, so unknown
// emails cost the same time as wrong passwords.
var dummySalt = make([]byte, argonSaltLen)

// AuthService defines the business logic contract for accounts.
// Handlers call these methods; they never touch the repository directly.
type AuthService interface {
	// Register creates an account. The first account ever created is admin.
	Register(ctx context.Context, email, password string) (*Account, error)

	// Authenticate checks a password login. Unknown email, inactive account
	// and wrong password all fail identically with InvalidCredentials.
	Authenticate(ctx context.Context, email, password string) (*Account, error)

	// FindActive returns the active account for email, or NotFound.
	FindActive(ctx context.Context, email string) (*Account, error)

	// IsActiveAccount reports whether email belongs to an active account.
	IsActiveAccount(ctx context.Context, email string) (bool, error)

	// ResetPassword sets a new password for an existing active account.
	ResetPassword(ctx context.Context, email, password string) error
}

// authService implements AuthService with argon2id hashing.
type authService struct {
	repo           AccountRepository
	allowedDomains []string
	now            func() time.Time
}

// NewAuthService creates a new auth service. allowedDomains restricts
// which email domains may register; empty allows any.
func NewAuthService(repo AccountRepository, allowedDomains []string, now func() time.Time) AuthService {
	if now == nil {
		now = time.Now
	}
	return &authService{repo: repo, allowedDomains: allowedDomains, now: now}
}

// Register validates the email and password, hashes with argon2id and
// persists the account.
func (s *authService) Register(ctx context.Context, email, password string) (*Account, error) {
	email, err := s.validateEmail(email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	// Check before the expensive hash; the unique index still decides races.
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking email: %w", err))
	}
	if exists {
		return nil, apperror.NewConflict("an account with this email already exists")
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("counting accounts: %w", err))
	}

	hash, salt, err := hashPassword(password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	now := s.now().UTC()
	account := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
		IsActive:     true,
		IsAdmin:      count == 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, account); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.NewInternal(fmt.Errorf("creating account: %w", err))
	}

	slog.Info("account registered",
		slog.String("account_id", account.ID),
		slog.Bool("is_admin", account.IsAdmin),
	)
	return account, nil
}

// Authenticate verifies email and password in constant time.
func (s *authService) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	email = identity.Normalize(email)
	if email == "" || password == "" {
		return nil, errInvalidCredentials
	}

	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil && !apperror.IsNotFound(err) {
		return nil, apperror.NewInternal(fmt.Errorf("finding account: %w", err))
	}
	if account == nil {
		verifyPassword(password, dummySalt, make([]byte, argonKeyLen))
		return nil, errInvalidCredentials
	}

	ok := verifyPassword(password, account.PasswordSalt, account.PasswordHash)
	if !ok || !account.IsActive {
		return nil, errInvalidCredentials
	}
	return account, nil
}

// FindActive looks up an active account by email.
func (s *authService) FindActive(ctx context.Context, email string) (*Account, error) {
	email = identity.Normalize(email)
	if email == "" {
		return nil, apperror.NewNotFound("account not found")
	}
	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding account: %w", err))
	}
	if !account.IsActive {
		return nil, apperror.NewNotFound("account not found")
	}
	return account, nil
}

// IsActiveAccount reports whether email has an active account.
func (s *authService) IsActiveAccount(ctx context.Context, email string) (bool, error) {
	_, err := s.FindActive(ctx, email)
	if apperror.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ResetPassword checks the policy, re-hashes with a fresh salt and stores.
func (s *authService) ResetPassword(ctx context.Context, email, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	account, err := s.FindActive(ctx, email)
	if err != nil {
		return err
	}

	hash, salt, err := hashPassword(password)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	if err := s.repo.UpdatePassword(ctx, account.ID, hash, salt); err != nil {
		return apperror.NewInternal(fmt.Errorf("updating password: %w", err))
	}

	slog.Info("password reset", slog.String("account_id", account.ID))
	return nil
}

func (s *authService) validateEmail(email string) (string, error) {
	normalized, err := identity.ValidateEmail(email, s.allowedDomains)
	switch {
	case errors.Is(err, identity.ErrDomainNotAllowed):
		return "", apperror.NewValidation("this email domain is not allowed").WithReason(apperror.ReasonInvalidEmail)
	case err != nil:
		return "", apperror.NewValidation("enter a valid email address").WithReason(apperror.ReasonInvalidEmail)
	}
	return normalized, nil
}

// ValidatePassword enforces the password policy: at least 12 characters
// with an upper-case letter, a lower-case letter, a digit and a symbol.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength {
		return apperror.NewValidation(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if n > MaxPasswordLength {
		return apperror.NewValidation(fmt.Sprintf("password must be at most %d characters", MaxPasswordLength))
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return apperror.NewValidation("password needs upper- and lower-case letters, a digit and a symbol")
	}
	return nil
}

// --- Password Hashing (argon2id) ---

// hashPassword derives an argon2id hash over a fresh random salt.
func hashPassword(password string) (hash, salt []byte, err error) {
	salt = make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("generating salt: %w", err)
	}
	hash = argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return hash, salt, nil
}

// verifyPassword recomputes the hash and compares in constant time.
func verifyPassword(password string, salt, expected []byte) bool {
	if len(expected) != argonKeyLen {
		return false
	}
	computed := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(expected, computed) == 1
}
