package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/keyxmakerx/seif/internal/apperror"
)

// --- Mock Repository ---

// mockAccountRepo implements AccountRepository for testing. Unset function
// fields fall back to an in-memory map keyed by email.
type mockAccountRepo struct {
	accounts map[string]*Account

	createFn         func(ctx context.Context, a *Account) error
	findByEmailFn    func(ctx context.Context, email string) (*Account, error)
	countFn          func(ctx context.Context) (int, error)
	updatePasswordFn func(ctx context.Context, id string, hash, salt []byte) error
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{accounts: map[string]*Account{}}
}

func (m *mockAccountRepo) Create(ctx context.Context, a *Account) error {
	if m.createFn != nil {
		return m.createFn(ctx, a)
	}
	if _, ok := m.accounts[a.Email]; ok {
		return apperror.NewConflict("an account with this email already exists")
	}
	m.accounts[a.Email] = a
	return nil
}

func (m *mockAccountRepo) FindByEmail(ctx context.Context, email string) (*Account, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	a, ok := m.accounts[email]
	if !ok {
		return nil, apperror.NewNotFound("account not found")
	}
	return a, nil
}

func (m *mockAccountRepo) EmailExists(_ context.Context, email string) (bool, error) {
	_, ok := m.accounts[email]
	return ok, nil
}

func (m *mockAccountRepo) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return len(m.accounts), nil
}

func (m *mockAccountRepo) UpdatePassword(ctx context.Context, id string, hash, salt []byte) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, id, hash, salt)
	}
	for _, a := range m.accounts {
		if a.ID == id {
			a.PasswordHash = hash
			a.PasswordSalt = salt
			return nil
		}
	}
	return apperror.NewNotFound("account not found")
}

const goodPassword = "Correct-Horse-42"

// --- Test Helpers ---

func newTestAuthService(repo AccountRepository) AuthService {
	return NewAuthService(repo, []string{"wizrom.ro"}, nil)
}

func assertAppError(t *testing.T, err error, expectedCode int) *apperror.AppError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status code %d, got %d (%s)", expectedCode, appErr.Code, appErr.Message)
	}
	return appErr
}

// --- ValidatePassword Tests ---

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		ok       bool
	}{
		{"valid", goodPassword, true},
		{"too short", "Ab1!short", false},
		{"no upper", "correct-horse-42", false},
		{"no lower", "CORRECT-HORSE-42", false},
		{"no digit", "Correct-Horse-xx", false},
		{"no symbol", "CorrectHorse4242", false},
		{"unicode counts runes", "Ăăăăăăăăăă1!", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok {
				assertAppError(t, err, http.StatusUnprocessableEntity)
			}
		})
	}
}

// --- Register Tests ---

func TestRegister_FirstAccountIsAdmin(t *testing.T) {
	repo := newMockAccountRepo()
	svc := newTestAuthService(repo)

	first, err := svc.Register(context.Background(), " Alice@Wizrom.ro ", goodPassword)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Email != "alice@wizrom.ro" {
		t.Errorf("email must be normalized, got %q", first.Email)
	}
	if !first.IsAdmin || !first.IsActive {
		t.Errorf("first account must be an active admin: %+v", first)
	}
	if len(first.PasswordHash) != argonKeyLen || len(first.PasswordSalt) != argonSaltLen {
		t.Errorf("unexpected hash/salt lengths %d/%d", len(first.PasswordHash), len(first.PasswordSalt))
	}

	second, err := svc.Register(context.Background(), "bob@wizrom.ro", goodPassword)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.IsAdmin {
		t.Error("only the first account is admin")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := newMockAccountRepo()
	svc := newTestAuthService(repo)
	if _, err := svc.Register(context.Background(), "alice@wizrom.ro", goodPassword); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Register(context.Background(), "ALICE@wizrom.ro", goodPassword)
	assertAppError(t, err, http.StatusConflict)
}

func TestRegister_RaceLostToUniqueIndex(t *testing.T) {
	repo := newMockAccountRepo()
	repo.createFn = func(context.Context, *Account) error {
		return apperror.NewConflict("an account with this email already exists")
	}
	_, err := newTestAuthService(repo).Register(context.Background(), "alice@wizrom.ro", goodPassword)
	assertAppError(t, err, http.StatusConflict)
}

func TestRegister_RejectsDomainAndWeakPassword(t *testing.T) {
	svc := newTestAuthService(newMockAccountRepo())

	_, err := svc.Register(context.Background(), "eve@evil.com", goodPassword)
	appErr := assertAppError(t, err, http.StatusUnprocessableEntity)
	if appErr.Reason != apperror.ReasonInvalidEmail {
		t.Errorf("expected InvalidEmail reason, got %q", appErr.Reason)
	}

	_, err = svc.Register(context.Background(), "alice@wizrom.ro", "weak")
	assertAppError(t, err, http.StatusUnprocessableEntity)
}

func TestRegister_RepoFailureIsInternal(t *testing.T) {
	repo := newMockAccountRepo()
	repo.countFn = func(context.Context) (int, error) { return 0, errors.New("db down") }

	_, err := newTestAuthService(repo).Register(context.Background(), "alice@wizrom.ro", goodPassword)
	assertAppError(t, err, http.StatusInternalServerError)
}

// --- Authenticate Tests ---

func TestAuthenticate(t *testing.T) {
	repo := newMockAccountRepo()
	svc := newTestAuthService(repo)
	if _, err := svc.Register(context.Background(), "alice@wizrom.ro", goodPassword); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Authenticate(context.Background(), "Alice@Wizrom.ro", goodPassword); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", "alice@wizrom.ro", "Wrong-Horse-42"},
		{"unknown email", "ghost@wizrom.ro", goodPassword},
		{"empty password", "alice@wizrom.ro", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(context.Background(), tt.email, tt.password)
			appErr := assertAppError(t, err, http.StatusUnauthorized)
			if appErr.Reason != apperror.ReasonInvalidCredentials {
				t.Errorf("expected InvalidCredentials, got %q", appErr.Reason)
			}
		})
	}

	repo.accounts["alice@wizrom.ro"].IsActive = false
	_, err := svc.Authenticate(context.Background(), "alice@wizrom.ro", goodPassword)
	assertAppError(t, err, http.StatusUnauthorized)
}

// --- FindActive / IsActiveAccount Tests ---

func TestIsActiveAccount(t *testing.T) {
	repo := newMockAccountRepo()
	repo.accounts["alice@wizrom.ro"] = &Account{ID: "a1", Email: "alice@wizrom.ro", IsActive: true}
	repo.accounts["old@wizrom.ro"] = &Account{ID: "a2", Email: "old@wizrom.ro", IsActive: false}
	svc := newTestAuthService(repo)

	for email, want := range map[string]bool{
		" ALICE@wizrom.ro": true,
		"old@wizrom.ro":    false,
		"ghost@wizrom.ro":  false,
		"":                 false,
	} {
		got, err := svc.IsActiveAccount(context.Background(), email)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", email, err)
		}
		if got != want {
			t.Errorf("%q: got %v, want %v", email, got, want)
		}
	}

	repo.findByEmailFn = func(context.Context, string) (*Account, error) { return nil, errors.New("db down") }
	if _, err := svc.IsActiveAccount(context.Background(), "alice@wizrom.ro"); err == nil {
		t.Error("repository failures must surface")
	}
}

// --- ResetPassword Tests ---

func TestResetPassword(t *testing.T) {
	repo := newMockAccountRepo()
	svc := newTestAuthService(repo)
	if _, err := svc.Register(context.Background(), "alice@wizrom.ro", goodPassword); err != nil {
		t.Fatal(err)
	}
	oldSalt := append([]byte(nil), repo.accounts["alice@wizrom.ro"].PasswordSalt...)

	const newPassword = "Battery-Staple-77"
	if err := svc.ResetPassword(context.Background(), "alice@wizrom.ro", newPassword); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(repo.accounts["alice@wizrom.ro"].PasswordSalt) == string(oldSalt) {
		t.Error("reset must use a fresh salt")
	}
	if _, err := svc.Authenticate(context.Background(), "alice@wizrom.ro", newPassword); err != nil {
		t.Errorf("new password must work: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "alice@wizrom.ro", goodPassword); err == nil {
		t.Error("old password must stop working")
	}

	assertAppError(t, svc.ResetPassword(context.Background(), "ghost@wizrom.ro", newPassword), http.StatusNotFound)
	assertAppError(t, svc.ResetPassword(context.Background(), "alice@wizrom.ro", "weak"), http.StatusUnprocessableEntity)
}
