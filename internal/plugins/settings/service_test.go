package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/keyxmakerx/seif/internal/apperror"
)

// mockRepo is an in-memory SettingsRepository.
type mockRepo struct {
	values map[string]string
	getErr error
}

func newMockRepo() *mockRepo { return &mockRepo{values: map[string]string{}} }

func (m *mockRepo) Get(_ context.Context, key string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", apperror.NewNotFound("missing")
	}
	return v, nil
}

func (m *mockRepo) Set(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *mockRepo) GetAll(context.Context) (map[string]string, error) {
	return m.values, nil
}

func TestRetentionDays_DefaultAndClamp(t *testing.T) {
	repo := newMockRepo()
	svc := NewSettingsService(repo)
	ctx := context.Background()

	days, err := svc.RetentionDays(ctx)
	if err != nil || days != DefaultRetentionDays {
		t.Fatalf("expected default %d, got %d (%v)", DefaultRetentionDays, days, err)
	}

	tests := []struct {
		stored string
		want   int
	}{
		{"1", MinRetentionDays},
		{"9999", MaxRetentionDays},
		{"45", 45},
		{"garbage", DefaultRetentionDays},
	}
	for _, tt := range tests {
		repo.values[KeyAuditRetentionDays] = tt.stored
		got, err := svc.RetentionDays(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("stored %q: got %d, want %d", tt.stored, got, tt.want)
		}
	}
}

func TestSetRetentionDays_StoresClampedValue(t *testing.T) {
	repo := newMockRepo()
	svc := NewSettingsService(repo)

	got, err := svc.SetRetentionDays(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if got != MinRetentionDays || repo.values[KeyAuditRetentionDays] != "7" {
		t.Errorf("expected 7 stored, got %d / %q", got, repo.values[KeyAuditRetentionDays])
	}

	got, _ = svc.SetRetentionDays(context.Background(), 9999)
	if got != MaxRetentionDays {
		t.Errorf("expected clamp to %d, got %d", MaxRetentionDays, got)
	}
}

func TestRetentionDays_RepoErrorReturnsDefault(t *testing.T) {
	repo := newMockRepo()
	repo.getErr = errors.New("db down")

	days, err := NewSettingsService(repo).RetentionDays(context.Background())
	if err == nil {
		t.Error("expected error")
	}
	if days != DefaultRetentionDays {
		t.Errorf("expected default on error, got %d", days)
	}
}

func TestParseExtensions(t *testing.T) {
	got := ParseExtensions(" PFX; .cer,, .pem .PFX ;txt")
	want := []string{".pfx", ".cer", ".pem", ".txt"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAllowedExtensions(t *testing.T) {
	repo := newMockRepo()
	svc := NewSettingsService(repo)
	ctx := context.Background()

	exts, err := svc.AllowedExtensions(ctx)
	if err != nil || len(exts) != 6 {
		t.Fatalf("expected default list, got %v (%v)", exts, err)
	}

	if _, err := svc.SetAllowedExtensions(ctx, " ; , "); err == nil {
		t.Error("empty list must be rejected")
	}

	if _, err := svc.SetAllowedExtensions(ctx, "KEY, pem"); err != nil {
		t.Fatal(err)
	}
	if repo.values[KeyAllowedUploadExtensions] != ".key;.pem" {
		t.Errorf("unexpected stored value %q", repo.values[KeyAllowedUploadExtensions])
	}

	ok, _ := svc.IsExtensionAllowed(ctx, "server.KEY")
	if !ok {
		t.Error("expected .key to be allowed")
	}
	ok, _ = svc.IsExtensionAllowed(ctx, "notes.txt")
	if ok {
		t.Error("expected .txt to be rejected after update")
	}
	ok, _ = svc.IsExtensionAllowed(ctx, "noext")
	if ok {
		t.Error("files without extension are never allowed")
	}
}

func TestView(t *testing.T) {
	repo := newMockRepo()
	repo.values[KeyAuditRetentionDays] = "30"

	v, err := NewSettingsService(repo).View(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v.AuditRetentionDays != 30 || len(v.AllowedUploadExtensions) == 0 {
		t.Errorf("unexpected view %+v", v)
	}
}
