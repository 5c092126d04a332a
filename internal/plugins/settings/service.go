package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/keyxmakerx/seif/internal/apperror"
)

// SettingsService handles typed access to site settings.
type SettingsService interface {
	GetInt(ctx context.Context, key string, fallback int) (int, error)
	SetInt(ctx context.Context, key string, value int) error
	GetString(ctx context.Context, key, fallback string) (string, error)
	SetString(ctx context.Context, key, value string) error

	// RetentionDays returns the audit retention, defaulting to 90 and
	// always clamped to [7, 3650].
	RetentionDays(ctx context.Context) (int, error)

	// SetRetentionDays clamps days and stores it. Returns the stored value.
	SetRetentionDays(ctx context.Context, days int) (int, error)

	// AllowedExtensions returns the normalized upload allow-list.
	AllowedExtensions(ctx context.Context) ([]string, error)

	// SetAllowedExtensions normalizes and stores the allow-list. Returns
	// the stored list.
	SetAllowedExtensions(ctx context.Context, raw string) ([]string, error)

	// IsExtensionAllowed reports whether fileName's extension is allowed.
	IsExtensionAllowed(ctx context.Context, fileName string) (bool, error)

	// View returns the admin settings document.
	View(ctx context.Context) (*View, error)
}

// settingsService implements SettingsService.
type settingsService struct {
	repo SettingsRepository
}

// NewSettingsService creates a new settings service.
func NewSettingsService(repo SettingsRepository) SettingsService {
	return &settingsService{repo: repo}
}

// GetInt reads key as an integer. Missing or unparseable values return fallback.
func (s *settingsService) GetInt(ctx context.Context, key string, fallback int) (int, error) {
	raw, err := s.GetString(ctx, key, "")
	if err != nil {
		return fallback, err
	}
	return parseInt(raw, fallback), nil
}

// SetInt stores an integer value.
func (s *settingsService) SetInt(ctx context.Context, key string, value int) error {
	return s.SetString(ctx, key, strconv.Itoa(value))
}

// GetString reads key. A missing key returns fallback without error.
func (s *settingsService) GetString(ctx context.Context, key, fallback string) (string, error) {
	value, err := s.repo.Get(ctx, key)
	if apperror.IsNotFound(err) {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	return value, nil
}

// SetString stores a string value.
func (s *settingsService) SetString(ctx context.Context, key, value string) error {
	if key == "" {
		return apperror.NewValidation("setting key is required")
	}
	return s.repo.Set(ctx, key, value)
}

// RetentionDays reads and clamps the audit retention setting.
func (s *settingsService) RetentionDays(ctx context.Context) (int, error) {
	days, err := s.GetInt(ctx, KeyAuditRetentionDays, DefaultRetentionDays)
	if err != nil {
		return ClampRetentionDays(DefaultRetentionDays), err
	}
	return ClampRetentionDays(days), nil
}

// SetRetentionDays clamps before writing so that a stored value is always
// in range.
func (s *settingsService) SetRetentionDays(ctx context.Context, days int) (int, error) {
	days = ClampRetentionDays(days)
	if err := s.SetInt(ctx, KeyAuditRetentionDays, days); err != nil {
		return 0, fmt.Errorf("saving retention days: %w", err)
	}
	return days, nil
}

// AllowedExtensions reads the allow-list, falling back to the default when
// the stored value is missing or blank.
func (s *settingsService) AllowedExtensions(ctx context.Context) ([]string, error) {
	raw, err := s.GetString(ctx, KeyAllowedUploadExtensions, DefaultAllowedExtensions)
	if err != nil {
		return nil, err
	}
	exts := ParseExtensions(raw)
	if len(exts) == 0 {
		exts = ParseExtensions(DefaultAllowedExtensions)
	}
	return exts, nil
}

// SetAllowedExtensions normalizes raw before writing. An empty result is
// rejected: it would silently revert to the default list on read.
func (s *settingsService) SetAllowedExtensions(ctx context.Context, raw string) ([]string, error) {
	exts := ParseExtensions(raw)
	if len(exts) == 0 {
		return nil, apperror.NewValidation("at least one extension is required")
	}
	if err := s.SetString(ctx, KeyAllowedUploadExtensions, strings.Join(exts, ";")); err != nil {
		return nil, fmt.Errorf("saving allowed extensions: %w", err)
	}
	return exts, nil
}

// IsExtensionAllowed checks fileName against the allow-list, ignoring case.
func (s *settingsService) IsExtensionAllowed(ctx context.Context, fileName string) (bool, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(fileName)))
	if ext == "" || ext == "." {
		return false, nil
	}
	allowed, err := s.AllowedExtensions(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range allowed {
		if a == ext {
			return true, nil
		}
	}
	return false, nil
}

// View assembles the admin settings document.
func (s *settingsService) View(ctx context.Context) (*View, error) {
	days, err := s.RetentionDays(ctx)
	if err != nil {
		return nil, err
	}
	exts, err := s.AllowedExtensions(ctx)
	if err != nil {
		return nil, err
	}
	return &View{AuditRetentionDays: days, AllowedUploadExtensions: exts}, nil
}

// ParseExtensions splits a ';' or ',' separated list, lower-cases each
// entry, adds a missing leading dot and drops duplicates and blanks.
func ParseExtensions(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == ',' || r == ' '
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		ext := strings.ToLower(strings.TrimSpace(f))
		ext = "." + strings.TrimLeft(ext, ".")
		if ext == "." || seen[ext] {
			continue
		}
		seen[ext] = true
		out = append(out, ext)
	}
	return out
}

// parseInt parses s or returns fallback.
func parseInt(s string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return v
}
