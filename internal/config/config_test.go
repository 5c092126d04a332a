package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var testKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func TestLoad_RequiresMasterKey(t *testing.T) {
	t.Setenv("SEIF_CONFIG", "")
	t.Setenv("MASTER_KEY", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "MASTER_KEY is required") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestLoad_RejectsWrongKeyLength(t *testing.T) {
	t.Setenv("SEIF_CONFIG", "")

	tests := []struct {
		name string
		key  string
	}{
		{"short", base64.StdEncoding.EncodeToString(make([]byte, 16))},
		{"long", base64.StdEncoding.EncodeToString(make([]byte, 33))},
		{"not base64", "not-base64!!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MASTER_KEY", tt.key)
			if _, err := Load(); err == nil {
				t.Fatal("expected error for invalid master key")
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SEIF_CONFIG", "")
	t.Setenv("MASTER_KEY", testKey)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Security.MasterKeyBytes()) != MasterKeySize {
		t.Errorf("expected decoded key of %d bytes", MasterKeySize)
	}
	if cfg.Session.TTL != 20*time.Minute {
		t.Errorf("expected 20m session ttl, got %s", cfg.Session.TTL)
	}
	if cfg.Audit.SweepInterval != 24*time.Hour {
		t.Errorf("expected 24h sweep interval, got %s", cfg.Audit.SweepInterval)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seif.yaml")
	body := `
port: 9090
session:
  store: memory
  ttl: 45m
security:
  allowed_email_domains: [example.com, example.org]
smtp:
  host: mail.example.com
  from: vault@example.com
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SEIF_CONFIG", path)
	t.Setenv("MASTER_KEY", testKey)
	t.Setenv("PORT", "7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 7070 {
		t.Errorf("env must override file, got port %d", cfg.Port)
	}
	if cfg.Session.Store != "memory" || cfg.Session.TTL != 45*time.Minute {
		t.Errorf("file values not applied: %+v", cfg.Session)
	}
	if len(cfg.Security.AllowedEmailDomains) != 2 {
		t.Errorf("expected 2 domains, got %v", cfg.Security.AllowedEmailDomains)
	}
	if cfg.SMTP.Encryption != "starttls" {
		t.Errorf("defaults must survive a partial file, got %q", cfg.SMTP.Encryption)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("SEIF_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("MASTER_KEY", testKey)

	if _, err := Load(); err != nil {
		t.Fatalf("missing config file should be ignored, got %v", err)
	}
}

func TestValidate_ProductionRejectsDevShortcuts(t *testing.T) {
	cfg := Default()
	cfg.Env = "production"
	cfg.Security.MasterKey = testKey
	cfg.Session.Store = "memory"
	if err := cfg.Validate(); err == nil {
		t.Error("memory sessions must be rejected in production")
	}

	cfg.Session.Store = "redis"
	cfg.Directory.Static = `WIZROM\alice=alice@wizrom.ro`
	if err := cfg.Validate(); err == nil {
		t.Error("static directory must be rejected in production")
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " a.ro, ,b.ro ")
	got := getEnvList("TEST_LIST", nil)
	if len(got) != 2 || got[0] != "a.ro" || got[1] != "b.ro" {
		t.Errorf("unexpected list %v", got)
	}

	t.Setenv("TEST_LIST", "")
	if got := getEnvList("TEST_LIST", []string{"x"}); len(got) != 0 {
		t.Errorf("set-but-empty must clear the list, got %v", got)
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", User: "u", Password: "p@ss", Name: "seif"}
	dsn, err := d.DSN()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dsn, "tcp(db:3306)") || !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("unexpected dsn %q", dsn)
	}
}

func TestDatabaseDSN_URLForcesTimeParsing(t *testing.T) {
	d := DatabaseConfig{Host: "ignored", URL: "seif:pw@tcp(mariadb:3307)/vault?charset=utf8mb4"}
	dsn, err := d.DSN()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dsn, "tcp(mariadb:3307)/vault") {
		t.Errorf("URL must take precedence, got %q", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") || !strings.Contains(dsn, "charset=utf8mb4") {
		t.Errorf("expected parseTime forced and params kept, got %q", dsn)
	}
	if strings.Contains(dsn, "loc=") {
		t.Errorf("loc must stay UTC, got %q", dsn)
	}

	d.URL = "seif:pw@tcp(mariadb)/vault?parseTime=false&loc=Local"
	if dsn, _ = d.DSN(); !strings.Contains(dsn, "parseTime=true") || strings.Contains(dsn, "loc=") {
		t.Errorf("explicit overrides must be replaced, got %q", dsn)
	}
}

func TestLoad_RejectsMalformedDatabaseURL(t *testing.T) {
	t.Setenv("SEIF_CONFIG", "")
	t.Setenv("MASTER_KEY", testKey)
	t.Setenv("DATABASE_URL", "not a dsn")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}
