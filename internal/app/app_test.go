package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keyxmakerx/seif/internal/config"
	"github.com/keyxmakerx/seif/internal/otp"
	"github.com/keyxmakerx/seif/internal/plugins/audit"
	"github.com/keyxmakerx/seif/internal/plugins/smtp"
	"github.com/keyxmakerx/seif/internal/session"
)

const testSessionID = "app-test-session"

// memAudit is an in-memory audit repository.
type memAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memAudit) Insert(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memAudit) List(context.Context, audit.Filter) ([]audit.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Entry(nil), m.entries...), nil
}

func (m *memAudit) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memAudit) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.EventType+"/"+e.Reason)
	}
	return out
}

type testApp struct {
	app   *App
	store *session.MemoryStore
	audit *memAudit
}

// newTestApp builds the full middleware chain without a database. Only
// routes that stop before a repository can be exercised.
func newTestApp(t *testing.T, opts ...Option) *testApp {
	t.Helper()
	t.Setenv("SEIF_CONFIG", "")
	t.Setenv("MASTER_KEY", base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	ta := &testApp{store: session.NewMemoryStore(nil), audit: &memAudit{}}
	opts = append([]Option{WithAuditRepository(ta.audit), WithMailer(smtp.NewLogSender())}, opts...)

	ta.app, err = New(cfg, nil, ta.store, opts...)
	if err != nil {
		t.Fatalf("building app: %v", err)
	}
	ta.app.RegisterRoutes()
	return ta
}

func (ta *testApp) signIn(t *testing.T, st otp.State) {
	t.Helper()
	if err := ta.store.Save(context.Background(), testSessionID, otp.Encode(st, session.PrefixLogin), time.Hour); err != nil {
		t.Fatal(err)
	}
}

func (ta *testApp) do(req *http.Request, withSession bool) *httptest.ResponseRecorder {
	if withSession {
		req.AddCookie(&http.Cookie{Name: "seif_session", Value: testSessionID})
	}
	rec := httptest.NewRecorder()
	ta.app.Echo.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body, got %q", rec.Body.String())
	}
	return body
}

func TestHealth(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), false)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["status"] != "ok" {
		t.Errorf("expected healthy, got %d %s", rec.Code, rec.Body.String())
	}

	ta = newTestApp(t, WithHealthCheck("redis", func(context.Context) error { return errors.New("down") }))
	rec = ta.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), false)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["redis"] != "unreachable" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestLanding_PublicWithSecurityHeaders(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(httptest.NewRequest(http.MethodGet, "/", nil), false)

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/account/login") {
		t.Fatalf("expected landing page, got %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected no-store")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id")
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), "seif_session=") {
		t.Error("expected a session cookie")
	}
}

func TestGate_AnonymousAPIGetsJSON401(t *testing.T) {
	ta := newTestApp(t)
	for _, path := range []string{"/api/v1/secrets", "/api/v1/inbox", "/api/v1/admin/audit"} {
		rec := ta.do(httptest.NewRequest(http.MethodGet, path, nil), false)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
			continue
		}
		if body := decodeBody(t, rec); body["reason"] != "2FA_NotValidated" {
			t.Errorf("%s: unexpected body %v", path, body)
		}
	}
	if got := len(ta.audit.events()); got != 3 {
		t.Errorf("expected every denial audited, got %v", ta.audit.events())
	}
}

func TestGate_UnknownPageRedirectsAnonymous(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(httptest.NewRequest(http.MethodGet, "/does-not-exist", nil), false)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/account/login" {
		t.Errorf("expected redirect to login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestErrorHandler_NotFoundPage(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(httptest.NewRequest(http.MethodGet, "/account/nope", nil), false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") || !strings.Contains(rec.Body.String(), "404") {
		t.Errorf("expected HTML error page, got %q", rec.Body.String())
	}
}

func TestCSRF_RequiredOnMutations(t *testing.T) {
	ta := newTestApp(t)
	ta.signIn(t, otp.State{Validated: true, OwnerKey: "alice@wizrom.ro"})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/secrets", strings.NewReader(`{"title":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := ta.do(req, true)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 without CSRF token, got %d", rec.Code)
	}
}

func TestAdmin_NonAdminForbidden(t *testing.T) {
	ta := newTestApp(t)
	ta.signIn(t, otp.State{Validated: true, OwnerKey: "alice@wizrom.ro", Channel: otp.ChannelPassword})

	rec := ta.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/smtp", nil), true)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["reason"] != "NotAdmin" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestAdmin_SMTPStatus(t *testing.T) {
	ta := newTestApp(t)
	ta.signIn(t, otp.State{Validated: true, OwnerKey: "root@wizrom.ro", IsAdmin: true, Channel: otp.ChannelPassword})

	rec := ta.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/smtp", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password\":\"") {
		t.Error("SMTP status must never carry the password")
	}
}

func TestAccountStatus(t *testing.T) {
	ta := newTestApp(t)
	ta.signIn(t, otp.State{Validated: true, OwnerKey: "alice@wizrom.ro", Channel: otp.ChannelPassword})

	rec := ta.do(httptest.NewRequest(http.MethodGet, "/account/status", nil), true)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "alice@wizrom.ro") {
		t.Errorf("unexpected status response %d %s", rec.Code, rec.Body.String())
	}
}
