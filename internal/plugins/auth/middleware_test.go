package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/identity"
	"github.com/keyxmakerx/seif/internal/otp"
	"github.com/keyxmakerx/seif/internal/plugins/audit"
	"github.com/keyxmakerx/seif/internal/session"
)

const testSessionID = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// newGateEcho builds an Echo instance with the session middleware and the
// access gate in front of a protected route and an admin route.
func newGateEcho(store session.Store, rec *recordingAudit) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = jsonErrorHandler
	e.Use(session.Middleware(store, session.Options{}))
	e.Use(Require2FA(rec))

	ok := func(c echo.Context) error { return c.String(http.StatusOK, OwnerKey(c)) }
	e.GET("/", ok)
	e.GET("/privacy", ok)
	e.GET("/vault", ok)
	e.GET("/api/v1/secrets", ok)
	admin := e.Group("/api/v1/admin", RequireAdmin(rec))
	admin.GET("/audit", ok)
	return e
}

// jsonErrorHandler renders AppErrors with their status and reason, like
// the application error handler does for JSON clients.
func jsonErrorHandler(err error, c echo.Context) {
	_ = c.JSON(apperror.SafeCode(err), map[string]string{
		"message": apperror.SafeMessage(err),
		"reason":  apperror.ReasonOf(err),
	})
}

// seedSession stores st under the test session id.
func seedSession(t *testing.T, store session.Store, st otp.State) {
	t.Helper()
	if err := store.Save(context.Background(), testSessionID, otp.Encode(st, session.PrefixLogin), time.Hour); err != nil {
		t.Fatal(err)
	}
}

func doGet(e *echo.Echo, path string, headers map[string]string, withSession bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if withSession {
		req.AddCookie(&http.Cookie{Name: "seif_session", Value: testSessionID})
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestIsExempt(t *testing.T) {
	for path, want := range map[string]bool{
		"/":                  true,
		"/privacy":           true,
		"/account/login":     true,
		"/account/verify":    true,
		"/static/css/a.css":  true,
		"/healthz":           true,
		"/vault":             false,
		"/api/v1/secrets":    false,
		"/accountant":        false,
		"/api/v1/admin/smtp": false,
	} {
		if got := IsExempt(path); got != want {
			t.Errorf("IsExempt(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestRequire2FA_Anonymous(t *testing.T) {
	store := session.NewMemoryStore(nil)
	rec := &recordingAudit{}
	e := newGateEcho(store, rec)

	if res := doGet(e, "/privacy", nil, false); res.Code != http.StatusOK {
		t.Errorf("exempt route must pass, got %d", res.Code)
	}

	res := doGet(e, "/vault", nil, false)
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != LoginPath {
		t.Errorf("browser must be redirected to login, got %d %q", res.Code, res.Header().Get("Location"))
	}

	res = doGet(e, "/vault", map[string]string{"HX-Request": "true"}, false)
	if res.Code != http.StatusNoContent || res.Header().Get("HX-Redirect") != LoginPath {
		t.Errorf("htmx must get HX-Redirect, got %d", res.Code)
	}

	res = doGet(e, "/api/v1/secrets", nil, false)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("api must get 401, got %d", res.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["reason"] != apperror.ReasonNotValidated {
		t.Errorf("unexpected body %v", body)
	}

	if len(rec.entries) != 3 {
		t.Fatalf("every denial must be audited, got %d entries", len(rec.entries))
	}
	e0 := rec.entries[0]
	if e0.EventType != audit.EventAccessDenied || e0.Outcome != audit.OutcomeFail || e0.TargetID != "/vault" {
		t.Errorf("unexpected entry %+v", e0)
	}
}

func TestRequire2FA_PendingCodeIsNotEnough(t *testing.T) {
	store := session.NewMemoryStore(nil)
	seedSession(t, store, otp.State{Code: "123456", IssuedAt: time.Now(), PendingOwner: "alice@wizrom.ro"})
	e := newGateEcho(store, &recordingAudit{})

	if res := doGet(e, "/api/v1/secrets", nil, true); res.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", res.Code)
	}
}

func TestRequire2FA_ValidatedPasses(t *testing.T) {
	store := session.NewMemoryStore(nil)
	seedSession(t, store, otp.State{Validated: true, OwnerKey: "alice@wizrom.ro"})
	rec := &recordingAudit{}
	e := newGateEcho(store, rec)

	res := doGet(e, "/api/v1/secrets", nil, true)
	if res.Code != http.StatusOK || res.Body.String() != "alice@wizrom.ro" {
		t.Errorf("expected owner key in body, got %d %q", res.Code, res.Body.String())
	}

	res = doGet(e, "/api/v1/admin/audit", nil, true)
	if res.Code != http.StatusForbidden {
		t.Errorf("non-admin must get 403, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), apperror.ReasonNotAdmin) {
		t.Errorf("expected NotAdmin reason, got %q", res.Body.String())
	}
	if e := rec.last(t); e.Reason != apperror.ReasonNotAdmin {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestRequireAdmin_AdminPasses(t *testing.T) {
	store := session.NewMemoryStore(nil)
	seedSession(t, store, otp.State{Validated: true, OwnerKey: "alice@wizrom.ro", IsAdmin: true})
	e := newGateEcho(store, &recordingAudit{})

	if res := doGet(e, "/api/v1/admin/audit", nil, true); res.Code != http.StatusOK {
		t.Errorf("admin must pass, got %d", res.Code)
	}
}

// --- Handler Tests ---

// stubHeaders returns a fixed header value as if from a trusted proxy.
type stubHeaders struct{ value string }

func (s stubHeaders) TrustedHeader(*http.Request, string) string { return s.value }

func newHandlerEcho(h *flowHarness, headers HeaderSource, store session.Store) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = jsonErrorHandler
	e.Use(session.Middleware(store, session.Options{}))
	RegisterRoutes(e, NewHandler(h.flow, headers, "X-Remote-User"), nil)
	return e
}

func TestHandler_PlatformSendCodeJSON(t *testing.T) {
	h := newFlowHarness(&fakeResolver{res: fakeResolution("alice@wizrom.ro")})
	e := newHandlerEcho(h, stubHeaders{value: `WIZROM\alice`}, session.NewMemoryStore(nil))

	req := httptest.NewRequest(http.MethodPost, "/account/platform/send-code", nil)
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp FlowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusCodeSent {
		t.Errorf("unexpected response %+v", resp)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), "seif_session=") {
		t.Error("a session cookie must be issued")
	}
}

func TestHandler_UntrustedPlatformHeaderIsIgnored(t *testing.T) {
	h := newFlowHarness(&fakeResolver{res: fakeResolution("alice@wizrom.ro")})
	e := newHandlerEcho(h, stubHeaders{}, session.NewMemoryStore(nil))

	req := httptest.NewRequest(http.MethodPost, "/account/platform/send-code", nil)
	req.Header.Set(echo.HeaderAccept, echo.MIMEApplicationJSON)
	req.Header.Set("X-Remote-User", `WIZROM\alice`)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a trusted identity, got %d", rec.Code)
	}
}

func TestHandler_LoginFormPostRendersCodeStep(t *testing.T) {
	h := newFlowHarness(nil)
	e := newHandlerEcho(h, nil, session.NewMemoryStore(nil))

	form := url.Values{"email": {"alice@wizrom.ro"}, "password": {goodPassword}}
	req := httptest.NewRequest(http.MethodPost, "/account/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `action="/account/verify"`) {
		t.Error("expected the code entry form")
	}
	if len(h.mail.sent) != 1 {
		t.Error("expected one code mail")
	}
}

func TestHandler_LoginFormPostWrongPassword(t *testing.T) {
	h := newFlowHarness(nil)
	e := newHandlerEcho(h, nil, session.NewMemoryStore(nil))

	form := url.Values{"email": {"alice@wizrom.ro"}, "password": {"nope"}}
	req := httptest.NewRequest(http.MethodPost, "/account/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid email or password") {
		t.Error("expected the error message on the page")
	}
}

func TestHandler_StatusJSON(t *testing.T) {
	h := newFlowHarness(nil)
	store := session.NewMemoryStore(nil)
	seedSession(t, store, otp.State{Validated: true, OwnerKey: "alice@wizrom.ro", Channel: otp.ChannelExternal})
	e := newHandlerEcho(h, nil, store)

	rec := doGet(e, "/account/status", nil, true)
	var status StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if !status.Validated || status.OwnerKey != "alice@wizrom.ro" || status.Channel != "external" {
		t.Errorf("unexpected status %+v", status)
	}
}

func fakeResolution(email string) identity.Resolution {
	return identity.Resolution{OwnerKey: email, Source: identity.SourceDirectory}
}
