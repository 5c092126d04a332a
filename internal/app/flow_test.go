package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/middleware"
	"github.com/keyxmakerx/seif/internal/plugins/auth"
	"github.com/keyxmakerx/seif/internal/plugins/secrets"
	"github.com/keyxmakerx/seif/internal/plugins/smtp"
)

// --- In-memory repositories ---

type memAccounts struct {
	mu   sync.Mutex
	rows map[string]auth.Account
}

func (m *memAccounts) Create(_ context.Context, a *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[a.Email]; ok {
		return apperror.NewConflict("an account with this email already exists")
	}
	m.rows[a.Email] = *a
	return nil
}

func (m *memAccounts) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[email]
	if !ok {
		return nil, apperror.NewNotFound("account not found")
	}
	return &a, nil
}

func (m *memAccounts) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[email]
	return ok, nil
}

func (m *memAccounts) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

func (m *memAccounts) UpdatePassword(_ context.Context, id string, hash, salt []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, a := range m.rows {
		if a.ID == id {
			a.PasswordHash, a.PasswordSalt = hash, salt
			m.rows[email] = a
			return nil
		}
	}
	return apperror.NewNotFound("account not found")
}

// memSecrets scopes every read by owner, like the SQL does.
type memSecrets struct {
	mu     sync.Mutex
	rows   map[int64]secrets.Secret
	nextID int64
}

func (m *memSecrets) Create(_ context.Context, s *secrets.Secret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	m.rows[s.ID] = *s
	return nil
}

func (m *memSecrets) List(ctx context.Context, owner string, opts secrets.ListOptions) ([]secrets.ListItem, int, error) {
	return m.Search(ctx, owner, "", "", opts)
}

func (m *memSecrets) Search(_ context.Context, owner, _, like string, _ secrets.ListOptions) ([]secrets.ListItem, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []secrets.ListItem
	for _, s := range m.rows {
		if s.OwnerKey != owner || !strings.Contains(strings.ToLower(s.Title), strings.ToLower(like)) {
			continue
		}
		items = append(items, secrets.ListItem{ID: s.ID, Title: s.Title, SavedUsername: s.SavedUsername, CreatedAt: s.CreatedAt})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items, len(items), nil
}

func (m *memSecrets) FindOwned(_ context.Context, owner string, id int64) (*secrets.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.OwnerKey != owner {
		return nil, apperror.NewNotOwned()
	}
	return &s, nil
}

func (m *memSecrets) Delete(_ context.Context, owner string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.OwnerKey != owner {
		return apperror.NewNotOwned()
	}
	delete(m.rows, id)
	return nil
}

// captureMailer keeps the last body mailed to each address.
type captureMailer struct {
	mu   sync.Mutex
	last map[string]string
}

func (m *captureMailer) SendMail(_ context.Context, to []string, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, addr := range to {
		m.last[addr] = body
	}
	return nil
}

func (m *captureMailer) IsConfigured() bool  { return true }
func (m *captureMailer) Status() smtp.Status { return smtp.Status{Configured: true} }

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

func (m *captureMailer) code(t *testing.T, to string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	code := codePattern.FindString(m.last[to])
	if code == "" {
		t.Fatalf("no code was mailed to %s", to)
	}
	return code
}

// --- Browser-like client ---

// client carries cookies between requests and echoes the CSRF cookie back
// in the header, the way the page scripts do.
type client struct {
	t   *testing.T
	app *App
	jar map[string]string
}

func newClient(t *testing.T, a *App) *client {
	c := &client{t: t, app: a, jar: map[string]string{}}
	if rec := c.do(http.MethodGet, "/", nil); rec.Code != http.StatusOK {
		t.Fatalf("landing page: %d", rec.Code)
	}
	return c
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range c.jar {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	if token := c.jar[middleware.CSRFCookieName]; token != "" {
		req.Header.Set(middleware.CSRFHeaderName, token)
	}

	rec := httptest.NewRecorder()
	c.app.Echo.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.jar, ck.Name)
			continue
		}
		c.jar[ck.Name] = ck.Value
	}
	return rec
}

func (c *client) expect(method, path string, body any, code int, out any) {
	c.t.Helper()
	rec := c.do(method, path, body)
	if rec.Code != code {
		c.t.Fatalf("%s %s: expected %d, got %d: %s", method, path, code, rec.Code, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			c.t.Fatalf("%s %s: decoding %q: %v", method, path, rec.Body.String(), err)
		}
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// --- Flow ---

func TestVaultFlow_RegisterSignInStoreAndIsolate(t *testing.T) {
	mail := &captureMailer{last: map[string]string{}}
	clock := &fakeClock{now: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)}
	ta := newTestApp(t,
		WithAccountRepository(&memAccounts{rows: map[string]auth.Account{}}),
		WithSecretRepository(&memSecrets{rows: map[int64]secrets.Secret{}}),
		WithMailer(mail),
		WithClock(clock.Now),
	)

	creds := map[string]string{"email": "Alice@Wizrom.ro", "password": "Xx1!aaaa", "confirm": "Xx1!aaaa"}
	var flow auth.FlowResponse

	// Register, then sign in again once the resend cooldown is over.
	alice := newClient(t, ta.app)
	alice.expect(http.MethodPost, "/account/register", creds, http.StatusOK, &flow)
	if flow.Status != auth.StatusCodeSent {
		t.Fatalf("unexpected register response %+v", flow)
	}
	clock.Advance(61 * time.Second)
	alice.expect(http.MethodPost, "/account/login", creds, http.StatusOK, &flow)

	// The API stays closed until the code is verified.
	alice.expect(http.MethodGet, "/api/v1/secrets", nil, http.StatusUnauthorized, nil)

	before := alice.jar["seif_session"]
	alice.expect(http.MethodPost, "/account/verify", map[string]string{"code": mail.code(t, "alice@wizrom.ro")}, http.StatusOK, &flow)
	if flow.Status != auth.StatusValidated {
		t.Fatalf("unexpected verify response %+v", flow)
	}
	if alice.jar["seif_session"] == before {
		t.Error("the session id must change on sign-in")
	}

	var created secrets.ListItem
	alice.expect(http.MethodPost, "/api/v1/secrets", map[string]string{
		"title": "Router", "saved_username": "admin", "password": "Xx1!aaaa",
	}, http.StatusCreated, &created)

	var page secrets.ListResponse
	alice.expect(http.MethodGet, "/api/v1/secrets", nil, http.StatusOK, &page)
	if page.Total != 1 || page.Items[0].Title != "Router" || page.Items[0].SavedUsername != "admin" {
		t.Fatalf("unexpected vault page %+v", page)
	}

	var revealed struct{ Value string }
	alice.expect(http.MethodPost, fmt.Sprintf("/api/v1/secrets/%d/password", created.ID), nil, http.StatusOK, &revealed)
	if revealed.Value != "Xx1!aaaa" {
		t.Errorf("unexpected password %q", revealed.Value)
	}

	// The first account is the administrator.
	alice.expect(http.MethodGet, "/api/v1/admin/smtp", nil, http.StatusOK, nil)

	// A second account sees an empty vault and cannot reach Alice's row.
	bob := newClient(t, ta.app)
	bob.expect(http.MethodPost, "/account/register", map[string]string{
		"email": "bob@wizrom.ro", "password": "Yy2?bbbb", "confirm": "Yy2?bbbb",
	}, http.StatusOK, nil)
	bob.expect(http.MethodPost, "/account/verify", map[string]string{"code": mail.code(t, "bob@wizrom.ro")}, http.StatusOK, nil)

	page = secrets.ListResponse{}
	bob.expect(http.MethodGet, "/api/v1/secrets", nil, http.StatusOK, &page)
	if page.Total != 0 || len(page.Items) != 0 {
		t.Errorf("another owner's secrets leaked: %+v", page)
	}
	bob.expect(http.MethodPost, fmt.Sprintf("/api/v1/secrets/%d/password", created.ID), nil, http.StatusNotFound, nil)
	bob.expect(http.MethodGet, "/api/v1/admin/smtp", nil, http.StatusForbidden, nil)

	for _, e := range ta.audit.entries {
		if strings.Contains(fmt.Sprintf("%v", e), "Xx1!aaaa") {
			t.Fatalf("a password reached the audit log: %+v", e)
		}
	}
}
