package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/seif/internal/otp"
)

// fakeClock is a settable clock for the memory store.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisStore(rdb), mr
}

// storeContract runs the same behaviour checks against any Store.
func storeContract(t *testing.T, store Store, expire func(time.Duration)) {
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing session, got %v", err)
	}

	if err := store.Save(ctx, "s1", map[string]string{"a": "1", "b": "2"}, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got["a"] != "1" || got["b"] != "2" {
		t.Errorf("unexpected values: %v", got)
	}

	// Save replaces, it does not merge.
	if err := store.Save(ctx, "s1", map[string]string{"c": "3"}, time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ = store.Load(ctx, "s1")
	if _, ok := got["a"]; ok || got["c"] != "3" {
		t.Errorf("expected replacement, got %v", got)
	}

	// Saving nothing removes the session.
	if err := store.Save(ctx, "s1", nil, time.Minute); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	if _, err := store.Load(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected empty save to remove session, got %v", err)
	}

	// Expiry, and Touch sliding it forward.
	_ = store.Save(ctx, "s2", map[string]string{"k": "v"}, time.Minute)
	expire(45 * time.Second)
	if err := store.Touch(ctx, "s2", time.Minute); err != nil {
		t.Fatalf("touch: %v", err)
	}
	expire(45 * time.Second)
	if _, err := store.Load(ctx, "s2"); err != nil {
		t.Errorf("touched session should still exist: %v", err)
	}
	expire(2 * time.Minute)
	if _, err := store.Load(ctx, "s2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected session to expire, got %v", err)
	}

	_ = store.Save(ctx, "s3", map[string]string{"k": "v"}, time.Minute)
	if err := store.Destroy(ctx, "s3"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := store.Load(ctx, "s3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected destroyed session to be gone, got %v", err)
	}
}

func TestMemoryStore_Contract(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clock.now)
	storeContract(t, store, func(d time.Duration) { clock.t = clock.t.Add(d) })
}

func TestRedisStore_Contract(t *testing.T) {
	store, mr := newRedisStore(t)
	storeContract(t, store, mr.FastForward)
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clock.now)
	ctx := context.Background()

	_ = store.Save(ctx, "short", map[string]string{"k": "v"}, time.Minute)
	_ = store.Save(ctx, "long", map[string]string{"k": "v"}, time.Hour)
	clock.t = clock.t.Add(2 * time.Minute)

	if n := store.Sweep(); n != 1 {
		t.Errorf("expected 1 swept session, got %d", n)
	}
	if _, err := store.Load(ctx, "long"); err != nil {
		t.Errorf("long session should survive sweep: %v", err)
	}
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	_ = store.Save(ctx, "s", map[string]string{"k": "v"}, time.Minute)

	got, _ := store.Load(ctx, "s")
	got["k"] = "tampered"

	again, _ := store.Load(ctx, "s")
	if again["k"] != "v" {
		t.Errorf("store values were mutated through a loaded map")
	}
}

// --- Middleware ---

// serve runs one request through the middleware and returns the recorder
// plus whatever handler observed.
func serve(t *testing.T, store Store, cookie *http.Cookie, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := Middleware(store, Options{})(handler)
	if err := h(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "seif_session" {
			return c
		}
	}
	return nil
}

func TestMiddleware_NewSessionSetsCookie(t *testing.T) {
	store := NewMemoryStore(nil)
	var seen *Handle
	rec := serve(t, store, nil, func(c echo.Context) error {
		seen = From(c)
		return nil
	})

	cookie := sessionCookie(rec)
	if cookie == nil {
		t.Fatal("expected a session cookie")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if seen == nil || seen.ID() != cookie.Value || len(cookie.Value) != 64 {
		t.Errorf("handle id and cookie disagree")
	}
}

func TestMiddleware_StatePersistsAcrossRequests(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	rec := serve(t, store, nil, func(c echo.Context) error {
		return From(c).Save(ctx, otp.State{Validated: true, OwnerKey: "a@wizrom.ro"})
	})
	cookie := sessionCookie(rec)

	var state otp.State
	serve(t, store, cookie, func(c echo.Context) error {
		state = StateOf(c)
		return nil
	})
	if !state.Authorized() || state.OwnerKey != "a@wizrom.ro" {
		t.Errorf("expected persisted authorized state, got %+v", state)
	}
}

func TestMiddleware_UnknownCookieGetsFreshSession(t *testing.T) {
	store := NewMemoryStore(nil)
	forged := &http.Cookie{Name: "seif_session", Value: "forged"}

	rec := serve(t, store, forged, func(c echo.Context) error {
		if From(c).ID() == "forged" {
			t.Error("forged id must not be adopted")
		}
		return nil
	})
	if sessionCookie(rec) == nil {
		t.Error("expected a replacement cookie")
	}
}

// failingStore fails every Load with a non-ErrNotFound error.
type failingStore struct{ MemoryStore }

func (f *failingStore) Load(context.Context, string) (map[string]string, error) {
	return nil, errors.New("connection refused")
}

func TestMiddleware_StoreErrorFailsRequest(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "seif_session", Value: "abc"})
	c := e.NewContext(req, httptest.NewRecorder())

	called := false
	err := Middleware(&failingStore{}, Options{})(func(echo.Context) error {
		called = true
		return nil
	})(c)

	if err == nil {
		t.Fatal("expected an error when the store is unavailable")
	}
	if called {
		t.Error("handler must not run when the session cannot be loaded")
	}
}

func TestHandle_PrefixesAreIndependent(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	serve(t, store, nil, func(c echo.Context) error {
		h := From(c)
		if err := h.Save(ctx, otp.State{Validated: true, OwnerKey: "a@wizrom.ro"}); err != nil {
			return err
		}
		if err := h.SaveAt(ctx, PrefixReset, otp.State{PendingOwner: "a@wizrom.ro", Code: "123456"}); err != nil {
			return err
		}
		if err := h.SaveAt(ctx, PrefixReset, otp.State{}); err != nil {
			return err
		}
		if !h.State().Authorized() {
			t.Error("clearing reset state must not touch login state")
		}
		if h.StateAt(PrefixReset).Code != "" {
			t.Error("reset state should be empty")
		}
		return nil
	})
}

func TestHandle_RegenerateAndClear(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	serve(t, store, nil, func(c echo.Context) error {
		h := From(c)
		_ = h.SetValue(ctx, "k", "v")
		before := h.ID()

		if err := h.Regenerate(ctx); err != nil {
			return err
		}
		if h.ID() == before {
			t.Error("regenerate must change the id")
		}
		if _, err := store.Load(ctx, before); !errors.Is(err, ErrNotFound) {
			t.Error("old session must be destroyed")
		}
		if vals, _ := store.Load(ctx, h.ID()); vals["k"] != "v" {
			t.Error("values must move to the new id")
		}

		if err := h.Clear(ctx); err != nil {
			return err
		}
		if h.Value("k") != "" || h.State().Authorized() {
			t.Error("clear must drop all values")
		}
		return nil
	})
}
