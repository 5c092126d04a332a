package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/otp"
)

// contextKey is the Echo context key holding the request's *Handle.
const contextKey = "session"

// idBytes is the number of random bytes in a session id (hex-encoded to 64 chars).
const idBytes = 32

// State prefixes. The login flow and the password-reset flow each keep
// their own OTP state so a reset never touches the validated login.
const (
	PrefixLogin = "otp."
	PrefixReset = "reset."
)

// Options configures the session middleware.
type Options struct {
	// CookieName defaults to "seif_session".
	CookieName string

	// TTL is the idle timeout; every request slides it forward. Defaults to 20 minutes.
	TTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.CookieName == "" {
		o.CookieName = "seif_session"
	}
	if o.TTL <= 0 {
		o.TTL = 20 * time.Minute
	}
	return o
}

// Handle is the request's view of its session. Reads come from the values
// loaded at the start of the request; writes go straight to the store.
type Handle struct {
	id     string
	values map[string]string
	store  Store
	opts   Options
	c      echo.Context
}

// ID returns the session id. Never log it.
func (h *Handle) ID() string { return h.id }

// State decodes the login flow state.
func (h *Handle) State() otp.State {
	return otp.Decode(h.values, PrefixLogin)
}

// StateAt decodes the state stored under prefix.
func (h *Handle) StateAt(prefix string) otp.State {
	return otp.Decode(h.values, prefix)
}

// Save persists the login flow state.
func (h *Handle) Save(ctx context.Context, s otp.State) error {
	return h.SaveAt(ctx, PrefixLogin, s)
}

// SaveAt replaces the state stored under prefix, leaving other keys alone.
func (h *Handle) SaveAt(ctx context.Context, prefix string, s otp.State) error {
	next := maps.Clone(h.values)
	if next == nil {
		next = make(map[string]string)
	}
	for _, k := range otp.Keys(prefix) {
		delete(next, k)
	}
	maps.Copy(next, otp.Encode(s, prefix))
	return h.write(ctx, next)
}

// Value returns an ancillary string value.
func (h *Handle) Value(key string) string {
	return h.values[key]
}

// SetValue stores an ancillary string value; an empty value removes the key.
func (h *Handle) SetValue(ctx context.Context, key, value string) error {
	next := maps.Clone(h.values)
	if next == nil {
		next = make(map[string]string)
	}
	if value == "" {
		delete(next, key)
	} else {
		next[key] = value
	}
	return h.write(ctx, next)
}

// Regenerate moves the session to a fresh id and rotates the cookie. Call
// it when the session gains privilege (successful verification) so an id
// planted before login is worthless afterwards.
func (h *Handle) Regenerate(ctx context.Context) error {
	oldID := h.id
	fresh, err := newID()
	if err != nil {
		return err
	}
	if err := h.store.Save(ctx, fresh, h.values, h.opts.TTL); err != nil {
		return err
	}
	if err := h.store.Destroy(ctx, oldID); err != nil {
		slog.Warn("failed to destroy old session after regenerate", slog.Any("error", err))
	}
	h.id = fresh
	h.setCookie()
	return nil
}

// Clear destroys the whole session (logout) and issues a fresh, empty one.
func (h *Handle) Clear(ctx context.Context) error {
	if err := h.store.Destroy(ctx, h.id); err != nil {
		return err
	}
	id, err := newID()
	if err != nil {
		return err
	}
	h.id = id
	h.values = map[string]string{}
	h.setCookie()
	return nil
}

func (h *Handle) write(ctx context.Context, values map[string]string) error {
	if err := h.store.Save(ctx, h.id, values, h.opts.TTL); err != nil {
		return err
	}
	h.values = values
	return nil
}

func (h *Handle) setCookie() {
	req := h.c.Request()
	h.c.SetCookie(&http.Cookie{
		Name:     h.opts.CookieName,
		Value:    h.id,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware loads the session named by the cookie into the request, or
// starts a new one. Store errors fail the request rather than silently
// yielding an unauthenticated session.
func Middleware(store Store, opts Options) echo.MiddlewareFunc {
	opts = opts.withDefaults()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			h := &Handle{store: store, opts: opts, c: c, values: map[string]string{}}

			if cookie, err := c.Cookie(opts.CookieName); err == nil && cookie.Value != "" {
				values, err := store.Load(ctx, cookie.Value)
				switch {
				case err == nil:
					h.id = cookie.Value
					h.values = values
					if err := store.Touch(ctx, h.id, opts.TTL); err != nil {
						slog.Warn("failed to refresh session ttl", slog.Any("error", err))
					}
				case errors.Is(err, ErrNotFound):
					// Expired or forged id: fall through and mint a new one.
				default:
					return apperror.NewInternal(fmt.Errorf("loading session: %w", err))
				}
			}

			if h.id == "" {
				id, err := newID()
				if err != nil {
					return apperror.NewInternal(err)
				}
				h.id = id
				h.setCookie()
			}

			c.Set(contextKey, h)
			return next(c)
		}
	}
}

// From returns the request's session handle, or nil when the middleware
// is not installed.
func From(c echo.Context) *Handle {
	h, _ := c.Get(contextKey).(*Handle)
	return h
}

// StateOf returns the login state for the request, or the zero state when
// there is no session.
func StateOf(c echo.Context) otp.State {
	if h := From(c); h != nil {
		return h.State()
	}
	return otp.State{}
}

func newID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
