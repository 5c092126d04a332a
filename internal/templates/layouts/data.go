// data.go provides typed context helpers for passing layout data from
// middleware to page components. Only simple types are stored so the
// layouts package never imports plugin types.
//
// Data flow: Middleware -> Echo Context -> Inject -> Go Context -> component
package layouts

import "context"

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey string

const (
	keyIsAuthenticated ctxKey = "layout_is_authenticated"
	keyOwnerKey        ctxKey = "layout_owner_key"
	keyIsAdmin         ctxKey = "layout_is_admin"
	keyFlashSuccess    ctxKey = "layout_flash_success"
	keyFlashError      ctxKey = "layout_flash_error"
	keyActivePath      ctxKey = "layout_active_path"
)

// Data is everything the shell needs about the current request.
type Data struct {
	IsAuthenticated bool
	OwnerKey        string
	IsAdmin         bool
	ActivePath      string
}

// Inject stores d in ctx.
func Inject(ctx context.Context, d Data) context.Context {
	ctx = context.WithValue(ctx, keyIsAuthenticated, d.IsAuthenticated)
	ctx = context.WithValue(ctx, keyOwnerKey, d.OwnerKey)
	ctx = context.WithValue(ctx, keyIsAdmin, d.IsAdmin)
	return context.WithValue(ctx, keyActivePath, d.ActivePath)
}

// SetFlashSuccess stores a one-shot success banner.
func SetFlashSuccess(ctx context.Context, msg string) context.Context {
	return context.WithValue(ctx, keyFlashSuccess, msg)
}

// SetFlashError stores a one-shot error banner.
func SetFlashError(ctx context.Context, msg string) context.Context {
	return context.WithValue(ctx, keyFlashError, msg)
}

// IsAuthenticated returns whether the session passed the second factor.
func IsAuthenticated(ctx context.Context) bool {
	v, _ := ctx.Value(keyIsAuthenticated).(bool)
	return v
}

// GetOwnerKey returns the validated owner key, or "".
func GetOwnerKey(ctx context.Context) string {
	v, _ := ctx.Value(keyOwnerKey).(string)
	return v
}

// GetIsAdmin returns whether the session belongs to an administrator.
func GetIsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(keyIsAdmin).(bool)
	return v
}

// GetFlashSuccess returns the success banner, or "".
func GetFlashSuccess(ctx context.Context) string {
	v, _ := ctx.Value(keyFlashSuccess).(string)
	return v
}

// GetFlashError returns the error banner, or "".
func GetFlashError(ctx context.Context) string {
	v, _ := ctx.Value(keyFlashError).(string)
	return v
}

// GetActivePath returns the request path, for highlighting navigation.
func GetActivePath(ctx context.Context) string {
	v, _ := ctx.Value(keyActivePath).(string)
	return v
}
