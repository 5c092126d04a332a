package otp

import (
	"strconv"
	"time"
)

// Session value keys. Encode and Decode are the only code that knows how a
// State is laid out in the session store.
const (
	keyCode         = "code"
	keyIssuedAt     = "issued_at"
	keyNextSendAt   = "next_send_at"
	keyFailures     = "failures"
	keyLockedUntil  = "locked_until"
	keyValidated    = "validated"
	keyPendingOwner = "pending_owner"
	keyOwnerKey     = "owner_key"
	keyIsAdmin      = "is_admin"
	keyChannel      = "channel"
	keyPlatformUser = "platform_user"
)

// Encode flattens s into string values, each key prefixed with prefix so
// several states (login, password reset) can share one session. Zero
// fields are omitted.
func Encode(s State, prefix string) map[string]string {
	m := make(map[string]string)
	put := func(k, v string) {
		if v != "" {
			m[prefix+k] = v
		}
	}

	put(keyCode, s.Code)
	put(keyIssuedAt, formatTime(s.IssuedAt))
	put(keyNextSendAt, formatTime(s.NextSendAt))
	if s.Failures > 0 {
		put(keyFailures, strconv.Itoa(s.Failures))
	}
	put(keyLockedUntil, formatTime(s.LockedUntil))
	if s.Validated {
		put(keyValidated, "1")
	}
	put(keyPendingOwner, s.PendingOwner)
	put(keyOwnerKey, s.OwnerKey)
	if s.IsAdmin {
		put(keyIsAdmin, "1")
	}
	put(keyChannel, string(s.Channel))
	put(keyPlatformUser, s.PlatformUser)
	return m
}

// Decode rebuilds a State from session values written by Encode. Values
// that fail to parse decode as zero; an unparsable issue time therefore
// reads as "no active code".
func Decode(m map[string]string, prefix string) State {
	get := func(k string) string { return m[prefix+k] }

	failures, _ := strconv.Atoi(get(keyFailures))
	return State{
		Code:         get(keyCode),
		IssuedAt:     parseTime(get(keyIssuedAt)),
		NextSendAt:   parseTime(get(keyNextSendAt)),
		Failures:     max(failures, 0),
		LockedUntil:  parseTime(get(keyLockedUntil)),
		Validated:    get(keyValidated) == "1",
		PendingOwner: get(keyPendingOwner),
		OwnerKey:     get(keyOwnerKey),
		IsAdmin:      get(keyIsAdmin) == "1",
		Channel:      Channel(get(keyChannel)),
		PlatformUser: get(keyPlatformUser),
	}
}

// Keys lists every session key a State with the given prefix may occupy.
// The adapter uses it to delete stale keys when a field goes back to zero.
func Keys(prefix string) []string {
	names := []string{
		keyCode, keyIssuedAt, keyNextSendAt, keyFailures, keyLockedUntil,
		keyValidated, keyPendingOwner, keyOwnerKey, keyIsAdmin, keyChannel,
		keyPlatformUser,
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = prefix + n
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
