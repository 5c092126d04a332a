// Package otp implements the one-time-code second factor as a pure state
// machine. A State value is passed into Issue and Verify together with the
// current time and a random source, and a new State is returned; nothing in
// this package touches session storage, clocks or global randomness.
//
//	NoCode -> CodeIssued -> Validated | Expired | LockedOut
//	LockedOut -> NoCode (once the lockout elapses)
//
// The session adapter (internal/session) persists State between requests.
package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"math"
	"math/big"
	"strings"
	"time"
)

// Timing and attempt limits for one-time codes.
const (
	CodeDigits  = 6
	Cooldown    = 60 * time.Second
	Lifetime    = 5 * time.Minute
	MaxFailures = 5
	Lockout     = 10 * time.Minute
)

// codeSpace is 10^CodeDigits; codes are uniform over [0, codeSpace).
var codeSpace = big.NewInt(1_000_000)

// Channel records which identity channel started the flow.
type Channel string

const (
	// ChannelPassword is application login with email and password.
	ChannelPassword Channel = "password"

	// ChannelExternal is the email-only flow for users outside the directory.
	ChannelExternal Channel = "external"

	// ChannelPlatform is platform-integrated identity resolved via the directory.
	ChannelPlatform Channel = "platform"
)

// Reason is a stable failure code. It is audited and mapped to a
// user-facing message, so values must not change.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonCooldown        Reason = "Cooldown"
	ReasonNoActiveCode    Reason = "NoActiveCode"
	ReasonExpiredCode     Reason = "ExpiredCode"
	ReasonWrongCode       Reason = "WrongCode"
	ReasonTooManyAttempts Reason = "TooManyAttempts"
	ReasonLocked          Reason = "Locked"
)

// State is the per-session second-factor state. The zero value is NoCode.
type State struct {
	Code        string
	IssuedAt    time.Time
	NextSendAt  time.Time
	Failures    int
	LockedUntil time.Time

	// Validated is the "2FA validated" flag consulted by the access gate.
	Validated bool

	// PendingOwner is the owner key the outstanding code was sent for. It
	// becomes OwnerKey on successful verification, so a code can only ever
	// validate the identity it was issued to.
	PendingOwner string
	OwnerKey     string
	IsAdmin      bool
	Channel      Channel

	// PlatformUser is the platform identity (e.g. DOMAIN\user) for
	// ChannelPlatform flows; kept for audit and legacy owner-user fields.
	PlatformUser string
}

// Subject describes who a code is being issued to.
type Subject struct {
	OwnerKey     string
	Channel      Channel
	PlatformUser string
}

// IssueResult reports the outcome of Issue. Code is only set on success and
// must go to the delivery channel, never to logs or audit entries.
type IssueResult struct {
	Code       string
	Reason     Reason
	RetryAfter time.Duration
}

// OK reports whether a code was issued.
func (r IssueResult) OK() bool { return r.Reason == ReasonNone }

// RetryAfterSeconds returns the cooldown remainder rounded up, so a
// rejected issue always reports at least one second.
func (r IssueResult) RetryAfterSeconds() int {
	return ceilSeconds(r.RetryAfter)
}

// VerifyResult reports the outcome of Verify.
type VerifyResult struct {
	Reason Reason

	// Failures is the failure counter after this attempt.
	Failures int

	// Remaining is the number of wrong attempts left before lockout.
	Remaining int

	// LockRemaining is how long the session stays locked out.
	LockRemaining time.Duration
}

// OK reports whether the code was accepted.
func (r VerifyResult) OK() bool { return r.Reason == ReasonNone }

// LockMinutes returns the lockout remainder rounded up to whole minutes.
func (r VerifyResult) LockMinutes() int {
	return int(math.Ceil(r.LockRemaining.Minutes()))
}

// GenerateCode returns a zero-padded decimal code drawn uniformly from
// 000000..999999. The reader must be cryptographically strong; callers pass
// crypto/rand.Reader outside of tests.
func GenerateCode(random io.Reader) (string, error) {
	n, err := rand.Int(random, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()), nil
}

// Issue starts a new code for subject. Inside the cooldown window it is
// rejected with ReasonCooldown and the state is returned unchanged.
// Otherwise the new code replaces any previous one, failures and lockout
// are cleared, and any earlier validation is revoked.
func Issue(s State, subject Subject, now time.Time, random io.Reader) (State, IssueResult, error) {
	if remaining := s.CooldownRemaining(now); remaining > 0 {
		return s, IssueResult{Reason: ReasonCooldown, RetryAfter: remaining}, nil
	}

	code, err := GenerateCode(random)
	if err != nil {
		return s, IssueResult{}, err
	}

	next := State{
		Code:         code,
		IssuedAt:     now,
		NextSendAt:   now.Add(Cooldown),
		PendingOwner: subject.OwnerKey,
		Channel:      subject.Channel,
		PlatformUser: subject.PlatformUser,
	}
	return next, IssueResult{Code: code}, nil
}

// Verify checks a submitted code. The returned state must be persisted
// whatever the outcome, since failures and lockout live in it.
func Verify(s State, submitted string, now time.Time) (State, VerifyResult) {
	if !s.LockedUntil.IsZero() {
		if now.Before(s.LockedUntil) {
			return s, VerifyResult{
				Reason:        ReasonLocked,
				Failures:      s.Failures,
				LockRemaining: s.LockedUntil.Sub(now),
			}
		}
		// Lockout elapsed: back to NoCode.
		s.LockedUntil = time.Time{}
		s.Failures = 0
		s.Code = ""
		s.IssuedAt = time.Time{}
	}

	if s.Code == "" || s.IssuedAt.IsZero() {
		return s, VerifyResult{Reason: ReasonNoActiveCode, Failures: s.Failures}
	}

	if now.Sub(s.IssuedAt) > Lifetime {
		return s, VerifyResult{Reason: ReasonExpiredCode, Failures: s.Failures}
	}

	submitted = strings.TrimSpace(submitted)
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(s.Code)) == 1 {
		s.Validated = true
		s.OwnerKey = s.PendingOwner
		s.Code = ""
		s.IssuedAt = time.Time{}
		s.NextSendAt = time.Time{}
		s.Failures = 0
		s.LockedUntil = time.Time{}
		return s, VerifyResult{}
	}

	s.Failures++
	if s.Failures >= MaxFailures {
		s.LockedUntil = now.Add(Lockout)
		return s, VerifyResult{
			Reason:        ReasonTooManyAttempts,
			Failures:      s.Failures,
			LockRemaining: Lockout,
		}
	}
	return s, VerifyResult{
		Reason:    ReasonWrongCode,
		Failures:  s.Failures,
		Remaining: MaxFailures - s.Failures,
	}
}

// Clear returns the NoCode state with validation revoked (logout).
func Clear() State {
	return State{}
}

// CooldownRemaining returns how long until another code may be issued.
func (s State) CooldownRemaining(now time.Time) time.Duration {
	if s.NextSendAt.IsZero() || !now.Before(s.NextSendAt) {
		return 0
	}
	return s.NextSendAt.Sub(now)
}

// IsLocked reports whether verification is currently locked out.
func (s State) IsLocked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// HasActiveCode reports whether a code is outstanding and not yet expired.
func (s State) HasActiveCode(now time.Time) bool {
	return s.Code != "" && !s.IssuedAt.IsZero() && now.Sub(s.IssuedAt) <= Lifetime
}

// Authorized reports whether the session passed the second factor and is
// bound to an owner key. This is the check behind the access gate.
func (s State) Authorized() bool {
	return s.Validated && s.OwnerKey != ""
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
