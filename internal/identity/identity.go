// Package identity turns whatever a request authenticated with into the one
// canonical owner key that partitions all vault data. The owner key is
// always a normalized email address:
//
//   - application login and the external email flow use the email itself;
//   - platform-integrated identity (DOMAIN\user from the reverse proxy) is
//     resolved to an email through an ordered list of strategies: the
//     directory first, then the cached association from the last
//     successful directory lookup.
//
// Resolution never returns an error. When every strategy misses, the
// result carries NoIdentity and callers must fail closed.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// NoIdentity is the owner key of a failed resolution. It is empty so that
// it can never match a stored row.
const NoIdentity = ""

// Source records where a resolved email came from.
type Source string

const (
	SourceDirectory Source = "directory"
	SourceCache     Source = "cache"
	SourceEmail     Source = "email"
)

var (
	// ErrInvalidEmail is returned by ValidateEmail for malformed addresses.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrDomainNotAllowed is returned by ValidateEmail for addresses outside
	// the allowed domains.
	ErrDomainNotAllowed = errors.New("email domain not allowed")
)

// Normalize trims and lower-cases an email address.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalizes email and checks its syntax and, when
// allowedDomains is non-empty, that its domain is one of them. Display
// names ("Alice <a@x>") are rejected; only a bare address is accepted.
func ValidateEmail(email string, allowedDomains []string) (string, error) {
	normalized := Normalize(email)
	if normalized == "" {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized || addr.Name != "" {
		return "", ErrInvalidEmail
	}

	if len(allowedDomains) == 0 {
		return normalized, nil
	}
	at := strings.LastIndexByte(normalized, '@')
	domain := normalized[at+1:]
	for _, allowed := range allowedDomains {
		if domain == Normalize(strings.TrimPrefix(allowed, "@")) {
			return normalized, nil
		}
	}
	return "", ErrDomainNotAllowed
}

// Result is a successful strategy outcome.
type Result struct {
	Email  string
	Source Source
}

// Strategy is one way of resolving a platform identity to an email. A clean
// miss returns ErrNotFound; any other error is a failure worth auditing.
// Both make the resolver move on to the next strategy.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, platformUser string) (Result, error)
}

// Attempt records one strategy that did not produce an identity.
type Attempt struct {
	Strategy string `json:"strategy"`
	Error    string `json:"error"`
}

// Resolution is the tagged outcome of Resolver.Resolve.
type Resolution struct {
	OwnerKey string
	Source   Source
	Attempts []Attempt
}

// Found reports whether an owner key was established.
func (r Resolution) Found() bool {
	return r.OwnerKey != NoIdentity
}

// Resolver tries its strategies in order and takes the first hit.
type Resolver struct {
	strategies []Strategy
}

// NewResolver creates a resolver over the given strategies, in priority order.
func NewResolver(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Resolve maps a platform identity to an owner key. It never returns an
// error; failures are recorded in Attempts for the caller to audit.
func (r *Resolver) Resolve(ctx context.Context, platformUser string) Resolution {
	platformUser = strings.TrimSpace(platformUser)
	if platformUser == "" {
		return Resolution{Attempts: []Attempt{{Strategy: "input", Error: "empty platform identity"}}}
	}

	var res Resolution
	for _, s := range r.strategies {
		hit, err := s.Resolve(ctx, platformUser)
		if err == nil {
			key := Normalize(hit.Email)
			if key != "" {
				res.OwnerKey = key
				res.Source = hit.Source
				return res
			}
			err = fmt.Errorf("%w: empty email", ErrNotFound)
		}
		res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name(), Error: err.Error()})
	}
	return res
}

// FromEmail is the application-channel resolution: the normalized email is
// the owner key.
func FromEmail(email string) Resolution {
	key := Normalize(email)
	if key == "" {
		return Resolution{}
	}
	return Resolution{OwnerKey: key, Source: SourceEmail}
}
