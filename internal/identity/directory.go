package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// ErrNotFound is a clean "no such identity" miss from a directory or cache.
var ErrNotFound = errors.New("identity not found")

// Directory looks up the email address registered for a platform identity.
type Directory interface {
	LookupEmail(ctx context.Context, platformUser string) (string, error)
}

// AccountName strips the domain from DOMAIN\user or user@REALM forms,
// returning the bare account name directories index on.
func AccountName(platformUser string) string {
	name := strings.TrimSpace(platformUser)
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return name
}

// StaticDirectory is a fixed platform-user -> email map, used in
// development and in tests. Keys match case-insensitively on the bare
// account name.
type StaticDirectory struct {
	entries map[string]string
}

// NewStaticDirectory builds a directory from a map of platform users to emails.
func NewStaticDirectory(entries map[string]string) *StaticDirectory {
	d := &StaticDirectory{entries: make(map[string]string, len(entries))}
	for user, email := range entries {
		d.entries[strings.ToLower(AccountName(user))] = email
	}
	return d
}

// ParseStaticDirectory parses "DOMAIN\alice=alice@x.ro,bob=bob@x.ro".
func ParseStaticDirectory(spec string) (*StaticDirectory, error) {
	entries := make(map[string]string)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		user, email, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(user) == "" || strings.TrimSpace(email) == "" {
			return nil, fmt.Errorf("invalid directory entry %q", pair)
		}
		entries[strings.TrimSpace(user)] = strings.TrimSpace(email)
	}
	return NewStaticDirectory(entries), nil
}

// LookupEmail returns the configured email or ErrNotFound.
func (d *StaticDirectory) LookupEmail(_ context.Context, platformUser string) (string, error) {
	email, ok := d.entries[strings.ToLower(AccountName(platformUser))]
	if !ok {
		return "", ErrNotFound
	}
	return email, nil
}

// LDAPConfig holds directory connection settings.
type LDAPConfig struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string

	// Filter is the search filter with one %s for the escaped account name.
	// Defaults to the Active Directory sAMAccountName filter.
	Filter string

	// Timeout bounds dial, bind and search.
	Timeout time.Duration
}

// LDAPDirectory resolves platform users against an LDAP / Active Directory
// server. Each lookup opens its own connection; lookups only happen when a
// code is requested, so pooling is not worth its failure modes.
type LDAPDirectory struct {
	cfg LDAPConfig
}

// NewLDAPDirectory creates a directory client. It does not connect.
func NewLDAPDirectory(cfg LDAPConfig) *LDAPDirectory {
	if cfg.Filter == "" {
		cfg.Filter = "(&(objectClass=user)(sAMAccountName=%s))"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &LDAPDirectory{cfg: cfg}
}

// LookupEmail finds the account and returns its mail attribute.
func (d *LDAPDirectory) LookupEmail(ctx context.Context, platformUser string) (string, error) {
	account := AccountName(platformUser)
	if account == "" {
		return "", ErrNotFound
	}

	dialer := &net.Dialer{Timeout: d.cfg.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	conn, err := ldap.DialURL(d.cfg.URL, ldap.DialWithDialer(dialer))
	if err != nil {
		return "", fmt.Errorf("connecting to directory: %w", err)
	}
	defer conn.Close()
	conn.SetTimeout(d.cfg.Timeout)

	if d.cfg.BindDN != "" {
		if err := conn.Bind(d.cfg.BindDN, d.cfg.BindPassword); err != nil {
			return "", fmt.Errorf("binding to directory: %w", err)
		}
	}

	req := ldap.NewSearchRequest(
		d.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		2, int(d.cfg.Timeout.Seconds()), false,
		fmt.Sprintf(d.cfg.Filter, ldap.EscapeFilter(account)),
		[]string{"mail"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("searching directory: %w", err)
	}
	if len(res.Entries) != 1 {
		return "", ErrNotFound
	}

	email := strings.TrimSpace(res.Entries[0].GetAttributeValue("mail"))
	if email == "" {
		return "", ErrNotFound
	}
	return email, nil
}
