// Package admin provides account administration. Routes are mounted on
// the admin group, so every request already passed the admin gate.
package admin

import "time"

// PerPage is the account list page size.
const PerPage = 25

// Reason codes for refused account changes.
const (
	ReasonSelfChange = "SelfChange"
	ReasonLastAdmin  = "LastAdmin"
)

// Account is the administrative view of an account. Credentials are
// never loaded.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListResponse is one page of accounts.
type ListResponse struct {
	Items   []Account `json:"items"`
	Page    int       `json:"page"`
	PerPage int       `json:"per_page"`
	Total   int       `json:"total"`
	HasMore bool      `json:"has_more"`
}

// FlagRequest is the body of the flag endpoints.
type FlagRequest struct {
	Value *bool `json:"value" form:"value"`
}
