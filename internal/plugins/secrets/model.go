// Package secrets stores credentials in the owner's vault. The password
// and free-form details are encrypted with the master key before they
// reach the database; title, username and the search tokens derived from
// the details stay in clear so the vault can be searched.
package secrets

import "time"

// PerPage is the listing page size.
const PerPage = 25

// FullTextMinToken matches the default innodb_ft_min_token_size. Shorter
// tokens are stored but only found through substring matching.
const FullTextMinToken = 3

// Field limits, in characters.
const (
	MaxTitleLength    = 200
	MaxUsernameLength = 200
	MaxPasswordLength = 1024
	MaxDetailsLength  = 4000
)

// Secret is one stored credential. PasswordEnc and DetailsEnc are envelope
// ciphertext; DetailTokens is searchtoken.Join of the plaintext details.
type Secret struct {
	ID            int64
	OwnerKey      string
	OwnerUser     string
	Title         string
	SavedUsername string
	PasswordEnc   string
	DetailsEnc    string
	DetailTokens  string
	CreatedAt     time.Time
}

// ListItem is the listing shape of a secret. It never carries ciphertext.
type ListItem struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	SavedUsername string    `json:"saved_username"`
	HasDetails    bool      `json:"has_details"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreateRequest is the body of POST /api/v1/secrets.
type CreateRequest struct {
	Title         string `json:"title" form:"title"`
	SavedUsername string `json:"saved_username" form:"saved_username"`
	Password      string `json:"password" form:"password"`
	Details       string `json:"details" form:"details"`
}

// ListResponse is one page of the vault.
type ListResponse struct {
	Items   []ListItem `json:"items"`
	Query   string     `json:"query,omitempty"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
	Total   int        `json:"total"`
	HasMore bool       `json:"has_more"`
}

// --- Pagination ---

// ListOptions holds pagination parameters for list queries.
type ListOptions struct {
	Page    int
	PerPage int
}

// NewListOptions returns options for page, clamped to the first page.
func NewListOptions(page int) ListOptions {
	if page < 1 {
		page = 1
	}
	return ListOptions{Page: page, PerPage: PerPage}
}

// Offset returns the SQL OFFSET value for the current page.
func (o ListOptions) Offset() int {
	if o.Page < 1 {
		o.Page = 1
	}
	return (o.Page - 1) * o.PerPage
}
