// Package notes keeps short plain-text notes in the owner's vault. Notes
// are not encrypted; anything sensitive belongs in a secret.
package notes

import "time"

// PerPage is the listing page size.
const PerPage = 25

// Field limits, in characters. Longer input is truncated, not rejected.
const (
	MaxTitleLength = 200
	MaxBodyLength  = 255
)

// Note is one stored note.
type Note struct {
	ID        int64     `json:"id"`
	OwnerKey  string    `json:"-"`
	OwnerUser string    `json:"-"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequest is the body of POST /api/v1/notes.
type CreateRequest struct {
	Title string `json:"title" form:"title"`
	Body  string `json:"body" form:"body"`
}

// ListResponse is one page of notes.
type ListResponse struct {
	Items   []Note `json:"items"`
	Query   string `json:"query,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
	Total   int    `json:"total"`
	HasMore bool   `json:"has_more"`
}
