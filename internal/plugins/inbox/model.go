// Package inbox holds items shared between vault owners. Sharing copies a
// secret's encrypted payload (or a note's text) into a pending message for
// the recipient; nothing is re-encrypted and the sender's record is left
// untouched. The recipient can reveal the payload, accept it into their
// own vault or discard it.
package inbox

import "time"

// Source kinds of a shared item.
const (
	KindSecret = "secret"
	KindNote   = "note"
)

// MaxListRows caps one inbox listing.
const MaxListRows = 200

// Message is a pending share addressed to RecipientKey. The payload fields
// hold a copy of the source record at share time.
type Message struct {
	ID           int64
	RecipientKey string
	SenderKey    string
	SourceKind   string
	OriginalID   int64
	CreatedAt    time.Time
	SavedAt      *time.Time

	Title         string
	SavedUsername string
	PasswordEnc   string
	DetailsEnc    string
	DetailTokens  string
	NoteBody      string
}

// Saved reports whether the message was already accepted.
func (m *Message) Saved() bool {
	return m.SavedAt != nil
}

// View converts a message to the JSON shape shown to the recipient. The
// encrypted fields never leave the server; they are revealed one at a time.
func (m *Message) View() MessageView {
	return MessageView{
		ID:            m.ID,
		SenderKey:     m.SenderKey,
		Kind:          m.SourceKind,
		Title:         m.Title,
		SavedUsername: m.SavedUsername,
		NoteBody:      m.NoteBody,
		HasDetails:    m.DetailsEnc != "",
		CreatedAt:     m.CreatedAt,
		SavedAt:       m.SavedAt,
	}
}

// MessageView is the listing shape of a Message.
type MessageView struct {
	ID            int64      `json:"id"`
	SenderKey     string     `json:"sender"`
	Kind          string     `json:"kind"`
	Title         string     `json:"title"`
	SavedUsername string     `json:"saved_username,omitempty"`
	NoteBody      string     `json:"note_body,omitempty"`
	HasDetails    bool       `json:"has_details"`
	CreatedAt     time.Time  `json:"created_at"`
	SavedAt       *time.Time `json:"saved_at,omitempty"`
}

// ShareRequest is the body of the share endpoints of the secrets and notes
// plugins.
type ShareRequest struct {
	Email string `json:"email" form:"email"`
}

// RevealResponse carries one decrypted field.
type RevealResponse struct {
	Value string `json:"value"`
}

// AcceptResponse reports the id of the record created in the recipient's vault.
type AcceptResponse struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}
