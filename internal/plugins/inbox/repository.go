package inbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keyxmakerx/seif/internal/apperror"
)

// InboxRepository defines the data access contract for pending shares.
// Every read and write is scoped by the recipient key except Deliver,
// which writes on behalf of the sender.
type InboxRepository interface {
	// Deliver inserts a new message and sets its ID.
	Deliver(ctx context.Context, m *Message) error

	// ListForRecipient returns the newest messages first.
	ListForRecipient(ctx context.Context, recipient string, limit int) ([]Message, error)

	// FindForRecipient returns the message, or NotOwned when it does not
	// exist or belongs to someone else.
	FindForRecipient(ctx context.Context, recipient string, id int64) (*Message, error)

	// Accept copies the payload into the recipient's vault and stamps
	// saved_at in one transaction, returning the new record id. An already
	// accepted message is a Conflict.
	Accept(ctx context.Context, recipient, ownerUser string, id int64, now time.Time) (int64, error)

	// Delete removes the message, or returns NotOwned.
	Delete(ctx context.Context, recipient string, id int64) error
}

// inboxRepository implements InboxRepository with hand-written MariaDB queries.
type inboxRepository struct {
	db *sql.DB
}

// NewInboxRepository creates a new inbox repository backed by the given DB pool.
func NewInboxRepository(db *sql.DB) InboxRepository {
	return &inboxRepository{db: db}
}

const messageColumns = `id, recipient_key, sender_key, source_kind, original_id, created_at, saved_at,
	          title, saved_username, password_enc, details_enc, detail_tokens, note_body`

// Deliver inserts a new inbox row.
func (r *inboxRepository) Deliver(ctx context.Context, m *Message) error {
	query := `INSERT INTO inbox_messages (recipient_key, sender_key, source_kind, original_id, created_at,
	              title, saved_username, password_enc, details_enc, detail_tokens, note_body)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		m.RecipientKey, m.SenderKey, m.SourceKind, m.OriginalID, m.CreatedAt,
		m.Title, m.SavedUsername,
		nullString(m.PasswordEnc), nullString(m.DetailsEnc), nullString(m.DetailTokens), nullString(m.NoteBody),
	)
	if err != nil {
		return fmt.Errorf("inserting inbox message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting inbox message id: %w", err)
	}
	m.ID = id
	return nil
}

// ListForRecipient returns the recipient's messages, newest first.
func (r *inboxRepository) ListForRecipient(ctx context.Context, recipient string, limit int) ([]Message, error) {
	query := `SELECT ` + messageColumns + `
	          FROM inbox_messages
	          WHERE recipient_key = ?
	          ORDER BY created_at DESC, id DESC
	          LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, recipient, limit)
	if err != nil {
		return nil, fmt.Errorf("listing inbox: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// FindForRecipient loads one message owned by recipient.
func (r *inboxRepository) FindForRecipient(ctx context.Context, recipient string, id int64) (*Message, error) {
	query := `SELECT ` + messageColumns + `
	          FROM inbox_messages
	          WHERE id = ? AND recipient_key = ?`

	m, err := scanMessage(r.db.QueryRowContext(ctx, query, id, recipient))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotOwned()
	}
	if err != nil {
		return nil, fmt.Errorf("finding inbox message: %w", err)
	}
	return m, nil
}

// Accept materializes the message into a secret or note for the recipient.
// The row is locked for the duration so two concurrent accepts cannot both
// see saved_at unset.
func (r *inboxRepository) Accept(ctx context.Context, recipient, ownerUser string, id int64, now time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning accept tx: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + messageColumns + `
	          FROM inbox_messages
	          WHERE id = ? AND recipient_key = ?
	          FOR UPDATE`
	m, err := scanMessage(tx.QueryRowContext(ctx, query, id, recipient))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperror.NewNotOwned()
	}
	if err != nil {
		return 0, fmt.Errorf("locking inbox message: %w", err)
	}
	if m.Saved() {
		return 0, apperror.NewConflict("this item was already saved to your vault")
	}

	var res sql.Result
	switch m.SourceKind {
	case KindSecret:
		res, err = tx.ExecContext(ctx,
			`INSERT INTO secrets (owner_key, owner_user, title, saved_username, password_enc, details_enc, detail_tokens, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			recipient, ownerUser, m.Title, m.SavedUsername, m.PasswordEnc,
			nullString(m.DetailsEnc), nullString(m.DetailTokens), now,
		)
	case KindNote:
		res, err = tx.ExecContext(ctx,
			`INSERT INTO notes (owner_key, owner_user, title, body, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			recipient, ownerUser, m.Title, m.NoteBody, now, now,
		)
	default:
		return 0, fmt.Errorf("unknown source kind %q", m.SourceKind)
	}
	if err != nil {
		return 0, fmt.Errorf("materializing %s: %w", m.SourceKind, err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting new %s id: %w", m.SourceKind, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE inbox_messages SET saved_at = ? WHERE id = ?`,
		now, m.ID,
	); err != nil {
		return 0, fmt.Errorf("stamping saved_at: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing accept: %w", err)
	}
	return newID, nil
}

// Delete removes a message owned by recipient.
func (r *inboxRepository) Delete(ctx context.Context, recipient string, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM inbox_messages WHERE id = ? AND recipient_key = ?`,
		id, recipient,
	)
	if err != nil {
		return fmt.Errorf("deleting inbox message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deleted rows: %w", err)
	}
	if n == 0 {
		return apperror.NewNotOwned()
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	m := &Message{}
	var savedAt sql.NullTime
	var passwordEnc, detailsEnc, detailTokens, noteBody sql.NullString
	err := row.Scan(
		&m.ID, &m.RecipientKey, &m.SenderKey, &m.SourceKind, &m.OriginalID, &m.CreatedAt, &savedAt,
		&m.Title, &m.SavedUsername, &passwordEnc, &detailsEnc, &detailTokens, &noteBody,
	)
	if err != nil {
		return nil, err
	}
	if savedAt.Valid {
		t := savedAt.Time
		m.SavedAt = &t
	}
	m.PasswordEnc = passwordEnc.String
	m.DetailsEnc = detailsEnc.String
	m.DetailTokens = detailTokens.String
	m.NoteBody = noteBody.String
	return m, nil
}

// nullString maps "" to SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
