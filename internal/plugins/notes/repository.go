package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/keyxmakerx/seif/internal/apperror"
)

// NoteRepository defines the data access contract for notes. Every method
// is scoped by the owner key.
type NoteRepository interface {
	Create(ctx context.Context, n *Note) error

	// List returns a page of the owner's notes, most recently updated
	// first, optionally filtered by a substring of title or body.
	List(ctx context.Context, owner, query string, limit, offset int) ([]Note, int, error)

	// FindOwned returns the note, or NotOwned.
	FindOwned(ctx context.Context, owner string, id int64) (*Note, error)

	// Delete removes the note, or returns NotOwned.
	Delete(ctx context.Context, owner string, id int64) error
}

// noteRepository implements NoteRepository with hand-written MariaDB queries.
type noteRepository struct {
	db *sql.DB
}

// NewNoteRepository creates a new note repository backed by the given DB pool.
func NewNoteRepository(db *sql.DB) NoteRepository {
	return &noteRepository{db: db}
}

// Create inserts a new note row.
func (r *noteRepository) Create(ctx context.Context, n *Note) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (owner_key, owner_user, title, body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.OwnerKey, n.OwnerUser, n.Title, n.Body, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting note id: %w", err)
	}
	n.ID = id
	return nil
}

// List returns one page of the owner's notes.
func (r *noteRepository) List(ctx context.Context, owner, query string, limit, offset int) ([]Note, int, error) {
	where := "WHERE owner_key = ?"
	args := []any{owner}
	if query != "" {
		pattern := "%" + escapeLike(query) + "%"
		where += " AND (title LIKE ? OR body LIKE ?)"
		args = append(args, pattern, pattern)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting notes: %w", err)
	}

	selectQuery := `SELECT id, owner_key, owner_user, title, body, created_at, updated_at
	          FROM notes ` + where + `
	          ORDER BY updated_at DESC, id DESC
	          LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, selectQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.OwnerKey, &n.OwnerUser, &n.Title, &n.Body, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, total, rows.Err()
}

// FindOwned loads one note owned by owner.
func (r *noteRepository) FindOwned(ctx context.Context, owner string, id int64) (*Note, error) {
	n := &Note{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_key, owner_user, title, body, created_at, updated_at
		 FROM notes WHERE id = ? AND owner_key = ?`,
		id, owner,
	).Scan(&n.ID, &n.OwnerKey, &n.OwnerUser, &n.Title, &n.Body, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotOwned()
	}
	if err != nil {
		return nil, fmt.Errorf("finding note: %w", err)
	}
	return n, nil
}

// Delete removes one note owned by owner.
func (r *noteRepository) Delete(ctx context.Context, owner string, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND owner_key = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("deleting note: %w", err)
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

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
