package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/searchtoken"
)

// SecretRepository defines the data access contract for secrets. Every
// method takes the owner key and filters on it; there is no unscoped read.
type SecretRepository interface {
	Create(ctx context.Context, s *Secret) error

	// List returns the owner's secrets, newest first, and the total count.
	List(ctx context.Context, owner string, opts ListOptions) ([]ListItem, int, error)

	// Search matches terms against title, username and detail tokens with
	// a FULLTEXT natural-language query. A blank terms string falls back
	// to a LIKE match of like on title and username, and of each token of
	// like on the detail tokens.
	Search(ctx context.Context, owner, terms, like string, opts ListOptions) ([]ListItem, int, error)

	// FindOwned returns the secret, or NotOwned when it does not exist or
	// belongs to someone else.
	FindOwned(ctx context.Context, owner string, id int64) (*Secret, error)

	// Delete removes the secret, or returns NotOwned.
	Delete(ctx context.Context, owner string, id int64) error
}

// secretRepository implements SecretRepository with hand-written MariaDB queries.
type secretRepository struct {
	db *sql.DB
}

// NewSecretRepository creates a new secret repository backed by the given DB pool.
func NewSecretRepository(db *sql.DB) SecretRepository {
	return &secretRepository{db: db}
}

// Create inserts a new secret row.
func (r *secretRepository) Create(ctx context.Context, s *Secret) error {
	query := `INSERT INTO secrets (owner_key, owner_user, title, saved_username, password_enc, details_enc, detail_tokens, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		s.OwnerKey, s.OwnerUser, s.Title, s.SavedUsername, s.PasswordEnc,
		nullString(s.DetailsEnc), nullString(s.DetailTokens), s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting secret: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting secret id: %w", err)
	}
	s.ID = id
	return nil
}

// List returns one page of the owner's secrets.
func (r *secretRepository) List(ctx context.Context, owner string, opts ListOptions) ([]ListItem, int, error) {
	return r.page(ctx, "WHERE owner_key = ?", []any{owner}, opts)
}

// Search returns one page of the owner's secrets matching the query.
func (r *secretRepository) Search(ctx context.Context, owner, terms, like string, opts ListOptions) ([]ListItem, int, error) {
	where, args := searchWhere(owner, terms, like)
	return r.page(ctx, where, args, opts)
}

// searchWhere builds the WHERE clause of Search. InnoDB does not index
// words shorter than innodb_ft_min_token_size (3 by default), so queries
// made only of short tokens must not reach MATCH.
func searchWhere(owner, terms, like string) (string, []any) {
	where := "WHERE owner_key = ?"
	args := []any{owner}

	if terms != "" {
		where += " AND MATCH(title, saved_username, detail_tokens) AGAINST(? IN NATURAL LANGUAGE MODE)"
		return where, append(args, terms)
	}

	pattern := "%" + escapeLike(like) + "%"
	clause := "title LIKE ? OR saved_username LIKE ?"
	args = append(args, pattern, pattern)

	if tokens := searchtoken.Tokens(like); len(tokens) > 0 {
		parts := make([]string, len(tokens))
		for i, tok := range tokens {
			parts[i] = "detail_tokens LIKE ?"
			args = append(args, "%"+escapeLike(tok)+"%")
		}
		clause += " OR (" + strings.Join(parts, " AND ") + ")"
	}
	return where + " AND (" + clause + ")", args
}

// page runs the count and the page query for a WHERE clause.
func (r *secretRepository) page(ctx context.Context, where string, args []any, opts ListOptions) ([]ListItem, int, error) {
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM secrets %s", where)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting secrets: %w", err)
	}

	query := fmt.Sprintf(`SELECT id, title, saved_username, details_enc IS NOT NULL, created_at
	          FROM secrets
	          %s
	          ORDER BY created_at DESC, id DESC
	          LIMIT ? OFFSET ?`, where)

	pageArgs := append(args, opts.PerPage, opts.Offset())
	rows, err := r.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing secrets: %w", err)
	}
	defer rows.Close()

	items := []ListItem{}
	for rows.Next() {
		var it ListItem
		if err := rows.Scan(&it.ID, &it.Title, &it.SavedUsername, &it.HasDetails, &it.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning secret: %w", err)
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

// FindOwned loads one secret owned by owner.
func (r *secretRepository) FindOwned(ctx context.Context, owner string, id int64) (*Secret, error) {
	query := `SELECT id, owner_key, owner_user, title, saved_username, password_enc, details_enc, detail_tokens, created_at
	          FROM secrets WHERE id = ? AND owner_key = ?`

	s := &Secret{}
	var detailsEnc, detailTokens sql.NullString
	err := r.db.QueryRowContext(ctx, query, id, owner).Scan(
		&s.ID, &s.OwnerKey, &s.OwnerUser, &s.Title, &s.SavedUsername,
		&s.PasswordEnc, &detailsEnc, &detailTokens, &s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotOwned()
	}
	if err != nil {
		return nil, fmt.Errorf("finding secret: %w", err)
	}
	s.DetailsEnc = detailsEnc.String
	s.DetailTokens = detailTokens.String
	return s, nil
}

// Delete removes one secret owned by owner.
func (r *secretRepository) Delete(ctx context.Context, owner string, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM secrets WHERE id = ? AND owner_key = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("deleting secret: %w", err)
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

// nullString maps "" to SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes the LIKE wildcards in s.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
