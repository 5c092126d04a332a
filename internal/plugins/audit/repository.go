package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AuditRepository defines the data access contract for the audit log.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type AuditRepository interface {
	// Insert appends one entry. Fields must already be truncated.
	Insert(ctx context.Context, entry *Entry) error

	// List returns entries matching f, newest first, at most f.Limit rows.
	List(ctx context.Context, f Filter) ([]Entry, error)

	// DeleteBefore removes entries with event_time < cutoff and returns
	// how many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// auditRepository implements AuditRepository with MariaDB queries.
type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new repository backed by the given DB pool.
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Insert writes one entry. Empty optional strings are stored as NULL.
func (r *auditRepository) Insert(ctx context.Context, e *Entry) error {
	query := `INSERT INTO audit_log
	          (event_time, event_type, actor, target_type, target_id, outcome, reason,
	           client_ip, user_agent, correlation_id, details)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		e.EventTime, e.EventType, e.Actor,
		nullable(e.TargetType), nullable(e.TargetID), e.Outcome, nullable(e.Reason),
		nullable(e.ClientIP), nullable(e.UserAgent), nullable(e.CorrelationID), nullable(e.DetailsJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting audit entry id: %w", err)
	}
	e.ID = id
	return nil
}

// List builds the WHERE clause from the non-empty filter fields. Substring
// filters escape LIKE wildcards so a literal "%" matches itself.
func (r *auditRepository) List(ctx context.Context, f Filter) ([]Entry, error) {
	var where []string
	var args []any

	if f.Actor != "" {
		where = append(where, `actor LIKE ? ESCAPE '\\'`)
		args = append(args, "%"+escapeLike(f.Actor)+"%")
	}
	if f.EventType != "" {
		where = append(where, `event_type LIKE ? ESCAPE '\\'`)
		args = append(args, "%"+escapeLike(f.EventType)+"%")
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, f.Outcome)
	}
	if f.TargetID != "" {
		where = append(where, "target_id = ?")
		args = append(args, f.TargetID)
	}
	if f.From != nil {
		where = append(where, "event_time >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		where = append(where, "event_time < ?")
		args = append(args, f.To.UTC())
	}

	query := `SELECT id, event_time, event_type, actor,
	                 COALESCE(target_type, ''), COALESCE(target_id, ''), outcome, COALESCE(reason, ''),
	                 COALESCE(client_ip, ''), COALESCE(user_agent, ''), COALESCE(correlation_id, ''),
	                 COALESCE(details, '')
	          FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY event_time DESC, id DESC LIMIT ?"
	args = append(args, f.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.EventTime, &e.EventType, &e.Actor,
			&e.TargetType, &e.TargetID, &e.Outcome, &e.Reason,
			&e.ClientIP, &e.UserAgent, &e.CorrelationID, &e.DetailsJSON,
		); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}
	return entries, nil
}

// DeleteBefore removes expired entries in one statement.
func (r *auditRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_log WHERE event_time < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting audit entries: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted audit entries: %w", err)
	}
	return n, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
