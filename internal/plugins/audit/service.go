package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/keyxmakerx/seif/internal/apperror"
	"github.com/keyxmakerx/seif/internal/sanitize"
)

// Logger is the narrow contract other plugins depend on.
type Logger interface {
	// Log records entry. It never fails the caller: write errors are
	// reported through slog and swallowed.
	Log(ctx context.Context, entry Entry)
}

// AuditService handles writing and reading the audit log.
type AuditService interface {
	Logger

	// List returns entries for the admin viewer, newest first, capped at
	// MaxListRows.
	List(ctx context.Context, f Filter) ([]Entry, error)
}

// auditService implements AuditService.
type auditService struct {
	repo AuditRepository
	now  func() time.Time
}

// NewAuditService creates a new audit service with the given repository.
// now may be nil.
func NewAuditService(repo AuditRepository, now func() time.Time) AuditService {
	if now == nil {
		now = time.Now
	}
	return &auditService{repo: repo, now: now}
}

// Log fills request metadata from ctx and the timestamp from the clock,
// truncates to the column caps and writes the entry.
func (s *auditService) Log(ctx context.Context, entry Entry) {
	info := RequestInfoFrom(ctx)
	if entry.Actor == "" {
		entry.Actor = info.Actor
	}
	if entry.Actor == "" {
		entry.Actor = ActorAnonymous
	}
	if entry.ClientIP == "" {
		entry.ClientIP = info.ClientIP
	}
	if entry.UserAgent == "" {
		entry.UserAgent = info.UserAgent
	}
	if entry.CorrelationID == "" {
		entry.CorrelationID = info.CorrelationID
	}
	if entry.EventTime.IsZero() {
		entry.EventTime = s.now().UTC()
	}
	if entry.Outcome == "" {
		entry.Outcome = OutcomeSuccess
	}

	prepared, err := Prepare(entry)
	if err != nil {
		slog.Error("failed to encode audit details",
			slog.String("event_type", entry.EventType),
			slog.Any("error", err),
		)
	}

	if err := s.repo.Insert(ctx, &prepared); err != nil {
		slog.Error("failed to write audit log entry",
			slog.String("event_type", prepared.EventType),
			slog.String("outcome", prepared.Outcome),
			slog.Any("error", err),
		)
	}
}

// List validates the limit and delegates to the repository.
func (s *auditService) List(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 || f.Limit > MaxListRows {
		f.Limit = MaxListRows
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, apperror.NewValidation("'from' must be before 'to'")
	}

	entries, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing audit entries: %w", err))
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Prepare serializes Details and truncates every field to its column cap.
// On a marshal error the entry is still usable, with a marker in place of
// the details.
func Prepare(e Entry) (Entry, error) {
	var marshalErr error
	if e.Details != nil {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			marshalErr = fmt.Errorf("marshaling audit details: %w", err)
			raw = []byte(`{"error":"unencodable details"}`)
		}
		e.DetailsJSON = string(raw)
	}

	e.EventType = sanitize.Truncate(e.EventType, maxEventType)
	e.Actor = sanitize.Truncate(e.Actor, maxActor)
	e.TargetType = sanitize.Truncate(e.TargetType, maxTargetType)
	e.TargetID = sanitize.Truncate(e.TargetID, maxTargetID)
	e.Outcome = sanitize.Truncate(e.Outcome, maxOutcome)
	e.Reason = sanitize.Truncate(e.Reason, maxReason)
	e.ClientIP = sanitize.Truncate(e.ClientIP, maxClientIP)
	e.UserAgent = sanitize.Truncate(e.UserAgent, maxUserAgent)
	e.CorrelationID = sanitize.Truncate(e.CorrelationID, maxCorrelationID)
	e.DetailsJSON = sanitize.Truncate(e.DetailsJSON, maxDetails)
	return e, marshalErr
}
