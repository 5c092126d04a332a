package audit

import (
	"context"
	"log/slog"
	"time"
)

// RetentionSource supplies the current retention in days, already clamped.
type RetentionSource interface {
	RetentionDays(ctx context.Context) (int, error)
}

// SweepResult describes one retention pass.
type SweepResult struct {
	RetentionDays int
	Cutoff        time.Time
	Deleted       int64
	Err           error
}

// Sweeper deletes audit entries older than the configured retention. Each
// pass writes exactly one Audit.Cleanup entry describing what it did.
type Sweeper struct {
	repo      AuditRepository
	retention RetentionSource
	interval  time.Duration
	now       func() time.Time
}

// NewSweeper creates a sweeper. now may be nil.
func NewSweeper(repo AuditRepository, retention RetentionSource, interval time.Duration, now func() time.Time) *Sweeper {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Sweeper{repo: repo, retention: retention, interval: interval, now: now}
}

// Run sweeps immediately, then every interval, until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			slog.Info("audit sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one pass. Every failure is recorded in the result and
// in the single audit entry; nothing propagates to the caller.
func (s *Sweeper) RunOnce(ctx context.Context) SweepResult {
	res := SweepResult{}

	days, err := s.retention.RetentionDays(ctx)
	res.RetentionDays = days
	if err == nil {
		res.Cutoff = s.now().UTC().AddDate(0, 0, -days)
		res.Deleted, err = s.repo.DeleteBefore(ctx, res.Cutoff)
	}
	res.Err = err

	s.record(ctx, res)
	return res
}

// record writes the pass's one entry. If the success entry cannot be
// written the failure entry is tried instead; if that fails too the error
// is only logged.
func (s *Sweeper) record(ctx context.Context, res SweepResult) {
	details := map[string]any{
		"retentionDays": res.RetentionDays,
		"deleted":       res.Deleted,
	}
	if !res.Cutoff.IsZero() {
		details["cutoff"] = res.Cutoff.Format(time.RFC3339)
	}

	entry := Entry{
		EventTime:  s.now().UTC(),
		EventType:  EventCleanup,
		Actor:      ActorSystem,
		TargetType: "AuditLog",
		Outcome:    OutcomeSuccess,
		Details:    details,
	}

	if res.Err == nil {
		prepared, _ := Prepare(entry)
		err := s.repo.Insert(ctx, &prepared)
		if err == nil {
			slog.Info("audit retention sweep finished",
				slog.Int("retention_days", res.RetentionDays),
				slog.Int64("deleted", res.Deleted),
			)
			return
		}
		res.Err = err
	}

	details["error"] = res.Err.Error()
	entry.Outcome = OutcomeFail
	entry.Reason = "Exception"
	entry.Details = details

	prepared, _ := Prepare(entry)
	if err := s.repo.Insert(ctx, &prepared); err != nil {
		slog.Error("audit retention sweep failed and could not be recorded",
			slog.Any("sweep_error", res.Err),
			slog.Any("error", err),
		)
		return
	}
	slog.Warn("audit retention sweep failed", slog.Any("error", res.Err))
}
