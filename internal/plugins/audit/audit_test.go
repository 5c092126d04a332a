package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// --- Mock Repository ---

type mockRepo struct {
	insertFn       func(ctx context.Context, e *Entry) error
	listFn         func(ctx context.Context, f Filter) ([]Entry, error)
	deleteBeforeFn func(ctx context.Context, cutoff time.Time) (int64, error)

	inserted []Entry
}

func (m *mockRepo) Insert(ctx context.Context, e *Entry) error {
	if m.insertFn != nil {
		if err := m.insertFn(ctx, e); err != nil {
			return err
		}
	}
	m.inserted = append(m.inserted, *e)
	return nil
}

func (m *mockRepo) List(ctx context.Context, f Filter) ([]Entry, error) {
	if m.listFn != nil {
		return m.listFn(ctx, f)
	}
	return nil, nil
}

func (m *mockRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.deleteBeforeFn != nil {
		return m.deleteBeforeFn(ctx, cutoff)
	}
	kept := m.inserted[:0]
	for _, e := range m.inserted {
		if !e.EventTime.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	deleted := int64(len(m.inserted) - len(kept))
	m.inserted = kept
	return deleted, nil
}

type fixedRetention struct {
	days int
	err  error
}

func (f fixedRetention) RetentionDays(context.Context) (int, error) { return f.days, f.err }

var testNow = time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

// --- Service ---

func TestLog_FillsFromRequestInfo(t *testing.T) {
	repo := &mockRepo{}
	svc := NewAuditService(repo, clock)

	ctx := WithRequestInfo(context.Background(), RequestInfo{
		Actor:         "alice@wizrom.ro",
		ClientIP:      "10.1.2.3",
		UserAgent:     "curl/8",
		CorrelationID: "req-12345678",
	})
	svc.Log(ctx, Entry{EventType: EventSecretCreate, TargetType: "Secret", TargetID: "42"})

	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(repo.inserted))
	}
	got := repo.inserted[0]
	if got.Actor != "alice@wizrom.ro" || got.ClientIP != "10.1.2.3" || got.CorrelationID != "req-12345678" {
		t.Errorf("request info not applied: %+v", got)
	}
	if !got.EventTime.Equal(testNow) {
		t.Errorf("expected clock time, got %s", got.EventTime)
	}
	if got.Outcome != OutcomeSuccess {
		t.Errorf("expected default outcome Success, got %q", got.Outcome)
	}
}

func TestLog_ExplicitFieldsWin(t *testing.T) {
	repo := &mockRepo{}
	svc := NewAuditService(repo, clock)

	ctx := WithRequestInfo(context.Background(), RequestInfo{Actor: "alice@wizrom.ro"})
	svc.Log(ctx, Entry{EventType: EventCleanup, Actor: ActorSystem, Outcome: OutcomeFail})

	if repo.inserted[0].Actor != ActorSystem || repo.inserted[0].Outcome != OutcomeFail {
		t.Errorf("explicit fields overwritten: %+v", repo.inserted[0])
	}
}

func TestLog_AnonymousWithoutRequestInfo(t *testing.T) {
	repo := &mockRepo{}
	NewAuditService(repo, clock).Log(context.Background(), Entry{EventType: EventAccessDenied})

	if repo.inserted[0].Actor != ActorAnonymous {
		t.Errorf("expected anonymous actor, got %q", repo.inserted[0].Actor)
	}
}

func TestLog_InsertFailureDoesNotPanic(t *testing.T) {
	repo := &mockRepo{insertFn: func(context.Context, *Entry) error { return errors.New("db down") }}
	NewAuditService(repo, clock).Log(context.Background(), Entry{EventType: EventVerify})
}

func TestPrepare_TruncatesAndEncodes(t *testing.T) {
	e, err := Prepare(Entry{
		EventType: EventSendCode,
		UserAgent: strings.Repeat("x", maxUserAgent+50),
		Details:   map[string]any{"big": strings.Repeat("y", maxDetails)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len([]rune(e.UserAgent)) != maxUserAgent {
		t.Errorf("user agent not truncated: %d", len(e.UserAgent))
	}
	if len([]rune(e.DetailsJSON)) != maxDetails {
		t.Errorf("details not truncated: %d", len(e.DetailsJSON))
	}
	if !strings.HasPrefix(e.DetailsJSON, `{"big":"yyy`) {
		t.Errorf("unexpected details %q", e.DetailsJSON[:20])
	}
}

func TestPrepare_UnencodableDetails(t *testing.T) {
	e, err := Prepare(Entry{Details: map[string]any{"ch": make(chan int)}})
	if err == nil {
		t.Fatal("expected marshal error")
	}
	if !strings.Contains(e.DetailsJSON, "unencodable") {
		t.Errorf("expected marker, got %q", e.DetailsJSON)
	}
}

func TestList_ClampsLimit(t *testing.T) {
	var seen Filter
	repo := &mockRepo{listFn: func(_ context.Context, f Filter) ([]Entry, error) {
		seen = f
		return nil, nil
	}}
	svc := NewAuditService(repo, clock)

	for _, limit := range []int{0, -3, 10000} {
		entries, err := svc.List(context.Background(), Filter{Limit: limit})
		if err != nil {
			t.Fatal(err)
		}
		if entries == nil {
			t.Error("expected empty slice, not nil")
		}
		if seen.Limit != MaxListRows {
			t.Errorf("limit %d: expected clamp to %d, got %d", limit, MaxListRows, seen.Limit)
		}
	}
}

func TestList_RejectsInvertedRange(t *testing.T) {
	svc := NewAuditService(&mockRepo{}, clock)
	from, to := testNow, testNow.Add(-time.Hour)
	if _, err := svc.List(context.Background(), Filter{From: &from, To: &to}); err == nil {
		t.Error("expected validation error")
	}
}

// --- Sweeper ---

func TestSweeper_SuccessWritesOneEntry(t *testing.T) {
	var cutoff time.Time
	repo := &mockRepo{deleteBeforeFn: func(_ context.Context, c time.Time) (int64, error) {
		cutoff = c
		return 17, nil
	}}
	s := NewSweeper(repo, fixedRetention{days: 30}, time.Hour, clock)

	res := s.RunOnce(context.Background())
	if res.Err != nil || res.Deleted != 17 {
		t.Fatalf("unexpected result %+v", res)
	}
	if want := testNow.AddDate(0, 0, -30); !cutoff.Equal(want) {
		t.Errorf("cutoff %s, want %s", cutoff, want)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected exactly one cleanup entry, got %d", len(repo.inserted))
	}
	e := repo.inserted[0]
	if e.EventType != EventCleanup || e.Actor != ActorSystem || e.Outcome != OutcomeSuccess || e.TargetType != "AuditLog" {
		t.Errorf("unexpected entry %+v", e)
	}
	if !strings.Contains(e.DetailsJSON, `"deleted":17`) || !strings.Contains(e.DetailsJSON, `"retentionDays":30`) {
		t.Errorf("unexpected details %s", e.DetailsJSON)
	}
}

func TestSweeper_RemovesOnlyEntriesBeforeCutoff(t *testing.T) {
	cutoff := testNow.AddDate(0, 0, -30)
	repo := &mockRepo{}
	for _, at := range []time.Time{
		testNow.AddDate(-1, 0, 0),
		cutoff.Add(-time.Second),
		cutoff,
		cutoff.Add(time.Second),
		testNow,
	} {
		repo.inserted = append(repo.inserted, Entry{EventTime: at, EventType: EventLogin})
	}

	res := NewSweeper(repo, fixedRetention{days: 30}, time.Hour, clock).RunOnce(context.Background())
	if res.Err != nil || res.Deleted != 2 {
		t.Fatalf("expected the two older entries removed, got %+v", res)
	}

	if len(repo.inserted) != 4 {
		t.Fatalf("expected three survivors plus the cleanup entry, got %d", len(repo.inserted))
	}
	for _, e := range repo.inserted[:3] {
		if e.EventTime.Before(cutoff) {
			t.Errorf("entry at %s survived a cutoff of %s", e.EventTime, cutoff)
		}
	}
	if last := repo.inserted[3]; last.EventType != EventCleanup || !strings.Contains(last.DetailsJSON, `"deleted":2`) {
		t.Errorf("unexpected cleanup entry %+v", last)
	}
}

func TestSweeper_DeleteFailureWritesFailEntry(t *testing.T) {
	repo := &mockRepo{deleteBeforeFn: func(context.Context, time.Time) (int64, error) {
		return 0, errors.New("lock wait timeout")
	}}
	res := NewSweeper(repo, fixedRetention{days: 90}, time.Hour, clock).RunOnce(context.Background())

	if res.Err == nil {
		t.Fatal("expected error in result")
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(repo.inserted))
	}
	e := repo.inserted[0]
	if e.Outcome != OutcomeFail || e.Reason != "Exception" || !strings.Contains(e.DetailsJSON, "lock wait timeout") {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestSweeper_RetentionFailureSkipsDelete(t *testing.T) {
	deleted := false
	repo := &mockRepo{deleteBeforeFn: func(context.Context, time.Time) (int64, error) {
		deleted = true
		return 0, nil
	}}
	NewSweeper(repo, fixedRetention{err: errors.New("settings unavailable")}, time.Hour, clock).RunOnce(context.Background())

	if deleted {
		t.Error("must not delete without a retention value")
	}
	if len(repo.inserted) != 1 || repo.inserted[0].Outcome != OutcomeFail {
		t.Errorf("expected one fail entry, got %+v", repo.inserted)
	}
}

func TestSweeper_SuccessInsertFailureFallsBackToFailEntry(t *testing.T) {
	calls := 0
	repo := &mockRepo{insertFn: func(_ context.Context, e *Entry) error {
		calls++
		if e.Outcome == OutcomeSuccess {
			return errors.New("insert failed")
		}
		return nil
	}}
	NewSweeper(repo, fixedRetention{days: 7}, time.Hour, clock).RunOnce(context.Background())

	if calls != 2 || len(repo.inserted) != 1 || repo.inserted[0].Outcome != OutcomeFail {
		t.Errorf("expected one fail entry after failed success insert, calls=%d inserted=%+v", calls, repo.inserted)
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	repo := &mockRepo{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(repo, fixedRetention{days: 7}, time.Hour, clock).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
