package scanner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"eventsync/classifier"
	"eventsync/model"
	"eventsync/reconciler"
	"eventsync/store"
)

type fakeSource struct {
	events []*model.Event
	err    error
}

func (f *fakeSource) FetchEvents(ctx context.Context) ([]*model.Event, error) {
	return f.events, f.err
}

type fakeSyncer struct {
	result *reconciler.Result
	err    error
	calls  int
}

func (f *fakeSyncer) Upsert(ctx context.Context, ev *model.Event, cls *classifier.Classification, isPopular bool) (*reconciler.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &reconciler.Result{Action: reconciler.ActionCreated, CalendarEventID: "cal-1"}, nil
}

func newTestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "scan.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testEvent(id int64, title string, accepted int) *model.Event {
	start := time.Date(2026, 9, 12, 19, 0, 0, 0, time.UTC)
	return &model.Event{
		ID:        id,
		Title:     title,
		URL:       "https://example.com/event/1",
		StartedAt: start,
		EndedAt:   start.Add(2 * time.Hour),
		Accepted:  accepted,
		UpdatedAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestRunFetchFailureIsFatal(t *testing.T) {
	s := New(
		&fakeSource{err: errors.New("feed down")},
		newTestStore(t),
		classifier.New(),
		&fakeSyncer{},
	)
	if _, err := s.Run(context.Background()); err == nil {
		t.Fatal("expected error when the feed fetch fails")
	}
}

func TestRunExcludedNeverClassifiedOrSynced(t *testing.T) {
	db := newTestStore(t)
	syncer := &fakeSyncer{}
	cls := classifier.New(
		classifier.WithExcludeKeywords([]string{"book club"}),
		classifier.WithPopularThreshold(50),
	)

	ev := testEvent(1, "Book Club Night", 60)
	s := New(&fakeSource{events: []*model.Event{ev}}, db, cls, syncer)

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Counts[OutcomeExcluded] != 1 {
		t.Errorf("counts = %v, want one excluded", summary.Counts)
	}
	if syncer.calls != 0 {
		t.Error("calendar touched for excluded event")
	}

	// Excluded events still get a record so the next scan short-circuits.
	rec, err := db.GetProcessed(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetProcessed failed: %v", err)
	}
	if rec.IsInterestMatch || rec.HasSpeakerChance {
		t.Errorf("excluded record has positive flags: %+v", rec)
	}

	summary, err = s.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if summary.Counts[OutcomeAlreadyProcessed] != 1 {
		t.Errorf("second scan counts = %v, want already_processed", summary.Counts)
	}
}

func TestRunNoMatch(t *testing.T) {
	db := newTestStore(t)
	syncer := &fakeSyncer{}
	cls := classifier.New(classifier.WithKeywords([]string{"rust"}))

	ev := testEvent(1, "Knitting circle", 5)
	s := New(&fakeSource{events: []*model.Event{ev}}, db, cls, syncer)

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Counts[OutcomeNoMatch] != 1 {
		t.Errorf("counts = %v, want one no_match", summary.Counts)
	}
	if syncer.calls != 0 {
		t.Error("calendar touched for no_match event")
	}
	if _, err := db.GetProcessed(context.Background(), 1); err != nil {
		t.Errorf("no record written for no_match event: %v", err)
	}
}

func TestRunRegisteredAndIdempotent(t *testing.T) {
	db := newTestStore(t)
	syncer := &fakeSyncer{}
	cls := classifier.New(classifier.WithKeywords([]string{"golang"}))

	ev := testEvent(1, "Golang night", 5)
	s := New(&fakeSource{events: []*model.Event{ev}}, db, cls, syncer)

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Counts[OutcomeRegistered] != 1 {
		t.Errorf("counts = %v, want one registered", summary.Counts)
	}

	rec, err := db.GetProcessed(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetProcessed failed: %v", err)
	}
	if rec.CalendarEventID == nil || *rec.CalendarEventID != "cal-1" {
		t.Errorf("CalendarEventID = %v, want cal-1", rec.CalendarEventID)
	}
	if !rec.IsInterestMatch {
		t.Error("IsInterestMatch not recorded")
	}

	// Second scan with an unchanged feed performs zero calendar writes.
	summary, err = s.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if summary.Counts[OutcomeAlreadyProcessed] != 1 {
		t.Errorf("second scan counts = %v", summary.Counts)
	}
	if syncer.calls != 1 {
		t.Errorf("syncer called %d times across both scans, want 1", syncer.calls)
	}
}

func TestRunReprocessesOnFreshnessChange(t *testing.T) {
	db := newTestStore(t)
	syncer := &fakeSyncer{}
	cls := classifier.New(classifier.WithKeywords([]string{"golang"}))

	ev := testEvent(1, "Golang night", 5)
	s := New(&fakeSource{events: []*model.Event{ev}}, db, cls, syncer)

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	ev.UpdatedAt = ev.UpdatedAt.Add(time.Hour)
	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if summary.Counts[OutcomeAlreadyProcessed] != 0 {
		t.Error("changed event reported already_processed")
	}
	if syncer.calls != 2 {
		t.Errorf("syncer calls = %d, want reprocessing to sync again", syncer.calls)
	}
}

func TestRunCalendarFailureRecovered(t *testing.T) {
	db := newTestStore(t)
	syncer := &fakeSyncer{err: errors.New("auth expired")}
	cls := classifier.New(classifier.WithKeywords([]string{"golang"}))

	ev := testEvent(1, "Golang night", 5)
	s := New(&fakeSource{events: []*model.Event{ev}}, db, cls, syncer)

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run must not fail on a calendar error: %v", err)
	}
	if summary.Counts[OutcomeSkipped] != 1 {
		t.Errorf("counts = %v, want one skipped", summary.Counts)
	}

	// Classification persisted anyway: the next unchanged scan does not retry.
	rec, err := db.GetProcessed(context.Background(), 1)
	if err != nil {
		t.Fatalf("record not persisted after sync failure: %v", err)
	}
	if rec.CalendarEventID != nil {
		t.Errorf("CalendarEventID = %v, want nil after failed sync", rec.CalendarEventID)
	}

	summary, err = s.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if summary.Counts[OutcomeAlreadyProcessed] != 1 {
		t.Errorf("second scan counts = %v, want already_processed", summary.Counts)
	}
}

func TestRunDryRunSkipsCalendar(t *testing.T) {
	db := newTestStore(t)
	syncer := &fakeSyncer{}
	cls := classifier.New(classifier.WithKeywords([]string{"golang"}))

	ev := testEvent(1, "Golang night", 5)
	s := New(&fakeSource{events: []*model.Event{ev}}, db, cls, syncer, WithDryRun(true))

	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if syncer.calls != 0 {
		t.Error("dry run touched the calendar")
	}
	if summary.Counts[OutcomeSkipped] != 1 {
		t.Errorf("counts = %v, want one skipped", summary.Counts)
	}
}

func TestSummaryMatched(t *testing.T) {
	s := &Summary{Results: []EventResult{
		{EventID: 1, Outcome: OutcomeRegistered},
		{EventID: 2, Outcome: OutcomeNoMatch},
		{EventID: 3, Outcome: OutcomeUpdated},
		{EventID: 4, Outcome: OutcomeAlreadyProcessed},
	}}
	matched := s.Matched()
	if len(matched) != 2 {
		t.Fatalf("Matched() returned %d results, want 2", len(matched))
	}
}
