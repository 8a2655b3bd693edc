package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"eventsync/classifier"
	"eventsync/model"
	"eventsync/reconciler"
	"eventsync/store"
)

// Outcome is the terminal state reached by one event in one scan. Exactly
// one outcome is reached per event.
type Outcome string

const (
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeExcluded         Outcome = "excluded"
	OutcomeNoMatch          Outcome = "no_match"
	OutcomeRegistered       Outcome = "registered"
	OutcomeUpdated          Outcome = "updated"
	OutcomeSkipped          Outcome = "skipped"
)

// Source fetches the raw event feed.
type Source interface {
	FetchEvents(ctx context.Context) ([]*model.Event, error)
}

// Store persists events and their processing state.
type Store interface {
	SaveEvents(ctx context.Context, events []*model.Event) error
	IsProcessed(ctx context.Context, id int64) (bool, error)
	NeedsReprocessing(ctx context.Context, id int64, updatedAt time.Time) (bool, error)
	MarkProcessed(ctx context.Context, rec *store.ProcessedRecord) error
}

// Classifier produces the verdict pair for an event.
type Classifier interface {
	Excluded(ev *model.Event) bool
	IsPopular(ev *model.Event) bool
	Classify(ctx context.Context, ev *model.Event) *classifier.Classification
}

// Syncer mirrors a matched event into the remote calendar.
type Syncer interface {
	Upsert(ctx context.Context, ev *model.Event, cls *classifier.Classification, isPopular bool) (*reconciler.Result, error)
}

// EventResult is the per-event output of a scan.
type EventResult struct {
	Event   *model.Event `json:"-"`
	EventID int64        `json:"event_id"`
	Title   string       `json:"title"`
	Outcome Outcome      `json:"outcome"`
	Score   int          `json:"score,omitempty"`
}

// Summary aggregates one scan pass.
type Summary struct {
	Fetched  int             `json:"fetched"`
	Counts   map[Outcome]int `json:"counts"`
	Results  []EventResult   `json:"results"`
	Duration time.Duration   `json:"-"`
}

// Matched returns the results that were (or would have been) synced.
func (s *Summary) Matched() []EventResult {
	var out []EventResult
	for _, r := range s.Results {
		switch r.Outcome {
		case OutcomeRegistered, OutcomeUpdated, OutcomeSkipped:
			out = append(out, r)
		}
	}
	return out
}

// Scanner drives one scan pass: fetch, persist, classify, reconcile, record.
// Events are handled strictly sequentially; each event's record is committed
// before the next event begins.
type Scanner struct {
	source     Source
	store      Store
	classifier Classifier
	syncer     Syncer
	dryRun     bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithDryRun disables calendar writes; matched events report skipped.
func WithDryRun(dry bool) Option {
	return func(s *Scanner) { s.dryRun = dry }
}

// New creates a Scanner.
func New(source Source, st Store, cls Classifier, syncer Syncer, opts ...Option) *Scanner {
	s := &Scanner{
		source:     source,
		store:      st,
		classifier: cls,
		syncer:     syncer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one scan. A feed fetch failure aborts the scan; per-event
// classification and sync failures are recovered and the scan continues.
func (s *Scanner) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()

	events, err := s.source.FetchEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	slog.Info("fetched events", "count", len(events))

	if err := s.store.SaveEvents(ctx, events); err != nil {
		return nil, fmt.Errorf("save events: %w", err)
	}

	summary := &Summary{
		Fetched: len(events),
		Counts:  make(map[Outcome]int),
	}

	for _, ev := range events {
		outcome, score := s.processEvent(ctx, ev)
		summary.Counts[outcome]++
		summary.Results = append(summary.Results, EventResult{
			Event:   ev,
			EventID: ev.ID,
			Title:   ev.Title,
			Outcome: outcome,
			Score:   score,
		})
	}

	summary.Duration = time.Since(started)
	slog.Info("scan complete",
		"fetched", summary.Fetched,
		"already_processed", summary.Counts[OutcomeAlreadyProcessed],
		"excluded", summary.Counts[OutcomeExcluded],
		"no_match", summary.Counts[OutcomeNoMatch],
		"registered", summary.Counts[OutcomeRegistered],
		"updated", summary.Counts[OutcomeUpdated],
		"skipped", summary.Counts[OutcomeSkipped],
		"duration", summary.Duration)
	return summary, nil
}

func (s *Scanner) processEvent(ctx context.Context, ev *model.Event) (Outcome, int) {
	processed, err := s.store.IsProcessed(ctx, ev.ID)
	if err != nil {
		slog.Warn("processed lookup failed", "event_id", ev.ID, "error", err)
		return OutcomeSkipped, 0
	}
	if processed {
		needs, err := s.store.NeedsReprocessing(ctx, ev.ID, ev.UpdatedAt)
		if err != nil {
			slog.Warn("reprocessing check failed", "event_id", ev.ID, "error", err)
			return OutcomeSkipped, 0
		}
		if !needs {
			return OutcomeAlreadyProcessed, 0
		}
		slog.Info("event changed upstream, reprocessing", "event_id", ev.ID)
	}

	// Excluded events still get a record so they are not re-checked on
	// every scan.
	if s.classifier.Excluded(ev) {
		s.record(ctx, ev, &classifier.Classification{Excluded: true}, "")
		slog.Info("event excluded", "event_id", ev.ID, "title", ev.Title)
		return OutcomeExcluded, 0
	}

	cls := s.classifier.Classify(ctx, ev)

	if !cls.Matched() {
		s.record(ctx, ev, cls, "")
		return OutcomeNoMatch, cls.Interest.Score
	}

	outcome := OutcomeSkipped
	calendarID := ""
	if !s.dryRun {
		res, err := s.syncer.Upsert(ctx, ev, cls, s.classifier.IsPopular(ev))
		if err != nil {
			// Sync failure is not fatal: record the classification
			// anyway so an unchanged event is not retried forever.
			slog.Warn("calendar sync failed", "event_id", ev.ID, "error", err)
		} else {
			calendarID = res.CalendarEventID
			switch res.Action {
			case reconciler.ActionCreated:
				outcome = OutcomeRegistered
			case reconciler.ActionUpdated:
				outcome = OutcomeUpdated
			}
		}
	}

	s.record(ctx, ev, cls, calendarID)
	slog.Info("event reconciled", "event_id", ev.ID, "title", ev.Title,
		"outcome", outcome, "score", cls.Interest.Score,
		"speaker", cls.Speaker.Opportunity)
	return outcome, cls.Interest.Score
}

func (s *Scanner) record(ctx context.Context, ev *model.Event, cls *classifier.Classification, calendarID string) {
	rec := &store.ProcessedRecord{
		EventID:          ev.ID,
		HasSpeakerChance: cls.Speaker.Opportunity,
		IsInterestMatch:  cls.Interest.Match,
		InterestScore:    cls.Interest.Score,
		ProcessedAt:      time.Now(),
	}
	updatedAt := ev.UpdatedAt
	rec.EventUpdatedAt = &updatedAt
	if calendarID != "" {
		rec.CalendarEventID = &calendarID
	}

	if err := s.store.MarkProcessed(ctx, rec); err != nil {
		slog.Warn("failed to persist processing record", "event_id", ev.ID, "error", err)
	}
}
