package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eventsync/classifier"
	"eventsync/model"
)

// Action is the reconciliation outcome for one event.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
)

// EventRef identifies a remote calendar entry.
type EventRef struct {
	ID      string
	Summary string
}

// EventBody is the payload written to the remote calendar.
type EventBody struct {
	Summary     string
	Description string
	Location    string
	ColorID     string
	Start       time.Time
	End         time.Time
}

// CalendarAPI is the remote calendar capability the reconciler drives.
type CalendarAPI interface {
	Authenticated() bool
	List(ctx context.Context, from, to time.Time, query string) ([]EventRef, error)
	Insert(ctx context.Context, body *EventBody) (string, error)
	Update(ctx context.Context, id string, body *EventBody) error
}

// Result reports what the reconciler did for one event.
type Result struct {
	Action          Action
	CalendarEventID string
}

// Reconciler mirrors classified events into a remote calendar.
type Reconciler struct {
	api            CalendarAPI
	enabled        bool
	speakerColorID string
	popularColorID string
	searchPadding  time.Duration
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithSpeakerColorID sets the color for speaker-opportunity events.
func WithSpeakerColorID(id string) Option {
	return func(r *Reconciler) { r.speakerColorID = id }
}

// WithPopularColorID sets the color for popular events.
func WithPopularColorID(id string) Option {
	return func(r *Reconciler) { r.popularColorID = id }
}

// WithSearchPadding widens the lookup window around the event's own times.
func WithSearchPadding(d time.Duration) Option {
	return func(r *Reconciler) { r.searchPadding = d }
}

// New creates a Reconciler. A nil api or enabled=false makes Upsert a no-op
// collaborator that always reports skipped.
func New(api CalendarAPI, enabled bool, opts ...Option) *Reconciler {
	r := &Reconciler{
		api:            api,
		enabled:        enabled && api != nil,
		speakerColorID: "11",
		popularColorID: "5",
		searchPadding:  time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ColorID picks the entry color: speaker beats popular beats default. An
// empty string means the calendar's default color.
func (r *Reconciler) ColorID(hasSpeakerOpportunity, isPopular bool) string {
	switch {
	case hasSpeakerOpportunity:
		return r.speakerColorID
	case isPopular:
		return r.popularColorID
	default:
		return ""
	}
}

// FindExisting looks for an already-synced entry by time window plus title
// substring. Best effort: the remote calendar has no field for the source
// event id, so title+time is the only join available.
func (r *Reconciler) FindExisting(ctx context.Context, ev *model.Event) (string, error) {
	from := ev.StartedAt.Add(-r.searchPadding)
	to := ev.EndedAt.Add(r.searchPadding)

	refs, err := r.api.List(ctx, from, to, ev.Title)
	if err != nil {
		return "", fmt.Errorf("search calendar: %w", err)
	}

	for _, ref := range refs {
		if strings.Contains(ref.Summary, ev.Title) {
			return ref.ID, nil
		}
	}
	return "", nil
}

// Upsert mirrors the event into the calendar, updating a pre-existing entry
// when one is found.
func (r *Reconciler) Upsert(ctx context.Context, ev *model.Event, cls *classifier.Classification, isPopular bool) (*Result, error) {
	if !r.enabled {
		return &Result{Action: ActionSkipped}, nil
	}
	if !r.api.Authenticated() {
		slog.Warn("calendar not authenticated, skipping sync", "event_id", ev.ID)
		return &Result{Action: ActionSkipped}, nil
	}

	body := r.buildBody(ev, cls, isPopular)

	existingID, err := r.FindExisting(ctx, ev)
	if err != nil {
		return nil, err
	}

	if existingID != "" {
		if err := r.api.Update(ctx, existingID, body); err != nil {
			return nil, err
		}
		return &Result{Action: ActionUpdated, CalendarEventID: existingID}, nil
	}

	id, err := r.api.Insert(ctx, body)
	if err != nil {
		return nil, err
	}
	return &Result{Action: ActionCreated, CalendarEventID: id}, nil
}

func (r *Reconciler) buildBody(ev *model.Event, cls *classifier.Classification, isPopular bool) *EventBody {
	location := ev.Place
	if ev.Address != "" {
		if location != "" {
			location += " "
		}
		location += ev.Address
	}

	return &EventBody{
		Summary:     ev.Title,
		Description: buildDescription(ev, cls),
		Location:    location,
		ColorID:     r.ColorID(cls.Speaker.Opportunity, isPopular),
		Start:       ev.StartedAt,
		End:         ev.EndedAt,
	}
}

// buildDescription assembles the entry body deterministically: source URL,
// blank line, speaker marker if applicable, LLM rationale if present. Absent
// lines are omitted, never blank-padded.
func buildDescription(ev *model.Event, cls *classifier.Classification) string {
	lines := []string{ev.URL, ""}

	if cls.Speaker.Opportunity {
		marker := "Speaker opportunity"
		if len(cls.Speaker.Keywords) > 0 {
			marker += ": " + strings.Join(cls.Speaker.Keywords, ", ")
		}
		lines = append(lines, marker)
	}
	if cls.Interest.Reason != "" {
		lines = append(lines, "Why: "+cls.Interest.Reason)
	}

	// Drop the separator when nothing follows it.
	if len(lines) == 2 {
		lines = lines[:1]
	}
	return strings.Join(lines, "\n")
}
