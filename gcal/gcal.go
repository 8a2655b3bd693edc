package gcal

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"eventsync/ratelimit"
	"eventsync/reconciler"
)

// Client wraps one Google Calendar behind the reconciler's CalendarAPI.
type Client struct {
	svc        *calendar.Service
	calendarID string
	limiter    *ratelimit.Limiter
}

// NewClient builds a Client from stored OAuth credentials. A missing or
// expired token is not an error here; the client reports unauthenticated and
// the reconciler degrades to skipping.
func NewClient(ctx context.Context, credentialsPath, tokenPath, calendarID string, limiter *ratelimit.Limiter) (*Client, error) {
	ts, err := tokenSource(ctx, credentialsPath, tokenPath)
	if err != nil {
		return &Client{calendarID: calendarID, limiter: limiter}, nil
	}

	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	return &Client{svc: svc, calendarID: calendarID, limiter: limiter}, nil
}

// Authenticated reports whether calendar calls can be issued.
func (c *Client) Authenticated() bool {
	return c.svc != nil
}

// List returns events overlapping the window whose text matches query.
func (c *Client) List(ctx context.Context, from, to time.Time, query string) ([]reconciler.EventRef, error) {
	if c.svc == nil {
		return nil, fmt.Errorf("calendar not authenticated")
	}

	var events *calendar.Events
	err := c.limiter.Do(ctx, func() error {
		var err error
		events, err = c.svc.Events.List(c.calendarID).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			Q(query).
			SingleEvents(true).
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	refs := make([]reconciler.EventRef, 0, len(events.Items))
	for _, item := range events.Items {
		refs = append(refs, reconciler.EventRef{ID: item.Id, Summary: item.Summary})
	}
	return refs, nil
}

// Insert creates a calendar entry and returns its identifier.
func (c *Client) Insert(ctx context.Context, body *reconciler.EventBody) (string, error) {
	if c.svc == nil {
		return "", fmt.Errorf("calendar not authenticated")
	}

	var created *calendar.Event
	err := c.limiter.Do(ctx, func() error {
		var err error
		created, err = c.svc.Events.Insert(c.calendarID, toGoogleEvent(body)).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return created.Id, nil
}

// Update overwrites an existing calendar entry.
func (c *Client) Update(ctx context.Context, id string, body *reconciler.EventBody) error {
	if c.svc == nil {
		return fmt.Errorf("calendar not authenticated")
	}

	err := c.limiter.Do(ctx, func() error {
		_, err := c.svc.Events.Update(c.calendarID, id, toGoogleEvent(body)).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

func toGoogleEvent(body *reconciler.EventBody) *calendar.Event {
	return &calendar.Event{
		Summary:     body.Summary,
		Description: body.Description,
		Location:    body.Location,
		ColorId:     body.ColorID,
		Start:       &calendar.EventDateTime{DateTime: body.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: body.End.Format(time.RFC3339)},
	}
}
