package connpass

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"eventsync/model"
	"eventsync/ratelimit"
	"eventsync/textmatch"
)

const (
	defaultBaseURL = "https://connpass.com"
	pageSize       = 100
	maxPages       = 10
)

// Client provides access to the connpass events API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLimiter rate-limits page fetches.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// NewClient creates a new connpass API client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	ResultsReturned  int        `json:"results_returned"`
	ResultsAvailable int        `json:"results_available"`
	ResultsStart     int        `json:"results_start"`
	Events           []apiEvent `json:"events"`
}

type apiEvent struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Catch       string `json:"catch"`
	Description string `json:"description"`
	URL         string `json:"url"`
	StartedAt   string `json:"started_at"`
	EndedAt     string `json:"ended_at"`
	Place       string `json:"place"`
	Address     string `json:"address"`
	Accepted    int    `json:"accepted"`
	UpdatedAt   string `json:"updated_at"`
}

// FetchEvents returns events in the given month range for the configured
// prefecture, following pagination up to a hard page cap. Hitting the cap is
// a logged truncation, not an error.
func (c *Client) FetchEvents(ctx context.Context, months []string, prefecture string) ([]*model.Event, error) {
	var events []*model.Event

	start := 1
	for page := 0; page < maxPages; page++ {
		resp, err := c.fetchPage(ctx, months, prefecture, start)
		if err != nil {
			return nil, err
		}

		for _, ae := range resp.Events {
			ev, err := toModel(&ae)
			if err != nil {
				slog.Warn("skipping malformed event", "id", ae.ID, "error", err)
				continue
			}
			events = append(events, ev)
		}

		start += resp.ResultsReturned
		if resp.ResultsReturned == 0 || start > resp.ResultsAvailable {
			return events, nil
		}
	}

	slog.Warn("event fetch truncated at page cap", "pages", maxPages, "fetched", len(events))
	return events, nil
}

func (c *Client) fetchPage(ctx context.Context, months []string, prefecture string, start int) (*apiResponse, error) {
	q := url.Values{}
	for _, ym := range months {
		q.Add("ym", ym)
	}
	if prefecture != "" {
		q.Set("prefecture", prefecture)
	}
	q.Set("count", strconv.Itoa(pageSize))
	q.Set("start", strconv.Itoa(start))
	q.Set("order", "2") // by event date

	reqURL := c.baseURL + "/api/v2/events/?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer c.limiter.Release()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &ar, nil
}

func toModel(ae *apiEvent) (*model.Event, error) {
	startedAt, err := time.Parse(time.RFC3339, ae.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	endedAt, err := time.Parse(time.RFC3339, ae.EndedAt)
	if err != nil {
		return nil, fmt.Errorf("parse ended_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339, ae.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	ev := &model.Event{
		ID:          ae.ID,
		Title:       ae.Title,
		Catch:       ae.Catch,
		Description: ae.Description,
		URL:         ae.URL,
		StartedAt:   startedAt,
		EndedAt:     endedAt,
		Place:       ae.Place,
		Address:     ae.Address,
		Accepted:    ae.Accepted,
		UpdatedAt:   updatedAt,
	}
	ev.IsOnline = textmatch.DetectOnline(ev)
	ev.IsLocal = textmatch.DetectLocal(ev)
	return ev, nil
}
