package model

import "time"

// Event is one event from the connpass feed, normalized at ingestion.
type Event struct {
	ID          int64
	Title       string
	Catch       string
	Description string // may contain HTML
	URL         string
	StartedAt   time.Time
	EndedAt     time.Time
	Place       string
	Address     string
	Accepted    int
	UpdatedAt   time.Time // source last-modified, drives reprocessing
	IsOnline    bool
	IsLocal     bool
}
