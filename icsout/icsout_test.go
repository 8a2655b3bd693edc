package icsout

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eventsync/model"
	"eventsync/scanner"
)

func TestWrite(t *testing.T) {
	start := time.Date(2026, 9, 12, 19, 0, 0, 0, time.UTC)
	summary := &scanner.Summary{
		Results: []scanner.EventResult{
			{
				Event: &model.Event{
					ID:        42,
					Title:     "Go Meetup",
					URL:       "https://example.com/event/42",
					StartedAt: start,
					EndedAt:   start.Add(2 * time.Hour),
					Place:     "Engineer Cafe",
				},
				EventID: 42,
				Outcome: scanner.OutcomeRegistered,
			},
			{
				Event:   &model.Event{ID: 43, Title: "Ignored"},
				EventID: 43,
				Outcome: scanner.OutcomeNoMatch,
			},
		},
	}

	path := filepath.Join(t.TempDir(), "preview.ics")
	if err := Write(path, summary); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	out := string(data)

	if !strings.Contains(out, "BEGIN:VCALENDAR") {
		t.Error("output is not an iCalendar file")
	}
	if !strings.Contains(out, "Go Meetup") {
		t.Error("matched event missing from output")
	}
	if strings.Contains(out, "Ignored") {
		t.Error("unmatched event leaked into output")
	}
}
