package icsout

import (
	"fmt"
	"os"
	"strconv"

	ical "github.com/arran4/golang-ical"

	"eventsync/scanner"
)

// Write exports the matched events of a scan to an iCalendar file. Used as
// a dry-run preview of what a real scan would put on the calendar.
func Write(path string, summary *scanner.Summary) error {
	matched := summary.Matched()

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//eventsync//scan preview//EN")

	for _, r := range matched {
		ev := r.Event
		ve := cal.AddEvent("eventsync-" + strconv.FormatInt(ev.ID, 10))
		ve.SetSummary(ev.Title)
		ve.SetStartAt(ev.StartedAt)
		ve.SetEndAt(ev.EndedAt)
		ve.SetDescription(ev.URL)
		if ev.Place != "" {
			ve.SetLocation(ev.Place)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create ics file: %w", err)
	}
	defer f.Close()

	if err := cal.SerializeTo(f); err != nil {
		return fmt.Errorf("serialize calendar: %w", err)
	}
	return nil
}
