package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"eventsync/model"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("not found")

// ProcessedRecord is the durable outcome of classifying one event. At most
// one record exists per event id.
type ProcessedRecord struct {
	EventID          int64
	HasSpeakerChance bool
	IsInterestMatch  bool
	InterestScore    int
	CalendarEventID  *string
	EventUpdatedAt   *time.Time // freshness marker recorded at processing time
	ProcessedAt      time.Time
}

// DB wraps the SQLite connection holding events and their processing state.
type DB struct {
	conn *sql.DB
}

// NewDB opens the database at path and initializes the schema.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		catch TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL,
		place TEXT,
		address TEXT,
		accepted INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		is_online INTEGER NOT NULL DEFAULT 0,
		is_local INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS processed_events (
		event_id INTEGER PRIMARY KEY REFERENCES events(id),
		has_speaker_chance INTEGER NOT NULL DEFAULT 0,
		is_interest_match INTEGER NOT NULL DEFAULT 0,
		interest_score INTEGER NOT NULL DEFAULT 0,
		calendar_event_id TEXT,
		event_updated_at DATETIME,
		processed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_started_at ON events(started_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveEvents upserts the batch inside one transaction, so an interrupted
// scan never leaves a partial snapshot.
func (db *DB) SaveEvents(ctx context.Context, events []*model.Event) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO events (id, title, catch, description, url, started_at, ended_at,
		place, address, accepted, updated_at, is_online, is_local)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		catch = excluded.catch,
		description = excluded.description,
		url = excluded.url,
		started_at = excluded.started_at,
		ended_at = excluded.ended_at,
		place = excluded.place,
		address = excluded.address,
		accepted = excluded.accepted,
		updated_at = excluded.updated_at,
		is_online = excluded.is_online,
		is_local = excluded.is_local
	`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		_, err := stmt.ExecContext(ctx,
			ev.ID, ev.Title, ev.Catch, ev.Description, ev.URL,
			ev.StartedAt, ev.EndedAt, nullString(ev.Place), nullString(ev.Address),
			ev.Accepted, ev.UpdatedAt, ev.IsOnline, ev.IsLocal,
		)
		if err != nil {
			return fmt.Errorf("upsert event %d: %w", ev.ID, err)
		}
	}

	return tx.Commit()
}

// GetEvent retrieves an event by id.
func (db *DB) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	query := `
	SELECT id, title, catch, description, url, started_at, ended_at,
		place, address, accepted, updated_at, is_online, is_local
	FROM events WHERE id = ?
	`

	ev := &model.Event{}
	var place, address sql.NullString
	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&ev.ID, &ev.Title, &ev.Catch, &ev.Description, &ev.URL,
		&ev.StartedAt, &ev.EndedAt, &place, &address,
		&ev.Accepted, &ev.UpdatedAt, &ev.IsOnline, &ev.IsLocal,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ev.Place = place.String
	ev.Address = address.String
	return ev, nil
}

// IsProcessed reports whether any processing record exists for the event.
func (db *DB) IsProcessed(ctx context.Context, id int64) (bool, error) {
	var dummy int
	err := db.conn.QueryRowContext(ctx,
		`SELECT 1 FROM processed_events WHERE event_id = ?`, id).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetProcessed retrieves the processing record for an event.
func (db *DB) GetProcessed(ctx context.Context, id int64) (*ProcessedRecord, error) {
	query := `
	SELECT event_id, has_speaker_chance, is_interest_match, interest_score,
		calendar_event_id, event_updated_at, processed_at
	FROM processed_events WHERE event_id = ?
	`

	rec := &ProcessedRecord{}
	var calID sql.NullString
	var updatedAt sql.NullTime
	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&rec.EventID, &rec.HasSpeakerChance, &rec.IsInterestMatch, &rec.InterestScore,
		&calID, &updatedAt, &rec.ProcessedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if calID.Valid {
		rec.CalendarEventID = &calID.String
	}
	if updatedAt.Valid {
		rec.EventUpdatedAt = &updatedAt.Time
	}
	return rec, nil
}

// NeedsReprocessing reports whether the event changed upstream since it was
// last processed. False when no record exists; that branch belongs to
// IsProcessed. A record with no stored marker always reprocesses.
func (db *DB) NeedsReprocessing(ctx context.Context, id int64, updatedAt time.Time) (bool, error) {
	rec, err := db.GetProcessed(ctx, id)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.EventUpdatedAt == nil {
		return true, nil
	}
	return !rec.EventUpdatedAt.Equal(updatedAt), nil
}

// MarkProcessed upserts the processing record. A nil CalendarEventID never
// erases a previously stored identifier.
func (db *DB) MarkProcessed(ctx context.Context, rec *ProcessedRecord) error {
	query := `
	INSERT INTO processed_events (event_id, has_speaker_chance, is_interest_match,
		interest_score, calendar_event_id, event_updated_at, processed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(event_id) DO UPDATE SET
		has_speaker_chance = excluded.has_speaker_chance,
		is_interest_match = excluded.is_interest_match,
		interest_score = excluded.interest_score,
		calendar_event_id = COALESCE(excluded.calendar_event_id, calendar_event_id),
		event_updated_at = excluded.event_updated_at,
		processed_at = excluded.processed_at
	`

	processedAt := rec.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	var calID interface{}
	if rec.CalendarEventID != nil {
		calID = *rec.CalendarEventID
	}
	var updatedAt interface{}
	if rec.EventUpdatedAt != nil {
		updatedAt = *rec.EventUpdatedAt
	}

	_, err := db.conn.ExecContext(ctx, query,
		rec.EventID, rec.HasSpeakerChance, rec.IsInterestMatch, rec.InterestScore,
		calID, updatedAt, processedAt,
	)
	return err
}

// UnprocessedIDs returns ids of stored events with no processing record at
// all, for backlog recovery.
func (db *DB) UnprocessedIDs(ctx context.Context) ([]int64, error) {
	query := `
	SELECT e.id FROM events e
	LEFT JOIN processed_events p ON p.event_id = e.id
	WHERE p.event_id IS NULL
	ORDER BY e.started_at
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
