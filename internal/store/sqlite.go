package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/ender-calendar-be/internal/errdef"
	"github.com/isdelr/ender-calendar-be/internal/models"
)

const eventColumns = `id, title, description, start_date, end_date, location, category, created_by,
	participants_json, is_public, is_global_admin_event, created_at, updated_at`

// SQLiteStore keeps events in the events table created by database.Migrate.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a SQLiteStore over an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: utcNow}
}

func (s *SQLiteStore) Insert(ctx context.Context, event models.Event) (models.Event, error) {
	if err := checkEventDates(event); err != nil {
		return models.Event{}, err
	}
	now := s.now()
	event.ID = uuid.New().String()
	event.CreatedAt = now
	event.UpdatedAt = now
	event = normalizeTimes(event)

	participants, err := json.Marshal(event.Participants)
	if err != nil {
		return models.Event{}, err
	}

	stmt, err := s.db.PrepareContext(ctx, `INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return models.Event{}, unavailable("prepare insert", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		event.ID, event.Title, event.Description,
		event.StartDate.UnixNano(), event.EndDate.UnixNano(),
		event.Location, event.Category, event.CreatedBy, string(participants),
		event.IsPublic, event.IsGlobalAdminEvent,
		event.CreatedAt.UnixNano(), event.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return models.Event{}, unavailable("insert event", err)
	}
	return event, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (models.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Event{}, errdef.NewNotFound("event %q not found", id)
		}
		return models.Event{}, unavailable("get event", err)
	}
	return event, nil
}

func (s *SQLiteStore) UpdateByID(ctx context.Context, id string, patch models.EventPatch) (models.Event, error) {
	if err := checkPatchDates(patch); err != nil {
		return models.Event{}, err
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.StartDate != nil {
		set("start_date", patch.StartDate.UnixNano())
	}
	if patch.EndDate != nil {
		set("end_date", patch.EndDate.UnixNano())
	}
	if patch.Location != nil {
		set("location", *patch.Location)
	}
	if patch.Category != nil {
		set("category", *patch.Category)
	}
	if patch.Participants != nil {
		participants, err := json.Marshal(patch.Participants)
		if err != nil {
			return models.Event{}, err
		}
		set("participants_json", string(participants))
	}
	if patch.IsPublic != nil {
		set("is_public", *patch.IsPublic)
	}
	if flag := patch.GlobalFlag(); flag != nil {
		set("is_global_admin_event", *flag)
	}
	set("updated_at", s.now().UnixNano())
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, `UPDATE events SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return models.Event{}, unavailable("update event", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Event{}, errdef.NewNotFound("event %q not found", id)
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) DeleteByID(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return unavailable("delete event", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errdef.NewNotFound("event %q not found", id)
	}
	return nil
}

func (s *SQLiteStore) QueryByOwner(ctx context.Context, uid string) ([]models.Event, error) {
	return s.query(ctx, `SELECT `+eventColumns+` FROM events WHERE created_by = ? ORDER BY start_date DESC, id ASC`, uid)
}

func (s *SQLiteStore) QueryPublic(ctx context.Context) ([]models.Event, error) {
	return s.query(ctx, `SELECT `+eventColumns+` FROM events WHERE is_public = TRUE ORDER BY start_date DESC, id ASC`)
}

func (s *SQLiteStore) QueryAll(ctx context.Context) ([]models.Event, error) {
	return s.query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY start_date DESC, id ASC`)
}

func (s *SQLiteStore) DeleteByOwner(ctx context.Context, uid string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE created_by = ?", uid)
	if err != nil {
		return 0, unavailable("delete events by owner", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("delete events by owner", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("query events", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, unavailable("scan event", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("query events", err)
	}
	return events, nil
}

// scanEvent is a helper function to scan a single row into an Event struct.
func scanEvent(scanner interface{ Scan(...any) error }) (models.Event, error) {
	var event models.Event
	var start, end, created, updated int64
	var participants string
	err := scanner.Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&start,
		&end,
		&event.Location,
		&event.Category,
		&event.CreatedBy,
		&participants,
		&event.IsPublic,
		&event.IsGlobalAdminEvent,
		&created,
		&updated,
	)
	if err != nil {
		return models.Event{}, err
	}
	event.StartDate = time.Unix(0, start).UTC()
	event.EndDate = time.Unix(0, end).UTC()
	event.CreatedAt = time.Unix(0, created).UTC()
	event.UpdatedAt = time.Unix(0, updated).UTC()
	if participants != "" {
		if err := json.Unmarshal([]byte(participants), &event.Participants); err != nil {
			return models.Event{}, err
		}
	}
	if event.Participants == nil {
		event.Participants = []string{}
	}
	return event, nil
}

func unavailable(op string, err error) error {
	return errdef.NewUnavailable("%s: %w", op, err)
}
