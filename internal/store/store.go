// Package store persists calendar events. Every backend satisfies the same
// contract: writes are single-document, queries are ordered by start date
// descending, and a missing id is reported as errdef NotFound.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/isdelr/ender-calendar-be/internal/errdef"
	"github.com/isdelr/ender-calendar-be/internal/models"
)

// Store is the document-store adapter consumed by the event service.
type Store interface {
	// Insert assigns id, createdAt and updatedAt and persists the event.
	Insert(ctx context.Context, event models.Event) (models.Event, error)
	Get(ctx context.Context, id string) (models.Event, error)
	// UpdateByID writes the non-nil fields of patch and refreshes updatedAt.
	UpdateByID(ctx context.Context, id string, patch models.EventPatch) (models.Event, error)
	DeleteByID(ctx context.Context, id string) error
	QueryByOwner(ctx context.Context, uid string) ([]models.Event, error)
	QueryPublic(ctx context.Context) ([]models.Event, error)
	QueryAll(ctx context.Context) ([]models.Event, error)
	// DeleteByOwner removes every event created by uid and returns how many were removed.
	DeleteByOwner(ctx context.Context, uid string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func normalizeTimes(e models.Event) models.Event {
	e.StartDate = e.StartDate.UTC()
	e.EndDate = e.EndDate.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	if e.Participants == nil {
		e.Participants = []string{}
	}
	return e
}

// checkDate rejects times that would not survive the nanosecond encoding
// used by the backends.
func checkDate(field string, t time.Time) error {
	if !models.ValidDate(t) {
		return errdef.NewBadRequest("%s %s is outside the supported range", field, t.Format(time.RFC3339))
	}
	return nil
}

func checkEventDates(e models.Event) error {
	if err := checkDate("startDate", e.StartDate); err != nil {
		return err
	}
	return checkDate("endDate", e.EndDate)
}

func checkPatchDates(p models.EventPatch) error {
	if p.StartDate != nil {
		if err := checkDate("startDate", *p.StartDate); err != nil {
			return err
		}
	}
	if p.EndDate != nil {
		return checkDate("endDate", *p.EndDate)
	}
	return nil
}

func sortByStartDesc(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].StartDate.Equal(events[j].StartDate) {
			return events[i].StartDate.After(events[j].StartDate)
		}
		return events[i].ID < events[j].ID
	})
}
