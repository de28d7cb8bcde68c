package services

import (
	"context"
	"strings"
	"time"

	"github.com/isdelr/ender-calendar-be/internal/errdef"
	"github.com/isdelr/ender-calendar-be/internal/models"
	"github.com/isdelr/ender-calendar-be/internal/policy"
	"github.com/isdelr/ender-calendar-be/internal/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	VisibleEvents(ctx context.Context, viewer *models.Viewer) ([]models.Event, error)
	AllEvents(ctx context.Context) ([]models.Event, error)
	GetEvent(ctx context.Context, viewer *models.Viewer, id string) (models.Event, error)
	CreateEvent(ctx context.Context, viewer *models.Viewer, draft models.EventDraft) (models.Event, error)
	UpdateEvent(ctx context.Context, viewer *models.Viewer, id string, patch models.EventPatch) (models.Event, error)
	DeleteEvent(ctx context.Context, viewer *models.Viewer, id string) error
	DeleteOwnAdminEvents(ctx context.Context, viewer *models.Viewer) (int, error)
	CanEdit(viewer *models.Viewer, event models.Event) bool
	IsAdmin(viewer *models.Viewer) bool
	Ping(ctx context.Context) error
}

// ChangeNotifier is told about every successful write.
type ChangeNotifier interface {
	Notify(change models.Change)
}

// EventService provides business logic for calendar events. Every read and
// write is gated by the policy engine before it reaches the store.
type EventService struct {
	store    store.Store
	engine   *policy.Engine
	notifier ChangeNotifier
}

// NewEventService creates a new EventService. notifier may be nil.
func NewEventService(s store.Store, engine *policy.Engine, notifier ChangeNotifier) *EventService {
	return &EventService{store: s, engine: engine, notifier: notifier}
}

// VisibleEvents returns the public events for an anonymous viewer, and the
// viewer's own events plus every public event otherwise.
func (s *EventService) VisibleEvents(ctx context.Context, viewer *models.Viewer) ([]models.Event, error) {
	if viewer == nil {
		return s.store.QueryPublic(ctx)
	}

	var owned, public []models.Event
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		owned, err = s.store.QueryByOwner(gctx, viewer.UserID)
		return err
	})
	g.Go(func() error {
		var err error
		public, err = s.store.QueryPublic(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("user_id", viewer.UserID).Msg("Failed to fetch visible events")
		return nil, err
	}
	return policy.MergeVisible(owned, public), nil
}

// AllEvents returns every stored event regardless of visibility.
func (s *EventService) AllEvents(ctx context.Context) ([]models.Event, error) {
	return s.store.QueryAll(ctx)
}

// GetEvent returns a single event. Events the viewer may not see are reported as missing.
func (s *EventService) GetEvent(ctx context.Context, viewer *models.Viewer, id string) (models.Event, error) {
	event, err := s.store.Get(ctx, id)
	if err != nil {
		return models.Event{}, err
	}
	if !s.engine.CanView(event, viewer) {
		return models.Event{}, errdef.NewNotFound("event %q not found", id)
	}
	return event, nil
}

// CreateEvent validates the draft, stamps the author and normalises the public/admin flags before inserting.
func (s *EventService) CreateEvent(ctx context.Context, viewer *models.Viewer, draft models.EventDraft) (models.Event, error) {
	if viewer == nil {
		return models.Event{}, errdef.NewUnauthorized("sign in to create events")
	}
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return models.Event{}, errdef.NewBadRequest("title is required")
	}
	if draft.StartDate.IsZero() {
		return models.Event{}, errdef.NewBadRequest("startDate is required")
	}
	if err := checkDates(&draft.StartDate, draft.EndDate); err != nil {
		return models.Event{}, err
	}

	event := draft.Event()
	event.Title = title
	event.CreatedBy = viewer.UserID
	event = s.engine.NormalizeOnWrite(event, s.engine.IsAdminViewer(viewer))

	created, err := s.store.Insert(ctx, event)
	if err != nil {
		log.Error().Err(err).Str("user_id", viewer.UserID).Msg("Failed to create event")
		return models.Event{}, err
	}

	log.Info().Str("event_id", created.ID).Str("user_id", viewer.UserID).Bool("public", created.IsPublic).Bool("global", created.IsGlobalAdminEvent).Msg("Event created")
	s.notify(models.Change{Kind: models.EventCreated, EventID: created.ID, OwnerID: created.CreatedBy, Public: created.IsPublic})
	return created, nil
}

// UpdateEvent applies a partial update if the viewer may edit the event.
// The public/admin flags are normalised for the editor, not the original author.
func (s *EventService) UpdateEvent(ctx context.Context, viewer *models.Viewer, id string, patch models.EventPatch) (models.Event, error) {
	existing, err := s.editable(ctx, viewer, id)
	if err != nil {
		return models.Event{}, err
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return models.Event{}, errdef.NewBadRequest("title must not be blank")
		}
		patch.Title = &title
	}
	if patch.StartDate != nil && patch.StartDate.IsZero() {
		return models.Event{}, errdef.NewBadRequest("startDate must not be empty")
	}
	if err := checkDates(patch.StartDate, patch.EndDate); err != nil {
		return models.Event{}, err
	}

	normalized := s.engine.NormalizeOnWrite(patch.Apply(existing), s.engine.IsAdminViewer(viewer))
	patch.IsPublic = &normalized.IsPublic
	patch.IsGlobalAdminEvent = &normalized.IsGlobalAdminEvent
	patch.IsAdminEvent = nil

	updated, err := s.store.UpdateByID(ctx, id, patch)
	if err != nil {
		log.Error().Err(err).Str("event_id", id).Msg("Failed to update event")
		return models.Event{}, err
	}

	s.notify(models.Change{
		Kind:      models.EventUpdated,
		EventID:   id,
		OwnerID:   updated.CreatedBy,
		Public:    existing.IsPublic || updated.IsPublic,
		Withdrawn: existing.IsPublic && !updated.IsPublic,
	})
	return updated, nil
}

// DeleteEvent permanently removes an event the viewer may edit.
func (s *EventService) DeleteEvent(ctx context.Context, viewer *models.Viewer, id string) error {
	existing, err := s.editable(ctx, viewer, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteByID(ctx, id); err != nil {
		log.Error().Err(err).Str("event_id", id).Msg("Failed to delete event")
		return err
	}

	log.Info().Str("event_id", id).Str("user_id", viewer.UserID).Msg("Event deleted")
	s.notify(models.Change{Kind: models.EventDeleted, EventID: id, OwnerID: existing.CreatedBy, Public: existing.IsPublic})
	return nil
}

// DeleteOwnAdminEvents removes every event authored by the distinguished admin.
// Events of other users are never touched, whatever their flags.
func (s *EventService) DeleteOwnAdminEvents(ctx context.Context, viewer *models.Viewer) (int, error) {
	if viewer == nil {
		return 0, errdef.NewUnauthorized("sign in first")
	}
	if !s.engine.IsAdminViewer(viewer) {
		log.Warn().Str("user_id", viewer.UserID).Msg("Bulk delete refused for non-admin viewer")
		return 0, errdef.NewForbidden("only the administrator may bulk-delete events")
	}

	n, err := s.store.DeleteByOwner(ctx, viewer.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", viewer.UserID).Msg("Failed to bulk-delete admin events")
		return 0, err
	}

	log.Warn().Int("deleted", n).Str("user_id", viewer.UserID).Msg("Administrator events bulk-deleted")
	s.notify(models.Change{Kind: models.EventsPurged, DeletedCount: n, OwnerID: viewer.UserID, Public: true})
	return n, nil
}

// CanEdit reports whether viewer may modify event.
func (s *EventService) CanEdit(viewer *models.Viewer, event models.Event) bool {
	return s.engine.CanEdit(event, viewer)
}

// IsAdmin reports whether viewer is the distinguished admin.
func (s *EventService) IsAdmin(viewer *models.Viewer) bool {
	return s.engine.IsAdminViewer(viewer)
}

// Ping checks that the event store is reachable.
func (s *EventService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// editable loads an event and checks that viewer may change it. Events the
// viewer cannot even see are reported as missing rather than forbidden.
func (s *EventService) editable(ctx context.Context, viewer *models.Viewer, id string) (models.Event, error) {
	if viewer == nil {
		return models.Event{}, errdef.NewUnauthorized("sign in to change events")
	}
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return models.Event{}, err
	}
	if !s.engine.CanView(existing, viewer) {
		return models.Event{}, errdef.NewNotFound("event %q not found", id)
	}
	if !s.engine.CanEdit(existing, viewer) {
		log.Warn().Str("event_id", id).Str("user_id", viewer.UserID).Msg("Edit refused")
		return models.Event{}, errdef.NewForbidden("you may not change this event")
	}
	return existing, nil
}

// checkDates rejects dates outside the supported range. A nil or zero end
// date is left to its default.
func checkDates(start, end *time.Time) error {
	if start != nil && !models.ValidDate(*start) {
		return errdef.NewBadRequest("startDate must be between %d and %d", models.EarliestDate.Year(), models.LatestDate.Year()-1)
	}
	if end != nil && !end.IsZero() && !models.ValidDate(*end) {
		return errdef.NewBadRequest("endDate must be between %d and %d", models.EarliestDate.Year(), models.LatestDate.Year()-1)
	}
	return nil
}

func (s *EventService) notify(change models.Change) {
	if s.notifier != nil {
		s.notifier.Notify(change)
	}
}
