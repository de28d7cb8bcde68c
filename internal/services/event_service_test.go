package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/isdelr/ender-calendar-be/internal/database"
	"github.com/isdelr/ender-calendar-be/internal/errdef"
	"github.com/isdelr/ender-calendar-be/internal/models"
	"github.com/isdelr/ender-calendar-be/internal/policy"
	"github.com/isdelr/ender-calendar-be/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminEmail = "admin@example.com"

var (
	admin = &models.Viewer{UserID: "admin-uid", Email: adminEmail}
	userU = &models.Viewer{UserID: "u-uid", Email: "u@example.com"}
	userV = &models.Viewer{UserID: "v-uid", Email: "v@example.com"}
	start = time.Date(2025, 9, 1, 18, 0, 0, 0, time.UTC)
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []models.Change
}

func (n *recordingNotifier) Notify(change models.Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
}

func (n *recordingNotifier) last() models.Change {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.changes[len(n.changes)-1]
}

func newEventService(t *testing.T, p policy.AdminEventPolicy) (*EventService, *recordingNotifier) {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db))
	s := store.NewSQLiteStore(db)
	t.Cleanup(func() { _ = s.Close() })

	notifier := &recordingNotifier{}
	return NewEventService(s, policy.New(adminEmail, p), notifier), notifier
}

func draft(title string, public bool) models.EventDraft {
	return models.EventDraft{Title: title, StartDate: start, IsPublic: public}
}

func ptr[T any](v T) *T {
	return &v
}

func ids(events []models.Event) []string {
	out := []string{}
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func TestEventService_PrivateEventScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newEventService(t, policy.AdminEventsAlwaysGlobal)

	created, err := s.CreateEvent(ctx, userU, draft("Meeting", false))
	require.NoError(t, err)
	assert.Equal(t, userU.UserID, created.CreatedBy)

	visible, err := s.VisibleEvents(ctx, userU)
	require.NoError(t, err)
	assert.Contains(t, ids(visible), created.ID)

	visible, err = s.VisibleEvents(ctx, userV)
	require.NoError(t, err)
	assert.NotContains(t, ids(visible), created.ID)

	visible, err = s.VisibleEvents(ctx, nil)
	require.NoError(t, err)
	assert.NotContains(t, ids(visible), created.ID)

	_, err = s.GetEvent(ctx, userV, created.ID)
	assert.True(t, errdef.IsNotFound(err))
}

func TestEventService_AdminBroadcastScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newEventService(t, policy.AdminEventsOptional)

	d := draft("Holiday", false)
	d.IsGlobalAdminEvent = ptr(true)
	created, err := s.CreateEvent(ctx, admin, d)
	require.NoError(t, err)
	assert.True(t, created.IsPublic)
	assert.True(t, created.IsGlobalAdminEvent)

	for _, viewer := range []*models.Viewer{nil, userU} {
		visible, err := s.VisibleEvents(ctx, viewer)
		require.NoError(t, err)
		assert.Contains(t, ids(visible), created.ID)
	}

	assert.True(t, s.CanEdit(admin, created))
	assert.False(t, s.CanEdit(userU, created))

	_, err = s.UpdateEvent(ctx, userU, created.ID, models.EventPatch{Title: ptr("hijacked")})
	assert.True(t, errdef.IsForbidden(err))
	err = s.DeleteEvent(ctx, userU, created.ID)
	assert.True(t, errdef.IsForbidden(err))
}

func TestEventService_AdminAlwaysGlobal(t *testing.T) {
	ctx := context.Background()
	s, _ := newEventService(t, policy.AdminEventsAlwaysGlobal)

	d := draft("Notice", false)
	d.IsGlobalAdminEvent = ptr(false)
	created, err := s.CreateEvent(ctx, admin, d)
	require.NoError(t, err)
	assert.True(t, created.IsPublic)
	assert.True(t, created.IsGlobalAdminEvent)
}

func TestEventService_PrivilegeEscalationScenario(t *testing.T) {
	ctx := context.Background()
	for _, p := range []policy.AdminEventPolicy{policy.AdminEventsAlwaysGlobal, policy.AdminEventsOptional} {
		t.Run(string(p), func(t *testing.T) {
			s, _ := newEventService(t, p)

			d := draft("Sneaky", false)
			d.IsGlobalAdminEvent = ptr(true)
			d.IsAdminEvent = ptr(true)
			created, err := s.CreateEvent(ctx, userU, d)
			require.NoError(t, err)
			assert.False(t, created.IsGlobalAdminEvent)
			assert.False(t, created.IsPublic)

			updated, err := s.UpdateEvent(ctx, userU, created.ID, models.EventPatch{IsAdminEvent: ptr(true)})
			require.NoError(t, err)
			assert.False(t, updated.IsGlobalAdminEvent)

			stored, err := s.GetEvent(ctx, userU, created.ID)
			require.NoError(t, err)
			assert.False(t, stored.IsGlobalAdminEvent)
		})
	}
}

func TestEventService_GlobalImpliesPublicAfterUpdate(t *testing.T) {
	ctx := context.Background()
	s, _ := newEventService(t, policy.AdminEventsOptional)

	d := draft("Broadcast", true)
	d.IsGlobalAdminEvent = ptr(true)
	created, err := s.CreateEvent(ctx, admin, d)
	require.NoError(t, err)

	updated, err := s.UpdateEvent(ctx, admin, created.ID, models.EventPatch{IsPublic: ptr(false)})
	require.NoError(t, err)
	assert.True(t, updated.IsGlobalAdminEvent)
	assert.True(t, updated.IsPublic)
}

func TestEventService_AdminCannotEditOrdinaryEvents(t *testing.T) {
	ctx := context.Background()
	s, _ := newEventService(t, policy.AdminEventsAlwaysGlobal)

	public, err := s.CreateEvent(ctx, userU, draft("Picnic", true))
	require.NoError(t, err)
	private, err := s.CreateEvent(ctx, userU, draft("Diary", false))
	require.NoError(t, err)

	_, err = s.UpdateEvent(ctx, admin, public.ID, models.EventPatch{Title: ptr("x")})
	assert.True(t, errdef.IsForbidden(err))

	// a private event of another user is not even visible to the admin
	_, err = s.UpdateEvent(ctx, admin, private.ID, models.EventPatch{Title: ptr("x")})
	assert.True(t, errdef.IsNotFound(err))
}

func TestEventService_OwnerUpdate(t *testing.T) {
	ctx := context.Background()
	s, notifier := newEventService(t, policy.AdminEventsAlwaysGlobal)

	created, err := s.CreateEvent(ctx, userU, draft("Draft", false))
	require.NoError(t, err)

	later := start.Add(48 * time.Hour)
	updated, err := s.UpdateEvent(ctx, userU, created.ID, models.EventPatch{
		Title:     ptr("  Final  "),
		StartDate: &later,
		IsPublic:  ptr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "Final", updated.Title)
	assert.True(t, updated.StartDate.Equal(later))
	assert.True(t, updated.IsPublic)
	assert.Equal(t, created.CreatedBy, updated.CreatedBy)
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))

	change := notifier.last()
	assert.Equal(t, models.EventUpdated, change.Kind)
	assert.True(t, change.Public)
	assert.False(t, change.Withdrawn)
	assert.Equal(t, userU.UserID, change.OwnerID)

	_, err = s.UpdateEvent(ctx, userU, created.ID, models.EventPatch{IsPublic: ptr(false)})
	require.NoError(t, err)
	change = notifier.last()
	assert.True(t, change.Public)
	assert.True(t, change.Withdrawn)
	assert.Equal(t, created.ID, change.EventID)
}

func TestEventService_Validation(t *testing.T) {
	ctx := context.Background()
	s, _ := newEventService(t, policy.AdminEventsAlwaysGlobal)

	_, err := s.CreateEvent(ctx, userU, draft("   ", false))
	assert.True(t, errdef.IsBadRequest(err))

	_, err = s.CreateEvent(ctx, userU, models.EventDraft{Title: "no date"})
	assert.True(t, errdef.IsBadRequest(err))

	_, err = s.CreateEvent(ctx, nil, draft("anon", true))
	assert.True(t, errdef.IsUnauthorized(err))

	created, err := s.CreateEvent(ctx, userU, draft("ok", false))
	require.NoError(t, err)
	assert.True(t, created.EndDate.Equal(created.StartDate))

	_, err = s.UpdateEvent(ctx, userU, created.ID, models.EventPatch{Title: ptr(" ")})
	assert.True(t, errdef.IsBadRequest(err))

	// end before start is accepted as-is
	before := start.Add(-time.Hour)
	updated, err := s.UpdateEvent(ctx, userU, created.ID, models.EventPatch{EndDate: &before})
	require.NoError(t, err)
	assert.True(t, updated.EndDate.Equal(before))
}

func TestEventService_DateRange(t *testing.T) {
	ctx := context.Background()
	s, _ := newEventService(t, policy.AdminEventsAlwaysGlobal)

	last := models.LatestDate.Add(-time.Nanosecond)
	created, err := s.CreateEvent(ctx, userU, models.EventDraft{Title: "edge", StartDate: last})
	require.NoError(t, err)
	got, err := s.GetEvent(ctx, userU, created.ID)
	require.NoError(t, err)
	assert.True(t, got.StartDate.Equal(last), "got %s", got.StartDate)

	first, err := s.CreateEvent(ctx, userU, models.EventDraft{Title: "first", StartDate: models.EarliestDate})
	require.NoError(t, err)
	assert.True(t, first.StartDate.Equal(models.EarliestDate))

	far := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)
	old := time.Date(1677, 12, 31, 0, 0, 0, 0, time.UTC)

	_, err = s.CreateEvent(ctx, userU, models.EventDraft{Title: "far", StartDate: far})
	assert.True(t, errdef.IsBadRequest(err))
	_, err = s.CreateEvent(ctx, userU, models.EventDraft{Title: "old", StartDate: old})
	assert.True(t, errdef.IsBadRequest(err))
	_, err = s.CreateEvent(ctx, userU, models.EventDraft{Title: "long", StartDate: start, EndDate: &far})
	assert.True(t, errdef.IsBadRequest(err))

	_, err = s.UpdateEvent(ctx, userU, created.ID, models.EventPatch{StartDate: &far})
	assert.True(t, errdef.IsBadRequest(err))
	_, err = s.UpdateEvent(ctx, userU, created.ID, models.EventPatch{EndDate: &old})
	assert.True(t, errdef.IsBadRequest(err))

	got, err = s.GetEvent(ctx, userU, created.ID)
	require.NoError(t, err)
	assert.True(t, got.StartDate.Equal(last))
}

func TestEventService_NotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newEventService(t, policy.AdminEventsAlwaysGlobal)

	_, err := s.GetEvent(ctx, userU, "missing")
	assert.True(t, errdef.IsNotFound(err))
	_, err = s.UpdateEvent(ctx, userU, "missing", models.EventPatch{Title: ptr("x")})
	assert.True(t, errdef.IsNotFound(err))
	err = s.DeleteEvent(ctx, userU, "missing")
	assert.True(t, errdef.IsNotFound(err))
}

func TestEventService_Delete(t *testing.T) {
	ctx := context.Background()
	s, notifier := newEventService(t, policy.AdminEventsAlwaysGlobal)

	created, err := s.CreateEvent(ctx, userU, draft("Gone soon", false))
	require.NoError(t, err)

	err = s.DeleteEvent(ctx, userV, created.ID)
	assert.True(t, errdef.IsNotFound(err))
	err = s.DeleteEvent(ctx, nil, created.ID)
	assert.True(t, errdef.IsUnauthorized(err))

	require.NoError(t, s.DeleteEvent(ctx, userU, created.ID))
	assert.Equal(t, models.Change{Kind: models.EventDeleted, EventID: created.ID, OwnerID: userU.UserID}, notifier.last())

	_, err = s.GetEvent(ctx, userU, created.ID)
	assert.True(t, errdef.IsNotFound(err))
}

func TestEventService_VisibleEvents(t *testing.T) {
	ctx := context.Background()
	s, _ := newEventService(t, policy.AdminEventsAlwaysGlobal)

	mk := func(v *models.Viewer, title string, public bool, day int) models.Event {
		d := draft(title, public)
		d.StartDate = start.AddDate(0, 0, day)
		e, err := s.CreateEvent(ctx, v, d)
		require.NoError(t, err)
		return e
	}
	uPublic := mk(userU, "u-public", true, 3)
	uPrivate := mk(userU, "u-private", false, 1)
	vPublic := mk(userV, "v-public", true, 2)
	mk(userV, "v-private", false, 4)

	t.Run("Anonymous", func(t *testing.T) {
		visible, err := s.VisibleEvents(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{uPublic.ID, vPublic.ID}, ids(visible))
	})

	t.Run("AuthenticatedNoDuplicates", func(t *testing.T) {
		visible, err := s.VisibleEvents(ctx, userU)
		require.NoError(t, err)
		assert.Equal(t, []string{uPublic.ID, vPublic.ID, uPrivate.ID}, ids(visible))
	})

	t.Run("AllEvents", func(t *testing.T) {
		all, err := s.AllEvents(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})
}

func TestEventService_BulkDeleteScenario(t *testing.T) {
	ctx := context.Background()
	s, notifier := newEventService(t, policy.AdminEventsAlwaysGlobal)

	for i := 0; i < 3; i++ {
		_, err := s.CreateEvent(ctx, admin, draft("admin", true))
		require.NoError(t, err)
	}
	kept, err := s.CreateEvent(ctx, userU, draft("user", true))
	require.NoError(t, err)

	_, err = s.DeleteOwnAdminEvents(ctx, userU)
	assert.True(t, errdef.IsForbidden(err))
	_, err = s.DeleteOwnAdminEvents(ctx, nil)
	assert.True(t, errdef.IsUnauthorized(err))

	n, err := s.DeleteOwnAdminEvents(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, models.Change{Kind: models.EventsPurged, DeletedCount: 3, OwnerID: admin.UserID, Public: true}, notifier.last())

	all, err := s.AllEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID}, ids(all))
}
