package store

import (
	"context"
	"testing"
	"time"

	"github.com/isdelr/ender-calendar-be/internal/errdef"
	"github.com/isdelr/ender-calendar-be/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func newEvent(title, owner string, day int, public bool) models.Event {
	start := base.AddDate(0, 0, day)
	return models.Event{
		Title:     title,
		StartDate: start,
		EndDate:   start.Add(time.Hour),
		CreatedBy: owner,
		IsPublic:  public,
	}
}

func titles(events []models.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Title)
	}
	return out
}

// runStoreContract exercises the behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("InsertAndGet", func(t *testing.T) {
		s := newStore(t)
		in := newEvent("Meeting", "alice", 0, false)
		in.Description = "weekly sync"
		in.Location = "Room 1"
		in.Category = "work"
		in.Participants = []string{"bob", "carol"}

		created, err := s.Insert(ctx, in)
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())
		assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "Meeting", got.Title)
		assert.Equal(t, "weekly sync", got.Description)
		assert.Equal(t, "Room 1", got.Location)
		assert.Equal(t, "work", got.Category)
		assert.Equal(t, "alice", got.CreatedBy)
		assert.Equal(t, []string{"bob", "carol"}, got.Participants)
		assert.False(t, got.IsPublic)
		assert.False(t, got.IsGlobalAdminEvent)
		assert.True(t, got.StartDate.Equal(in.StartDate))
		assert.True(t, got.EndDate.Equal(in.EndDate))
		assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
	})

	t.Run("InsertIgnoresClientID", func(t *testing.T) {
		s := newStore(t)
		in := newEvent("x", "alice", 0, false)
		in.ID = "chosen-by-client"
		created, err := s.Insert(ctx, in)
		require.NoError(t, err)
		assert.NotEqual(t, "chosen-by-client", created.ID)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "missing")
		require.Error(t, err)
		assert.True(t, errdef.IsNotFound(err))
	})

	t.Run("UpdateByIDIsPartial", func(t *testing.T) {
		s := newStore(t)
		in := newEvent("Old", "alice", 0, false)
		in.Description = "keep me"
		created, err := s.Insert(ctx, in)
		require.NoError(t, err)

		title := "New"
		updated, err := s.UpdateByID(ctx, created.ID, models.EventPatch{Title: &title})
		require.NoError(t, err)
		assert.Equal(t, "New", updated.Title)
		assert.Equal(t, "keep me", updated.Description)
		assert.Equal(t, "alice", updated.CreatedBy)
		assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))
		assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "New", got.Title)
	})

	t.Run("UpdateByIDMissing", func(t *testing.T) {
		s := newStore(t)
		title := "x"
		_, err := s.UpdateByID(ctx, "missing", models.EventPatch{Title: &title})
		require.Error(t, err)
		assert.True(t, errdef.IsNotFound(err))
	})

	t.Run("UpdateByIDMovesBetweenIndexes", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Insert(ctx, newEvent("Party", "alice", 0, false))
		require.NoError(t, err)

		public, err := s.QueryPublic(ctx)
		require.NoError(t, err)
		assert.Empty(t, public)

		yes := true
		_, err = s.UpdateByID(ctx, created.ID, models.EventPatch{IsPublic: &yes, IsGlobalAdminEvent: &yes})
		require.NoError(t, err)

		public, err = s.QueryPublic(ctx)
		require.NoError(t, err)
		require.Len(t, public, 1)
		assert.True(t, public[0].IsGlobalAdminEvent)

		no := false
		_, err = s.UpdateByID(ctx, created.ID, models.EventPatch{IsPublic: &no})
		require.NoError(t, err)
		public, err = s.QueryPublic(ctx)
		require.NoError(t, err)
		assert.Empty(t, public)
	})

	t.Run("UpdateByIDReorders", func(t *testing.T) {
		s := newStore(t)
		first, err := s.Insert(ctx, newEvent("first", "alice", 1, false))
		require.NoError(t, err)
		_, err = s.Insert(ctx, newEvent("second", "alice", 2, false))
		require.NoError(t, err)

		later := base.AddDate(0, 0, 10)
		_, err = s.UpdateByID(ctx, first.ID, models.EventPatch{StartDate: &later})
		require.NoError(t, err)

		owned, err := s.QueryByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second"}, titles(owned))
	})

	t.Run("DeleteByID", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Insert(ctx, newEvent("Doomed", "alice", 0, true))
		require.NoError(t, err)

		require.NoError(t, s.DeleteByID(ctx, created.ID))

		_, err = s.Get(ctx, created.ID)
		assert.True(t, errdef.IsNotFound(err))
		err = s.DeleteByID(ctx, created.ID)
		assert.True(t, errdef.IsNotFound(err))

		for _, query := range []func(context.Context) ([]models.Event, error){s.QueryAll, s.QueryPublic} {
			events, err := query(ctx)
			require.NoError(t, err)
			assert.Empty(t, events)
		}
	})

	t.Run("Queries", func(t *testing.T) {
		s := newStore(t)
		for _, e := range []models.Event{
			newEvent("a-private-old", "alice", 1, false),
			newEvent("a-public-new", "alice", 5, true),
			newEvent("b-public-mid", "bob", 3, true),
			newEvent("b-private", "bob", 4, false),
		} {
			_, err := s.Insert(ctx, e)
			require.NoError(t, err)
		}

		owned, err := s.QueryByOwner(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"a-public-new", "a-private-old"}, titles(owned))

		public, err := s.QueryPublic(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a-public-new", "b-public-mid"}, titles(public))

		all, err := s.QueryAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a-public-new", "b-private", "b-public-mid", "a-private-old"}, titles(all))

		none, err := s.QueryByOwner(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("DeleteByOwner", func(t *testing.T) {
		s := newStore(t)
		for _, e := range []models.Event{
			newEvent("admin-1", "admin", 1, true),
			newEvent("admin-2", "admin", 2, true),
			newEvent("user", "alice", 3, true),
		} {
			_, err := s.Insert(ctx, e)
			require.NoError(t, err)
		}

		n, err := s.DeleteByOwner(ctx, "admin")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		all, err := s.QueryAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"user"}, titles(all))

		n, err = s.DeleteByOwner(ctx, "admin")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("DateRange", func(t *testing.T) {
		s := newStore(t)
		last := models.LatestDate.Add(-time.Nanosecond)
		in := newEvent("edge", "alice", 0, false)
		in.StartDate = models.EarliestDate
		in.EndDate = last

		created, err := s.Insert(ctx, in)
		require.NoError(t, err)
		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, got.StartDate.Equal(models.EarliestDate), "got %s", got.StartDate)
		assert.True(t, got.EndDate.Equal(last), "got %s", got.EndDate)

		far := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)
		tooFar := newEvent("far", "alice", 0, false)
		tooFar.EndDate = far
		_, err = s.Insert(ctx, tooFar)
		assert.True(t, errdef.IsBadRequest(err))

		_, err = s.UpdateByID(ctx, created.ID, models.EventPatch{StartDate: &far})
		assert.True(t, errdef.IsBadRequest(err))

		got, err = s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, got.StartDate.Equal(models.EarliestDate))

		all, err := s.QueryAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"edge"}, titles(all))
	})

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(ctx))
	})
}
