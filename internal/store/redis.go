package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/ender-calendar-be/internal/errdef"
	"github.com/isdelr/ender-calendar-be/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultRedisPrefix = "calendar:"
	maxUpdateAttempts  = 3
)

// RedisStore keeps one JSON document per event plus sorted-set indexes scored
// by start date: every event, public events, and one set per owner.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time

	// beforeWrite runs between the watched read and the transaction in UpdateByID.
	beforeWrite func(id string)
}

// NewRedisStore creates a RedisStore using the default key prefix.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: defaultRedisPrefix, now: utcNow}
}

func (s *RedisStore) eventKey(id string) string { return s.prefix + "event:" + id }
func (s *RedisStore) allKey() string { return s.prefix + "events:all" }
func (s *RedisStore) publicKey() string { return s.prefix + "events:public" }
func (s *RedisStore) ownerKey(uid string) string { return s.prefix + "events:owner:" + uid }
func score(t time.Time) float64 { return float64(t.UnixMilli()) }

func (s *RedisStore) Insert(ctx context.Context, event models.Event) (models.Event, error) {
	if err := checkEventDates(event); err != nil {
		return models.Event{}, err
	}
	now := s.now()
	event.ID = uuid.New().String()
	event.CreatedAt = now
	event.UpdatedAt = now
	event = normalizeTimes(event)

	raw, err := json.Marshal(event)
	if err != nil {
		return models.Event{}, err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.write(ctx, pipe, event, raw)
		return nil
	})
	if err != nil {
		return models.Event{}, unavailable("save event", err)
	}
	return event, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (models.Event, error) {
	raw, err := s.rdb.Get(ctx, s.eventKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Event{}, errdef.NewNotFound("event %q not found", id)
		}
		return models.Event{}, unavailable("get event", err)
	}
	return decodeDocument(raw)
}

// UpdateByID watches the event key so a concurrent write or delete between
// the read and the MULTI/EXEC aborts the transaction. Aborted attempts are
// retried; a retry that finds the key gone reports NotFound.
func (s *RedisStore) UpdateByID(ctx context.Context, id string, patch models.EventPatch) (models.Event, error) {
	if err := checkPatchDates(patch); err != nil {
		return models.Event{}, err
	}

	key := s.eventKey(id)
	var updated models.Event
	update := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return errdef.NewNotFound("event %q not found", id)
			}
			return unavailable("get event", err)
		}
		existing, err := decodeDocument(raw)
		if err != nil {
			return err
		}
		if s.beforeWrite != nil {
			s.beforeWrite(id)
		}

		updated = patch.Apply(existing)
		updated.ID = existing.ID
		updated.CreatedBy = existing.CreatedBy
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = s.now()
		updated = normalizeTimes(updated)

		doc, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.write(ctx, pipe, updated, doc)
			return nil
		})
		if err != nil && !errors.Is(err, redis.TxFailedErr) {
			return unavailable("save event", err)
		}
		return err
	}

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err := s.rdb.Watch(ctx, update, key)
		if errors.Is(err, redis.TxFailedErr) {
			log.Debug().Str("id", id).Int("attempt", attempt).Msg("Event changed during update, retrying")
			continue
		}
		if err != nil {
			if errdef.IsNotFound(err) || errdef.IsUnavailable(err) {
				return models.Event{}, err
			}
			return models.Event{}, unavailable("update event", err)
		}
		return updated, nil
	}
	return models.Event{}, errdef.NewConflict("event %q is being modified concurrently", id)
}

func (s *RedisStore) DeleteByID(ctx context.Context, id string) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.remove(ctx, existing)
}

func (s *RedisStore) QueryByOwner(ctx context.Context, uid string) ([]models.Event, error) {
	return s.query(ctx, s.ownerKey(uid))
}

func (s *RedisStore) QueryPublic(ctx context.Context) ([]models.Event, error) {
	return s.query(ctx, s.publicKey())
}

func (s *RedisStore) QueryAll(ctx context.Context) ([]models.Event, error) {
	return s.query(ctx, s.allKey())
}

func (s *RedisStore) DeleteByOwner(ctx context.Context, uid string) (int, error) {
	events, err := s.QueryByOwner(ctx, uid)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	if err := s.remove(ctx, events...); err != nil {
		return 0, err
	}
	return len(events), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// write queues the document and its index entries on a MULTI/EXEC pipeline.
func (s *RedisStore) write(ctx context.Context, pipe redis.Pipeliner, event models.Event, raw []byte) {
	member := redis.Z{Score: score(event.StartDate), Member: event.ID}
	pipe.Set(ctx, s.eventKey(event.ID), raw, 0)
	pipe.ZAdd(ctx, s.allKey(), member)
	pipe.ZAdd(ctx, s.ownerKey(event.CreatedBy), member)
	if event.IsPublic {
		pipe.ZAdd(ctx, s.publicKey(), member)
	} else {
		pipe.ZRem(ctx, s.publicKey(), event.ID)
	}
}

func (s *RedisStore) remove(ctx context.Context, events ...models.Event) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, event := range events {
			pipe.Del(ctx, s.eventKey(event.ID))
			pipe.ZRem(ctx, s.allKey(), event.ID)
			pipe.ZRem(ctx, s.publicKey(), event.ID)
			pipe.ZRem(ctx, s.ownerKey(event.CreatedBy), event.ID)
		}
		return nil
	})
	if err != nil {
		return unavailable("delete event", err)
	}
	return nil
}

func (s *RedisStore) query(ctx context.Context, index string) ([]models.Event, error) {
	ids, err := s.rdb.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, unavailable("query index", err)
	}
	events := []models.Event{}
	if len(ids) == 0 {
		return events, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.eventKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("load events", err)
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry without a document; skip it
			continue
		}
		event, err := decodeDocument([]byte(raw))
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	sortByStartDesc(events)
	return events, nil
}

func decodeDocument(raw []byte) (models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return models.Event{}, unavailable("decode event", err)
	}
	return normalizeTimes(event), nil
}
