// Package convo keeps short-lived conversation state outside the worker record.
package convo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/bson"

	"crewshift-bot/internal/model"
)

// RedisSelection stores the worker's selected object per chat channel with a TTL.
type RedisSelection struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSelection(rdb *redis.Client, ttl time.Duration) *RedisSelection {
	return &RedisSelection{rdb: rdb, ttl: ttl}
}

func selectionKey(w *model.Worker) string {
	return "crewshift:selected:" + w.Chat.ChatID
}

func (s *RedisSelection) SelectObject(ctx context.Context, w *model.Worker, objectID bson.ObjectID) error {
	if err := s.rdb.Set(ctx, selectionKey(w), objectID.Hex(), s.ttl).Err(); err != nil {
		return fmt.Errorf("store selection: %w", err)
	}
	return nil
}

// SelectedObject returns the selection, or ok=false when none is stored or it expired.
func (s *RedisSelection) SelectedObject(ctx context.Context, w *model.Worker) (bson.ObjectID, bool, error) {
	raw, err := s.rdb.Get(ctx, selectionKey(w)).Result()
	if errors.Is(err, redis.Nil) {
		return bson.ObjectID{}, false, nil
	}
	if err != nil {
		return bson.ObjectID{}, false, fmt.Errorf("load selection: %w", err)
	}
	id, err := bson.ObjectIDFromHex(raw)
	if err != nil {
		return bson.ObjectID{}, false, fmt.Errorf("parse selection %q: %w", raw, err)
	}
	return id, true, nil
}

// Clear drops the selection once a session has been opened from it.
func (s *RedisSelection) Clear(ctx context.Context, w *model.Worker) error {
	return s.rdb.Del(ctx, selectionKey(w)).Err()
}

// PersistentSelection keeps the selection on the worker record.
type PersistentSelection struct {
	workers interface {
		SetSelectedObject(ctx context.Context, workerID, objectID bson.ObjectID) error
	}
}

func NewPersistentSelection(workers interface {
	SetSelectedObject(ctx context.Context, workerID, objectID bson.ObjectID) error
}) *PersistentSelection {
	return &PersistentSelection{workers: workers}
}

func (s *PersistentSelection) SelectObject(ctx context.Context, w *model.Worker, objectID bson.ObjectID) error {
	if err := s.workers.SetSelectedObject(ctx, w.ID, objectID); err != nil {
		return err
	}
	w.SelectedObjectID = &objectID
	return nil
}

func (s *PersistentSelection) SelectedObject(_ context.Context, w *model.Worker) (bson.ObjectID, bool, error) {
	if w.SelectedObjectID == nil {
		return bson.ObjectID{}, false, nil
	}
	return *w.SelectedObjectID, true, nil
}

// Clear is a no-op: the persisted selection stays as the default for the next clock-in.
func (s *PersistentSelection) Clear(context.Context, *model.Worker) error {
	return nil
}
