package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"crewshift-bot/internal/model"
)

type TaskStore struct {
	coll *mongo.Collection
}

func NewTaskStore(ctx context.Context, db *MongoDB) (*TaskStore, error) {
	tasks := db.Collection("object_tasks")

	if _, err := tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "object_id", Value: 1}, {Key: "deleted_at", Value: 1}}},
		{Keys: bson.D{{Key: "is_special", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create object_tasks indexes: %w", err)
	}

	return &TaskStore{coll: tasks}, nil
}

// ActiveTasks returns the object's tasks that are not soft-deleted.
func (s *TaskStore) ActiveTasks(ctx context.Context, objectID bson.ObjectID) ([]model.ObjectTask, error) {
	return s.find(ctx, bson.M{"object_id": objectID, "deleted_at": nil})
}

// ActiveSpecialTasks returns every special task that is not soft-deleted.
func (s *TaskStore) ActiveSpecialTasks(ctx context.Context) ([]model.ObjectTask, error) {
	return s.find(ctx, bson.M{"is_special": true, "deleted_at": nil})
}

func (s *TaskStore) find(ctx context.Context, filter bson.M) ([]model.ObjectTask, error) {
	cursor, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	var results []model.ObjectTask
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	return results, nil
}
