package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"crewshift-bot/internal/model"
)

// DirectoryStore reads workers, admins and work objects. Their CRUD lives in the admin
// panel; the bot only binds chat identities and tracks the selected object.
type DirectoryStore struct {
	workers *mongo.Collection
	admins  *mongo.Collection
	objects *mongo.Collection
}

func NewDirectoryStore(ctx context.Context, db *MongoDB) (*DirectoryStore, error) {
	workers := db.Collection("workers")
	admins := db.Collection("admins")
	objects := db.Collection("work_objects")

	if _, err := workers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "chat.external_user_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"chat.external_user_id": bson.M{"$gt": ""}}),
		},
		{Keys: bson.D{{Key: "object_ids", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create workers indexes: %w", err)
	}

	if _, err := admins.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "external_user_id", Value: 1}}},
		{Keys: bson.D{{Key: "channel_id", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create admins indexes: %w", err)
	}

	return &DirectoryStore{workers: workers, admins: admins, objects: objects}, nil
}

// WorkerByExternalID returns the active worker bound to a chat user, or nil.
func (s *DirectoryStore) WorkerByExternalID(ctx context.Context, externalUserID string) (*model.Worker, error) {
	var w model.Worker
	err := s.workers.FindOne(ctx, bson.M{
		"chat.external_user_id": externalUserID,
		"active":                true,
	}).Decode(&w)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find worker: %w", err)
	}
	return &w, nil
}

func (s *DirectoryStore) Worker(ctx context.Context, id bson.ObjectID) (*model.Worker, error) {
	var w model.Worker
	err := s.workers.FindOne(ctx, bson.M{"_id": id}).Decode(&w)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find worker: %w", err)
	}
	return &w, nil
}

// WorkersForObject returns active, bound workers assigned to the object.
func (s *DirectoryStore) WorkersForObject(ctx context.Context, objectID bson.ObjectID) ([]*model.Worker, error) {
	cursor, err := s.workers.Find(ctx, bson.M{
		"object_ids":   objectID,
		"active":       true,
		"chat.chat_id": bson.M{"$gt": ""},
	})
	if err != nil {
		return nil, fmt.Errorf("find workers: %w", err)
	}
	var results []*model.Worker
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode workers: %w", err)
	}
	return results, nil
}

// BindWorker links an unbound worker to a chat identity and activates it.
func (s *DirectoryStore) BindWorker(ctx context.Context, id bson.ObjectID, chat model.ChatBinding) error {
	now := time.Now()
	chat.BoundAt = &now
	res, err := s.workers.UpdateOne(ctx,
		bson.M{"_id": id, "$or": bson.A{
			bson.M{"chat.external_user_id": bson.M{"$exists": false}},
			bson.M{"chat.external_user_id": ""},
		}},
		bson.M{"$set": bson.M{"chat": chat, "active": true, "updated_at": now}},
	)
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyBound
	}
	if err != nil {
		return fmt.Errorf("bind worker: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrAlreadyBound
	}
	return nil
}

// SetSelectedObject records the object the worker's next clock-in applies to.
func (s *DirectoryStore) SetSelectedObject(ctx context.Context, workerID, objectID bson.ObjectID) error {
	_, err := s.workers.UpdateOne(ctx,
		bson.M{"_id": workerID},
		bson.M{"$set": bson.M{"selected_object_id": objectID, "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("set selected object: %w", err)
	}
	return nil
}

func (s *DirectoryStore) Admin(ctx context.Context, id bson.ObjectID) (*model.Admin, error) {
	var a model.Admin
	err := s.admins.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find admin: %w", err)
	}
	return &a, nil
}

// BoundAdmins returns admins with a notification channel. A nil ids slice means all of them.
func (s *DirectoryStore) BoundAdmins(ctx context.Context, ids []bson.ObjectID) ([]*model.Admin, error) {
	filter := bson.M{"channel_id": bson.M{"$gt": ""}}
	if ids != nil {
		if len(ids) == 0 {
			return nil, nil
		}
		filter["_id"] = bson.M{"$in": ids}
	}
	cursor, err := s.admins.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find admins: %w", err)
	}
	var results []*model.Admin
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode admins: %w", err)
	}
	return results, nil
}

// BindAdmin sets the admin's chat identity and notification channel once.
func (s *DirectoryStore) BindAdmin(ctx context.Context, id bson.ObjectID, externalUserID, channelID string) error {
	res, err := s.admins.UpdateOne(ctx,
		bson.M{"_id": id, "$or": bson.A{
			bson.M{"channel_id": bson.M{"$exists": false}},
			bson.M{"channel_id": ""},
		}},
		bson.M{"$set": bson.M{
			"external_user_id": externalUserID,
			"channel_id":       channelID,
			"updated_at":       time.Now(),
		}},
	)
	if err != nil {
		return fmt.Errorf("bind admin: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrAlreadyBound
	}
	return nil
}

func (s *DirectoryStore) Object(ctx context.Context, id bson.ObjectID) (*model.WorkObject, error) {
	var o model.WorkObject
	err := s.objects.FindOne(ctx, bson.M{"_id": id}).Decode(&o)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find object: %w", err)
	}
	return &o, nil
}

// Objects returns the objects with the given ids, in no particular order.
func (s *DirectoryStore) Objects(ctx context.Context, ids []bson.ObjectID) ([]model.WorkObject, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.objects.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find objects: %w", err)
	}
	var results []model.WorkObject
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode objects: %w", err)
	}
	return results, nil
}

// ScheduledObjects returns objects with a recurring schedule on the given weekday.
func (s *DirectoryStore) ScheduledObjects(ctx context.Context, day time.Weekday) ([]model.WorkObject, error) {
	cursor, err := s.objects.Find(ctx, bson.M{"schedule.weekdays": int(day)})
	if err != nil {
		return nil, fmt.Errorf("find scheduled objects: %w", err)
	}
	var results []model.WorkObject
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode scheduled objects: %w", err)
	}
	return results, nil
}
