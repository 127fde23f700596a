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

type SessionStore struct {
	sessions *mongo.Collection
	photos   *mongo.Collection
}

func NewSessionStore(ctx context.Context, db *MongoDB) (*SessionStore, error) {
	sessions := db.Collection("shift_sessions")
	photos := db.Collection("shift_photos")

	if _, err := sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// One open session per worker.
			Keys: bson.D{{Key: "worker_id", Value: 1}},
			Options: options.Index().
				SetName("one_open_session_per_worker").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{Keys: bson.D{{Key: "worker_id", Value: 1}, {Key: "start_time", Value: -1}}},
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "start_time", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create shift_sessions indexes: %w", err)
	}

	if _, err := photos.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}}},
	}); err != nil {
		return nil, fmt.Errorf("create shift_photos indexes: %w", err)
	}

	return &SessionStore{sessions: sessions, photos: photos}, nil
}

// FindOpenSession returns the worker's open session, or nil if there is none.
func (s *SessionStore) FindOpenSession(ctx context.Context, workerID bson.ObjectID) (*model.ShiftSession, error) {
	var sess model.ShiftSession
	err := s.sessions.FindOne(ctx, bson.M{
		"worker_id": workerID,
		"active":    true,
	}).Decode(&sess)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	return &sess, nil
}

// CreateSession inserts a new open session and sets the ID on the struct.
// The unique partial index turns a concurrent second clock-in into ErrSessionExists.
func (s *SessionStore) CreateSession(ctx context.Context, sess *model.ShiftSession) error {
	sess.CreatedAt = time.Now()
	sess.UpdatedAt = sess.CreatedAt
	res, err := s.sessions.InsertOne(ctx, sess)
	if mongo.IsDuplicateKeyError(err) {
		return ErrSessionExists
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	sess.ID = res.InsertedID.(bson.ObjectID)
	return nil
}

// RecordEnd stores the clock-out ping of a session awaiting photo evidence. The end time stays null.
func (s *SessionStore) RecordEnd(ctx context.Context, id bson.ObjectID, end model.GeofenceCheck, durationMinutes int) error {
	return s.updateOpen(ctx, id, bson.M{
		"status":           model.SessionStatusAwaitingPhotos,
		"end":              end,
		"duration_minutes": durationMinutes,
	})
}

// CloseSession sets the end time on a session that is still open. A second close of the
// same session fails with ErrSessionNotOpen.
func (s *SessionStore) CloseSession(ctx context.Context, id bson.ObjectID, endTime time.Time, end *model.GeofenceCheck, durationMinutes int) error {
	fields := bson.M{
		"status":           model.SessionStatusClosed,
		"active":           false,
		"end_time":         endTime,
		"duration_minutes": durationMinutes,
	}
	if end != nil {
		fields["end"] = end
	}
	return s.updateOpen(ctx, id, fields)
}

func (s *SessionStore) updateOpen(ctx context.Context, id bson.ObjectID, fields bson.M) error {
	fields["updated_at"] = time.Now()
	res, err := s.sessions.UpdateOne(ctx,
		bson.M{"_id": id, "active": true, "end_time": nil},
		bson.M{"$set": fields},
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrSessionNotOpen
	}
	return nil
}

// ListSessionsForWorker returns the worker's sessions, newest first.
func (s *SessionStore) ListSessionsForWorker(ctx context.Context, workerID bson.ObjectID, limit int64) ([]*model.ShiftSession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := s.sessions.Find(ctx, bson.M{"worker_id": workerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	var results []*model.ShiftSession
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return results, nil
}

// ListOpenSessionsStartedBefore returns open sessions whose start time is older than t.
func (s *SessionStore) ListOpenSessionsStartedBefore(ctx context.Context, t time.Time) ([]*model.ShiftSession, error) {
	cursor, err := s.sessions.Find(ctx, bson.M{
		"active":     true,
		"start_time": bson.M{"$lt": t},
	})
	if err != nil {
		return nil, fmt.Errorf("find open sessions: %w", err)
	}
	var results []*model.ShiftSession
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("decode open sessions: %w", err)
	}
	return results, nil
}

// AddPhoto records photo evidence for a session and sets the ID on the struct.
func (s *SessionStore) AddPhoto(ctx context.Context, photo *model.ShiftPhoto) error {
	if photo.Kind == "" {
		photo.Kind = model.PhotoKindEnd
	}
	photo.CreatedAt = time.Now()
	res, err := s.photos.InsertOne(ctx, photo)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}
	photo.ID = res.InsertedID.(bson.ObjectID)
	return nil
}
