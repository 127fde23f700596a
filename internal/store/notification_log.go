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

// NotificationLog is the dedup log for reminders.
type NotificationLog struct {
	coll *mongo.Collection
}

func NewNotificationLog(ctx context.Context, db *MongoDB, retention time.Duration) (*NotificationLog, error) {
	coll := db.Collection("notification_log")

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "subject", Value: 1}, {Key: "sent_at", Value: -1}}},
	}
	if retention > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "sent_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retention.Seconds())),
		})
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("create notification_log indexes: %w", err)
	}

	return &NotificationLog{coll: coll}, nil
}

// HasRecent reports whether a reminder of this type was sent for subject within the window.
func (l *NotificationLog) HasRecent(ctx context.Context, typ, subject string, within time.Duration) (bool, error) {
	n, err := l.coll.CountDocuments(ctx, bson.M{
		"type":    typ,
		"subject": subject,
		"sent_at": bson.M{"$gte": time.Now().Add(-within)},
	})
	if err != nil {
		return false, fmt.Errorf("count notification log: %w", err)
	}
	return n > 0, nil
}

func (l *NotificationLog) Record(ctx context.Context, typ, subject string) error {
	_, err := l.coll.InsertOne(ctx, &model.NotificationLogEntry{
		Type:    typ,
		Subject: subject,
		SentAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}
