package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ChatBinding links a record to a chat identity. It is set once, at activation.
type ChatBinding struct {
	ExternalUserID string     `bson:"external_user_id" json:"external_user_id"`
	ChatID         string     `bson:"chat_id" json:"chat_id"`
	Username       string     `bson:"username" json:"username"`
	BoundAt        *time.Time `bson:"bound_at,omitempty" json:"bound_at,omitempty"`
}

// Bound reports whether the chat identity has been attached.
func (b ChatBinding) Bound() bool {
	return b.ExternalUserID != "" && b.ChatID != ""
}

type Worker struct {
	ID               bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name             string          `bson:"name" json:"name"`
	Chat             ChatBinding     `bson:"chat" json:"chat"`
	ObjectIDs        []bson.ObjectID `bson:"object_ids" json:"object_ids"`
	SelectedObjectID *bson.ObjectID  `bson:"selected_object_id,omitempty" json:"selected_object_id,omitempty"`
	CreatedBy        *bson.ObjectID  `bson:"created_by,omitempty" json:"created_by,omitempty"`
	Active           bool            `bson:"active" json:"active"`
	CreatedAt        time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `bson:"updated_at" json:"updated_at"`
}

// DisplayName prefers the chat username, falling back to the configured name.
func (w *Worker) DisplayName() string {
	if w.Chat.Username != "" {
		return "@" + w.Chat.Username
	}
	return w.Name
}

// Admin is a supervisor who receives worker notifications.
// ChannelID is opaque: no assumption is made about how it relates to the chat user id.
type Admin struct {
	ID             bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string        `bson:"name" json:"name"`
	ExternalUserID string        `bson:"external_user_id,omitempty" json:"external_user_id,omitempty"`
	ChannelID      string        `bson:"channel_id,omitempty" json:"channel_id,omitempty"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updated_at"`
}
