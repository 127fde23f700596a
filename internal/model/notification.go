package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	NotificationForgotEnd      = "forgot_end_reminder"
	NotificationUpcomingShift  = "upcoming_shift_reminder"
	NotificationSpecialEvening = "special_task_evening"
	NotificationSpecialMorning = "special_task_morning"
)

// NotificationLogEntry records a sent reminder so the same one is not repeated within a window.
type NotificationLogEntry struct {
	ID      bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Type    string        `bson:"type" json:"type"`
	Subject string        `bson:"subject" json:"subject"`
	SentAt  time.Time     `bson:"sent_at" json:"sent_at"`
}
