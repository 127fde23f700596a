package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ObjectTask is a piece of work at an object. Weekdays (recurring) and Dates (one-off, YYYY-MM-DD)
// are mutually exclusive; a task with neither is always due.
type ObjectTask struct {
	ID          bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	ObjectID    bson.ObjectID  `bson:"object_id" json:"object_id"`
	Title       string         `bson:"title" json:"title"`
	Description string         `bson:"description,omitempty" json:"description,omitempty"`
	Weekdays    []time.Weekday `bson:"weekdays,omitempty" json:"weekdays,omitempty"`
	Dates       []string       `bson:"dates,omitempty" json:"dates,omitempty"`
	IsSpecial   bool           `bson:"is_special" json:"is_special"`
	DeletedAt   *time.Time     `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	CreatedAt   time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at" json:"updated_at"`
}

// DueOn reports whether the task is scheduled on the calendar day of date.
func (t *ObjectTask) DueOn(date time.Time) bool {
	switch {
	case len(t.Weekdays) > 0:
		day := date.Weekday()
		for _, d := range t.Weekdays {
			if d == day {
				return true
			}
		}
		return false
	case len(t.Dates) > 0:
		key := date.Format(time.DateOnly)
		for _, d := range t.Dates {
			if d == key {
				return true
			}
		}
		return false
	default:
		return true
	}
}
