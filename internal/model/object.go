package model

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Schedule is the recurring work window of an object. StartTime/EndTime are "HH:MM" local time.
type Schedule struct {
	Weekdays  []time.Weekday `bson:"weekdays" json:"weekdays"`
	StartTime string         `bson:"start_time" json:"start_time"`
	EndTime   string         `bson:"end_time" json:"end_time"`
}

// Includes reports whether the schedule runs on the given weekday.
func (s Schedule) Includes(day time.Weekday) bool {
	for _, d := range s.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// StartOn returns the scheduled start on the calendar day of date, in date's location.
func (s Schedule) StartOn(date time.Time) (time.Time, error) {
	clock, err := time.Parse("15:04", s.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start time %q: %w", s.StartTime, err)
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, date.Location()), nil
}

type PayConfig struct {
	Type   string  `bson:"type" json:"type"` // "hourly" or "shift"
	Amount float64 `bson:"amount" json:"amount"`
}

type WorkObject struct {
	ID             bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name           string          `bson:"name" json:"name"`
	Address        string          `bson:"address" json:"address"`
	Latitude       *float64        `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude      *float64        `bson:"longitude,omitempty" json:"longitude,omitempty"`
	GeofenceRadius float64         `bson:"geofence_radius,omitempty" json:"geofence_radius,omitempty"` // meters, 0 = default
	Schedule       *Schedule       `bson:"schedule,omitempty" json:"schedule,omitempty"`
	Pay            *PayConfig      `bson:"pay,omitempty" json:"pay,omitempty"`
	RequiresPhotos bool            `bson:"requires_photos" json:"requires_photos"`
	OwnerIDs       []bson.ObjectID `bson:"owner_ids" json:"owner_ids"`
	CreatedBy      *bson.ObjectID  `bson:"created_by,omitempty" json:"created_by,omitempty"`
	CreatedAt      time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `bson:"updated_at" json:"updated_at"`
}

// HasCoordinates reports whether a geofence center is configured.
func (o *WorkObject) HasCoordinates() bool {
	return o.Latitude != nil && o.Longitude != nil
}
