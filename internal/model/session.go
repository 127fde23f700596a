package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type SessionStatus string

const (
	SessionStatusOpen           SessionStatus = "open"
	SessionStatusAwaitingPhotos SessionStatus = "awaiting_photos"
	SessionStatusClosed         SessionStatus = "closed"
)

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}

// GeofenceCheck is the result of classifying a ping against an object's geofence.
// InGeofence and Distance are nil when the object has no coordinates.
type GeofenceCheck struct {
	Location   GeoPoint `bson:"location" json:"location"`
	InGeofence *bool    `bson:"in_geofence,omitempty" json:"in_geofence,omitempty"`
	Distance   *float64 `bson:"distance,omitempty" json:"distance,omitempty"`
}

// Violated reports whether the check positively placed the ping outside the fence.
func (g *GeofenceCheck) Violated() bool {
	return g != nil && g.InGeofence != nil && !*g.InGeofence
}

// ShiftSession is one clock-in to clock-out interval. Active is true while EndTime is nil;
// it backs the unique index that allows a single open session per worker.
type ShiftSession struct {
	ID              bson.ObjectID  `bson:"_id,omitempty" json:"id"`
	WorkerID        bson.ObjectID  `bson:"worker_id" json:"worker_id"`
	ObjectID        bson.ObjectID  `bson:"object_id" json:"object_id"`
	Status          SessionStatus  `bson:"status" json:"status"`
	Active          bool           `bson:"active" json:"active"`
	StartTime       time.Time      `bson:"start_time" json:"start_time"`
	EndTime         *time.Time     `bson:"end_time" json:"end_time"`
	Start           GeofenceCheck  `bson:"start" json:"start"`
	End             *GeofenceCheck `bson:"end,omitempty" json:"end,omitempty"`
	DurationMinutes *int           `bson:"duration_minutes,omitempty" json:"duration_minutes,omitempty"`
	CreatedAt       time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `bson:"updated_at" json:"updated_at"`
}

// DurationMinutes is the whole number of minutes between start and end, floored.
func DurationMinutes(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

type PhotoKind string

const (
	PhotoKindStart PhotoKind = "start"
	PhotoKindEnd   PhotoKind = "end"
)

// ShiftPhoto is photo evidence attached to a session.
type ShiftPhoto struct {
	ID         bson.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID  bson.ObjectID `bson:"session_id" json:"session_id"`
	WorkerID   bson.ObjectID `bson:"worker_id" json:"worker_id"`
	ObjectID   bson.ObjectID `bson:"object_id" json:"object_id"`
	Kind       PhotoKind     `bson:"kind" json:"kind"`
	SourceID   string        `bson:"source_id" json:"source_id"`
	StorageKey string        `bson:"storage_key,omitempty" json:"storage_key,omitempty"`
	URL        string        `bson:"url,omitempty" json:"url,omitempty"`
	CreatedAt  time.Time     `bson:"created_at" json:"created_at"`
}
