package shift

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"crewshift-bot/internal/geo"
	"crewshift-bot/internal/model"
)

type EventType string

const (
	EventStart        EventType = "start"
	EventEnd          EventType = "end"
	EventLocation     EventType = "location"
	EventPhoto        EventType = "photo"
	EventSelectObject EventType = "select_object"
	EventFinish       EventType = "finish"
)

// Event is an inbound worker action, already resolved from its transport.
type Event struct {
	Type     EventType
	Location *model.GeoPoint
	ObjectID bson.ObjectID
	PhotoIDs []string
}

// Context is the state Decide works from.
type Context struct {
	Now     time.Time
	Worker  *model.Worker
	Session *model.ShiftSession
	// Objects are the worker's assigned objects.
	Objects []model.WorkObject
	// Object is the session's object when a session is open, otherwise the selected object.
	Object        *model.WorkObject
	DefaultRadius float64
}

type Prompt int

const (
	PromptNone Prompt = iota
	PromptLocation
	PromptObjectChoice
	PromptPhotos
)

type NoticeKind string

const (
	NoticeShiftStarted      NoticeKind = "shift_started"
	NoticeShiftEnded        NoticeKind = "shift_ended"
	NoticeGeofenceViolation NoticeKind = "geofence_violation"
)

type Phase string

const (
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
)

// Notice is a supervisor notification to fan out after the decision is persisted.
type Notice struct {
	Kind            NoticeKind
	Phase           Phase
	Check           *model.GeofenceCheck
	DurationMinutes int
}

// Reply is a message to the worker.
type Reply struct {
	MessageID string
	Data      map[string]any
}

// EndUpdate records the clock-out ping while photo evidence is pending. EndTime stays null.
type EndUpdate struct {
	End             model.GeofenceCheck
	DurationMinutes int
}

// CloseUpdate closes the open session.
type CloseUpdate struct {
	EndTime         time.Time
	End             *model.GeofenceCheck
	DurationMinutes int
}

type Decision struct {
	From        State
	Next        State
	Select      *model.WorkObject
	Prompt      Prompt
	Choices     []model.WorkObject
	Open        *model.ShiftSession
	RecordEnd   *EndUpdate
	Close       *CloseUpdate
	StorePhotos []string
	ShowTasks   bool
	Notices     []Notice
	Reply       *Reply
}

// Mutates reports whether the decision writes to the session store.
func (d Decision) Mutates() bool {
	return d.Open != nil || d.RecordEnd != nil || d.Close != nil
}

var ErrMissingLocation = errors.New("location event without coordinates")

// Decide computes the next state and the effects of ev. A *Rejection error means the event
// was refused for a user-visible reason.
func Decide(c Context, ev Event) (Decision, error) {
	if c.Worker == nil {
		return Decision{}, reject(RejectAccountNotFound)
	}
	from := StateOf(c.Session)
	d := Decision{From: from, Next: from}

	switch ev.Type {
	case EventStart:
		return decideStart(c, d)
	case EventSelectObject:
		return decideSelect(c, d, ev.ObjectID)
	case EventLocation:
		if ev.Location == nil {
			return Decision{}, ErrMissingLocation
		}
		switch from {
		case StateNoSession:
			return decideClockIn(c, d, *ev.Location)
		case StateAwaitingPhotos:
			return decideRelocate(c, d, *ev.Location)
		}
		return decideClockOut(c, d, *ev.Location)
	case EventEnd:
		return decideEnd(c, d)
	case EventPhoto:
		return decidePhoto(c, d, ev.PhotoIDs)
	case EventFinish:
		return decideFinish(c, d)
	default:
		return Decision{}, errors.New("unknown event type: " + string(ev.Type))
	}
}

func decideStart(c Context, d Decision) (Decision, error) {
	if d.From != StateNoSession {
		return Decision{}, reject(RejectAlreadyActive)
	}
	switch len(c.Objects) {
	case 0:
		return Decision{}, reject(RejectNoObjects)
	case 1:
		obj := c.Objects[0]
		d.Select = &obj
		d.Prompt = PromptLocation
		d.Reply = &Reply{MessageID: "object_selected", Data: map[string]any{"Object": obj.Name}}
	default:
		d.Prompt = PromptObjectChoice
		d.Choices = c.Objects
		d.Reply = &Reply{MessageID: "choose_object"}
	}
	return d, nil
}

func decideSelect(c Context, d Decision, objectID bson.ObjectID) (Decision, error) {
	if d.From != StateNoSession {
		return Decision{}, reject(RejectAlreadyActive)
	}
	obj := findObject(c.Objects, objectID)
	if obj == nil {
		return Decision{}, reject(RejectUnknownObject)
	}
	d.Select = obj
	d.Prompt = PromptLocation
	d.Reply = &Reply{MessageID: "object_selected", Data: map[string]any{"Object": obj.Name}}
	return d, nil
}

func decideClockIn(c Context, d Decision, loc model.GeoPoint) (Decision, error) {
	if c.Object == nil || findObject(c.Objects, c.Object.ID) == nil {
		return Decision{}, reject(RejectSelectObjectFirst)
	}
	check := CheckLocation(c.Object, loc, c.DefaultRadius)

	d.Open = &model.ShiftSession{
		WorkerID:  c.Worker.ID,
		ObjectID:  c.Object.ID,
		Status:    model.SessionStatusOpen,
		Active:    true,
		StartTime: c.Now,
		Start:     check,
	}
	d.Next = StateOpen
	d.ShowTasks = true
	if check.Violated() {
		d.Notices = append(d.Notices, Notice{Kind: NoticeGeofenceViolation, Phase: PhaseStart, Check: &check})
	}
	d.Notices = append(d.Notices, Notice{Kind: NoticeShiftStarted, Phase: PhaseStart, Check: &check})
	d.Reply = &Reply{MessageID: "shift_started", Data: map[string]any{
		"Object": c.Object.Name,
		"Time":   c.Now.Format("15:04"),
	}}
	return d, nil
}

func decideClockOut(c Context, d Decision, loc model.GeoPoint) (Decision, error) {
	check := CheckLocation(c.Object, loc, c.DefaultRadius)
	minutes := model.DurationMinutes(c.Session.StartTime, c.Now)

	if check.Violated() {
		d.Notices = append(d.Notices, Notice{Kind: NoticeGeofenceViolation, Phase: PhaseEnd, Check: &check})
	}

	if c.Object != nil && c.Object.RequiresPhotos {
		d.RecordEnd = &EndUpdate{End: check, DurationMinutes: minutes}
		d.Next = StateAwaitingPhotos
		d.Prompt = PromptPhotos
		d.Reply = &Reply{MessageID: "photos_required"}
		return d, nil
	}

	d.Close = &CloseUpdate{EndTime: c.Now, End: &check, DurationMinutes: minutes}
	d.Next = StateClosed
	d.Notices = append(d.Notices, Notice{Kind: NoticeShiftEnded, Phase: PhaseEnd, Check: &check, DurationMinutes: minutes})
	d.Reply = endedReply(minutes)
	return d, nil
}

// decideRelocate replaces the recorded end while photos are pending. Supervisors were already told
// about the first clock-out ping.
func decideRelocate(c Context, d Decision, loc model.GeoPoint) (Decision, error) {
	check := CheckLocation(c.Object, loc, c.DefaultRadius)
	d.RecordEnd = &EndUpdate{End: check, DurationMinutes: model.DurationMinutes(c.Session.StartTime, c.Now)}
	return d, nil
}

func decideEnd(c Context, d Decision) (Decision, error) {
	switch d.From {
	case StateOpen:
		d.Prompt = PromptLocation
		d.Reply = &Reply{MessageID: "share_location_to_finish"}
		return d, nil
	case StateAwaitingPhotos:
		d.Prompt = PromptPhotos
		d.Reply = &Reply{MessageID: "photos_required"}
		return d, nil
	default:
		return Decision{}, reject(RejectNoActiveSession)
	}
}

func decidePhoto(c Context, d Decision, photoIDs []string) (Decision, error) {
	if d.From != StateAwaitingPhotos {
		return Decision{}, reject(RejectPhotosNotExpected)
	}
	if len(photoIDs) == 0 {
		return d, nil
	}
	d.StorePhotos = photoIDs
	d.Reply = &Reply{MessageID: "photos_received", Data: map[string]any{"Count": len(photoIDs)}}
	return d, nil
}

func decideFinish(c Context, d Decision) (Decision, error) {
	switch d.From {
	case StateAwaitingPhotos:
		// Duration runs to the finish time, not to the clock-out ping.
		minutes := model.DurationMinutes(c.Session.StartTime, c.Now)
		d.Close = &CloseUpdate{EndTime: c.Now, End: c.Session.End, DurationMinutes: minutes}
		d.Next = StateClosed
		d.Notices = append(d.Notices, Notice{Kind: NoticeShiftEnded, Phase: PhaseEnd, Check: c.Session.End, DurationMinutes: minutes})
		d.Reply = endedReply(minutes)
		return d, nil
	case StateOpen:
		d.Prompt = PromptLocation
		d.Reply = &Reply{MessageID: "share_location_to_finish"}
		return d, nil
	default:
		return Decision{}, reject(RejectAlreadyFinished)
	}
}

// CheckLocation classifies loc against obj's geofence. Objects without coordinates yield an
// unclassified check.
func CheckLocation(obj *model.WorkObject, loc model.GeoPoint, defaultRadius float64) model.GeofenceCheck {
	check := model.GeofenceCheck{Location: loc}
	if obj == nil || !obj.HasCoordinates() {
		return check
	}
	distance := geo.Distance(*obj.Latitude, *obj.Longitude, loc.Latitude, loc.Longitude)
	inside := geo.WithinGeofence(distance, geo.RadiusOr(obj.GeofenceRadius, defaultRadius))
	check.Distance = &distance
	check.InGeofence = &inside
	return check
}

func findObject(objects []model.WorkObject, id bson.ObjectID) *model.WorkObject {
	for i := range objects {
		if objects[i].ID == id {
			obj := objects[i]
			return &obj
		}
	}
	return nil
}

func endedReply(minutes int) *Reply {
	return &Reply{MessageID: "shift_ended", Data: map[string]any{
		"Hours":   minutes / 60,
		"Minutes": minutes % 60,
	}}
}
