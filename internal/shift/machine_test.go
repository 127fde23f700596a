package shift

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"crewshift-bot/internal/geo"
	"crewshift-bot/internal/model"
)

const metersPerDegreeLat = geo.EarthRadius * 3.141592653589793 / 180

func testObject(name string, radius float64, photos bool) model.WorkObject {
	lat, lon := 55.0, 37.0
	return model.WorkObject{
		ID:             bson.NewObjectID(),
		Name:           name,
		Latitude:       &lat,
		Longitude:      &lon,
		GeofenceRadius: radius,
		RequiresPhotos: photos,
	}
}

// northOf returns a point the given number of meters due north of obj.
func northOf(obj model.WorkObject, meters float64) *model.GeoPoint {
	return &model.GeoPoint{Latitude: *obj.Latitude + meters/metersPerDegreeLat, Longitude: *obj.Longitude}
}

func expectRejection(t *testing.T, err error, code string) {
	t.Helper()
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected rejection %s, got %v", code, err)
	}
	if rej.Code != code {
		t.Fatalf("expected rejection %s, got %s", code, rej.Code)
	}
}

func TestUnknownWorkerIsRejected(t *testing.T) {
	for _, typ := range []EventType{EventStart, EventEnd, EventLocation, EventPhoto, EventFinish, EventSelectObject} {
		_, err := Decide(Context{Now: time.Now()}, Event{Type: typ, Location: &model.GeoPoint{}})
		expectRejection(t, err, RejectAccountNotFound)
	}
}

func TestStartRequest(t *testing.T) {
	worker := &model.Worker{ID: bson.NewObjectID()}
	a := testObject("A", 50, false)
	b := testObject("B", 50, false)

	_, err := Decide(Context{Worker: worker}, Event{Type: EventStart})
	expectRejection(t, err, RejectNoObjects)

	d, err := Decide(Context{Worker: worker, Objects: []model.WorkObject{a}}, Event{Type: EventStart})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Select == nil || d.Select.ID != a.ID || d.Prompt != PromptLocation {
		t.Fatalf("expected auto-select of the only object with a location prompt, got %+v", d)
	}

	d, err = Decide(Context{Worker: worker, Objects: []model.WorkObject{a, b}}, Event{Type: EventStart})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Select != nil || d.Prompt != PromptObjectChoice || len(d.Choices) != 2 {
		t.Fatalf("expected object choice prompt, got %+v", d)
	}

	d, err = Decide(Context{Worker: worker, Objects: []model.WorkObject{a, b}}, Event{Type: EventSelectObject, ObjectID: b.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Select == nil || d.Select.ID != b.ID || d.Prompt != PromptLocation {
		t.Fatalf("expected selection of B, got %+v", d)
	}

	_, err = Decide(Context{Worker: worker, Objects: []model.WorkObject{a}}, Event{Type: EventSelectObject, ObjectID: b.ID})
	expectRejection(t, err, RejectUnknownObject)

	open := &model.ShiftSession{Active: true, Status: model.SessionStatusOpen}
	_, err = Decide(Context{Worker: worker, Session: open, Objects: []model.WorkObject{a}}, Event{Type: EventStart})
	expectRejection(t, err, RejectAlreadyActive)
	_, err = Decide(Context{Worker: worker, Session: open, Objects: []model.WorkObject{a}}, Event{Type: EventSelectObject, ObjectID: a.ID})
	expectRejection(t, err, RejectAlreadyActive)
}

func TestClockInRequiresSelectedObject(t *testing.T) {
	worker := &model.Worker{ID: bson.NewObjectID()}
	a := testObject("A", 50, false)
	_, err := Decide(Context{Worker: worker, Objects: []model.WorkObject{a}}, Event{Type: EventLocation, Location: northOf(a, 1)})
	expectRejection(t, err, RejectSelectObjectFirst)

	// A stale selection of an object the worker no longer has is not usable either.
	other := testObject("Other", 50, false)
	_, err = Decide(Context{Worker: worker, Objects: []model.WorkObject{a}, Object: &other}, Event{Type: EventLocation, Location: northOf(a, 1)})
	expectRejection(t, err, RejectSelectObjectFirst)
}

func TestLocationWithoutCoordinatesIsAnError(t *testing.T) {
	worker := &model.Worker{ID: bson.NewObjectID()}
	_, err := Decide(Context{Worker: worker}, Event{Type: EventLocation})
	if !errors.Is(err, ErrMissingLocation) {
		t.Fatalf("expected ErrMissingLocation, got %v", err)
	}
}

func TestScenarioWithoutPhotos(t *testing.T) {
	worker := &model.Worker{ID: bson.NewObjectID()}
	obj := testObject("O", 50, false)
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	d, err := Decide(Context{Now: t0, Worker: worker, Objects: []model.WorkObject{obj}}, Event{Type: EventStart})
	if err != nil || d.Select == nil || d.Select.ID != obj.ID {
		t.Fatalf("expected auto-select, got %+v err=%v", d, err)
	}

	d, err = Decide(Context{Now: t0, Worker: worker, Objects: []model.WorkObject{obj}, Object: &obj}, Event{Type: EventLocation, Location: northOf(obj, 30)})
	if err != nil {
		t.Fatalf("clock-in failed: %v", err)
	}
	if d.Open == nil || d.Next != StateOpen {
		t.Fatalf("expected session to open, got %+v", d)
	}
	if d.Open.Start.InGeofence == nil || !*d.Open.Start.InGeofence {
		t.Fatalf("expected start inside geofence, got %+v", d.Open.Start)
	}
	if !d.ShowTasks {
		t.Fatalf("expected today's tasks to be shown on clock-in")
	}
	if len(d.Notices) != 1 || d.Notices[0].Kind != NoticeShiftStarted {
		t.Fatalf("expected only a start notice, got %+v", d.Notices)
	}

	session := d.Open
	session.ID = bson.NewObjectID()
	t1 := t0.Add(90 * time.Minute)
	d, err = Decide(Context{Now: t1, Worker: worker, Session: session, Objects: []model.WorkObject{obj}, Object: &obj}, Event{Type: EventLocation, Location: northOf(obj, 400)})
	if err != nil {
		t.Fatalf("clock-out failed: %v", err)
	}
	if d.Close == nil || d.Next != StateClosed {
		t.Fatalf("expected session to close, got %+v", d)
	}
	if d.Close.DurationMinutes != 90 {
		t.Fatalf("expected duration 90, got %d", d.Close.DurationMinutes)
	}
	if d.Close.End.InGeofence == nil || *d.Close.End.InGeofence {
		t.Fatalf("expected end outside geofence, got %+v", d.Close.End)
	}
	if !d.Close.EndTime.Equal(t1) {
		t.Fatalf("expected end time %s, got %s", t1, d.Close.EndTime)
	}
	kinds := []NoticeKind{}
	for _, n := range d.Notices {
		kinds = append(kinds, n.Kind)
	}
	if len(kinds) != 2 || kinds[0] != NoticeGeofenceViolation || kinds[1] != NoticeShiftEnded {
		t.Fatalf("expected violation then end notice, got %v", kinds)
	}
}

func TestScenarioWithPhotos(t *testing.T) {
	worker := &model.Worker{ID: bson.NewObjectID()}
	obj := testObject("O2", 100, true)
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	session := &model.ShiftSession{
		ID:        bson.NewObjectID(),
		WorkerID:  worker.ID,
		ObjectID:  obj.ID,
		Status:    model.SessionStatusOpen,
		Active:    true,
		StartTime: t0,
	}

	ping := t0.Add(60 * time.Minute)
	d, err := Decide(Context{Now: ping, Worker: worker, Session: session, Objects: []model.WorkObject{obj}, Object: &obj}, Event{Type: EventLocation, Location: northOf(obj, 10)})
	if err != nil {
		t.Fatalf("clock-out ping failed: %v", err)
	}
	if d.Close != nil || d.RecordEnd == nil || d.Next != StateAwaitingPhotos || d.Prompt != PromptPhotos {
		t.Fatalf("expected awaiting photos without closing, got %+v", d)
	}
	if len(d.Notices) != 0 {
		t.Fatalf("expected no notices while awaiting photos, got %+v", d.Notices)
	}

	// Apply the update the way the store does.
	end := d.RecordEnd.End
	session.End = &end
	session.Status = model.SessionStatusAwaitingPhotos
	if StateOf(session) != StateAwaitingPhotos {
		t.Fatalf("expected awaiting photos state")
	}

	d, err = Decide(Context{Now: ping.Add(time.Minute), Worker: worker, Session: session, Objects: []model.WorkObject{obj}, Object: &obj}, Event{Type: EventPhoto, PhotoIDs: []string{"f1", "f2"}})
	if err != nil || len(d.StorePhotos) != 2 || d.Next != StateAwaitingPhotos {
		t.Fatalf("expected photos stored without transition, got %+v err=%v", d, err)
	}

	finish := t0.Add(75 * time.Minute)
	d, err = Decide(Context{Now: finish, Worker: worker, Session: session, Objects: []model.WorkObject{obj}, Object: &obj}, Event{Type: EventFinish})
	if err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	if d.Close == nil || d.Next != StateClosed {
		t.Fatalf("expected close, got %+v", d)
	}
	if d.Close.DurationMinutes != 75 {
		t.Fatalf("expected duration from start to finish (75), got %d", d.Close.DurationMinutes)
	}
	if d.Close.End != session.End {
		t.Fatalf("expected previously recorded end location to be reused")
	}
	if !d.Close.EndTime.Equal(finish) {
		t.Fatalf("expected end time at finish, got %s", d.Close.EndTime)
	}
}

func TestFinishAndEndWithoutSession(t *testing.T) {
	worker := &model.Worker{ID: bson.NewObjectID()}
	_, err := Decide(Context{Worker: worker}, Event{Type: EventFinish})
	expectRejection(t, err, RejectAlreadyFinished)
	_, err = Decide(Context{Worker: worker}, Event{Type: EventEnd})
	expectRejection(t, err, RejectNoActiveSession)
	_, err = Decide(Context{Worker: worker}, Event{Type: EventPhoto, PhotoIDs: []string{"x"}})
	expectRejection(t, err, RejectPhotosNotExpected)

	now := time.Now()
	closed := &model.ShiftSession{Active: false, Status: model.SessionStatusClosed, EndTime: &now}
	_, err = Decide(Context{Worker: worker, Session: closed}, Event{Type: EventFinish})
	expectRejection(t, err, RejectAlreadyFinished)
}

func TestEndRequestWhileOpenPromptsLocation(t *testing.T) {
	worker := &model.Worker{ID: bson.NewObjectID()}
	open := &model.ShiftSession{Active: true, Status: model.SessionStatusOpen}
	d, err := Decide(Context{Worker: worker, Session: open}, Event{Type: EventEnd})
	if err != nil || d.Prompt != PromptLocation || d.Mutates() {
		t.Fatalf("expected location prompt without mutation, got %+v err=%v", d, err)
	}
	d, err = Decide(Context{Worker: worker, Session: open}, Event{Type: EventFinish})
	if err != nil || d.Prompt != PromptLocation || d.Mutates() {
		t.Fatalf("expected finish on open session to ask for location, got %+v err=%v", d, err)
	}
}

func TestCheckLocationWithoutCoordinates(t *testing.T) {
	obj := model.WorkObject{ID: bson.NewObjectID()}
	check := CheckLocation(&obj, model.GeoPoint{Latitude: 1, Longitude: 1}, 100)
	if check.InGeofence != nil || check.Distance != nil || check.Violated() {
		t.Fatalf("expected unclassified check, got %+v", check)
	}
}

func TestCheckLocationUsesDefaultRadius(t *testing.T) {
	obj := testObject("O", 0, false)
	check := CheckLocation(&obj, *northOf(obj, 90), 0)
	if check.InGeofence == nil || !*check.InGeofence {
		t.Fatalf("expected 90m to be inside the 100m default radius")
	}
	check = CheckLocation(&obj, *northOf(obj, 110), 0)
	if !check.Violated() {
		t.Fatalf("expected 110m to violate the 100m default radius")
	}
}

// Random interleavings of events never leave a worker with two open sessions and never
// reopen a closed one.
func TestAtMostOneOpenSession(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	worker := &model.Worker{ID: bson.NewObjectID()}
	objects := []model.WorkObject{testObject("A", 50, false), testObject("B", 50, true)}
	events := []EventType{EventStart, EventEnd, EventLocation, EventPhoto, EventSelectObject, EventFinish}

	var sessions []*model.ShiftSession
	var selected *model.WorkObject
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5000; i++ {
		now = now.Add(time.Duration(rng.Intn(120)) * time.Minute)
		var open *model.ShiftSession
		for _, s := range sessions {
			if s.Active {
				open = s
			}
		}
		c := Context{Now: now, Worker: worker, Session: open, Objects: objects, Object: selected}
		if open != nil {
			for j := range objects {
				if objects[j].ID == open.ObjectID {
					c.Object = &objects[j]
				}
			}
		}
		obj := objects[rng.Intn(len(objects))]
		ev := Event{
			Type:     events[rng.Intn(len(events))],
			Location: northOf(obj, float64(rng.Intn(500))),
			ObjectID: obj.ID,
			PhotoIDs: []string{"p"},
		}

		d, err := Decide(c, ev)
		if err != nil {
			var rej *Rejection
			if !errors.As(err, &rej) {
				t.Fatalf("unexpected error: %v", err)
			}
			continue
		}
		if d.Select != nil {
			selected = d.Select
		}
		if d.Open != nil {
			if open != nil {
				t.Fatalf("step %d: opened a session while one is open", i)
			}
			s := *d.Open
			sessions = append(sessions, &s)
		}
		if d.RecordEnd != nil {
			end := d.RecordEnd.End
			open.End = &end
			open.Status = model.SessionStatusAwaitingPhotos
		}
		if d.Close != nil {
			if open == nil || !open.Active {
				t.Fatalf("step %d: closed a session that is not open", i)
			}
			endTime := d.Close.EndTime
			open.EndTime = &endTime
			open.Active = false
			open.Status = model.SessionStatusClosed
			if got := model.DurationMinutes(open.StartTime, endTime); got != d.Close.DurationMinutes {
				t.Fatalf("step %d: duration %d, want %d", i, d.Close.DurationMinutes, got)
			}
		}

		active := 0
		for _, s := range sessions {
			if s.EndTime == nil {
				active++
			}
		}
		if active > 1 {
			t.Fatalf("step %d: %d open sessions", i, active)
		}
	}
	if len(sessions) == 0 {
		t.Fatalf("expected the random walk to open at least one session")
	}
}

func TestLocationWhileAwaitingPhotosReplacesEnd(t *testing.T) {
	worker := &model.Worker{ID: bson.NewObjectID()}
	obj := testObject("O3", 100, true)
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	first := CheckLocation(&obj, *northOf(obj, 10), 0)
	session := &model.ShiftSession{
		ID:        bson.NewObjectID(),
		WorkerID:  worker.ID,
		ObjectID:  obj.ID,
		Status:    model.SessionStatusAwaitingPhotos,
		Active:    true,
		StartTime: t0,
		End:       &first,
	}

	c := Context{Now: t0.Add(70 * time.Minute), Worker: worker, Session: session, Objects: []model.WorkObject{obj}, Object: &obj}
	d, err := Decide(c, Event{Type: EventLocation, Location: northOf(obj, 500)})
	if err != nil {
		t.Fatalf("relocate: %v", err)
	}
	if d.RecordEnd == nil || d.Close != nil || d.Next != StateAwaitingPhotos {
		t.Fatalf("expected the end re-recorded without closing, got %+v", d)
	}
	if d.RecordEnd.DurationMinutes != 70 {
		t.Fatalf("expected 70 minutes, got %d", d.RecordEnd.DurationMinutes)
	}
	if !d.RecordEnd.End.Violated() {
		t.Fatalf("expected the new end outside the geofence")
	}
	if len(d.Notices) != 0 || d.Reply != nil || d.Prompt != PromptNone {
		t.Fatalf("expected no notices, reply or prompt, got %+v", d)
	}
}
