package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"crewshift-bot/internal/mattermost"
	"crewshift-bot/internal/model"
	"crewshift-bot/internal/store"
)

var errDelivery = errors.New("delivery failed")

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[bson.ObjectID]*model.ShiftSession
	photos   []*model.ShiftPhoto
	// createErr is returned by the next CreateSession call.
	createErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[bson.ObjectID]*model.ShiftSession{}}
}

func (f *fakeSessions) FindOpenSession(_ context.Context, workerID bson.ObjectID) (*model.ShiftSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.WorkerID == workerID && s.Active {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeSessions) CreateSession(_ context.Context, sess *model.ShiftSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		err := f.createErr
		f.createErr = nil
		return err
	}
	for _, s := range f.sessions {
		if s.WorkerID == sess.WorkerID && s.Active {
			return store.ErrSessionExists
		}
	}
	sess.ID = bson.NewObjectID()
	cp := *sess
	f.sessions[sess.ID] = &cp
	return nil
}

func (f *fakeSessions) RecordEnd(_ context.Context, id bson.ObjectID, end model.GeofenceCheck, durationMinutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || !s.Active || s.EndTime != nil {
		return store.ErrSessionNotOpen
	}
	s.Status = model.SessionStatusAwaitingPhotos
	s.End = &end
	s.DurationMinutes = &durationMinutes
	return nil
}

func (f *fakeSessions) CloseSession(_ context.Context, id bson.ObjectID, endTime time.Time, end *model.GeofenceCheck, durationMinutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || !s.Active || s.EndTime != nil {
		return store.ErrSessionNotOpen
	}
	s.Status = model.SessionStatusClosed
	s.Active = false
	s.EndTime = &endTime
	s.DurationMinutes = &durationMinutes
	if end != nil {
		s.End = end
	}
	return nil
}

func (f *fakeSessions) ListSessionsForWorker(_ context.Context, workerID bson.ObjectID, limit int64) ([]*model.ShiftSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ShiftSession
	for _, s := range f.sessions {
		if s.WorkerID == workerID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSessions) ListOpenSessionsStartedBefore(_ context.Context, t time.Time) ([]*model.ShiftSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ShiftSession
	for _, s := range f.sessions {
		if s.Active && s.StartTime.Before(t) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSessions) AddPhoto(_ context.Context, photo *model.ShiftPhoto) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	photo.ID = bson.NewObjectID()
	f.photos = append(f.photos, photo)
	return nil
}

func (f *fakeSessions) openCount(workerID bson.ObjectID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sessions {
		if s.WorkerID == workerID && s.EndTime == nil {
			n++
		}
	}
	return n
}

func (f *fakeSessions) only() *model.ShiftSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		cp := *s
		return &cp
	}
	return nil
}

type fakeDirectory struct {
	workers []*model.Worker
	admins  []*model.Admin
	objects []model.WorkObject
	// adminErr fails every admin lookup.
	adminErr error
}

func (f *fakeDirectory) WorkerByExternalID(_ context.Context, externalUserID string) (*model.Worker, error) {
	for _, w := range f.workers {
		if w.Active && w.Chat.ExternalUserID == externalUserID {
			return w, nil
		}
	}
	return nil, nil
}

func (f *fakeDirectory) Worker(_ context.Context, id bson.ObjectID) (*model.Worker, error) {
	for _, w := range f.workers {
		if w.ID == id {
			return w, nil
		}
	}
	return nil, nil
}

func (f *fakeDirectory) WorkersForObject(_ context.Context, objectID bson.ObjectID) ([]*model.Worker, error) {
	var out []*model.Worker
	for _, w := range f.workers {
		if !w.Active || w.Chat.ChatID == "" {
			continue
		}
		for _, id := range w.ObjectIDs {
			if id == objectID {
				out = append(out, w)
			}
		}
	}
	return out, nil
}

func (f *fakeDirectory) BindWorker(_ context.Context, id bson.ObjectID, chat model.ChatBinding) error {
	for _, w := range f.workers {
		if w.ID == id {
			if w.Chat.ExternalUserID != "" {
				return store.ErrAlreadyBound
			}
			w.Chat = chat
			w.Active = true
			return nil
		}
	}
	return store.ErrAlreadyBound
}

func (f *fakeDirectory) Admin(_ context.Context, id bson.ObjectID) (*model.Admin, error) {
	if f.adminErr != nil {
		return nil, f.adminErr
	}
	for _, a := range f.admins {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeDirectory) BoundAdmins(_ context.Context, ids []bson.ObjectID) ([]*model.Admin, error) {
	if f.adminErr != nil {
		return nil, f.adminErr
	}
	if ids != nil && len(ids) == 0 {
		return nil, nil
	}
	var out []*model.Admin
	for _, a := range f.admins {
		if a.ChannelID == "" {
			continue
		}
		if ids == nil || containsID(ids, a.ID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeDirectory) BindAdmin(_ context.Context, id bson.ObjectID, externalUserID, channelID string) error {
	for _, a := range f.admins {
		if a.ID == id {
			if a.ChannelID != "" {
				return store.ErrAlreadyBound
			}
			a.ExternalUserID = externalUserID
			a.ChannelID = channelID
			return nil
		}
	}
	return store.ErrAlreadyBound
}

func (f *fakeDirectory) Object(_ context.Context, id bson.ObjectID) (*model.WorkObject, error) {
	for i := range f.objects {
		if f.objects[i].ID == id {
			obj := f.objects[i]
			return &obj, nil
		}
	}
	return nil, nil
}

func (f *fakeDirectory) Objects(_ context.Context, ids []bson.ObjectID) ([]model.WorkObject, error) {
	var out []model.WorkObject
	for _, obj := range f.objects {
		if containsID(ids, obj.ID) {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (f *fakeDirectory) ScheduledObjects(_ context.Context, day time.Weekday) ([]model.WorkObject, error) {
	var out []model.WorkObject
	for _, obj := range f.objects {
		if obj.Schedule != nil && obj.Schedule.Includes(day) {
			out = append(out, obj)
		}
	}
	return out, nil
}

func containsID(ids []bson.ObjectID, id bson.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type fakeTasks struct {
	tasks []model.ObjectTask
}

func (f *fakeTasks) ActiveTasks(_ context.Context, objectID bson.ObjectID) ([]model.ObjectTask, error) {
	var out []model.ObjectTask
	for _, t := range f.tasks {
		if t.ObjectID == objectID && t.DeletedAt == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) ActiveSpecialTasks(context.Context) ([]model.ObjectTask, error) {
	var out []model.ObjectTask
	for _, t := range f.tasks {
		if t.IsSpecial && t.DeletedAt == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

type dedupEntry struct {
	typ, subject string
	at           time.Time
}

type fakeDedup struct {
	now     func() time.Time
	entries []dedupEntry
}

func (f *fakeDedup) HasRecent(_ context.Context, typ, subject string, within time.Duration) (bool, error) {
	cutoff := f.now().Add(-within)
	for _, e := range f.entries {
		if e.typ == typ && e.subject == subject && e.at.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDedup) Record(_ context.Context, typ, subject string) error {
	f.entries = append(f.entries, dedupEntry{typ: typ, subject: subject, at: f.now()})
	return nil
}

type fakeSelection struct {
	selected map[bson.ObjectID]bson.ObjectID
}

func newFakeSelection() *fakeSelection {
	return &fakeSelection{selected: map[bson.ObjectID]bson.ObjectID{}}
}

func (f *fakeSelection) SelectObject(_ context.Context, w *model.Worker, objectID bson.ObjectID) error {
	f.selected[w.ID] = objectID
	return nil
}

func (f *fakeSelection) SelectedObject(_ context.Context, w *model.Worker) (bson.ObjectID, bool, error) {
	id, ok := f.selected[w.ID]
	return id, ok, nil
}

func (f *fakeSelection) Clear(_ context.Context, w *model.Worker) error {
	delete(f.selected, w.ID)
	return nil
}

type sentMessage struct {
	kind      string // text, prompt, location, photo
	channelID string
	text      string
	buttons   []mattermost.Button
}

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	failing map[string]bool
	files   map[string][]byte
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{failing: map[string]bool{}, files: map[string][]byte{}}
}

func (f *fakeMessenger) record(m sentMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[m.channelID] {
		return errDelivery
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeMessenger) SendText(_ context.Context, channelID, text string) error {
	return f.record(sentMessage{kind: "text", channelID: channelID, text: text})
}

func (f *fakeMessenger) SendPrompt(_ context.Context, channelID, text string, buttons []mattermost.Button) error {
	return f.record(sentMessage{kind: "prompt", channelID: channelID, text: text, buttons: buttons})
}

func (f *fakeMessenger) SendLocation(_ context.Context, channelID string, _, _ float64) error {
	return f.record(sentMessage{kind: "location", channelID: channelID})
}

func (f *fakeMessenger) SendPhoto(_ context.Context, channelID string, _ []byte, filename, caption string) error {
	return f.record(sentMessage{kind: "photo", channelID: channelID, text: caption})
}

func (f *fakeMessenger) FetchPhoto(_ context.Context, fileID string) ([]byte, string, error) {
	data, ok := f.files[fileID]
	if !ok {
		return nil, "", errors.New("file not found")
	}
	return data, "image/png", nil
}

func (f *fakeMessenger) to(channelID string) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.channelID == channelID {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeMessenger) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

func hasText(msgs []sentMessage, text string) bool {
	for _, m := range msgs {
		if m.text == text {
			return true
		}
	}
	return false
}

func countKind(msgs []sentMessage, kind string) int {
	n := 0
	for _, m := range msgs {
		if m.kind == kind {
			n++
		}
	}
	return n
}

type fakeStorage struct {
	keys   []string
	putErr error
}

func (f *fakeStorage) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	f.keys = append(f.keys, key)
	return "https://storage.example/" + key, nil
}

// clock is a settable test clock.
type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }
