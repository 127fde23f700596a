package service

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"crewshift-bot/internal/mattermost"
	"crewshift-bot/internal/model"
)

// Messenger sends chat messages addressed by channel id.
type Messenger interface {
	SendText(ctx context.Context, channelID, text string) error
	SendPrompt(ctx context.Context, channelID, text string, buttons []mattermost.Button) error
	SendLocation(ctx context.Context, channelID string, lat, lon float64) error
	SendPhoto(ctx context.Context, channelID string, data []byte, filename, caption string) error
	FetchPhoto(ctx context.Context, fileID string) ([]byte, string, error)
}

type SessionStore interface {
	FindOpenSession(ctx context.Context, workerID bson.ObjectID) (*model.ShiftSession, error)
	CreateSession(ctx context.Context, sess *model.ShiftSession) error
	RecordEnd(ctx context.Context, id bson.ObjectID, end model.GeofenceCheck, durationMinutes int) error
	CloseSession(ctx context.Context, id bson.ObjectID, endTime time.Time, end *model.GeofenceCheck, durationMinutes int) error
	ListSessionsForWorker(ctx context.Context, workerID bson.ObjectID, limit int64) ([]*model.ShiftSession, error)
	ListOpenSessionsStartedBefore(ctx context.Context, t time.Time) ([]*model.ShiftSession, error)
	AddPhoto(ctx context.Context, photo *model.ShiftPhoto) error
}

// Directory is read access to workers, admins and objects, plus the one-time chat binding.
type Directory interface {
	WorkerByExternalID(ctx context.Context, externalUserID string) (*model.Worker, error)
	Worker(ctx context.Context, id bson.ObjectID) (*model.Worker, error)
	WorkersForObject(ctx context.Context, objectID bson.ObjectID) ([]*model.Worker, error)
	BindWorker(ctx context.Context, id bson.ObjectID, chat model.ChatBinding) error
	Admin(ctx context.Context, id bson.ObjectID) (*model.Admin, error)
	BoundAdmins(ctx context.Context, ids []bson.ObjectID) ([]*model.Admin, error)
	BindAdmin(ctx context.Context, id bson.ObjectID, externalUserID, channelID string) error
	Object(ctx context.Context, id bson.ObjectID) (*model.WorkObject, error)
	Objects(ctx context.Context, ids []bson.ObjectID) ([]model.WorkObject, error)
	ScheduledObjects(ctx context.Context, day time.Weekday) ([]model.WorkObject, error)
}

type TaskSource interface {
	ActiveTasks(ctx context.Context, objectID bson.ObjectID) ([]model.ObjectTask, error)
	ActiveSpecialTasks(ctx context.Context) ([]model.ObjectTask, error)
}

// DedupLog suppresses repeated reminders within a window.
type DedupLog interface {
	HasRecent(ctx context.Context, typ, subject string, within time.Duration) (bool, error)
	Record(ctx context.Context, typ, subject string) error
}

// Selection holds the object the worker's next clock-in applies to.
type Selection interface {
	SelectObject(ctx context.Context, w *model.Worker, objectID bson.ObjectID) error
	SelectedObject(ctx context.Context, w *model.Worker) (bson.ObjectID, bool, error)
	Clear(ctx context.Context, w *model.Worker) error
}

// PhotoStorage stores photo bytes under a key and returns a public URL.
type PhotoStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
