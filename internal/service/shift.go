package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"crewshift-bot/internal/auth"
	"crewshift-bot/internal/i18n"
	"crewshift-bot/internal/mattermost"
	"crewshift-bot/internal/metrics"
	"crewshift-bot/internal/model"
	"crewshift-bot/internal/shift"
	"crewshift-bot/internal/store"
)

// InboundEvent is a worker action addressed by chat identity.
type InboundEvent struct {
	Type           shift.EventType
	ExternalUserID string
	ChannelID      string
	Location       *model.GeoPoint
	ObjectID       bson.ObjectID
	PhotoIDs       []string
}

// Result summarizes a handled event. Rejection is set when the event was refused.
type Result struct {
	From      shift.State
	Next      shift.State
	Rejection *shift.Rejection
}

type ShiftService struct {
	sessions     SessionStore
	directory    Directory
	selection    Selection
	tasks        *TaskResolver
	recipients   *Recipients
	photos       *PhotoPipeline
	mm           Messenger
	botURL       string
	// actionSecret signs button contexts. Empty leaves them unsigned.
	actionSecret string
	loc          *time.Location
	radius       float64
	now          func() time.Time
}

type ShiftOptions struct {
	BotURL        string
	ActionSecret  string
	Location      *time.Location
	DefaultRadius float64
	// Now overrides the clock in tests.
	Now func() time.Time
}

func NewShiftService(sessions SessionStore, directory Directory, selection Selection, tasks *TaskResolver,
	recipients *Recipients, photos *PhotoPipeline, mm Messenger, opts ShiftOptions) *ShiftService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ShiftService{
		sessions:     sessions,
		directory:    directory,
		selection:    selection,
		tasks:        tasks,
		recipients:   recipients,
		photos:       photos,
		mm:           mm,
		botURL:       opts.BotURL,
		actionSecret: opts.ActionSecret,
		loc:          opts.Location,
		radius:       opts.DefaultRadius,
		now:          opts.Now,
	}
}

// Handle decides the event against the worker's current state, persists the decision and then
// delivers replies and notifications. Delivery failures are logged and never undo a persisted change.
func (s *ShiftService) Handle(ctx context.Context, in InboundEvent) (*Result, error) {
	worker, err := s.directory.WorkerByExternalID(ctx, in.ExternalUserID)
	if err != nil {
		return nil, fmt.Errorf("load worker: %w", err)
	}
	channelID := in.ChannelID
	if worker != nil && worker.Chat.ChatID != "" {
		channelID = worker.Chat.ChatID
	}

	c, err := s.loadContext(ctx, worker)
	if err != nil {
		return nil, err
	}

	d, err := shift.Decide(c, shift.Event{
		Type:     in.Type,
		Location: in.Location,
		ObjectID: in.ObjectID,
		PhotoIDs: in.PhotoIDs,
	})
	if err == nil {
		err = s.apply(ctx, c, &d)
	}

	var rej *shift.Rejection
	if errors.As(err, &rej) {
		metrics.Events.WithLabelValues(string(in.Type), "rejected").Inc()
		if sendErr := s.mm.SendText(ctx, channelID, i18n.T(ctx, rej.MessageID())); sendErr != nil {
			log.Printf("ERROR send rejection %s to %s: %v", rej.Code, channelID, sendErr)
		}
		from := shift.StateOf(c.Session)
		return &Result{From: from, Next: from, Rejection: rej}, nil
	}
	if err != nil {
		metrics.Events.WithLabelValues(string(in.Type), "error").Inc()
		return nil, err
	}
	metrics.Events.WithLabelValues(string(in.Type), "ok").Inc()

	s.respond(ctx, channelID, c, d)
	s.deliver(ctx, c, d)

	return &Result{From: d.From, Next: d.Next}, nil
}

func (s *ShiftService) loadContext(ctx context.Context, worker *model.Worker) (shift.Context, error) {
	c := shift.Context{Now: s.now().In(s.loc), Worker: worker, DefaultRadius: s.radius}
	if worker == nil {
		return c, nil
	}

	sess, err := s.sessions.FindOpenSession(ctx, worker.ID)
	if err != nil {
		return c, fmt.Errorf("load open session: %w", err)
	}
	c.Session = sess

	objects, err := s.directory.Objects(ctx, worker.ObjectIDs)
	if err != nil {
		return c, fmt.Errorf("load objects: %w", err)
	}
	c.Objects = objects

	if sess != nil {
		c.Object = findObject(objects, sess.ObjectID)
		if c.Object == nil {
			// The object may have been unassigned while the session was open.
			obj, err := s.directory.Object(ctx, sess.ObjectID)
			if err != nil {
				return c, fmt.Errorf("load session object: %w", err)
			}
			c.Object = obj
		}
		return c, nil
	}

	selected, ok, err := s.selection.SelectedObject(ctx, worker)
	if err != nil {
		return c, fmt.Errorf("load selected object: %w", err)
	}
	if ok {
		c.Object = findObject(objects, selected)
	}
	return c, nil
}

// apply persists the decision. Lost races on the session surface as rejections.
func (s *ShiftService) apply(ctx context.Context, c shift.Context, d *shift.Decision) error {
	if d.Select != nil {
		if err := s.selection.SelectObject(ctx, c.Worker, d.Select.ID); err != nil {
			return fmt.Errorf("select object: %w", err)
		}
	}

	switch {
	case d.Open != nil:
		err := s.sessions.CreateSession(ctx, d.Open)
		if errors.Is(err, store.ErrSessionExists) {
			return &shift.Rejection{Code: shift.RejectAlreadyActive}
		}
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		if err := s.selection.Clear(ctx, c.Worker); err != nil {
			log.Printf("WARN clear selection for worker %s: %v", c.Worker.ID.Hex(), err)
		}
	case d.RecordEnd != nil:
		err := s.sessions.RecordEnd(ctx, c.Session.ID, d.RecordEnd.End, d.RecordEnd.DurationMinutes)
		if errors.Is(err, store.ErrSessionNotOpen) {
			return &shift.Rejection{Code: shift.RejectAlreadyFinished}
		}
		if err != nil {
			return fmt.Errorf("record session end: %w", err)
		}
	case d.Close != nil:
		err := s.sessions.CloseSession(ctx, c.Session.ID, d.Close.EndTime, d.Close.End, d.Close.DurationMinutes)
		if errors.Is(err, store.ErrSessionNotOpen) {
			return &shift.Rejection{Code: shift.RejectAlreadyFinished}
		}
		if err != nil {
			return fmt.Errorf("close session: %w", err)
		}
	}
	return nil
}

func (s *ShiftService) respond(ctx context.Context, channelID string, c shift.Context, d shift.Decision) {
	var text string
	if d.Reply != nil {
		text = i18n.T(ctx, d.Reply.MessageID, d.Reply.Data)
	}

	var err error
	switch d.Prompt {
	case shift.PromptObjectChoice:
		buttons := make([]mattermost.Button, 0, len(d.Choices))
		for _, obj := range d.Choices {
			buttons = append(buttons, s.button(c.Worker, obj.Name, "/api/shift/select", map[string]any{"object_id": obj.ID.Hex()}))
		}
		err = s.mm.SendPrompt(ctx, channelID, text, buttons)
	case shift.PromptPhotos:
		err = s.mm.SendPrompt(ctx, channelID, text, []mattermost.Button{
			s.button(c.Worker, i18n.T(ctx, "button_finish"), "/api/shift/finish", nil),
		})
	case shift.PromptLocation:
		err = s.mm.SendText(ctx, channelID, joinLines(text, i18n.T(ctx, "prompt_location")))
	default:
		switch {
		case d.Open != nil:
			err = s.mm.SendPrompt(ctx, channelID, text, []mattermost.Button{
				s.button(c.Worker, i18n.T(ctx, "button_end"), "/api/shift/end", nil),
			})
		case text != "":
			err = s.mm.SendText(ctx, channelID, text)
		}
	}
	if err != nil {
		log.Printf("ERROR reply to %s: %v", channelID, err)
	}

	if d.ShowTasks && d.Open != nil {
		if err := s.sendTasks(ctx, channelID, d.Open.ObjectID, c.Now); err != nil {
			log.Printf("ERROR send tasks to %s: %v", channelID, err)
		}
	}
}

func (s *ShiftService) sendTasks(ctx context.Context, channelID string, objectID bson.ObjectID, date time.Time) error {
	tasks, err := s.tasks.TasksDueOn(ctx, objectID, date)
	if err != nil {
		return err
	}
	return s.mm.SendText(ctx, channelID, formatTasks(ctx, tasks))
}

// deliver fans notices and photos out to the resolved supervisors, one recipient at a time.
// Photos are stored even when no recipient can be resolved.
func (s *ShiftService) deliver(ctx context.Context, c shift.Context, d shift.Decision) {
	if len(d.Notices) == 0 && len(d.StorePhotos) == 0 {
		return
	}

	sess := c.Session
	if d.Open != nil {
		sess = d.Open
	}
	if sess == nil {
		log.Printf("WARN notices without session for worker %s", c.Worker.ID.Hex())
		return
	}

	channels, err := s.recipients.Resolve(ctx, &sess.ObjectID, &sess.WorkerID)
	if err != nil {
		log.Printf("ERROR resolve recipients for session %s: %v", sess.ID.Hex(), err)
		channels = nil
	}

	// Supervisor messages use the default locale, not the worker's.
	adminCtx := i18n.WithLocale(ctx, "")
	data := map[string]any{"Worker": c.Worker.DisplayName(), "Object": displayObject(c.Object, sess.ObjectID)}

	if len(d.StorePhotos) > 0 && s.photos != nil {
		caption := i18n.T(adminCtx, "notify_photo_caption", data)
		s.photos.Process(ctx, sess, d.StorePhotos, channels, caption)
	}

	for _, n := range d.Notices {
		text := noticeText(adminCtx, n, data)
		for _, ch := range channels {
			err := s.mm.SendText(ctx, ch, text)
			if err == nil && n.Kind != shift.NoticeGeofenceViolation && n.Check != nil {
				err = s.mm.SendLocation(ctx, ch, n.Check.Location.Latitude, n.Check.Location.Longitude)
			}
			metrics.Notifications.WithLabelValues(string(n.Kind), metrics.Result(err)).Inc()
			if err != nil {
				log.Printf("ERROR notify %s of %s: %v", ch, n.Kind, err)
			}
		}
	}
}

func noticeText(ctx context.Context, n shift.Notice, base map[string]any) string {
	data := make(map[string]any, len(base)+2)
	for k, v := range base {
		data[k] = v
	}
	switch n.Kind {
	case shift.NoticeShiftStarted:
		return i18n.T(ctx, "notify_shift_started", data)
	case shift.NoticeShiftEnded:
		data["Hours"] = n.DurationMinutes / 60
		data["Minutes"] = n.DurationMinutes % 60
		return i18n.T(ctx, "notify_shift_ended", data)
	default:
		data["Phase"] = i18n.T(ctx, "phase_"+string(n.Phase))
		distance := 0.0
		if n.Check != nil && n.Check.Distance != nil {
			distance = *n.Check.Distance
		}
		data["Distance"] = fmt.Sprintf("%.0f", distance)
		return i18n.T(ctx, "notify_geofence_violation", data)
	}
}

func displayObject(obj *model.WorkObject, id bson.ObjectID) string {
	if obj == nil {
		return id.Hex()
	}
	return obj.Name
}

// button builds a prompt option. With an action secret the option carries a token bound to the worker.
func (s *ShiftService) button(w *model.Worker, label, path string, data map[string]any) mattermost.Button {
	if s.actionSecret != "" {
		sig, err := auth.SignAction(s.actionSecret, w.Chat.ExternalUserID)
		if err != nil {
			log.Printf("ERROR sign action for worker %s: %v", w.ID.Hex(), err)
		} else {
			if data == nil {
				data = map[string]any{}
			}
			data[auth.ActionContextKey] = sig
		}
	}
	return mattermost.Button{Label: label, URL: s.botURL + path, Context: data}
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

func formatTasks(ctx context.Context, tasks []model.ObjectTask) string {
	if len(tasks) == 0 {
		return i18n.T(ctx, "tasks_none")
	}
	var b strings.Builder
	b.WriteString(i18n.T(ctx, "tasks_today"))
	for _, t := range tasks {
		b.WriteString("\n- ")
		b.WriteString(t.Title)
		if t.Description != "" {
			b.WriteString(": ")
			b.WriteString(t.Description)
		}
	}
	return b.String()
}

func joinLines(lines ...string) string {
	var kept []string
	for _, l := range lines {
		if l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}
