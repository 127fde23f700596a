package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"crewshift-bot/internal/i18n"
	"crewshift-bot/internal/metrics"
	"crewshift-bot/internal/model"
)

// Special task reminders go out in the evening before (from EveningHour) and the morning of
// (before MorningHour), local time.
const (
	EveningHour = 16
	MorningHour = 12
)

type ReminderConfig struct {
	LookaheadMin         time.Duration
	LookaheadMax         time.Duration
	UpcomingDedup        bool
	ForgottenAfter       time.Duration
	ForgottenDedupWindow time.Duration
	Location             *time.Location
	// Now overrides the clock in tests.
	Now func() time.Time
}

// SweepReport counts what one sweep sent.
type SweepReport struct {
	Upcoming       int `json:"upcoming"`
	Forgotten      int `json:"forgotten"`
	SpecialEvening int `json:"special_evening"`
	SpecialMorning int `json:"special_morning"`
	Failures       int `json:"failures"`
}

// reminderDedupWindow covers one calendar day; upcoming and special subjects carry their date.
const reminderDedupWindow = 24 * time.Hour

type ReminderService struct {
	sessions  SessionStore
	directory Directory
	tasks     TaskSource
	dedup     DedupLog
	mm        Messenger
	cfg       ReminderConfig
}

func NewReminderService(sessions SessionStore, directory Directory, tasks TaskSource, dedup DedupLog, mm Messenger, cfg ReminderConfig) *ReminderService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ReminderService{sessions: sessions, directory: directory, tasks: tasks, dedup: dedup, mm: mm, cfg: cfg}
}

// Sweep runs every reminder pass once. A failing item is logged and counted; the sweep goes on.
func (s *ReminderService) Sweep(ctx context.Context) SweepReport {
	now := s.cfg.Now().In(s.cfg.Location)
	var report SweepReport

	if err := s.upcomingShifts(ctx, now, &report); err != nil {
		log.Printf("ERROR upcoming shift sweep: %v", err)
		report.Failures++
	}
	if err := s.forgottenSessions(ctx, now, &report); err != nil {
		log.Printf("ERROR forgotten session sweep: %v", err)
		report.Failures++
	}
	if err := s.specialTasks(ctx, now, &report); err != nil {
		log.Printf("ERROR special task sweep: %v", err)
		report.Failures++
	}

	log.Printf("Reminder sweep: upcoming=%d forgotten=%d evening=%d morning=%d failures=%d",
		report.Upcoming, report.Forgotten, report.SpecialEvening, report.SpecialMorning, report.Failures)
	return report
}

func (s *ReminderService) upcomingShifts(ctx context.Context, now time.Time, report *SweepReport) error {
	objects, err := s.directory.ScheduledObjects(ctx, now.Weekday())
	if err != nil {
		return err
	}
	date := now.Format(time.DateOnly)

	for _, obj := range objects {
		if obj.Schedule == nil || !obj.Schedule.Includes(now.Weekday()) {
			continue
		}
		start, err := obj.Schedule.StartOn(now)
		if err != nil {
			log.Printf("WARN object %s: %v", obj.ID.Hex(), err)
			continue
		}
		until := start.Sub(now)
		if until < s.cfg.LookaheadMin || until > s.cfg.LookaheadMax {
			continue
		}

		workers, err := s.directory.WorkersForObject(ctx, obj.ID)
		if err != nil {
			log.Printf("ERROR workers for object %s: %v", obj.ID.Hex(), err)
			report.Failures++
			continue
		}
		text := i18n.T(ctx, "remind_upcoming_shift", map[string]any{"Object": obj.Name, "Time": obj.Schedule.StartTime})
		for _, w := range workers {
			subject := fmt.Sprintf("%s:%s:%s", w.ID.Hex(), obj.ID.Hex(), date)
			sent, err := s.send(ctx, model.NotificationUpcomingShift, subject, reminderDedupWindow, s.cfg.UpcomingDedup, w.Chat.ChatID, text)
			s.count(sent, err, &report.Upcoming, report)
		}
	}
	return nil
}

func (s *ReminderService) forgottenSessions(ctx context.Context, now time.Time, report *SweepReport) error {
	sessions, err := s.sessions.ListOpenSessionsStartedBefore(ctx, now.Add(-s.cfg.ForgottenAfter))
	if err != nil {
		return err
	}

	for _, sess := range sessions {
		w, err := s.directory.Worker(ctx, sess.WorkerID)
		if err != nil {
			log.Printf("ERROR worker for session %s: %v", sess.ID.Hex(), err)
			report.Failures++
			continue
		}
		if w == nil || w.Chat.ChatID == "" {
			continue
		}
		text := i18n.T(ctx, "remind_forgot_end", map[string]any{
			"Object": s.objectName(ctx, sess.ObjectID),
			"Since":  sess.StartTime.In(s.cfg.Location).Format("02.01 15:04"),
		})
		sent, err := s.send(ctx, model.NotificationForgotEnd, sess.ID.Hex(), s.cfg.ForgottenDedupWindow, true, w.Chat.ChatID, text)
		s.count(sent, err, &report.Forgotten, report)
	}
	return nil
}

func (s *ReminderService) specialTasks(ctx context.Context, now time.Time, report *SweepReport) error {
	evening := now.Hour() >= EveningHour
	morning := now.Hour() < MorningHour
	if !evening && !morning {
		return nil
	}

	tasks, err := s.tasks.ActiveSpecialTasks(ctx)
	if err != nil {
		return err
	}
	tomorrow := now.AddDate(0, 0, 1)

	for i := range tasks {
		t := &tasks[i]
		if evening && t.DueOn(tomorrow) {
			s.remindTask(ctx, t, model.NotificationSpecialEvening, "remind_special_evening", tomorrow, &report.SpecialEvening, report)
		}
		if morning && t.DueOn(now) {
			s.remindTask(ctx, t, model.NotificationSpecialMorning, "remind_special_morning", now, &report.SpecialMorning, report)
		}
	}
	return nil
}

func (s *ReminderService) remindTask(ctx context.Context, t *model.ObjectTask, typ, messageID string, day time.Time, counter *int, report *SweepReport) {
	workers, err := s.directory.WorkersForObject(ctx, t.ObjectID)
	if err != nil {
		log.Printf("ERROR workers for task %s: %v", t.ID.Hex(), err)
		report.Failures++
		return
	}
	text := i18n.T(ctx, messageID, map[string]any{"Object": s.objectName(ctx, t.ObjectID), "Task": t.Title})
	for _, w := range workers {
		subject := fmt.Sprintf("%s:%s:%s", t.ID.Hex(), day.Format(time.DateOnly), w.ID.Hex())
		sent, err := s.send(ctx, typ, subject, reminderDedupWindow, true, w.Chat.ChatID, text)
		s.count(sent, err, counter, report)
	}
}

// send delivers one reminder unless the dedup log already has it. The log entry is written only
// after a successful send so a failed reminder is retried by the next sweep.
func (s *ReminderService) send(ctx context.Context, typ, subject string, window time.Duration, dedup bool, channelID, text string) (bool, error) {
	if channelID == "" {
		return false, nil
	}
	if dedup {
		recent, err := s.dedup.HasRecent(ctx, typ, subject, window)
		if err != nil {
			return false, fmt.Errorf("check dedup log: %w", err)
		}
		if recent {
			return false, nil
		}
	}
	if err := s.mm.SendText(ctx, channelID, text); err != nil {
		return false, fmt.Errorf("send %s to %s: %w", typ, channelID, err)
	}
	metrics.Reminders.WithLabelValues(typ).Inc()
	if dedup {
		if err := s.dedup.Record(ctx, typ, subject); err != nil {
			log.Printf("WARN record %s %s: %v", typ, subject, err)
		}
	}
	return true, nil
}

func (s *ReminderService) count(sent bool, err error, counter *int, report *SweepReport) {
	if err != nil {
		log.Printf("ERROR reminder: %v", err)
		report.Failures++
		return
	}
	if sent {
		*counter++
	}
}

func (s *ReminderService) objectName(ctx context.Context, id bson.ObjectID) string {
	obj, err := s.directory.Object(ctx, id)
	if err != nil || obj == nil {
		return id.Hex()
	}
	return obj.Name
}
