package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"crewshift-bot/internal/auth"
	"crewshift-bot/internal/i18n"
	"crewshift-bot/internal/model"
	"crewshift-bot/internal/shift"
	"crewshift-bot/internal/store"
)

const historyLimit = 5

// AccountService binds chat identities and answers read-only worker queries.
type AccountService struct {
	sessions     SessionStore
	directory    Directory
	tasks        *TaskResolver
	inviteSecret string
	loc          *time.Location
	now          func() time.Time
	dm           DirectChannels
}

// DirectChannels opens the bot's direct message channel with a chat user.
type DirectChannels interface {
	DirectChannel(ctx context.Context, userID string) (string, error)
}

func NewAccountService(sessions SessionStore, directory Directory, tasks *TaskResolver, inviteSecret string, loc *time.Location) *AccountService {
	if loc == nil {
		loc = time.UTC
	}
	return &AccountService{
		sessions:     sessions,
		directory:    directory,
		tasks:        tasks,
		inviteSecret: inviteSecret,
		loc:          loc,
		now:          time.Now,
	}
}

// WithDirectChannels binds activated accounts to their direct message channel with the bot
// instead of the channel the command was typed in.
func (s *AccountService) WithDirectChannels(dm DirectChannels) *AccountService {
	s.dm = dm
	return s
}

// Identity is the chat user sending a command.
type Identity struct {
	ExternalUserID string
	Username       string
	ChannelID      string
}

// Activate redeems an invitation. Workers bind their chat identity and channel, admins bind
// their notification channel. Both bindings happen once.
func (s *AccountService) Activate(ctx context.Context, id Identity, token string) (string, error) {
	inv, err := auth.ParseInvite(s.inviteSecret, strings.TrimSpace(token))
	if err != nil {
		return "", &shift.Rejection{Code: shift.RejectInvalidInvite}
	}

	channelID := s.channelFor(ctx, id)

	switch inv.Role {
	case auth.RoleWorker:
		w, err := s.directory.Worker(ctx, inv.SubjectID)
		if err != nil {
			return "", fmt.Errorf("load worker: %w", err)
		}
		if w == nil {
			return "", &shift.Rejection{Code: shift.RejectInvalidInvite}
		}
		err = s.directory.BindWorker(ctx, w.ID, model.ChatBinding{
			ExternalUserID: id.ExternalUserID,
			ChatID:         channelID,
			Username:       id.Username,
		})
		if errors.Is(err, store.ErrAlreadyBound) {
			return "", &shift.Rejection{Code: shift.RejectAlreadyBound}
		}
		if err != nil {
			return "", err
		}
		return i18n.T(ctx, "activated_worker", map[string]any{"Name": w.Name}), nil
	default:
		a, err := s.directory.Admin(ctx, inv.SubjectID)
		if err != nil {
			return "", fmt.Errorf("load admin: %w", err)
		}
		if a == nil {
			return "", &shift.Rejection{Code: shift.RejectInvalidInvite}
		}
		err = s.directory.BindAdmin(ctx, a.ID, id.ExternalUserID, channelID)
		if errors.Is(err, store.ErrAlreadyBound) {
			return "", &shift.Rejection{Code: shift.RejectAlreadyBound}
		}
		if err != nil {
			return "", err
		}
		return i18n.T(ctx, "activated_admin", map[string]any{"Name": a.Name}), nil
	}
}

func (s *AccountService) channelFor(ctx context.Context, id Identity) string {
	if s.dm == nil {
		return id.ChannelID
	}
	channelID, err := s.dm.DirectChannel(ctx, id.ExternalUserID)
	if err != nil {
		log.Printf("WARN direct channel for %s, binding %s instead: %v", id.ExternalUserID, id.ChannelID, err)
		return id.ChannelID
	}
	return channelID
}

func (s *AccountService) Status(ctx context.Context, externalUserID string) (string, error) {
	w, err := s.worker(ctx, externalUserID)
	if err != nil {
		return "", err
	}
	sess, err := s.sessions.FindOpenSession(ctx, w.ID)
	if err != nil {
		return "", fmt.Errorf("load open session: %w", err)
	}

	switch shift.StateOf(sess) {
	case shift.StateOpen:
		return i18n.T(ctx, "status_open", map[string]any{
			"Object": s.objectName(ctx, sess),
			"Since":  sess.StartTime.In(s.loc).Format("02.01 15:04"),
		}), nil
	case shift.StateAwaitingPhotos:
		return i18n.T(ctx, "status_awaiting", map[string]any{"Object": s.objectName(ctx, sess)}), nil
	default:
		return i18n.T(ctx, "status_none"), nil
	}
}

// TasksToday lists today's tasks for the open session's object, or the only assigned object.
func (s *AccountService) TasksToday(ctx context.Context, externalUserID string) (string, error) {
	w, err := s.worker(ctx, externalUserID)
	if err != nil {
		return "", err
	}
	sess, err := s.sessions.FindOpenSession(ctx, w.ID)
	if err != nil {
		return "", fmt.Errorf("load open session: %w", err)
	}

	objectID := w.SelectedObjectID
	switch {
	case sess != nil:
		objectID = &sess.ObjectID
	case objectID == nil && len(w.ObjectIDs) == 1:
		objectID = &w.ObjectIDs[0]
	}
	if objectID == nil {
		return "", &shift.Rejection{Code: shift.RejectSelectObjectFirst}
	}

	tasks, err := s.tasks.TasksDueOn(ctx, *objectID, s.now().In(s.loc))
	if err != nil {
		return "", err
	}
	return formatTasks(ctx, tasks), nil
}

func (s *AccountService) History(ctx context.Context, externalUserID string) (string, error) {
	w, err := s.worker(ctx, externalUserID)
	if err != nil {
		return "", err
	}
	sessions, err := s.sessions.ListSessionsForWorker(ctx, w.ID, historyLimit)
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return i18n.T(ctx, "history_empty"), nil
	}

	lines := []string{i18n.T(ctx, "history_header")}
	for _, sess := range sessions {
		duration := i18n.T(ctx, "history_open")
		if sess.EndTime != nil && sess.DurationMinutes != nil {
			duration = fmt.Sprintf("%d:%02d", *sess.DurationMinutes/60, *sess.DurationMinutes%60)
		}
		lines = append(lines, "- "+i18n.T(ctx, "history_line", map[string]any{
			"Date":     sess.StartTime.In(s.loc).Format("02.01.2006 15:04"),
			"Object":   s.objectName(ctx, sess),
			"Duration": duration,
		}))
	}
	return strings.Join(lines, "\n"), nil
}

func (s *AccountService) worker(ctx context.Context, externalUserID string) (*model.Worker, error) {
	w, err := s.directory.WorkerByExternalID(ctx, externalUserID)
	if err != nil {
		return nil, fmt.Errorf("load worker: %w", err)
	}
	if w == nil {
		return nil, &shift.Rejection{Code: shift.RejectAccountNotFound}
	}
	return w, nil
}

func (s *AccountService) objectName(ctx context.Context, sess *model.ShiftSession) string {
	obj, err := s.directory.Object(ctx, sess.ObjectID)
	if err != nil || obj == nil {
		return sess.ObjectID.Hex()
	}
	return obj.Name
}
