// Package shift decides worker shift transitions. It performs no I/O: callers load the
// worker, open session and objects into a Context, call Decide, persist the returned
// Decision and only then deliver its notices.
package shift

import (
	"crewshift-bot/internal/model"
)

type State int

const (
	StateNoSession State = iota
	StateOpen
	StateAwaitingPhotos
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateOpen:
		return "open"
	case StateAwaitingPhotos:
		return "awaiting_photos"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateOf derives a worker's state from their most recent session.
// A closed session (or none) means the worker may start a new one.
func StateOf(sess *model.ShiftSession) State {
	if sess == nil || sess.EndTime != nil || !sess.Active {
		return StateNoSession
	}
	if sess.Status == model.SessionStatusAwaitingPhotos || sess.End != nil {
		return StateAwaitingPhotos
	}
	return StateOpen
}

// Rejection is a user-visible refusal. No state was changed.
type Rejection struct {
	Code string
}

const (
	RejectAccountNotFound   = "account_not_found"
	RejectAlreadyActive     = "already_active"
	RejectNoObjects         = "no_objects"
	RejectSelectObjectFirst = "select_object_first"
	RejectUnknownObject     = "unknown_object"
	RejectAlreadyFinished   = "already_finished"
	RejectNoActiveSession   = "no_active_session"
	RejectPhotosNotExpected = "photos_not_expected"
	RejectInvalidInvite     = "invalid_invite"
	RejectAlreadyBound      = "already_bound"
)

func reject(code string) *Rejection {
	return &Rejection{Code: code}
}

func (r *Rejection) Error() string {
	return "shift rejected: " + r.Code
}

// MessageID is the i18n message shown to the user.
func (r *Rejection) MessageID() string {
	return "reject_" + r.Code
}
