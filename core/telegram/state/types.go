package state

import (
	"time"

	tele "gopkg.in/telebot.v4"
)

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// Session is the per-user entry. Prompt is the bot message that opened the
// current step; a zero Prompt means none is tracked.
type Session struct {
	State     State
	Prompt    tele.StoredMessage
	UpdatedAt time.Time
}

// HasPrompt reports whether a prompt message is tracked.
func (s Session) HasPrompt() bool {
	return s.Prompt.MessageID != "" && s.Prompt.ChatID != 0
}

// Manager stores sessions keyed by Telegram user id. All methods are safe for
// concurrent use; each call is atomic with respect to the others.
type Manager interface {
	// Get returns the user's session, or an idle one.
	Get(userID int64) Session
	// Set stores s and returns the session it replaced.
	Set(userID int64, s Session) (prev Session, existed bool)
	// Update applies fn to an existing session. It reports false, without
	// calling fn, when the user has no session.
	Update(userID int64, fn func(*Session)) bool
	// Clear removes the session and returns it.
	Clear(userID int64) (prev Session, existed bool)
	// InProgress reports whether the user is in any state other than idle.
	InProgress(userID int64) bool
	// Len returns the number of stored sessions.
	Len() int
}
