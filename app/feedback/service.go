// Package feedback implements the feedback conversation: soliciting a
// message, capturing it, and relaying it to the backend mail endpoint.
package feedback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/telegram/keyboard"
	"github.com/m3rciful/feedbot/core/telegram/state"
)

// StateAwaitingFeedback marks a user whose next non-command message is
// feedback.
const StateAwaitingFeedback state.State = "awaiting_feedback"

// Callback keys of the inline buttons.
const (
	CallbackGive   = "feedback_give"
	CallbackCancel = "feedback_cancel"
)

// DefaultCleanupDelay is how long the prompt stays after a successful
// submission.
const DefaultCleanupDelay = 2 * time.Second

// ErrNotAwaiting is returned by Capture when the user has no open prompt.
var ErrNotAwaiting = errors.New("feedback: user is not awaiting feedback")

// Chat is the messaging surface used outside a handler's own reply.
type Chat interface {
	Send(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (tele.StoredMessage, error)
	Delete(ctx context.Context, msg tele.StoredMessage) error
}

// FeedbackSubmitter delivers classified feedback.
type FeedbackSubmitter interface {
	Submit(ctx context.Context, u User, text string) error
}

// Texts are the user-facing replies of the conversation.
type Texts struct {
	Prompt       string
	CancelButton string
	Thanks       string
	Failure      string
}

// DefaultTexts returns the built-in English copy.
func DefaultTexts() Texts {
	return Texts{
		Prompt:       "✍️ Please send your feedback in one message. Text, photos, videos, documents and voice messages are all welcome.",
		CancelButton: "❌ Cancel",
		Thanks:       "🙏 Thank you for your feedback! We have passed it on to the team.",
		Failure:      "😔 Sorry, we could not send your feedback right now. Please try again later.",
	}
}

// Options configures a Service.
type Options struct {
	Texts        Texts
	CleanupDelay time.Duration
	// After schedules fn after d; defaults to time.AfterFunc.
	After func(d time.Duration, fn func())
}

// Service owns the per-user feedback sessions.
type Service struct {
	sessions  state.Manager
	submitter FeedbackSubmitter
	chat      Chat
	texts     Texts
	delay     time.Duration
	after     func(time.Duration, func())
}

// NewService builds a Service. The chat must be attached with Attach before
// the first update is handled.
func NewService(sessions state.Manager, submitter FeedbackSubmitter, opts Options) *Service {
	if sessions == nil {
		sessions = state.NewMemoryManager()
	}
	def := DefaultTexts()
	if opts.Texts.Prompt == "" {
		opts.Texts.Prompt = def.Prompt
	}
	if opts.Texts.CancelButton == "" {
		opts.Texts.CancelButton = def.CancelButton
	}
	if opts.Texts.Thanks == "" {
		opts.Texts.Thanks = def.Thanks
	}
	if opts.Texts.Failure == "" {
		opts.Texts.Failure = def.Failure
	}
	if opts.CleanupDelay <= 0 {
		opts.CleanupDelay = DefaultCleanupDelay
	}
	if opts.After == nil {
		opts.After = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}
	return &Service{
		sessions:  sessions,
		submitter: submitter,
		texts:     opts.Texts,
		delay:     opts.CleanupDelay,
		after:     opts.After,
	}
}

// Attach sets the chat used for prompts and replies. It is not safe to call
// while updates are being handled.
func (s *Service) Attach(chat Chat) {
	s.chat = chat
}

// Awaiting reports whether userID has an open prompt.
func (s *Service) Awaiting(userID int64) bool {
	return s.sessions.Get(userID).State == StateAwaitingFeedback
}

// Solicit opens a feedback session for userID and posts the prompt in
// chatID. An earlier prompt of the same user is deleted first. A failed
// prompt send closes the session again and is returned.
func (s *Service) Solicit(ctx context.Context, userID, chatID int64) error {
	prev, existed := s.sessions.Set(userID, state.Session{State: StateAwaitingFeedback})
	status := "ok"
	if existed && prev.State == StateAwaitingFeedback {
		status = "superseded"
	}
	if prev.HasPrompt() {
		s.deleteMessage(ctx, prev.Prompt, "superseded")
	}

	markup := keyboard.SingleCancelMarkup(CallbackCancel, s.texts.CancelButton)
	prompt, err := s.chat.Send(ctx, chatID, s.texts.Prompt, markup)
	if err != nil {
		s.sessions.Clear(userID)
		logger.Warn(ctx, "feedback", "session.solicit",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return err
	}

	// A concurrent Solicit may have attached its own prompt meanwhile; the
	// later attach wins and the displaced prompt is removed.
	var displaced tele.StoredMessage
	attached := s.sessions.Update(userID, func(sess *state.Session) {
		displaced = sess.Prompt
		sess.State = StateAwaitingFeedback
		sess.Prompt = prompt
	})
	switch {
	case !attached:
		// captured or cancelled before the prompt was recorded
		s.deleteMessage(ctx, prompt, "orphaned")
	case displaced.MessageID != "" && displaced != prompt:
		s.deleteMessage(ctx, displaced, "superseded")
	}

	logger.Info(ctx, "feedback", "session.solicit",
		slog.String("status", status),
		slog.String("state", string(StateAwaitingFeedback)),
		slog.String("prompt_id", prompt.MessageID),
	)
	return nil
}

// Cancel closes the user's session and deletes its prompt. origin is the
// message carrying the pressed cancel button, if any; it is deleted as well
// when it is a stale prompt. Cancel reports whether a session existed.
func (s *Service) Cancel(ctx context.Context, userID int64, origin tele.StoredMessage) bool {
	prev, existed := s.sessions.Clear(userID)
	if prev.HasPrompt() {
		s.deleteMessage(ctx, prev.Prompt, "cancelled")
	}
	if origin.MessageID != "" && origin != prev.Prompt {
		s.deleteMessage(ctx, origin, "stale")
	}

	status := "cancelled"
	if !existed {
		status = "skip"
	}
	logger.Info(ctx, "feedback", "session.cancel", slog.String("status", status))
	return existed
}

// Capture submits msg as the user's feedback and answers in chatID. The
// session is closed before submitting, whatever the outcome. It returns
// ErrNotAwaiting without side effects when no session is open, otherwise
// the submission error, which the user has already been told about.
func (s *Service) Capture(ctx context.Context, u User, chatID int64, msg Message) error {
	prev, existed := s.sessions.Clear(u.ID)
	if !existed || prev.State != StateAwaitingFeedback {
		return ErrNotAwaiting
	}

	text := Classify(msg)
	err := s.submitter.Submit(ctx, u, text)
	if err != nil {
		s.reply(ctx, chatID, s.texts.Failure)
		logger.Info(ctx, "feedback", "session.capture",
			slog.String("status", "fail"),
			slog.String("outcome", "fail"),
		)
		return err
	}

	s.reply(ctx, chatID, s.texts.Thanks)
	if prev.HasPrompt() {
		prompt := prev.Prompt
		bg := context.WithoutCancel(ctx)
		s.after(s.delay, func() { s.deleteMessage(bg, prompt, "submitted") })
	}
	logger.Info(ctx, "feedback", "session.capture",
		slog.String("status", "ok"),
		slog.String("outcome", "captured"),
	)
	return nil
}

func (s *Service) reply(ctx context.Context, chatID int64, text string) {
	if _, err := s.chat.Send(ctx, chatID, text, nil); err != nil {
		logger.Warn(ctx, "feedback", "reply",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

// deleteMessage removes msg, logging and otherwise ignoring failures.
func (s *Service) deleteMessage(ctx context.Context, msg tele.StoredMessage, cause string) {
	if err := s.chat.Delete(ctx, msg); err != nil {
		logger.Debug(ctx, "feedback", "prompt.delete",
			slog.String("status", "fail"),
			slog.String("prompt_id", msg.MessageID),
			slog.String("cause", cause),
			slog.String("err", err.Error()),
		)
	}
}
