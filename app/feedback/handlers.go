package feedback

import (
	"errors"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/logger"
	tghelpers "github.com/m3rciful/feedbot/core/telegram/helpers"
	"github.com/m3rciful/feedbot/core/telegram/keyboard"
)

const (
	textGreeting = "👋 Hi! Open the app with the button below, or tell us what you think."
	textHelp     = "Commands:\n" +
		"/start - open the app\n" +
		"/feedback - send us feedback\n" +
		"/cancel - cancel the feedback you started\n" +
		"/help - show this message"
	textNothingToCancel = "There is no feedback in progress."
	textCancelled       = "Feedback cancelled."
	textUnknown         = "I did not understand that. Use /feedback to send us a message or /help to see what I can do."
	textStaleButton     = "This button is no longer active"

	buttonOpenApp  = "🚀 Open app"
	buttonFeedback = "💬 Give feedback"
)

// Handlers adapts Service to telebot handlers. It also serves as the
// router's conversation owner and fallback provider.
type Handlers struct {
	svc       *Service
	webAppURL string
}

// NewHandlers builds the telebot handlers for svc.
func NewHandlers(svc *Service, webAppURL string) *Handlers {
	return &Handlers{svc: svc, webAppURL: webAppURL}
}

// Start greets the user with the web app and feedback buttons.
func (h *Handlers) Start(c tele.Context) error {
	markup := keyboard.InlineButtons(
		keyboard.InlineBtn{Text: buttonOpenApp, WebAppURL: h.webAppURL},
		keyboard.InlineBtn{Text: buttonFeedback, Unique: CallbackGive},
	)
	_ = tghelpers.SendText(c, textGreeting, markup)
	return nil
}

// Help lists the commands.
func (h *Handlers) Help(c tele.Context) error {
	_ = tghelpers.SendText(c, textHelp)
	return nil
}

// Feedback handles /feedback.
func (h *Handlers) Feedback(c tele.Context) error {
	return h.solicit(c)
}

// Give handles the "give feedback" button.
func (h *Handlers) Give(c tele.Context) error {
	_ = tghelpers.Respond(c, "")
	return h.solicit(c)
}

func (h *Handlers) solicit(c tele.Context) error {
	if c.Sender() == nil || c.Chat() == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	// the prompt failure is logged by the service and only cosmetic here
	_ = h.svc.Solicit(ctx, c.Sender().ID, c.Chat().ID)
	return nil
}

// CancelButton handles the cancel button on a prompt.
func (h *Handlers) CancelButton(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	var origin tele.StoredMessage
	if cb := c.Callback(); cb != nil && cb.Message != nil {
		id, chatID := cb.Message.MessageSig()
		origin = tele.StoredMessage{MessageID: id, ChatID: chatID}
	}
	toast := textCancelled
	if !h.svc.Cancel(tghelpers.BuildContext(c), c.Sender().ID, origin) {
		toast = textNothingToCancel
	}
	_ = tghelpers.Respond(c, toast)
	return nil
}

// CancelCommand handles /cancel.
func (h *Handlers) CancelCommand(c tele.Context) error {
	if c.Sender() == nil {
		return nil
	}
	reply := textNothingToCancel
	if h.svc.Cancel(tghelpers.BuildContext(c), c.Sender().ID, tele.StoredMessage{}) {
		reply = textCancelled
	}
	_ = tghelpers.SendText(c, reply)
	return nil
}

// InProgress reports whether the user's next message is feedback.
func (h *Handlers) InProgress(userID int64) bool {
	return h.svc.Awaiting(userID)
}

// ManagerHandler captures the current message as feedback.
func (h *Handlers) ManagerHandler(c tele.Context) error {
	if c.Sender() == nil || c.Chat() == nil {
		return nil
	}
	ctx := tghelpers.WithHandler(c, "feedback.capture")
	err := h.svc.Capture(ctx, UserFromTele(c.Sender()), c.Chat().ID, FromTele(c.Message()))
	switch {
	case errors.Is(err, ErrNotAwaiting):
		// cancelled or captured by a concurrent update
		return h.UnknownText()(c)
	case err != nil:
		// the user already got the failure notice
		logger.Debug(ctx, "feedback", "capture.done", slog.String("status", "fail"))
	}
	return nil
}

// UnknownText answers text that matched nothing.
func (h *Handlers) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		_ = tghelpers.SendText(c, textUnknown)
		return nil
	}
}

// UnknownMedia answers media sent outside a feedback session.
func (h *Handlers) UnknownMedia() tele.HandlerFunc {
	return h.UnknownText()
}

// UnknownCallback answers buttons whose handler no longer exists.
func (h *Handlers) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		_ = tghelpers.Respond(c, textStaleButton)
		return nil
	}
}
