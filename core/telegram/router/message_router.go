package router

import (
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/feedbot/core/telegram"
	"github.com/m3rciful/feedbot/core/telegram/ui"
)

// FSM is the conversation owner consulted before any fallback.
type FSM interface {
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}

// MessageEndpoints lists the message kinds routed through MessageRoutes.
var MessageEndpoints = []string{
	tele.OnText,
	tele.OnPhoto,
	tele.OnVideo,
	tele.OnDocument,
	tele.OnVoice,
	tele.OnAudio,
	tele.OnAnimation,
	tele.OnSticker,
	tele.OnVideoNote,
	tele.OnLocation,
	tele.OnContact,
	tele.OnVenue,
	tele.OnDice,
	tele.OnGame,
	tg.OnOtherMessage,
}

// MessageRoutes builds handlers for non-command messages. Slash-prefixed
// text never reaches the FSM: a registered command or alias runs its
// handler, anything else gets the unknown-text reply. Other messages go to
// the FSM while the sender has an active conversation.
func MessageRoutes(fsm FSM, reg *tg.Registry, fallback ui.FallbackProvider) []tg.Route {
	var unknownText, unknownMedia tele.HandlerFunc
	if fallback != nil {
		unknownText = fallback.UnknownText()
		unknownMedia = fallback.UnknownMedia()
	}

	handler := func(c tele.Context) error {
		start := time.Now()
		msg := c.Message()
		if msg == nil || c.Sender() == nil {
			return nil
		}

		if isCommandText(msg.Text) {
			if reg != nil {
				if key, cmd, ok := reg.LookupCommand(msg.Text); ok && cmd.Handler != nil {
					return handleWithSummary(c, normalizeHandlerName(key), start, "", "", func() error {
						return cmd.Handler(c)
					})
				}
			}
			return runFallback(c, "unknown_command", start, unknownText)
		}

		if fsm != nil && fsm.InProgress(c.Sender().ID) {
			return handleWithSummary(c, "fsm", start, "", "", func() error {
				return fsm.ManagerHandler(c)
			})
		}

		if msg.Text != "" {
			return runFallback(c, "unknown_text", start, unknownText)
		}
		return runFallback(c, "unknown_media", start, unknownMedia)
	}

	routes := make([]tg.Route, 0, len(MessageEndpoints))
	for _, ep := range MessageEndpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: handler})
	}
	return routes
}

func runFallback(c tele.Context, name string, start time.Time, h tele.HandlerFunc) error {
	if h == nil {
		logHandlerSummary(c, name, start, "skip", "skip", nil)
		return nil
	}
	return handleWithSummary(c, name, start, "", "", func() error { return h(c) })
}

func isCommandText(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}
