package helpers

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/logger"
)

// SendText replies in the current chat without parse mode. The error is
// logged here; handlers drop it since a failed reply is cosmetic.
func SendText(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	return send(c, "send.text", text, firstMarkup(markup))
}

// Respond answers the current callback query with an optional toast.
func Respond(c tele.Context, toast string) error {
	if c.Callback() == nil {
		return nil
	}
	var resp []*tele.CallbackResponse
	if toast != "" {
		resp = append(resp, &tele.CallbackResponse{Text: toast})
	}
	if err := c.Respond(resp...); err != nil {
		logger.Warn(BuildContext(c), "tg", "callback.respond",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return err
	}
	return nil
}

func send(c tele.Context, action, text string, markup *tele.ReplyMarkup) error {
	var err error
	if markup != nil {
		err = c.Send(text, markup)
	} else {
		err = c.Send(text)
	}
	if err != nil {
		logger.Warn(BuildContext(c), "tg", action,
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	return err
}

func firstMarkup(markup []*tele.ReplyMarkup) *tele.ReplyMarkup {
	if len(markup) > 0 {
		return markup[0]
	}
	return nil
}
