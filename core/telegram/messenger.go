package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/telegram/sender"
)

// BotAPI is the part of *tele.Bot used by Messenger.
type BotAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// ChatAPIError wraps a failed Telegram call.
type ChatAPIError struct {
	Op  string
	Err error
}

func (e *ChatAPIError) Error() string {
	return fmt.Sprintf("telegram %s: %v", e.Op, e.Err)
}

func (e *ChatAPIError) Unwrap() error { return e.Err }

// Code classifies the error for handler logs.
func (e *ChatAPIError) Code() string { return "chat_api" }

// Messenger sends and deletes messages outside a tele.Context, for example
// to clean up a prompt from an earlier update.
type Messenger struct {
	api        BotAPI
	dispatcher *sender.Dispatcher
}

// NewMessenger wraps api. When d is non-nil deletions run on it.
func NewMessenger(api BotAPI, d *sender.Dispatcher) *Messenger {
	return &Messenger{api: api, dispatcher: d}
}

// Send posts text to chatID and returns a reference usable with Delete.
func (m *Messenger) Send(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (tele.StoredMessage, error) {
	var opts []interface{}
	if markup != nil {
		opts = append(opts, markup)
	}
	msg, err := m.api.Send(tele.ChatID(chatID), text, opts...)
	if err != nil {
		return tele.StoredMessage{}, &ChatAPIError{Op: "sendMessage", Err: err}
	}
	if msg == nil {
		return tele.StoredMessage{}, &ChatAPIError{Op: "sendMessage", Err: errors.New("empty response")}
	}
	id, chat := msg.MessageSig()
	return tele.StoredMessage{MessageID: id, ChatID: chat}, nil
}

// Delete removes msg. With a dispatcher the call is queued and its outcome
// is only logged; a full or closed queue falls back to a direct call.
func (m *Messenger) Delete(ctx context.Context, msg tele.StoredMessage) error {
	run := func(context.Context) error {
		if err := m.api.Delete(msg); err != nil {
			return &ChatAPIError{Op: "deleteMessage", Err: err}
		}
		return nil
	}
	if m.dispatcher == nil {
		return run(ctx)
	}
	err := m.dispatcher.Enqueue(ctx, "delete.message", run)
	if err == nil {
		return nil
	}
	logger.Debug(ctx, "tg.sender", "queue.fallback",
		slog.String("action", "delete.message"),
		slog.String("err", err.Error()),
	)
	return run(ctx)
}
