// Package helpers bridges tele.Context and the logging context used by
// services, and wraps the common reply calls.
package helpers

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/logger"
)

const (
	storeKey = "feedbot.ctx"
	ridKey   = "rid"
)

// ids returns the update, user and chat ids of c; missing ones are zero.
func ids(c tele.Context) (updateID int, userID, chatID int64) {
	updateID = c.Update().ID
	if u := c.Sender(); u != nil {
		userID = u.ID
	}
	if ch := c.Chat(); ch != nil {
		chatID = ch.ID
	}
	return updateID, userID, chatID
}

// NewUpdateContext derives a fresh logging context for the update in c:
// rid, update/user/chat ids and the "tg" component logger. The rid is also
// stored on c under "rid". Nothing is cached; see BuildContext.
func NewUpdateContext(c tele.Context) context.Context {
	updateID, userID, chatID := ids(c)
	rid, _ := c.Get(ridKey).(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
		c.Set(ridKey, rid)
	}

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	return logger.WithLogger(ctx, logger.Component("tg"))
}

// StoreContext makes ctx the update's context for later BuildContext calls.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(storeKey, ctx)
	}
}

// ContextFrom returns the context stored on c, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(storeKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the update's stored context, creating and storing
// one when the logging middleware did not run.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	ctx := NewUpdateContext(c)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the update's context with handler and stores the result.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler != "" {
		ctx = logger.WithHandler(ctx, handler)
		StoreContext(c, ctx)
	}
	return ctx
}
