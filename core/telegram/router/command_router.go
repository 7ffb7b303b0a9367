package router

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/logger"
	tg "github.com/m3rciful/feedbot/core/telegram"
)

// CommandRoutes binds every registered command and its aliases to a handler
// that logs a summary line.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}

	routes := make([]tg.Route, 0, len(reg.Commands()))
	for cmd, def := range reg.Commands() {
		name := normalizeHandlerName(cmd)
		h := def.Handler
		handler := func(c tele.Context) error {
			return handleWithSummary(c, name, time.Now(), "", "", func() error { return h(c) })
		}
		routes = append(routes, tg.Route{Endpoint: cmd, Handler: handler})
		for _, alias := range def.Aliases {
			if alias == "" {
				continue
			}
			if alias[0] != '/' {
				alias = "/" + alias
			}
			routes = append(routes, tg.Route{Endpoint: alias, Handler: handler})
		}
	}

	logger.Info(context.Background(), "tg.wire", "wire.complete",
		slog.String("status", "ok"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
