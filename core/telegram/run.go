package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/feedbot/core/config"
	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/netutil"
	tghelpers "github.com/m3rciful/feedbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/feedbot/core/telegram/sender"
)

// DefaultErrorReply is sent when a handler fails and RunOptions.ErrorReply is
// empty.
const DefaultErrorReply = "Sorry, something went wrong. Please try again later."

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to a telebot endpoint.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	// ErrorReply is sent to the chat when a handler returns an error.
	ErrorReply            string
	DisableWebhookCleanup bool
	// Offline skips the getMe call; tests use it to build a bot without
	// network access.
	Offline bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Messenger  *Messenger
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram composes and runs a Telegram bot until ctx is done. Handlers
// already running when ctx is cancelled are allowed to finish.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}

	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	errorReply := opts.ErrorReply
	if errorReply == "" {
		errorReply = DefaultErrorReply
	}

	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	})

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  netutil.NewHTTPClient(netutil.ClientOptions{Retries: 3}),
		OnError: errorHandler(errorReply),
		Offline: opts.Offline,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	rt := Runtime{
		Bot:        bot,
		Messenger:  NewMessenger(bot, dispatcher),
		Dispatcher: dispatcher,
		Registry:   reg,
	}

	logMode(ctx, poller, logger.Took(buildStart))
	if _, polling := poller.(*tele.LongPoller); polling && !opts.DisableWebhookCleanup && !opts.Offline {
		removeWebhook(ctx, bot)
	}

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	otherRouted := false
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
			otherRouted = otherRouted || route.Endpoint == OnOtherMessage
		}
	}
	if otherRouted {
		bot.Poller = withOtherMessages(bot, poller)
	}
	if !opts.Offline {
		SetupCommands(bot, reg)
	}

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			dispatcher.Close()
			return err
		}
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info(ctx, "tg", "shutdown", slog.String("cause", context.Cause(ctx).Error()))
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	dispatcher.Close()

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// errorHandler logs a failed update and apologises in the chat.
func errorHandler(reply string) func(error, tele.Context) {
	return func(err error, c tele.Context) {
		if c == nil {
			logger.Error(context.Background(), "tg", "bot.error",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			return
		}
		ctx := tghelpers.BuildContext(c)
		logger.Error(ctx, "tg", "handler.error",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		if c.Callback() != nil {
			_ = c.Respond()
		}
		if c.Chat() != nil {
			_ = tghelpers.SendText(c, reply)
		}
	}
}

func logMode(ctx context.Context, poller tele.Poller, took time.Duration) {
	switch p := poller.(type) {
	case *tele.Webhook:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", took),
		)
	case *tele.LongPoller:
		logger.Info(ctx, "tg", "mode",
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("timeout", p.Timeout),
			slog.Duration("duration", took),
		)
	}
}

// removeWebhook clears a webhook left from an earlier webhook deployment;
// Telegram refuses getUpdates while one is set.
func removeWebhook(ctx context.Context, bot *tele.Bot) {
	if err := bot.RemoveWebhook(false); err != nil {
		logger.Warn(ctx, "tg", "webhook.delete",
			slog.String("status", "fail"),
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.String("err", strings.TrimSpace(err.Error())),
		)
		return
	}
	logger.Info(ctx, "tg", "webhook.delete",
		slog.String("status", "ok"),
		slog.String("mode", coreconfig.RunModeLongpoll),
	)
}
