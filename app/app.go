// Package app assembles the feedback bot from the core building blocks.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/feedbot/app/feedback"
	"github.com/m3rciful/feedbot/core/auth"
	"github.com/m3rciful/feedbot/core/bootstrap"
	"github.com/m3rciful/feedbot/core/cmd"
	"github.com/m3rciful/feedbot/core/logger"
	coretelegram "github.com/m3rciful/feedbot/core/telegram"
	"github.com/m3rciful/feedbot/core/telegram/commands"
	"github.com/m3rciful/feedbot/core/telegram/router"
	"github.com/m3rciful/feedbot/core/telegram/state"
)

// App wires configuration, the token manager and the feedback service into
// Telegram run options.
type App struct {
	cfg      *Config
	tokens   *auth.Manager
	service  *feedback.Service
	handlers *feedback.Handlers
}

// New builds the App from loaded configuration and bootstrapped infrastructure.
func New(cfg *Config, infra *bootstrap.Result) (*App, error) {
	if cfg == nil || infra == nil {
		return nil, fmt.Errorf("app: config and infrastructure are required")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	submitter := feedback.NewSubmitter(infra.Tokens, infra.Backend, feedback.SubmitterOptions{
		To:       cfg.Feedback.ToEmail,
		Subject:  cfg.Feedback.Subject,
		Location: loc,
	})
	svc := feedback.NewService(state.NewMemoryManager(), submitter, feedback.Options{
		CleanupDelay: cfg.CleanupDelay(),
	})
	return &App{
		cfg:      cfg,
		tokens:   infra.Tokens,
		service:  svc,
		handlers: feedback.NewHandlers(svc, cfg.WebApp.URL),
	}, nil
}

// Bootstrap is the cmd.Options hook: it initialises infrastructure for cfg
// and returns the App.
func Bootstrap(ctx context.Context, carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	infra, err := bootstrap.Run(ctx, bootstrap.Options{
		Config: cfg.CoreConfig(),
		Backend: bootstrap.BackendOptions{
			BaseURL:  cfg.Backend.BaseURL,
			Email:    cfg.Backend.Email,
			Password: cfg.Backend.Password,
			Timeout:  cfg.BackendTimeout(),
		},
		WarmUp: !cfg.Backend.SkipWarmUp,
	})
	if err != nil {
		return nil, err
	}
	return New(cfg, infra)
}

// Load adapts LoadConfig to cmd.Options.
func Load(path string) (cmd.ConfigCarrier, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Registry builds the command and callback registry of the bot.
func (a *App) Registry() (*coretelegram.Registry, error) {
	reg := coretelegram.NewRegistry()
	h := a.handlers

	cmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{Handler: h.Start, Description: "Open the app"}},
		{"/feedback", commands.Command{Handler: h.Feedback, Description: "Send us feedback"}},
		{"/cancel", commands.Command{Handler: h.CancelCommand, Description: "Cancel the feedback you started"}},
		{"/help", commands.Command{Handler: h.Help, Description: "Show what the bot can do"}},
	}
	for _, c := range cmds {
		if err := reg.RegisterCommand(c.name, c.cmd); err != nil {
			return nil, err
		}
	}

	if err := reg.RegisterCallback(feedback.CallbackGive, h.Give); err != nil {
		return nil, err
	}
	if err := reg.RegisterCallback(feedback.CallbackCancel, h.CancelButton); err != nil {
		return nil, err
	}
	reg.SetCallbackNotFound(h.UnknownCallback())
	return reg, nil
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg, err := a.Registry()
	if err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("app: registry: %w", err)
	}

	routes := router.CommandRoutes(reg)
	routes = append(routes, router.CallbackRoute(reg, a.handlers.UnknownCallback()))
	routes = append(routes, router.MessageRoutes(a.handlers, reg, a.handlers)...)

	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			if rt.Messenger == nil {
				return fmt.Errorf("app: runtime has no messenger")
			}
			a.service.Attach(rt.Messenger)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			attrs := []slog.Attr{slog.Bool("token_cached", a.tokens != nil && a.tokens.Token() != nil)}
			if rt.Dispatcher != nil {
				attrs = append(attrs,
					slog.Uint64("sends", rt.Dispatcher.Processed()),
					slog.Uint64("send_errors", rt.Dispatcher.ErrorCount()),
				)
			}
			logger.Info(ctx, "app", "stats", attrs...)
			return nil
		},
	}, nil
}
