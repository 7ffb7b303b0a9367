// Package bootstrap initialises the infrastructure shared by bots: logging,
// the backend API client and the token manager.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/feedbot/core/auth"
	"github.com/m3rciful/feedbot/core/backend"
	coreconfig "github.com/m3rciful/feedbot/core/config"
	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/netutil"
)

const defaultWarmUpTimeout = 10 * time.Second

// BackendOptions locate and authenticate against the backend API.
type BackendOptions struct {
	BaseURL  string
	Email    string
	Password string
	Timeout  time.Duration
}

// Options control the bootstrap pipeline.
type Options struct {
	Config  *coreconfig.Config
	Backend BackendOptions

	// WarmUp acquires the first token during startup. A failure is logged
	// and the token is acquired again on first use.
	WarmUp        bool
	WarmUpTimeout time.Duration

	LoggerInit func(*coreconfig.Config) error
	// Issuer replaces the HTTP backend in tests.
	Issuer auth.Issuer
}

// Result exposes infrastructure initialised by Run.
type Result struct {
	Backend *backend.Client
	Tokens  *auth.Manager
}

// Run initialises the logger, builds the backend client and the token
// manager, and optionally warms the token up.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	if strings.TrimSpace(opts.Backend.BaseURL) == "" {
		return nil, fmt.Errorf("bootstrap: backend base URL is required")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	// no transport retries here: the submission path decides about retries
	client := backend.NewClient(opts.Backend.BaseURL, netutil.NewHTTPClient(netutil.ClientOptions{
		Timeout: opts.Backend.Timeout,
	}))
	var issuer auth.Issuer = client
	if opts.Issuer != nil {
		issuer = opts.Issuer
	}
	tokens := auth.NewManager(issuer, backend.Credentials{
		Email:    opts.Backend.Email,
		Password: opts.Backend.Password,
	}, auth.Options{})

	if opts.WarmUp {
		warmUp(ctx, tokens, opts.WarmUpTimeout)
	}
	return &Result{Backend: client, Tokens: tokens}, nil
}

func warmUp(ctx context.Context, tokens *auth.Manager, timeout time.Duration) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = defaultWarmUpTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if _, err := tokens.EnsureValidToken(ctx); err != nil {
		logger.Warn(ctx, "app", "token.warmup",
			slog.String("status", "fail"),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.Info(ctx, "app", "token.warmup",
		slog.String("status", "ok"),
		slog.Duration("duration", logger.Took(start)),
	)
}
