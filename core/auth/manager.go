// Package auth keeps the backend access token alive: it acquires, caches,
// refreshes and re-issues the token pair on demand.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/m3rciful/feedbot/core/backend"
	"github.com/m3rciful/feedbot/core/logger"
)

const (
	// DefaultLifetime is assumed for every issued or refreshed access token.
	DefaultLifetime = time.Hour
	// DefaultBuffer is the margin before expiry within which a token is no
	// longer handed out.
	DefaultBuffer = 60 * time.Second
)

// Issuer performs the backend token exchanges.
type Issuer interface {
	IssueToken(ctx context.Context, creds backend.Credentials) (backend.TokenPair, error)
	RefreshToken(ctx context.Context, refresh string) (backend.TokenPair, error)
}

// Options configures a Manager. Zero durations select the defaults.
type Options struct {
	Lifetime time.Duration
	Buffer   time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Manager owns the process-wide token state.
type Manager struct {
	issuer   Issuer
	creds    backend.Credentials
	lifetime time.Duration
	buffer   time.Duration
	now      func() time.Time

	mu    sync.Mutex
	token *oauth2.Token

	group singleflight.Group
}

// NewManager builds a Manager that logs in with creds through issuer.
func NewManager(issuer Issuer, creds backend.Credentials, opts Options) *Manager {
	if opts.Lifetime <= 0 {
		opts.Lifetime = DefaultLifetime
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		issuer:   issuer,
		creds:    creds,
		lifetime: opts.Lifetime,
		buffer:   opts.Buffer,
		now:      opts.Now,
	}
}

// EnsureValidToken returns a token that stays usable for at least the buffer
// duration, refreshing or re-acquiring it first when needed.
func (m *Manager) EnsureValidToken(ctx context.Context) (*oauth2.Token, error) {
	current := m.snapshot()
	now := m.now()

	if current != nil && now.Before(current.Expiry.Add(-m.buffer)) {
		return current, nil
	}

	if current != nil && current.RefreshToken != "" && now.Before(current.Expiry) {
		logger.Debug(ctx, "auth", "token.expiring",
			slog.Duration("remaining", current.Expiry.Sub(now)),
		)
		return m.Refresh(ctx)
	}

	return m.Acquire(ctx)
}

// Acquire performs the full login exchange and replaces the stored pair.
// On failure the stored state is left untouched.
func (m *Manager) Acquire(ctx context.Context) (*oauth2.Token, error) {
	v, err, shared := m.do(ctx, "acquire", func(ctx context.Context) (any, error) {
		start := time.Now()
		pair, err := m.issuer.IssueToken(ctx, m.creds)
		if err != nil {
			logger.Error(ctx, "auth", "token.acquire",
				slog.String("status", "fail"),
				slog.Duration("duration", logger.RoundMS(time.Since(start))),
				slog.String("err", err.Error()),
			)
			return nil, asAuthError("issue", err)
		}

		tok := &oauth2.Token{
			AccessToken:  pair.Access,
			RefreshToken: pair.Refresh,
			TokenType:    "Bearer",
			Expiry:       m.now().Add(m.lifetime),
		}
		m.store(tok)
		logger.Info(ctx, "auth", "token.acquire",
			slog.String("status", "ok"),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
			slog.Time("expires_at", tok.Expiry),
		)
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debug(ctx, "auth", "token.acquire.shared")
	}
	return copyToken(v), nil
}

// Refresh exchanges the stored refresh token for a new access token. Any
// refresh failure falls back to Acquire, so the caller ends up with either a
// fresh token or an *backend.AuthenticationError.
func (m *Manager) Refresh(ctx context.Context) (*oauth2.Token, error) {
	current := m.snapshot()
	if current == nil || current.RefreshToken == "" {
		return m.Acquire(ctx)
	}

	v, err, _ := m.do(ctx, "refresh", func(ctx context.Context) (any, error) {
		start := time.Now()
		pair, err := m.issuer.RefreshToken(ctx, current.RefreshToken)
		if err != nil {
			return nil, err
		}

		refresh := pair.Refresh
		if refresh == "" {
			refresh = current.RefreshToken
		}
		tok := &oauth2.Token{
			AccessToken:  pair.Access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
			Expiry:       m.now().Add(m.lifetime),
		}
		m.store(tok)
		logger.Info(ctx, "auth", "token.refresh",
			slog.String("status", "ok"),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
			slog.Time("expires_at", tok.Expiry),
		)
		return tok, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn(ctx, "auth", "token.refresh",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
			slog.String("cause", "fallback_acquire"),
		)
		return m.Acquire(ctx)
	}
	return copyToken(v), nil
}

// do runs fn once per key for all concurrent callers. fn gets a context that
// keeps the caller's values but not its cancellation, so one caller giving
// up does not fail the exchange for the others; that caller alone returns
// its ctx error.
func (m *Manager) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	flightCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (any, error) { return fn(flightCtx) })
	select {
	case r := <-ch:
		return r.Val, r.Err, r.Shared
	case <-ctx.Done():
		return nil, ctx.Err(), false
	}
}

func copyToken(v any) *oauth2.Token {
	cp := *v.(*oauth2.Token)
	return &cp
}

// Invalidate drops the cached token; the next EnsureValidToken acquires anew.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
}

// Token returns a copy of the cached token, or nil.
func (m *Manager) Token() *oauth2.Token {
	return m.snapshot()
}

func (m *Manager) snapshot() *oauth2.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return nil
	}
	cp := *m.token
	return &cp
}

func (m *Manager) store(tok *oauth2.Token) {
	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()
}

func asAuthError(op string, err error) error {
	var authErr *backend.AuthenticationError
	if errors.As(err, &authErr) {
		return err
	}
	return &backend.AuthenticationError{Op: op, Err: err}
}
