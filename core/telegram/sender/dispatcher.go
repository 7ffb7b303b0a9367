// Package sender runs outbound Telegram calls on a small worker pool so
// handlers never wait on best-effort work such as message deletion.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/backoff/v2"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/netutil"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

const defaultMaxRetries = 2

// Options controls the dispatcher. Zero values select defaults.
type Options struct {
	QueueSize int
	Workers   int
	// MaxRetries is the number of retries after the first attempt.
	// Zero selects defaultMaxRetries; a negative value disables retries.
	MaxRetries int
	// RetryBackoff is the first retry delay; later delays grow exponentially.
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on a single job including retries.
	MaxDuration time.Duration
}

type job struct {
	ctx    context.Context
	action string
	run    func(context.Context) error
}

// Dispatcher executes queued jobs and retries transient network failures.
type Dispatcher struct {
	opts   Options
	policy backoff.Policy
	jobs   chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	done atomic.Uint64
	errs atomic.Uint64
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = defaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 500 * time.Millisecond
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}

	d := &Dispatcher{
		opts: opts,
		policy: backoff.Exponential(
			backoff.WithMinInterval(opts.RetryBackoff),
			backoff.WithMaxInterval(opts.MaxDuration/2),
			backoff.WithMultiplier(2),
			backoff.WithMaxRetries(opts.MaxRetries+1),
		),
		jobs: make(chan job, opts.QueueSize),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue schedules run. The context passed to run carries the job deadline
// and the log metadata of ctx, but not its cancellation.
func (d *Dispatcher) Enqueue(ctx context.Context, action string, run func(context.Context) error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: context.WithoutCancel(ctx), action: action, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Processed returns the number of jobs that finished successfully.
func (d *Dispatcher) Processed() uint64 { return d.done.Load() }

// ErrorCount returns the number of jobs that failed for good.
func (d *Dispatcher) ErrorCount() uint64 { return d.errs.Load() }

// Close stops accepting jobs and waits until queued ones finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handle(j)
	}
}

func (d *Dispatcher) handle(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	b := d.policy.Start(ctx)

	var (
		attempt int
		lastErr error
	)
	for backoff.Continue(b) {
		attempt++
		lastErr = j.run(ctx)
		if lastErr == nil {
			d.done.Add(1)
			logger.Debug(j.ctx, "tg.sender", "send.done",
				append(jobAttrs(j),
					slog.String("status", "ok"),
					slog.Int("attempt", attempt),
					slog.Duration("duration", logger.Took(start)),
				)...,
			)
			return
		}
		if attempt >= attempts || !netutil.ShouldRetry(lastErr) {
			break
		}
		logger.Debug(j.ctx, "tg.sender", "send.retry",
			append(jobAttrs(j),
				slog.String("status", "retry"),
				slog.Int("attempt", attempt),
				slog.String("err", sanitizeErrorMessage(lastErr)),
			)...,
		)
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}

	d.errs.Add(1)
	logger.Warn(j.ctx, "tg.sender", "send.done",
		append(jobAttrs(j),
			slog.String("status", "fail"),
			slog.Int("attempts", attempt),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", sanitizeErrorMessage(lastErr)),
			slog.String("error_kind", classifyError(lastErr)),
		)...,
	)
}

func jobAttrs(j job) []slog.Attr {
	return []slog.Attr{slog.String("action", j.action)}
}

func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	switch status := httpStatusFromError(err); {
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// sanitizeErrorMessage masks bot tokens that telebot embeds in request URLs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

func httpStatusFromError(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}
	return 0
}
