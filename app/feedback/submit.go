package feedback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/m3rciful/feedbot/core/backend"
	"github.com/m3rciful/feedbot/core/logger"
)

// DefaultSubject is the mail subject when none is configured.
const DefaultSubject = "Telegram bot feedback"

// maxSubmitAttempts bounds the send loop: the first try plus one retry after
// re-acquiring the token on 401.
const maxSubmitAttempts = 2

// TokenSource hands out bearer tokens for the mail endpoint.
type TokenSource interface {
	EnsureValidToken(ctx context.Context) (*oauth2.Token, error)
	Acquire(ctx context.Context) (*oauth2.Token, error)
	Invalidate()
}

// MailSender posts a mail through the backend.
type MailSender interface {
	SendEmail(ctx context.Context, tok *oauth2.Token, mail backend.Mail) error
}

// SubmitterOptions configures a Submitter.
type SubmitterOptions struct {
	To      string
	Subject string
	// Location renders the report timestamp; defaults to time.Local.
	Location *time.Location
	Now      func() time.Time
}

// Submitter delivers feedback reports to the backend mail endpoint.
type Submitter struct {
	tokens  TokenSource
	mail    MailSender
	to      string
	subject string
	loc     *time.Location
	now     func() time.Time
}

// NewSubmitter builds a Submitter.
func NewSubmitter(tokens TokenSource, mail MailSender, opts SubmitterOptions) *Submitter {
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Submitter{
		tokens:  tokens,
		mail:    mail,
		to:      opts.To,
		subject: opts.Subject,
		loc:     opts.Location,
		now:     opts.Now,
	}
}

// Submit sends text from u as a report. A 401 from the mail endpoint causes
// one full token acquisition and one more send; any other failure, or a
// second 401, is returned as is. A second 401 also drops the cached token so
// the next submission starts with a fresh login.
func (s *Submitter) Submit(ctx context.Context, u User, text string) error {
	start := time.Now()
	tok, err := s.tokens.EnsureValidToken(ctx)
	if err != nil {
		s.logResult(ctx, u, 0, start, err)
		return err
	}

	mail := backend.Mail{
		Subject: s.subject,
		Message: BuildReport(u, text, s.now().In(s.loc)),
		ToEmail: s.to,
	}

	for attempt := 1; ; attempt++ {
		err = s.mail.SendEmail(ctx, tok, mail)
		unauthorized := errors.Is(err, backend.ErrUnauthorized)
		if err == nil || attempt >= maxSubmitAttempts || !unauthorized {
			if unauthorized {
				s.tokens.Invalidate()
			}
			s.logResult(ctx, u, attempt, start, err)
			return err
		}

		logger.Warn(ctx, "feedback", "submit.unauthorized",
			slog.String("status", "retry"),
			slog.Int("attempt", attempt),
		)
		if tok, err = s.tokens.Acquire(ctx); err != nil {
			s.logResult(ctx, u, attempt, start, err)
			return err
		}
	}
}

func (s *Submitter) logResult(ctx context.Context, u User, attempts int, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.Int64("user_id", u.ID),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.Took(start)),
	}
	if err == nil {
		logger.Info(ctx, "feedback", "submit", append(attrs, slog.String("status", "ok"))...)
		return
	}
	attrs = append(attrs,
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
	if code := errorCode(err); code != "" {
		attrs = append(attrs, slog.String("err_code", code))
	}
	logger.Error(ctx, "feedback", "submit", attrs...)
}

func errorCode(err error) string {
	var coder interface{ Code() string }
	if errors.As(err, &coder) {
		return coder.Code()
	}
	return ""
}
