package feedback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/m3rciful/feedbot/core/backend"
)

type fakeTokens struct {
	ensures     int
	acquires    int
	invalidates int
	ensureErr  error
	acquireErr error
}

func (f *fakeTokens) EnsureValidToken(context.Context) (*oauth2.Token, error) {
	f.ensures++
	if f.ensureErr != nil {
		return nil, f.ensureErr
	}
	return &oauth2.Token{AccessToken: "cached", TokenType: "Bearer"}, nil
}

func (f *fakeTokens) Acquire(context.Context) (*oauth2.Token, error) {
	f.acquires++
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return &oauth2.Token{AccessToken: fmt.Sprintf("fresh-%d", f.acquires), TokenType: "Bearer"}, nil
}

func (f *fakeTokens) Invalidate() { f.invalidates++ }

type fakeMail struct {
	errs   []error
	tokens []string
	mails  []backend.Mail
}

func (f *fakeMail) SendEmail(_ context.Context, tok *oauth2.Token, mail backend.Mail) error {
	f.tokens = append(f.tokens, tok.AccessToken)
	f.mails = append(f.mails, mail)
	if i := len(f.tokens) - 1; i < len(f.errs) {
		return f.errs[i]
	}
	return nil
}

func unauthorized() error {
	return &backend.SubmissionError{Err: &backend.StatusError{Op: "send_email", StatusCode: http.StatusUnauthorized}}
}

func newTestSubmitter(tokens *fakeTokens, mail *fakeMail) *Submitter {
	return NewSubmitter(tokens, mail, SubmitterOptions{
		To:       "team@example.test",
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC) },
	})
}

func TestSubmitSendsReport(t *testing.T) {
	tokens, mail := &fakeTokens{}, &fakeMail{}
	if err := newTestSubmitter(tokens, mail).Submit(context.Background(), User{ID: 5, FirstName: "Ann"}, "hello"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(mail.mails) != 1 || tokens.acquires != 0 {
		t.Fatalf("sends=%d acquires=%d", len(mail.mails), tokens.acquires)
	}
	got := mail.mails[0]
	if got.ToEmail != "team@example.test" || got.Subject != DefaultSubject {
		t.Fatalf("unexpected envelope %+v", got)
	}
	if want := BuildReport(User{ID: 5, FirstName: "Ann"}, "hello", time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)); got.Message != want {
		t.Fatalf("unexpected body:\n%s", got.Message)
	}
}

func TestSubmitRetriesOnceAfterUnauthorized(t *testing.T) {
	tokens, mail := &fakeTokens{}, &fakeMail{errs: []error{unauthorized()}}
	if err := newTestSubmitter(tokens, mail).Submit(context.Background(), User{ID: 1}, "x"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if tokens.acquires != 1 || tokens.invalidates != 0 {
		t.Fatalf("acquires=%d invalidates=%d, want 1 and 0", tokens.acquires, tokens.invalidates)
	}
	if len(mail.tokens) != 2 || mail.tokens[0] != "cached" || mail.tokens[1] != "fresh-1" {
		t.Fatalf("unexpected tokens used: %v", mail.tokens)
	}
}

func TestSubmitSecondUnauthorizedPropagates(t *testing.T) {
	tokens, mail := &fakeTokens{}, &fakeMail{errs: []error{unauthorized(), unauthorized(), unauthorized()}}
	err := newTestSubmitter(tokens, mail).Submit(context.Background(), User{ID: 1}, "x")
	if !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	var subErr *backend.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %T", err)
	}
	if len(mail.tokens) != 2 || tokens.acquires != 1 {
		t.Fatalf("sends=%d acquires=%d, want 2 and 1", len(mail.tokens), tokens.acquires)
	}
	if tokens.invalidates != 1 {
		t.Fatalf("rejected token kept in cache: invalidates=%d", tokens.invalidates)
	}
}

func TestSubmitOtherFailuresAreNotRetried(t *testing.T) {
	serverErr := &backend.SubmissionError{Err: &backend.StatusError{Op: "send_email", StatusCode: http.StatusBadGateway}}
	tokens, mail := &fakeTokens{}, &fakeMail{errs: []error{serverErr}}
	err := newTestSubmitter(tokens, mail).Submit(context.Background(), User{ID: 1}, "x")
	if !errors.Is(err, serverErr) {
		t.Fatalf("expected server error, got %v", err)
	}
	if len(mail.tokens) != 1 || tokens.acquires != 0 {
		t.Fatalf("sends=%d acquires=%d, want 1 and 0", len(mail.tokens), tokens.acquires)
	}
}

func TestSubmitTokenFailureSkipsSend(t *testing.T) {
	authErr := &backend.AuthenticationError{Op: "issue", Err: errors.New("bad credentials")}
	tokens, mail := &fakeTokens{ensureErr: authErr}, &fakeMail{}
	err := newTestSubmitter(tokens, mail).Submit(context.Background(), User{ID: 1}, "x")
	var got *backend.AuthenticationError
	if !errors.As(err, &got) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
	if len(mail.tokens) != 0 {
		t.Fatal("no mail should be sent without a token")
	}
}

func TestSubmitReacquireFailureStopsRetry(t *testing.T) {
	authErr := &backend.AuthenticationError{Op: "issue", Err: errors.New("down")}
	tokens, mail := &fakeTokens{acquireErr: authErr}, &fakeMail{errs: []error{unauthorized()}}
	err := newTestSubmitter(tokens, mail).Submit(context.Background(), User{ID: 1}, "x")
	if !errors.Is(err, authErr) {
		t.Fatalf("expected acquisition error, got %v", err)
	}
	if len(mail.tokens) != 1 {
		t.Fatalf("expected a single send, got %d", len(mail.tokens))
	}
}
