package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"golang.org/x/oauth2"
)

const testBase = "https://api.example.test/api"

func newMockedClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	return NewClient(testBase+"/", &http.Client{Transport: mock}), mock
}

func TestIssueTokenSendsCredentials(t *testing.T) {
	client, mock := newMockedClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+"/token/", func(req *http.Request) (*http.Response, error) {
		var body map[string]string
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["email"] != "bot@example.test" || body["password"] != "secret" {
			t.Fatalf("unexpected credentials: %v", body)
		}
		if req.Header.Get("X-Request-ID") == "" {
			t.Fatalf("expected X-Request-ID header")
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"access": "acc-1", "refresh": "ref-1"})
	})

	pair, err := client.IssueToken(context.Background(), Credentials{Email: "bot@example.test", Password: "secret"})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if pair.Access != "acc-1" || pair.Refresh != "ref-1" {
		t.Fatalf("unexpected pair: %+v", pair)
	}
}

func TestIssueTokenRejectedIsAuthenticationError(t *testing.T) {
	client, mock := newMockedClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+"/token/",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"detail":"No active account"}`))

	_, err := client.IssueToken(context.Background(), Credentials{Email: "x", Password: "y"})
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected wrapped 401 status, got %v", err)
	}
}

func TestRefreshTokenPostsRefresh(t *testing.T) {
	client, mock := newMockedClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+"/token/refresh/", func(req *http.Request) (*http.Response, error) {
		var body map[string]string
		_ = json.NewDecoder(req.Body).Decode(&body)
		if body["refresh"] != "ref-1" {
			t.Fatalf("unexpected refresh body: %v", body)
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"access": "acc-2"})
	})

	pair, err := client.RefreshToken(context.Background(), "ref-1")
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if pair.Access != "acc-2" || pair.Refresh != "" {
		t.Fatalf("unexpected pair: %+v", pair)
	}
}

func TestRefreshTokenEmptyAccess(t *testing.T) {
	client, mock := newMockedClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+"/token/refresh/",
		httpmock.NewStringResponder(http.StatusOK, `{}`))

	_, err := client.RefreshToken(context.Background(), "ref-1")
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationError, got %v", err)
	}
}

func TestSendEmailUsesBearer(t *testing.T) {
	client, mock := newMockedClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+"/mail/send-email", func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("Authorization"); got != "Bearer acc-1" {
			t.Fatalf("unexpected Authorization header %q", got)
		}
		var mail Mail
		if err := json.NewDecoder(req.Body).Decode(&mail); err != nil {
			t.Fatalf("decode mail: %v", err)
		}
		if mail.ToEmail != "team@example.test" || mail.Message != "hi" || mail.Subject != "s" {
			t.Fatalf("unexpected mail: %+v", mail)
		}
		return httpmock.NewStringResponse(http.StatusCreated, ""), nil
	})

	err := client.SendEmail(context.Background(), &oauth2.Token{AccessToken: "acc-1"}, Mail{Subject: "s", Message: "hi", ToEmail: "team@example.test"})
	if err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
}

func TestSendEmailUnauthorized(t *testing.T) {
	client, mock := newMockedClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+"/mail/send-email",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"code":"token_not_valid"}`))

	err := client.SendEmail(context.Background(), &oauth2.Token{AccessToken: "stale"}, Mail{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %T", err)
	}
	if subErr.Code() != "submit_unauthorized" {
		t.Fatalf("unexpected code %q", subErr.Code())
	}
}

func TestSendEmailServerErrorIsNotUnauthorized(t *testing.T) {
	client, mock := newMockedClient(t)
	mock.RegisterResponder(http.MethodPost, testBase+"/mail/send-email",
		httpmock.NewStringResponder(http.StatusBadGateway, "upstream down"))

	err := client.SendEmail(context.Background(), &oauth2.Token{AccessToken: "acc"}, Mail{})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatalf("502 must not match ErrUnauthorized: %v", err)
	}
	if got := mock.GetCallCountInfo()["POST "+testBase+"/mail/send-email"]; got != 1 {
		t.Fatalf("expected exactly one call, got %d", got)
	}
}

func TestSendEmailWithoutTokenSkipsRequest(t *testing.T) {
	client, mock := newMockedClient(t)
	err := client.SendEmail(context.Background(), nil, Mail{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if mock.GetTotalCallCount() != 0 {
		t.Fatalf("expected no HTTP calls")
	}
}
