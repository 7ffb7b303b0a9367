// Package backend talks to the mail-dispatch API: token issue, token refresh
// and send-email.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/m3rciful/feedbot/core/logger"
)

const (
	tokenPath   = "/token/"
	refreshPath = "/token/refresh/"
	mailPath    = "/mail/send-email"

	maxErrorBody = 512
)

// Credentials are the login pair exchanged for a token pair.
type Credentials struct {
	Email    string
	Password string
}

// TokenPair is the payload returned by the login exchange.
type TokenPair struct {
	Access  string
	Refresh string
}

// Mail is a single send-email request.
type Mail struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
	ToEmail string `json:"to_email"`
}

// Client is a thin JSON client for the backend API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client rooted at baseURL. A nil httpClient falls back to
// http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
	}
}

// IssueToken performs the login exchange.
func (c *Client) IssueToken(ctx context.Context, creds Credentials) (TokenPair, error) {
	body := map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	}
	var out struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := c.postJSON(ctx, "token.issue", tokenPath, nil, body, &out); err != nil {
		return TokenPair{}, &AuthenticationError{Op: "issue", Err: err}
	}
	if out.Access == "" {
		return TokenPair{}, &AuthenticationError{Op: "issue", Err: errors.New("empty access token in response")}
	}
	return TokenPair{Access: out.Access, Refresh: out.Refresh}, nil
}

// RefreshToken exchanges a refresh token for a new access token. The returned
// refresh token is empty unless the backend rotated it.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (TokenPair, error) {
	var out struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := c.postJSON(ctx, "token.refresh", refreshPath, nil, map[string]string{"refresh": refresh}, &out); err != nil {
		return TokenPair{}, &AuthenticationError{Op: "refresh", Err: err}
	}
	if out.Access == "" {
		return TokenPair{}, &AuthenticationError{Op: "refresh", Err: errors.New("empty access token in response")}
	}
	return TokenPair{Access: out.Access, Refresh: out.Refresh}, nil
}

// SendEmail posts mail with bearer authentication. Every failure is a
// *SubmissionError; a 401 additionally matches ErrUnauthorized.
func (c *Client) SendEmail(ctx context.Context, tok *oauth2.Token, mail Mail) error {
	if tok == nil || tok.AccessToken == "" {
		return &SubmissionError{Err: ErrUnauthorized}
	}
	if err := c.postJSON(ctx, "mail.send", mailPath, tok, mail, nil); err != nil {
		return &SubmissionError{Err: err}
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, tok *oauth2.Token, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if tok != nil {
		tok.SetAuthHeader(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn(ctx, "backend", "request.fail",
			slog.String("op", op),
			slog.String("request_id", reqID),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	logger.Debug(ctx, "backend", "request.done",
		slog.String("op", op),
		slog.String("request_id", reqID),
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(excerpt)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
