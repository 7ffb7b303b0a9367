package middleware

import (
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func newMessageContext(userID int64, text string) tele.Context {
	msg := &tele.Message{
		Text:   text,
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
	}
	return (&tele.Bot{}).NewContext(tele.Update{ID: 1, Message: msg})
}

func TestRateLimitMiddlewareDropsBurst(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		OnLimited: func(tele.Context) error { limited++; return nil },
		Now:       func() time.Time { return now },
	})
	handled := 0
	h := mw(func(tele.Context) error { handled++; return nil })

	_ = h(newMessageContext(7, "a"))
	_ = h(newMessageContext(7, "b"))
	now = now.Add(2 * time.Second)
	_ = h(newMessageContext(7, "c"))
	_ = h(newMessageContext(8, "d"))

	if handled != 3 || limited != 1 {
		t.Fatalf("handled=%d limited=%d", handled, limited)
	}
}

func TestRateLimitMiddlewareExclusions(t *testing.T) {
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"message": {}},
	})
	handled := 0
	h := mw(func(tele.Context) error { handled++; return nil })
	for i := 0; i < 3; i++ {
		_ = h(newMessageContext(7, "x"))
	}
	if handled != 3 {
		t.Fatalf("excluded updates must pass, handled=%d", handled)
	}
}

func TestRecoverMiddlewareReturnsError(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	if err := h(newMessageContext(1, "x")); err == nil {
		t.Fatal("expected panic to surface as error")
	}
	sentinel := errors.New("plain")
	h = RecoverMiddleware(func(tele.Context) error { return sentinel })
	if err := h(newMessageContext(1, "x")); !errors.Is(err, sentinel) {
		t.Fatalf("errors must pass through, got %v", err)
	}
}

func TestMessageKind(t *testing.T) {
	cases := map[string]*tele.Message{
		"photo":    {Photo: &tele.Photo{}},
		"video":    {Video: &tele.Video{}},
		"document": {Document: &tele.Document{}},
		"voice":    {Voice: &tele.Voice{}},
		"text":     {Text: "hi"},
		"other":    {Sticker: &tele.Sticker{}},
	}
	for want, m := range cases {
		if got := messageKind(m); got != want {
			t.Fatalf("messageKind = %q, want %q", got, want)
		}
	}
}
