package router

import (
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/feedbot/core/telegram"
	"github.com/m3rciful/feedbot/core/telegram/commands"
)

type fakeFSM struct {
	active  map[int64]bool
	handled int
}

func (f *fakeFSM) InProgress(userID int64) bool { return f.active[userID] }

func (f *fakeFSM) ManagerHandler(tele.Context) error {
	f.handled++
	return nil
}

type fakeFallback struct{ text, media, callback int }

func (f *fakeFallback) UnknownText() tele.HandlerFunc {
	return func(tele.Context) error { f.text++; return nil }
}

func (f *fakeFallback) UnknownMedia() tele.HandlerFunc {
	return func(tele.Context) error { f.media++; return nil }
}

func (f *fakeFallback) UnknownCallback() tele.HandlerFunc {
	return func(tele.Context) error { f.callback++; return nil }
}

func messageContext(userID int64, msg *tele.Message) tele.Context {
	msg.Sender = &tele.User{ID: userID}
	msg.Chat = &tele.Chat{ID: userID, Type: tele.ChatPrivate}
	return (&tele.Bot{}).NewContext(tele.Update{ID: 1, Message: msg})
}

func messageHandler(t *testing.T, routes []tg.Route) tele.HandlerFunc {
	t.Helper()
	if len(routes) != len(MessageEndpoints) {
		t.Fatalf("expected %d routes, got %d", len(MessageEndpoints), len(routes))
	}
	return routes[0].Handler
}

func TestMessageRoutesCapturesWhileInProgress(t *testing.T) {
	fsm := &fakeFSM{active: map[int64]bool{7: true}}
	fb := &fakeFallback{}
	h := messageHandler(t, MessageRoutes(fsm, tg.NewRegistry(), fb))

	_ = h(messageContext(7, &tele.Message{Text: "great bot"}))
	_ = h(messageContext(7, &tele.Message{Photo: &tele.Photo{}}))
	_ = h(messageContext(8, &tele.Message{Text: "hello"}))
	_ = h(messageContext(8, &tele.Message{Sticker: &tele.Sticker{}}))

	if fsm.handled != 2 {
		t.Fatalf("expected 2 captured messages, got %d", fsm.handled)
	}
	if fb.text != 1 || fb.media != 1 {
		t.Fatalf("unexpected fallbacks text=%d media=%d", fb.text, fb.media)
	}
}

func TestMessageRoutesCaptureEveryMessageKind(t *testing.T) {
	bot, err := tele.NewBot(tele.Settings{Offline: true, Synchronous: true})
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	fsm := &fakeFSM{active: map[int64]bool{7: true}}
	for _, r := range MessageRoutes(fsm, tg.NewRegistry(), &fakeFallback{}) {
		bot.Handle(r.Endpoint, r.Handler)
	}

	kinds := map[string]*tele.Message{
		"dice":    {Dice: &tele.Dice{Type: tele.Cube.Type, Value: 4}},
		"venue":   {Venue: &tele.Venue{Title: "Cafe", Address: "Main st"}},
		"game":    {Game: &tele.Game{Title: "Snake"}},
		"sticker": {Sticker: &tele.Sticker{}},
		"contact": {Contact: &tele.Contact{PhoneNumber: "+100"}},
	}
	for name, msg := range kinds {
		before := fsm.handled
		msg.Sender = &tele.User{ID: 7}
		msg.Chat = &tele.Chat{ID: 7, Type: tele.ChatPrivate}
		bot.ProcessUpdate(tele.Update{ID: 1, Message: msg})
		if fsm.handled != before+1 {
			t.Fatalf("%s message was not captured", name)
		}
	}
}

func TestMessageRoutesNeverCaptureCommands(t *testing.T) {
	fsm := &fakeFSM{active: map[int64]bool{7: true}}
	fb := &fakeFallback{}
	reg := tg.NewRegistry()
	helpCalls := 0
	_ = reg.RegisterCommand("/help", commands.Command{
		Description: "Help",
		Aliases:     []string{"h"},
		Handler:     func(tele.Context) error { helpCalls++; return nil },
	})
	h := messageHandler(t, MessageRoutes(fsm, reg, fb))

	_ = h(messageContext(7, &tele.Message{Text: "/h"}))
	_ = h(messageContext(7, &tele.Message{Text: "/nope"}))

	if fsm.handled != 0 {
		t.Fatal("slash text must never be captured")
	}
	if helpCalls != 1 || fb.text != 1 {
		t.Fatalf("helpCalls=%d unknown=%d", helpCalls, fb.text)
	}
}

func TestCallbackRouteDispatchesByKey(t *testing.T) {
	reg := tg.NewRegistry()
	called := 0
	_ = reg.RegisterCallback("feedback_give", func(tele.Context) error { called++; return nil })
	route := CallbackRoute(reg, nil)
	if route.Endpoint != tele.OnCallback {
		t.Fatalf("unexpected endpoint %v", route.Endpoint)
	}

	c := (&tele.Bot{}).NewContext(tele.Update{ID: 2, Callback: &tele.Callback{
		Data:   "\ffeedback_give|",
		Sender: &tele.User{ID: 3},
	}})
	if err := route.Handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if called != 1 {
		t.Fatalf("expected callback to run once, got %d", called)
	}
}

func TestCallbackRouteUnknownKeyUsesRegistryFallback(t *testing.T) {
	reg := tg.NewRegistry()
	fallbackCalls := 0
	reg.SetCallbackNotFound(func(tele.Context) error { fallbackCalls++; return nil })
	route := CallbackRoute(reg, nil)

	c := (&tele.Bot{}).NewContext(tele.Update{ID: 3, Callback: &tele.Callback{
		Data:   "\fstale_button|x",
		Sender: &tele.User{ID: 3},
	}})
	_ = route.Handler(c)
	if fallbackCalls != 1 {
		t.Fatalf("expected not-found handler, got %d calls", fallbackCalls)
	}
}

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "submit failed" }

func TestDeriveErrorCode(t *testing.T) {
	if got := deriveErrorCode(codedErr{}); got != "SUBMIT_FAILED" {
		t.Fatalf("unexpected code %q", got)
	}
	wrapped := errors.Join(errors.New("ctx"), codedErr{})
	if got := deriveErrorCode(wrapped); got != "SUBMIT_FAILED" {
		t.Fatalf("wrapped coder not found: %q", got)
	}
	if got := deriveErrorCode(nil); got != "" {
		t.Fatalf("nil error should have no code, got %q", got)
	}
}

func TestNormalizeHandlerName(t *testing.T) {
	if got := normalizeHandlerName(" /Give Feedback "); got != "give_feedback" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := normalizeHandlerName(""); got != "unknown" {
		t.Fatalf("unexpected name %q", got)
	}
}
