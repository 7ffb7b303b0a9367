package keyboard

import "testing"

func TestInlineButtonsRowsWebApp(t *testing.T) {
	markup := InlineButtons(
		InlineBtn{Text: "Open", WebAppURL: "https://app.example.test"},
		InlineBtn{Text: "Give feedback", Unique: "feedback_give"},
	)
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected two rows, got %d", len(markup.InlineKeyboard))
	}
	web := markup.InlineKeyboard[0][0]
	if web.WebApp == nil || web.WebApp.URL != "https://app.example.test" {
		t.Fatalf("first button should open the web app: %+v", web)
	}
	if cb := markup.InlineKeyboard[1][0]; cb.Unique != "feedback_give" || cb.WebApp != nil {
		t.Fatalf("second button should be a callback button: %+v", cb)
	}
}

func TestSingleCancelMarkup(t *testing.T) {
	markup := SingleCancelMarkup("feedback_cancel", "Cancel")
	if len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 1 {
		t.Fatalf("expected a single button, got %+v", markup.InlineKeyboard)
	}
	btn := markup.InlineKeyboard[0][0]
	if btn.Text != "Cancel" || btn.Unique != "feedback_cancel" {
		t.Fatalf("unexpected button %+v", btn)
	}
	if def := SingleCancelMarkup("x").InlineKeyboard[0][0]; def.Text != defaultCancelButtonText {
		t.Fatalf("default label not used: %q", def.Text)
	}
}
