// Package keyboard builds inline reply markups.
package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn describes a callback button. When WebAppURL is set the button
// opens that Web App instead of sending a callback.
type InlineBtn struct {
	Text      string
	Unique    string
	Data      string
	WebAppURL string
}

const defaultCancelButtonText = "❌ Cancel"

// InlineButtons places every button on its own row.
func InlineButtons(buttons ...InlineBtn) *tele.ReplyMarkup {
	rows := make([][]InlineBtn, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []InlineBtn{b})
	}
	return InlineButtonsRows(rows...)
}

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			if btn.WebAppURL != "" {
				r[j] = tele.InlineButton{Text: btn.Text, WebApp: &tele.WebApp{URL: btn.WebAppURL}}
				continue
			}
			r[j] = *markup.Data(btn.Text, btn.Unique, btn.Data).Inline()
		}
		inline[i] = r
	}
	markup.InlineKeyboard = inline
	return markup
}

// SingleCancelMarkup is an inline keyboard holding one cancel button bound to
// the action callback. An optional label replaces the default text.
func SingleCancelMarkup(action string, label ...string) *tele.ReplyMarkup {
	text := defaultCancelButtonText
	if len(label) > 0 && label[0] != "" {
		text = label[0]
	}
	return InlineButtons(InlineBtn{Text: text, Unique: action, Data: "cancel"})
}
