package feedback

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Markers used when a message carries no text of its own.
const (
	captionPrefix  = "[Media message with caption]: "
	markerPhoto    = "[Photo message without caption]"
	markerVideo    = "[Video message without caption]"
	markerDocument = "[Document message without caption]"
	markerVoice    = "[Voice message]"
	markerOther    = "[Other message type received]"
)

// Message is the part of an incoming chat message that Classify looks at.
type Message struct {
	Text        string
	Caption     string
	HasPhoto    bool
	HasVideo    bool
	HasDocument bool
	HasVoice    bool
}

// FromTele extracts a Message from a telebot message.
func FromTele(m *tele.Message) Message {
	if m == nil {
		return Message{}
	}
	return Message{
		Text:        m.Text,
		Caption:     m.Caption,
		HasPhoto:    m.Photo != nil,
		HasVideo:    m.Video != nil,
		HasDocument: m.Document != nil,
		HasVoice:    m.Voice != nil,
	}
}

// Classify turns a message into the feedback text to submit. The first
// matching rule wins: text, caption, photo, video, document, voice, other.
func Classify(m Message) string {
	switch {
	case strings.TrimSpace(m.Text) != "":
		return m.Text
	case strings.TrimSpace(m.Caption) != "":
		return captionPrefix + m.Caption
	case m.HasPhoto:
		return markerPhoto
	case m.HasVideo:
		return markerVideo
	case m.HasDocument:
		return markerDocument
	case m.HasVoice:
		return markerVoice
	default:
		return markerOther
	}
}
