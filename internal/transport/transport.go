// Package transport defines the chat gateway the bot talks through.
//
// The gateway is long-polled for updates and called for every outbound
// message. Delivery is best effort: failures are returned as errors and
// the caller decides whether to log and move on.
package transport

import (
	"context"
	"time"
)

// Update is one inbound event from the gateway. Exactly one of Message,
// EditedMessage or Callback is set.
type Update struct {
	ID            int64
	Message       *Message
	EditedMessage *Message
	Callback      *Callback
}

// Sender identifies the person behind a message or callback.
type Sender struct {
	ID        string
	FirstName string
	LastName  string
	Username  string
}

// Message is a chat message. Media fields are file references understood by
// the gateway.
type Message struct {
	MessageID int64
	ChatID    string
	From      Sender
	Date      time.Time
	Text      string
	Caption   string

	Photo    string
	Document string
	Voice    *Voice
	Video    bool
	Sticker  bool
	Location *Location
}

// Voice is a voice note reference.
type Voice struct {
	FileID   string
	Duration int
}

// Location is a shared map point.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Callback is a press on an inline keyboard button.
type Callback struct {
	ID        string
	ChatID    string
	MessageID int64
	From      Sender
	Data      string
}

// Button is an inline keyboard button. It carries callback data, or a URL
// when it links out.
type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard is an inline keyboard, one slice per row.
type Keyboard struct {
	Rows [][]Button
}

// NewKeyboard builds a keyboard from rows of buttons.
func NewKeyboard(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows}
}

// Row is a convenience for a single keyboard row.
func Row(buttons ...Button) []Button {
	return buttons
}

// MediaKind is the kind of file sent with SendMedia.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaDocument MediaKind = "document"
	MediaVoice    MediaKind = "voice"
)

// Media is an outbound file reference.
type Media struct {
	Kind     MediaKind
	FileID   string
	Duration int
}

// Command is a bot command advertised to clients.
type Command struct {
	Name        string
	Description string
}

// Gateway is the chat transport.
type Gateway interface {
	// PollUpdates returns updates with id >= offset, waiting up to timeout
	// for at least one.
	PollUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
	SendText(ctx context.Context, chatID, text string, kb *Keyboard) error
	SendMedia(ctx context.Context, chatID string, media Media, caption string) error
	// CopyMessage re-sends a message by reference. An empty caption keeps
	// the original.
	CopyMessage(ctx context.Context, toChatID, fromChatID string, messageID int64, caption string) error
	AnswerCallback(ctx context.Context, callbackID string) error
	SetCommands(ctx context.Context, cmds []Command) error
}
