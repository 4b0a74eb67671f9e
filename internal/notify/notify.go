// Package notify delivers outbound messages to the gateway off the hot path.
//
// Callers hand a Notification to a Notifier and move on. The Dispatcher
// implementation keeps per-chat order by routing every chat to a fixed
// worker, caps the overall send rate, and drops (with a warning) when a
// worker's queue is full. Nothing is retried.
package notify

import (
	"github.com/roach88/ghostchat/internal/transport"
)

// Kind selects the gateway call used for a notification.
type Kind string

const (
	KindText  Kind = "text"
	KindMedia Kind = "media"
	KindCopy  Kind = "copy"
	// KindAnswer acknowledges an inline keyboard press.
	KindAnswer Kind = "answer"
)

// Notification is one outbound message.
type Notification struct {
	Kind   Kind
	ChatID string

	// Text is the message body for KindText and the caption otherwise.
	Text     string
	Keyboard *transport.Keyboard

	// Media is set for KindMedia.
	Media transport.Media

	// FromChatID and MessageID identify the source message for KindCopy.
	FromChatID string
	MessageID  int64

	// CallbackID is the press acknowledged by KindAnswer.
	CallbackID string
}

// Notifier accepts notifications for asynchronous delivery.
type Notifier interface {
	Notify(n Notification)
}

// Text builds a plain text notification.
func Text(chatID, text string) Notification {
	return Notification{Kind: KindText, ChatID: chatID, Text: text}
}

// TextWithKeyboard builds a text notification with an inline keyboard.
func TextWithKeyboard(chatID, text string, kb *transport.Keyboard) Notification {
	return Notification{Kind: KindText, ChatID: chatID, Text: text, Keyboard: kb}
}

// MediaMessage builds a media notification.
func MediaMessage(chatID string, media transport.Media, caption string) Notification {
	return Notification{Kind: KindMedia, ChatID: chatID, Media: media, Text: caption}
}

// Copy builds a notification that re-sends an existing message.
func Copy(toChatID, fromChatID string, messageID int64, caption string) Notification {
	return Notification{Kind: KindCopy, ChatID: toChatID, FromChatID: fromChatID, MessageID: messageID, Text: caption}
}

// Answer acknowledges a keyboard press made in chatID.
func Answer(chatID, callbackID string) Notification {
	return Notification{Kind: KindAnswer, ChatID: chatID, CallbackID: callbackID}
}

// Discard drops every notification.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(Notification) {}
