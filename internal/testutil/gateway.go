package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/ghostchat/internal/notify"
	"github.com/roach88/ghostchat/internal/transport"
)

// Sent is one outbound call recorded by FakeGateway.
type Sent struct {
	Kind       string // "text", "media" or "copy"
	ChatID     string
	Text       string
	Keyboard   *transport.Keyboard
	Media      transport.Media
	FromChatID string
	MessageID  int64
}

// FakeGateway is an in-memory transport.Gateway.
//
// Updates queued with Push are returned by PollUpdates in order, honoring
// the offset. Every outbound call is recorded. FailChats makes sends to the
// listed chats fail with Err.
type FakeGateway struct {
	mu        sync.Mutex
	updates   []transport.Update
	sent      []Sent
	commands  []transport.Command
	answered  []string
	failChats map[string]error
	pollErr   error
}

// NewFakeGateway creates an empty gateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{failChats: make(map[string]error)}
}

// Push queues inbound updates.
func (g *FakeGateway) Push(updates ...transport.Update) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updates = append(g.updates, updates...)
}

// FailChat makes every send to chatID return err.
func (g *FakeGateway) FailChat(chatID string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failChats[chatID] = err
}

// FailPoll makes PollUpdates return err until cleared with nil.
func (g *FakeGateway) FailPoll(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pollErr = err
}

// PollUpdates implements transport.Gateway. It never waits.
func (g *FakeGateway) PollUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]transport.Update, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pollErr != nil {
		return nil, g.pollErr
	}
	var out []transport.Update
	for _, u := range g.updates {
		if u.ID >= offset {
			out = append(out, u)
		}
	}
	return out, nil
}

func (g *FakeGateway) record(s Sent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failChats[s.ChatID]; err != nil {
		return err
	}
	g.sent = append(g.sent, s)
	return nil
}

// SendText implements transport.Gateway.
func (g *FakeGateway) SendText(ctx context.Context, chatID, text string, kb *transport.Keyboard) error {
	return g.record(Sent{Kind: "text", ChatID: chatID, Text: text, Keyboard: kb})
}

// SendMedia implements transport.Gateway.
func (g *FakeGateway) SendMedia(ctx context.Context, chatID string, media transport.Media, caption string) error {
	return g.record(Sent{Kind: "media", ChatID: chatID, Text: caption, Media: media})
}

// CopyMessage implements transport.Gateway.
func (g *FakeGateway) CopyMessage(ctx context.Context, toChatID, fromChatID string, messageID int64, caption string) error {
	return g.record(Sent{Kind: "copy", ChatID: toChatID, FromChatID: fromChatID, MessageID: messageID, Text: caption})
}

// AnswerCallback implements transport.Gateway.
func (g *FakeGateway) AnswerCallback(ctx context.Context, callbackID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answered = append(g.answered, callbackID)
	return nil
}

// SetCommands implements transport.Gateway.
func (g *FakeGateway) SetCommands(ctx context.Context, cmds []transport.Command) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commands = append([]transport.Command(nil), cmds...)
	return nil
}

// Sent returns a copy of every recorded outbound call.
func (g *FakeGateway) Sent() []Sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Sent(nil), g.sent...)
}

// SentTo returns the recorded calls addressed to chatID.
func (g *FakeGateway) SentTo(chatID string) []Sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Sent
	for _, s := range g.sent {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

// Commands returns the last command list set.
func (g *FakeGateway) Commands() []transport.Command {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]transport.Command(nil), g.commands...)
}

// Answered returns the callback ids acknowledged so far.
func (g *FakeGateway) Answered() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.answered...)
}

// RecordingNotifier collects notifications synchronously.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

// Notify implements notify.Notifier.
func (r *RecordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

// All returns a copy of every notification received.
func (r *RecordingNotifier) All() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}

// To returns the notifications addressed to chatID.
func (r *RecordingNotifier) To(chatID string) []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Notification
	for _, n := range r.sent {
		if n.ChatID == chatID {
			out = append(out, n)
		}
	}
	return out
}

// Texts returns the text bodies sent to chatID, in order.
func (r *RecordingNotifier) Texts(chatID string) []string {
	var out []string
	for _, n := range r.To(chatID) {
		out = append(out, n.Text)
	}
	return out
}

// Reset forgets everything recorded so far.
func (r *RecordingNotifier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
