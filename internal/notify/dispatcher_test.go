package notify_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ghostchat/internal/notify"
	"github.com/roach88/ghostchat/internal/testutil"
	"github.com/roach88/ghostchat/internal/transport"
)

func TestDispatcher_DeliversAllKinds(t *testing.T) {
	gw := testutil.NewFakeGateway()
	d := notify.NewDispatcher(gw, notify.DispatcherConfig{Workers: 2}, testutil.DiscardLogger())

	kb := transport.NewKeyboard(transport.Row(transport.Button{Text: "Male", Data: "gender:Male"}))
	d.Notify(notify.TextWithKeyboard("c1", "hello", kb))
	d.Notify(notify.MediaMessage("c1", transport.Media{Kind: transport.MediaPhoto, FileID: "f1"}, "caption"))
	d.Notify(notify.Copy("c1", "c2", 7, ""))
	d.Notify(notify.Answer("c1", "cb-9"))

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"cb-9"}, gw.Answered())

	sent := gw.SentTo("c1")
	require.Len(t, sent, 3)
	assert.Equal(t, testutil.Sent{Kind: "text", ChatID: "c1", Text: "hello", Keyboard: kb}, sent[0])
	assert.Equal(t, "media", sent[1].Kind)
	assert.Equal(t, "f1", sent[1].Media.FileID)
	assert.Equal(t, "caption", sent[1].Text)
	assert.Equal(t, testutil.Sent{Kind: "copy", ChatID: "c1", FromChatID: "c2", MessageID: 7}, sent[2])
}

func TestDispatcher_PerChatOrder(t *testing.T) {
	gw := testutil.NewFakeGateway()
	d := notify.NewDispatcher(gw, notify.DispatcherConfig{Workers: 8, QueueSize: 1000}, testutil.DiscardLogger())

	const perChat = 50
	for i := 0; i < perChat; i++ {
		for _, chat := range []string{"a", "b", "c"} {
			d.Notify(notify.Text(chat, fmt.Sprintf("%d", i)))
		}
	}
	require.NoError(t, d.Close(context.Background()))

	for _, chat := range []string{"a", "b", "c"} {
		sent := gw.SentTo(chat)
		require.Len(t, sent, perChat)
		for i, s := range sent {
			assert.Equal(t, fmt.Sprintf("%d", i), s.Text, "chat %s message %d out of order", chat, i)
		}
	}
}

func TestDispatcher_FailureDoesNotBlockOthers(t *testing.T) {
	gw := testutil.NewFakeGateway()
	gw.FailChat("bad", errors.New("blocked by user"))
	d := notify.NewDispatcher(gw, notify.DispatcherConfig{Workers: 1}, testutil.DiscardLogger())

	d.Notify(notify.Text("bad", "x"))
	d.Notify(notify.Text("good", "y"))
	require.NoError(t, d.Close(context.Background()))

	assert.Empty(t, gw.SentTo("bad"))
	assert.Len(t, gw.SentTo("good"), 1)
}

func TestDispatcher_NotifyAfterCloseIsDropped(t *testing.T) {
	gw := testutil.NewFakeGateway()
	d := notify.NewDispatcher(gw, notify.DispatcherConfig{}, testutil.DiscardLogger())
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()), "close is idempotent")

	d.Notify(notify.Text("c1", "late"))
	assert.Empty(t, gw.Sent())
}

func TestDispatcher_RateLimited(t *testing.T) {
	gw := testutil.NewFakeGateway()
	d := notify.NewDispatcher(gw, notify.DispatcherConfig{Workers: 2, RatePerSecond: 50, Burst: 1}, testutil.DiscardLogger())

	start := time.Now()
	for i := 0; i < 6; i++ {
		d.Notify(notify.Text(fmt.Sprintf("c%d", i), "x"))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Len(t, gw.Sent(), 6)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond, "5 waits of 20ms after the first token")
}

func TestSend_UnknownKind(t *testing.T) {
	err := notify.Send(context.Background(), testutil.NewFakeGateway(), notify.Notification{Kind: "fax"})
	assert.Error(t, err)
}
