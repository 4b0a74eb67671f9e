package telegram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ghostchat/internal/transport"
)

type recorded struct {
	method string
	params map[string]string
}

// fakeAPI answers every method with the canned result for it, or ok:true
// with an empty result.
func fakeAPI(t *testing.T, results map[string]string) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		method := parts[len(parts)-1]
		assert.Equal(t, "/botTOKEN/"+method, r.URL.Path)

		assert.NoError(t, r.ParseForm())
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		calls = append(calls, recorded{method: method, params: params})

		if res, ok := results[method]; ok {
			io.WriteString(w, res)
			return
		}
		io.WriteString(w, `{"ok":true,"result":true}`)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, "TOKEN"), &calls
}

func TestPollUpdates(t *testing.T) {
	c, calls := fakeAPI(t, map[string]string{"getUpdates": `{"ok":true,"result":[
		{"update_id":7,"message":{"message_id":1,"from":{"id":42,"first_name":"Ann","last_name":"Lee"},
			"chat":{"id":42},"date":1767225600,"text":"/start 99"}},
		{"update_id":8,"message":{"message_id":2,"from":{"id":42},"chat":{"id":42},"date":1767225601,
			"photo":[{"file_id":"small"},{"file_id":"big"}],"caption":"look"}},
		{"update_id":9,"edited_message":{"message_id":1,"from":{"id":42},"chat":{"id":42},"date":1767225602,"text":"fixed"}},
		{"update_id":10,"callback_query":{"id":"cb1","from":{"id":42},"message":{"message_id":3,"chat":{"id":42},"date":0},"data":"gender:Male"}},
		{"update_id":11,"message":{"message_id":4,"from":{"id":42},"chat":{"id":42},"date":0,
			"voice":{"file_id":"v1","duration":3},"location":{"latitude":1.5,"longitude":2.5},"sticker":{"file_id":"s"}}}
	]}`})

	updates, err := c.PollUpdates(context.Background(), 7, 10*time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 5)

	require.Len(t, *calls, 1)
	assert.Equal(t, "7", (*calls)[0].params["offset"])
	assert.Equal(t, "10", (*calls)[0].params["timeout"])
	assert.JSONEq(t, `["message","edited_message","callback_query"]`, (*calls)[0].params["allowed_updates"])

	m := updates[0].Message
	require.NotNil(t, m)
	assert.Equal(t, int64(7), updates[0].ID)
	assert.Equal(t, "42", m.ChatID)
	assert.Equal(t, transport.Sender{ID: "42", FirstName: "Ann", LastName: "Lee"}, m.From)
	assert.Equal(t, "/start 99", m.Text)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), m.Date)

	assert.Equal(t, "big", updates[1].Message.Photo)
	assert.Equal(t, "look", updates[1].Message.Caption)

	require.NotNil(t, updates[2].EditedMessage)
	assert.Nil(t, updates[2].Message)
	assert.Equal(t, "fixed", updates[2].EditedMessage.Text)

	cb := updates[3].Callback
	require.NotNil(t, cb)
	assert.Equal(t, transport.Callback{ID: "cb1", ChatID: "42", MessageID: 3, From: transport.Sender{ID: "42"}, Data: "gender:Male"}, *cb)

	v := updates[4].Message
	assert.Equal(t, &transport.Voice{FileID: "v1", Duration: 3}, v.Voice)
	assert.Equal(t, &transport.Location{Latitude: 1.5, Longitude: 2.5}, v.Location)
	assert.True(t, v.Sticker)
	assert.False(t, v.Video)
}

func TestPollUpdates_ZeroOffsetOmitted(t *testing.T) {
	c, calls := fakeAPI(t, map[string]string{"getUpdates": `{"ok":true,"result":[]}`})
	updates, err := c.PollUpdates(context.Background(), 0, time.Second)
	require.NoError(t, err)
	assert.Empty(t, updates)
	_, has := (*calls)[0].params["offset"]
	assert.False(t, has)
}

func TestSendText_WithKeyboard(t *testing.T) {
	c, calls := fakeAPI(t, nil)
	kb := transport.NewKeyboard(
		transport.Row(transport.Button{Text: "Male", Data: "gender:Male"}),
		transport.Row(transport.Button{Text: "Form", URL: "https://example.com"}),
	)
	require.NoError(t, c.SendText(context.Background(), "42", "hi", kb))

	p := (*calls)[0].params
	assert.Equal(t, "sendMessage", (*calls)[0].method)
	assert.Equal(t, "42", p["chat_id"])
	assert.Equal(t, "hi", p["text"])
	assert.JSONEq(t, `{"inline_keyboard":[
		[{"text":"Male","callback_data":"gender:Male"}],
		[{"text":"Form","url":"https://example.com"}]
	]}`, p["reply_markup"])
}

func TestSendMedia(t *testing.T) {
	c, calls := fakeAPI(t, nil)
	ctx := context.Background()

	require.NoError(t, c.SendMedia(ctx, "1", transport.Media{Kind: transport.MediaPhoto, FileID: "p"}, "cap"))
	require.NoError(t, c.SendMedia(ctx, "1", transport.Media{Kind: transport.MediaDocument, FileID: "d"}, ""))
	require.NoError(t, c.SendMedia(ctx, "1", transport.Media{Kind: transport.MediaVoice, FileID: "v", Duration: 4}, "x"))
	require.Error(t, c.SendMedia(ctx, "1", transport.Media{Kind: "hologram"}, ""))

	require.Len(t, *calls, 3)
	assert.Equal(t, "sendPhoto", (*calls)[0].method)
	assert.Equal(t, "p", (*calls)[0].params["photo"])
	assert.Equal(t, "cap", (*calls)[0].params["caption"])
	assert.Equal(t, "sendDocument", (*calls)[1].method)
	_, hasCaption := (*calls)[1].params["caption"]
	assert.False(t, hasCaption)
	assert.Equal(t, "sendVoice", (*calls)[2].method)
	assert.Equal(t, "4", (*calls)[2].params["duration"])
}

func TestCopyCommandsAndAnswer(t *testing.T) {
	c, calls := fakeAPI(t, nil)
	ctx := context.Background()

	require.NoError(t, c.CopyMessage(ctx, "2", "1", 55, "👦 sent a video"))
	require.NoError(t, c.SetCommands(ctx, []transport.Command{{Name: "start", Description: "To Start the bot"}}))
	require.NoError(t, c.AnswerCallback(ctx, "cb1"))

	copied := (*calls)[0].params
	assert.Equal(t, "copyMessage", (*calls)[0].method)
	assert.Equal(t, "2", copied["chat_id"])
	assert.Equal(t, "1", copied["from_chat_id"])
	assert.Equal(t, "55", copied["message_id"])
	assert.Equal(t, "👦 sent a video", copied["caption"])

	assert.Equal(t, "setMyCommands", (*calls)[1].method)
	assert.JSONEq(t, `[{"command":"start","description":"To Start the bot"}]`, (*calls)[1].params["commands"])

	assert.Equal(t, "answerCallbackQuery", (*calls)[2].method)
	assert.Equal(t, "cb1", (*calls)[2].params["callback_query_id"])
}

func TestAPIError(t *testing.T) {
	c, _ := fakeAPI(t, map[string]string{"sendMessage": `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`})
	err := c.SendText(context.Background(), "42", "hi", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Code)
	assert.Contains(t, err.Error(), "blocked")
}

func TestGetMe(t *testing.T) {
	c, _ := fakeAPI(t, map[string]string{"getMe": `{"ok":true,"result":{"id":1,"first_name":"G","username":"GhostChatBot"}}`})
	name, err := c.GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "GhostChatBot", name)
}

func TestDecodeUpdate(t *testing.T) {
	u, err := DecodeUpdate(strings.NewReader(`{"update_id":12,"message":{"message_id":5,"from":{"id":42,"first_name":"Ann"},"chat":{"id":42},"date":0,"text":"/next"}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(12), u.ID)
	require.NotNil(t, u.Message)
	assert.Equal(t, "42", u.Message.ChatID)
	assert.Equal(t, "/next", u.Message.Text)

	_, err = DecodeUpdate(strings.NewReader(`{"update_id":`))
	assert.Error(t, err)
}

func TestSetWebhook(t *testing.T) {
	c, calls := fakeAPI(t, nil)
	require.NoError(t, c.SetWebhook(context.Background(), "https://bot.example.com/telegram/webhook", "s3"))

	require.Len(t, *calls, 1)
	assert.Equal(t, "setWebhook", (*calls)[0].method)
	assert.Equal(t, "https://bot.example.com/telegram/webhook", (*calls)[0].params["url"])
	assert.Equal(t, "s3", (*calls)[0].params["secret_token"])
	assert.JSONEq(t, `["message","edited_message","callback_query"]`, (*calls)[0].params["allowed_updates"])
}

func TestErrorsOmitToken(t *testing.T) {
	c := New("http://127.0.0.1:1", "123456:SECRET-TOKEN")

	err := c.SendText(context.Background(), "42", "hi", nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-TOKEN")
	assert.Contains(t, err.Error(), "telegram sendMessage")

	_, err = c.GetMe(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-TOKEN")
}

func TestInvalidChatID(t *testing.T) {
	c, calls := fakeAPI(t, nil)
	err := c.SendText(context.Background(), "not-a-number", "hi", nil)
	require.Error(t, err)
	assert.Empty(t, *calls)
}

func TestOversizedResponseRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"ok":true,"result":{"id":1,"first_name":"G","username":"`)
		io.WriteString(w, strings.Repeat("x", maxResponseBytes))
		io.WriteString(w, `"}}`)
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, "TOKEN").GetMe(context.Background())
	require.Error(t, err, "a body past the cap is cut short and fails to decode")
}
