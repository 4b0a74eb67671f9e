// Package telegram implements transport.Gateway over the Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/roach88/ghostchat/internal/transport"
)

const (
	// DefaultAPIURL is the public Bot API endpoint.
	DefaultAPIURL = "https://api.telegram.org"

	// requestTimeout bounds one call, long polls included.
	requestTimeout = 2 * time.Minute

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 8 << 20
)

// allowedUpdates are the update kinds the bot handles.
var allowedUpdates = []string{"message", "edited_message", "callback_query"}

// Client talks to the Bot API with a bot token.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
}

// New creates a client. apiURL may be empty for the public endpoint.
func New(apiURL, token string) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		endpoint: strings.TrimRight(apiURL, "/") + "/bot%s/%s",
		token:    token,
		http:     &http.Client{Timeout: requestTimeout},
	}
}

// APIError is a response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// api returns a bot bound to ctx. The library builds requests without a
// context, so ctx is attached by the HTTP client it calls.
func (c *Client) api(ctx context.Context) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  c.token,
		Client: ctxDoer{ctx: ctx, http: c.http},
	}
	bot.SetAPIEndpoint(c.endpoint)
	return bot
}

// ctxDoer attaches ctx to every request and caps the response body.
type ctxDoer struct {
	ctx  context.Context
	http *http.Client
}

func (d ctxDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.http.Do(req.WithContext(d.ctx))
	if err != nil {
		return nil, err
	}
	resp.Body = limitedBody{Reader: io.LimitReader(resp.Body, maxResponseBytes), Closer: resp.Body}
	return resp, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}

// wrapErr names the method and keeps the request URL, which carries the
// token, out of the message.
func wrapErr(method string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &APIError{Method: method, Code: apiErr.Code, Description: apiErr.Message}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return fmt.Errorf("telegram %s: %w", method, err)
}

func (c *Client) request(ctx context.Context, method string, cfg tgbotapi.Chattable) error {
	_, err := c.api(ctx).Request(cfg)
	return wrapErr(method, err)
}

func parseChatID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid chat id %q", id)
	}
	return n, nil
}

// PollUpdates implements transport.Gateway with getUpdates.
func (c *Client) PollUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]transport.Update, error) {
	raw, err := c.api(ctx).GetUpdates(tgbotapi.UpdateConfig{
		Offset:         int(offset),
		Timeout:        int(timeout.Seconds()),
		AllowedUpdates: allowedUpdates,
	})
	if err != nil {
		return nil, wrapErr("getUpdates", err)
	}
	out := make([]transport.Update, 0, len(raw))
	for _, u := range raw {
		out = append(out, toUpdate(u))
	}
	return out, nil
}

// SendText implements transport.Gateway with sendMessage.
func (c *Client) SendText(ctx context.Context, chatID, text string, kb *transport.Keyboard) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(id, text)
	if kb != nil {
		msg.ReplyMarkup = toMarkup(kb)
	}
	return c.request(ctx, "sendMessage", msg)
}

// SendMedia implements transport.Gateway with sendPhoto, sendDocument or
// sendVoice.
func (c *Client) SendMedia(ctx context.Context, chatID string, media transport.Media, caption string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	file := tgbotapi.FileID(media.FileID)

	switch media.Kind {
	case transport.MediaPhoto:
		cfg := tgbotapi.NewPhoto(id, file)
		cfg.Caption = caption
		return c.request(ctx, "sendPhoto", cfg)
	case transport.MediaDocument:
		cfg := tgbotapi.NewDocument(id, file)
		cfg.Caption = caption
		return c.request(ctx, "sendDocument", cfg)
	case transport.MediaVoice:
		cfg := tgbotapi.NewVoice(id, file)
		cfg.Caption = caption
		cfg.Duration = media.Duration
		return c.request(ctx, "sendVoice", cfg)
	default:
		return fmt.Errorf("telegram: unsupported media kind %q", media.Kind)
	}
}

// CopyMessage implements transport.Gateway with copyMessage.
func (c *Client) CopyMessage(ctx context.Context, toChatID, fromChatID string, messageID int64, caption string) error {
	to, err := parseChatID(toChatID)
	if err != nil {
		return err
	}
	from, err := parseChatID(fromChatID)
	if err != nil {
		return err
	}
	cfg := tgbotapi.NewCopyMessage(to, from, int(messageID))
	cfg.Caption = caption
	return c.request(ctx, "copyMessage", cfg)
}

// AnswerCallback implements transport.Gateway with answerCallbackQuery.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	return c.request(ctx, "answerCallbackQuery", tgbotapi.NewCallback(callbackID, ""))
}

// SetCommands implements transport.Gateway with setMyCommands.
func (c *Client) SetCommands(ctx context.Context, cmds []transport.Command) error {
	list := make([]tgbotapi.BotCommand, 0, len(cmds))
	for _, cmd := range cmds {
		list = append(list, tgbotapi.BotCommand{Command: cmd.Name, Description: cmd.Description})
	}
	return c.request(ctx, "setMyCommands", tgbotapi.NewSetMyCommands(list...))
}

// GetMe returns the bot's username. Used to build referral links when none
// is configured.
func (c *Client) GetMe(ctx context.Context) (string, error) {
	me, err := c.api(ctx).GetMe()
	if err != nil {
		return "", wrapErr("getMe", err)
	}
	return me.UserName, nil
}

// SetWebhook points the bot at url. Telegram echoes secret in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	params := tgbotapi.Params{}
	params.AddNonEmpty("url", url)
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return wrapErr("setWebhook", err)
	}
	_, err := c.api(ctx).MakeRequest("setWebhook", params)
	return wrapErr("setWebhook", err)
}

func toMarkup(kb *transport.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// DecodeUpdate parses one update as Telegram posts it to a webhook.
func DecodeUpdate(r io.Reader) (transport.Update, error) {
	var u tgbotapi.Update
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return transport.Update{}, fmt.Errorf("decode update: %w", err)
	}
	return toUpdate(u), nil
}

func toUpdate(u tgbotapi.Update) transport.Update {
	out := transport.Update{ID: int64(u.UpdateID)}
	if u.Message != nil {
		out.Message = toMessage(u.Message)
	}
	if u.EditedMessage != nil {
		out.EditedMessage = toMessage(u.EditedMessage)
	}
	if cb := u.CallbackQuery; cb != nil {
		c := &transport.Callback{ID: cb.ID, From: toSender(cb.From), Data: cb.Data}
		if cb.Message != nil && cb.Message.Chat != nil {
			c.ChatID = strconv.FormatInt(cb.Message.Chat.ID, 10)
			c.MessageID = int64(cb.Message.MessageID)
		} else {
			c.ChatID = c.From.ID
		}
		out.Callback = c
	}
	return out
}

func toSender(u *tgbotapi.User) transport.Sender {
	if u == nil {
		return transport.Sender{}
	}
	return transport.Sender{
		ID:        strconv.FormatInt(u.ID, 10),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.UserName,
	}
}

func toMessage(m *tgbotapi.Message) *transport.Message {
	out := &transport.Message{
		MessageID: int64(m.MessageID),
		From:      toSender(m.From),
		Date:      time.Unix(int64(m.Date), 0).UTC(),
		Text:      m.Text,
		Caption:   m.Caption,
		Video:     m.Video != nil,
		Sticker:   m.Sticker != nil,
	}
	if m.Chat != nil {
		out.ChatID = strconv.FormatInt(m.Chat.ID, 10)
	}
	if n := len(m.Photo); n > 0 {
		// Sizes are ascending; forward the largest.
		out.Photo = m.Photo[n-1].FileID
	}
	if m.Document != nil {
		out.Document = m.Document.FileID
	}
	if m.Voice != nil {
		out.Voice = &transport.Voice{FileID: m.Voice.FileID, Duration: m.Voice.Duration}
	}
	if m.Location != nil {
		out.Location = &transport.Location{Latitude: m.Location.Latitude, Longitude: m.Location.Longitude}
	}
	return out
}
