// Package bot turns chat updates into lobby, match, sign-up and referral
// operations, and answers the user.
//
// Replies go through a notify.Notifier so a slow or failing gateway never
// holds up the scheduler. Private chats share the user's id, so replies and
// partner notifications are addressed by user id.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/roach88/ghostchat/internal/clock"
	"github.com/roach88/ghostchat/internal/model"
	"github.com/roach88/ghostchat/internal/notify"
	"github.com/roach88/ghostchat/internal/store"
	"github.com/roach88/ghostchat/internal/transport"
)

// Lobby is the waiting pool.
type Lobby interface {
	Enter(ctx context.Context, userID string, orgMatch bool) (model.LobbyEntry, error)
	Leave(ctx context.Context, userID string) (bool, error)
}

// Pairs resolves and ends active matches.
type Pairs interface {
	Current(ctx context.Context, userID string) (string, bool, error)
	Release(ctx context.Context, userID string) (string, bool, error)
}

// Referrals records referrals and reports progress towards VIP.
type Referrals interface {
	RecordReferral(ctx context.Context, referrerID, referredID string) (bool, error)
	ReferralCount(ctx context.Context, referrerID string) (int, error)
	Threshold() int
	VIPDays() int
}

// Verifier mails and checks email verification codes.
type Verifier interface {
	SendVerificationCode(ctx context.Context, userID, email string) (string, error)
	VerifyCode(ctx context.Context, userID, code string) (string, bool, error)
	LooksLikeCode(text string) bool
	Prefix() string
}

// Config holds the bot's user-facing settings.
type Config struct {
	// BotUsername builds referral links.
	BotUsername string
	// FeedbackURL is linked when a chat ends.
	FeedbackURL string
}

// Bot handles updates. It implements engine.Handler.
type Bot struct {
	store     *store.Store
	lobby     Lobby
	pairs     Pairs
	referrals Referrals
	verifier  Verifier
	notifier  notify.Notifier
	clock     clock.Clock
	cfg       Config
	logger    *slog.Logger
}

// New creates a Bot.
func New(
	s *store.Store,
	l Lobby,
	p Pairs,
	r Referrals,
	v Verifier,
	n notify.Notifier,
	c clock.Clock,
	cfg Config,
	logger *slog.Logger,
) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FeedbackURL == "" {
		cfg.FeedbackURL = DefaultFeedbackURL
	}
	return &Bot{
		store:     s,
		lobby:     l,
		pairs:     p,
		referrals: r,
		verifier:  v,
		notifier:  n,
		clock:     c,
		cfg:       cfg,
		logger:    logger.With("component", "bot"),
	}
}

// Commands returns the command list advertised to clients.
func (b *Bot) Commands() []transport.Command {
	out := make([]transport.Command, len(commandList))
	copy(out, commandList)
	return out
}

// Handle dispatches one update.
func (b *Bot) Handle(ctx context.Context, u transport.Update) error {
	switch {
	case u.Message != nil:
		return b.handleMessage(ctx, u.Message)
	case u.EditedMessage != nil:
		return b.handleEdited(ctx, u.EditedMessage)
	case u.Callback != nil:
		return b.handleCallback(ctx, u.Callback)
	}
	return nil
}

func senderID(m *transport.Message) string {
	if m.From.ID != "" {
		return m.From.ID
	}
	return m.ChatID
}

func (b *Bot) handleMessage(ctx context.Context, m *transport.Message) error {
	id := senderID(m)
	if m.Text == "" {
		return b.handleMedia(ctx, id, m)
	}

	text := m.Text
	isCommand := strings.HasPrefix(text, "/")
	if !isCommand && b.verifier.LooksLikeCode(text) {
		return b.verifyCode(ctx, id, text)
	}
	if !isCommand {
		reg, ok, err := b.registration(ctx, id)
		if err != nil {
			return err
		}
		if ok && (reg.Stage == store.StageAwaitEmail || reg.Stage == store.StageAwaitCode) {
			return b.submitEmail(ctx, reg, text)
		}
	}
	if isCommand {
		name, args := parseCommand(text)
		return b.command(ctx, id, name, args)
	}

	partner, ok, err := b.pairs.Current(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		b.reply(id, textUseConnect)
		return nil
	}
	b.notifier.Notify(notify.Text(partner, b.emoji(ctx, id)+" "+text))
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, cb *transport.Callback) error {
	b.notifier.Notify(notify.Answer(cb.ChatID, cb.ID))

	id := cb.From.ID
	if id == "" {
		id = cb.ChatID
	}
	kind, value, _ := strings.Cut(cb.Data, ":")
	switch kind {
	case "gender":
		return b.chooseGender(ctx, cb.From, id, value)
	case "org":
		return b.chooseOrg(ctx, id, value == "yes")
	case "settings":
		return b.settings(ctx, id, value)
	case "pref":
		return b.choosePreference(ctx, id, value)
	}
	b.logger.Debug("unknown callback ignored", "user", id, "data", cb.Data)
	return nil
}

// parseCommand splits "/name@bot args" into its lower-cased name and the
// trimmed argument text.
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", ""
	}
	head := fields[0]
	args := strings.TrimSpace(strings.TrimPrefix(text, head))
	head = strings.TrimPrefix(head, "/")
	if name, _, ok := strings.Cut(head, "@"); ok {
		head = name
	}
	return strings.ToLower(head), args
}

func (b *Bot) reply(chatID, text string) {
	b.notifier.Notify(notify.Text(chatID, text))
}

func (b *Bot) replyWithKeyboard(chatID, text string, kb *transport.Keyboard) {
	b.notifier.Notify(notify.TextWithKeyboard(chatID, text, kb))
}

// registration returns the pending sign-up of id, if any.
func (b *Bot) registration(ctx context.Context, id string) (store.Registration, bool, error) {
	reg, err := b.store.GetRegistration(ctx, id)
	if model.IsNotFound(err) {
		return store.Registration{}, false, nil
	}
	if err != nil {
		return store.Registration{}, false, err
	}
	return reg, true, nil
}

// user returns the user record of id, or ok == false if they never
// completed sign-up.
func (b *Bot) user(ctx context.Context, id string) (model.User, bool, error) {
	u, err := b.store.GetUser(ctx, id)
	if model.IsNotFound(err) {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, err
	}
	return u, true, nil
}

// emoji is the sender marker shown to a partner.
func (b *Bot) emoji(ctx context.Context, id string) string {
	u, err := b.store.GetUser(ctx, id)
	if err != nil {
		b.logger.Warn("sender gender unavailable", "user", id, "error", err)
		return model.Gender("").Emoji()
	}
	return u.Gender.Emoji()
}

// enterLobby queues u for matching. A user who already has a partner is
// told so and nil is returned.
func (b *Bot) enterLobby(ctx context.Context, u model.User) error {
	_, err := b.lobby.Enter(ctx, u.ID, u.OrgMatchOptIn)
	if errors.Is(err, model.ErrAlreadyMatched) {
		b.reply(u.ID, textAlreadyMatch)
		return nil
	}
	return err
}
