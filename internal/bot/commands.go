package bot

import (
	"context"
	"fmt"

	"github.com/roach88/ghostchat/internal/membership"
	"github.com/roach88/ghostchat/internal/model"
	"github.com/roach88/ghostchat/internal/store"
)

func (b *Bot) command(ctx context.Context, id, name, args string) error {
	switch name {
	case "start":
		return b.start(ctx, id, args)
	case "connect":
		return b.connect(ctx, id)
	case "disconnect":
		return b.disconnect(ctx, id)
	case "next":
		return b.next(ctx, id)
	case "report":
		return b.report(ctx, id)
	case "refer":
		return b.refer(ctx, id)
	case "stats":
		return b.stats(ctx, id)
	case "help":
		b.reply(id, fmt.Sprintf(helpText, b.referrals.Threshold()))
		return nil
	case "settings":
		return b.openSettings(ctx, id)
	case "issue":
		return b.issue(id, args)
	}
	b.logger.Debug("unknown command ignored", "user", id, "command", name)
	return nil
}

// validReferrer returns code when it names another registered user.
func (b *Bot) validReferrer(ctx context.Context, id, code string) (string, error) {
	if code == "" || code == id {
		return "", nil
	}
	exists, err := b.store.UserExists(ctx, code)
	if err != nil {
		return "", err
	}
	if !exists {
		b.logger.Debug("referral code ignored", "user", id, "code", code)
		return "", nil
	}
	return code, nil
}

// start greets the user. Unknown users begin sign-up with the referrer
// remembered; known users go straight to the lobby.
func (b *Bot) start(ctx context.Context, id, args string) error {
	referrer, err := b.validReferrer(ctx, id, args)
	if err != nil {
		return err
	}

	b.reply(id, startText)

	u, registered, err := b.user(ctx, id)
	if err != nil {
		return err
	}
	if !registered {
		b.replyWithKeyboard(id, textSelectGender, genderKeyboard())

		reg, ok, err := b.registration(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			reg = store.Registration{UserID: id}
		}
		reg.Stage = store.StageAwaitGender
		if referrer != "" {
			reg.ReferrerID = referrer
		}
		reg.UpdatedAt = b.clock.Now()
		return b.store.PutRegistration(ctx, reg)
	}

	b.reply(id, textLooking)
	if err := b.enterLobby(ctx, u); err != nil {
		return err
	}
	if referrer != "" {
		if _, err := b.referrals.RecordReferral(ctx, referrer, id); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) connect(ctx context.Context, id string) error {
	u, ok, err := b.user(ctx, id)
	if err != nil {
		b.reply(id, textConnectError)
		return err
	}
	if !ok {
		b.reply(id, textNeedStart)
		return nil
	}

	if err := b.completeReferral(ctx, id); err != nil {
		b.logger.Warn("pending referral not processed", "user", id, "error", err)
	}

	b.reply(id, textLooking)
	if err := b.enterLobby(ctx, u); err != nil {
		b.reply(id, textConnectError)
		return err
	}
	return nil
}

func (b *Bot) disconnect(ctx context.Context, id string) error {
	partner, ok, err := b.pairs.Release(ctx, id)
	if err != nil {
		b.reply(id, textDisconnectError)
		return err
	}
	if ok {
		kb := feedbackKeyboard(b.cfg.FeedbackURL)
		b.replyWithKeyboard(id, textChatEnded, kb)
		b.replyWithKeyboard(partner, textPartnerLeft, kb)
		return nil
	}

	removed, err := b.lobby.Leave(ctx, id)
	if err != nil {
		b.reply(id, textDisconnectError)
		return err
	}
	if removed {
		b.reply(id, textLobbyLeft)
	} else {
		b.reply(id, textNotInChat)
	}
	return nil
}

// next ends the current chat and queues the user again.
func (b *Bot) next(ctx context.Context, id string) error {
	partner, ok, err := b.pairs.Release(ctx, id)
	if err != nil {
		b.reply(id, textNextError)
		return err
	}
	if !ok {
		b.reply(id, textNextNotInChat)
		return nil
	}
	b.reply(id, textNextEnded)
	b.reply(partner, textNextPartnerLeft)

	u, err := b.store.GetUser(ctx, id)
	if err == nil {
		err = b.enterLobby(ctx, u)
	}
	if err != nil {
		b.reply(id, textNextError)
		return err
	}
	return nil
}

func (b *Bot) report(ctx context.Context, id string) error {
	partner, ok, err := b.pairs.Current(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		b.reply(id, textNothingToReport)
		return nil
	}
	b.logger.Warn("partner reported", "kind", "report", "user", id, "partner", partner)
	b.reply(id, textReported)
	return nil
}

func (b *Bot) issue(id, text string) error {
	if text == "" {
		b.reply(id, textIssueUsage)
		return nil
	}
	b.logger.Warn("issue reported", "kind", "issue", "user", id, "issue", text)
	b.reply(id, fmt.Sprintf(textIssueRecorded, text))
	return nil
}

func (b *Bot) refer(ctx context.Context, id string) error {
	_, ok, err := b.user(ctx, id)
	if err != nil {
		b.reply(id, textReferError)
		return err
	}
	if !ok {
		b.reply(id, textNeedStart)
		return nil
	}

	count, err := b.referrals.ReferralCount(ctx, id)
	if err != nil {
		b.reply(id, textReferError)
		return err
	}
	threshold := b.referrals.Threshold()
	status := string(model.TierFree)
	if count >= threshold {
		status = string(model.TierVIP)
	}
	link := membership.ReferralLink(b.cfg.BotUsername, id)
	b.reply(id, fmt.Sprintf(referText, link, count, threshold, status, threshold, b.referrals.VIPDays()))
	return nil
}

func (b *Bot) stats(ctx context.Context, id string) error {
	u, ok, err := b.user(ctx, id)
	if err != nil {
		b.reply(id, textStatsError)
		return err
	}
	if !ok {
		b.reply(id, textNeedStart)
		return nil
	}

	count, err := b.referrals.ReferralCount(ctx, id)
	if err != nil {
		b.reply(id, textStatsError)
		return err
	}
	threshold := b.referrals.Threshold()
	earned := "Not Earned"
	if count >= threshold {
		earned = "Earned"
	}
	b.reply(id, fmt.Sprintf(statsText, u.DisplayName, u.Gender, u.Tier, count, earned, max(0, threshold-count)))
	return nil
}

func (b *Bot) openSettings(ctx context.Context, id string) error {
	_, ok, err := b.user(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		b.reply(id, textNeedStart)
		return nil
	}
	b.replyWithKeyboard(id, textSettings, settingsKeyboard())
	return nil
}
