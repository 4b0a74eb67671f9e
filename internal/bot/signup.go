package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/ghostchat/internal/model"
	"github.com/roach88/ghostchat/internal/otp"
	"github.com/roach88/ghostchat/internal/store"
	"github.com/roach88/ghostchat/internal/transport"
)

// Sign-up runs gender -> email -> code, then an org question when the
// verified address belongs to a non-public domain. Progress is kept in
// the registrations table so it survives restarts.

func (b *Bot) chooseGender(ctx context.Context, from transport.Sender, id, value string) error {
	g, err := model.ParseGender(value)
	if err != nil {
		b.logger.Debug("gender callback ignored", "user", id, "error", err)
		return nil
	}

	reg, ok, err := b.registration(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		reg = store.Registration{UserID: id}
	}
	reg.DisplayName = model.NormalizeName(from.FirstName, from.LastName)
	reg.Gender = g
	reg.Email = ""
	reg.Stage = store.StageAwaitEmail
	reg.UpdatedAt = b.clock.Now()
	if err := b.store.PutRegistration(ctx, reg); err != nil {
		return err
	}

	b.reply(id, textAskEmail)
	b.logger.Info("gender selected, awaiting email", "user", id, "gender", g)
	return nil
}

func (b *Bot) submitEmail(ctx context.Context, reg store.Registration, text string) error {
	email := strings.TrimSpace(text)
	if !otp.IsValidEmail(email) {
		b.reply(reg.UserID, textInvalidEmail)
		return nil
	}

	if _, err := b.verifier.SendVerificationCode(ctx, reg.UserID, email); err != nil {
		b.logger.Warn("verification code not delivered",
			"user", reg.UserID,
			"error", model.Transient("send verification code", err),
		)
		b.reply(reg.UserID, textCodeSendFailed)
		return nil
	}

	reg.Email = email
	reg.Stage = store.StageAwaitCode
	reg.UpdatedAt = b.clock.Now()
	if err := b.store.PutRegistration(ctx, reg); err != nil {
		return err
	}
	b.reply(reg.UserID, fmt.Sprintf(textCodeSent, email, b.verifier.Prefix()))
	return nil
}

// verifyCode checks a typed code and, on success, writes the user record.
func (b *Bot) verifyCode(ctx context.Context, id, text string) error {
	email, ok, err := b.verifier.VerifyCode(ctx, id, text)
	if err != nil {
		return err
	}
	if !ok {
		b.reply(id, textInvalidCode)
		return nil
	}

	reg, found, err := b.registration(ctx, id)
	if err != nil {
		return err
	}
	if !found || reg.Gender == "" {
		b.reply(id, textSessionExpired)
		return nil
	}

	now := b.clock.Now()
	domain := otp.Domain(email)
	offerOrg := domain != "" && !otp.IsPublicDomain(domain)

	err = b.store.Update(ctx, func(tx *store.Tx) error {
		u, err := tx.GetUser(ctx, id)
		created := model.IsNotFound(err)
		switch {
		case created:
			u = model.User{
				ID:               id,
				GenderPreference: model.PreferAny,
				Tier:             model.TierFree,
				CreatedAt:        now,
			}
		case err != nil:
			return err
		}
		u.DisplayName = reg.DisplayName
		u.Gender = reg.Gender
		u.Email = email
		u.EmailVerified = true
		u.OrgMatchOptIn = false
		u.UpdatedAt = now
		if err := tx.PutUser(ctx, u); err != nil {
			return err
		}
		if created {
			if _, err := tx.IncrMeta(ctx, store.MetaUserTotal, 1); err != nil {
				return err
			}
		}

		if !offerOrg {
			return nil
		}
		reg.Email = email
		reg.Stage = store.StageAwaitOrg
		reg.UpdatedAt = now
		return tx.PutRegistration(ctx, reg)
	})
	if err != nil {
		return fmt.Errorf("complete sign-up: %w", err)
	}
	b.logger.Info("email verified", "user", id, "domain", domain)

	if offerOrg {
		b.replyWithKeyboard(id, textSelectOrg, orgKeyboard(domain))
		return nil
	}
	b.reply(id, fmt.Sprintf(textVerified, reg.Gender))
	return b.completeReferral(ctx, id)
}

// chooseOrg stores the org matching answer. Opting in needs a verified
// address on a non-public domain; otherwise the user lands in the open
// category.
func (b *Bot) chooseOrg(ctx context.Context, id string, yes bool) error {
	u, ok, err := b.user(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		b.reply(id, textNeedStart)
		return nil
	}

	domain := otp.Domain(u.TrustedEmail())
	optIn := yes && domain != "" && !otp.IsPublicDomain(domain)
	if err := b.store.SetOrgMatchOptIn(ctx, id, optIn, b.clock.Now()); err != nil {
		return err
	}
	if optIn {
		b.reply(id, fmt.Sprintf(textOrgChosen, domain))
	} else {
		b.reply(id, textOpenChosen)
	}
	return b.completeReferral(ctx, id)
}

// completeReferral ends sign-up: a remembered referrer is credited and the
// registration is dropped.
func (b *Bot) completeReferral(ctx context.Context, id string) error {
	reg, ok, err := b.registration(ctx, id)
	if err != nil || !ok {
		return err
	}
	if reg.ReferrerID != "" && reg.ReferrerID != id {
		recorded, err := b.referrals.RecordReferral(ctx, reg.ReferrerID, id)
		if err != nil {
			return err
		}
		if recorded {
			b.reply(id, textReferredWelcome)
		}
	}
	return b.store.DeleteRegistration(ctx, id)
}

func (b *Bot) settings(ctx context.Context, id, option string) error {
	switch option {
	case "Preference":
		b.replyWithKeyboard(id, textSelectPref, preferenceKeyboard())
		return nil
	case "Status":
		return b.membershipStatus(ctx, id)
	case "MatchOrg":
		u, ok, err := b.user(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			b.reply(id, textNeedStart)
			return nil
		}
		domain := otp.Domain(u.TrustedEmail())
		if otp.IsPublicDomain(domain) {
			domain = ""
		}
		b.replyWithKeyboard(id, textSelectOrg, orgKeyboard(domain))
		return nil
	}
	b.logger.Debug("unknown settings option", "user", id, "option", option)
	return nil
}

func (b *Bot) membershipStatus(ctx context.Context, id string) error {
	u, ok, err := b.user(ctx, id)
	if err == nil && ok {
		var count int
		count, err = b.referrals.ReferralCount(ctx, id)
		if err == nil {
			b.reply(id, statusText(u.Tier, count, b.referrals.Threshold()))
			return nil
		}
	}
	b.reply(id, textStatusFallback)
	return err
}

func statusText(tier model.Tier, count, threshold int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your current membership: %s User\n", tier)
	fmt.Fprintf(&sb, "Total referrals: %d\n", count)
	if tier == model.TierFree {
		if remaining := threshold - count; remaining > 0 {
			fmt.Fprintf(&sb, "Refer %d more users to earn VIP membership!\nClick /refer to get your referal link", remaining)
		} else {
			sb.WriteString("Click /refer to get your referal link")
		}
	}
	return sb.String()
}

func (b *Bot) choosePreference(ctx context.Context, id, value string) error {
	pref, err := model.ParsePreference(value)
	if err != nil {
		b.logger.Debug("preference callback ignored", "user", id, "error", err)
		return nil
	}
	err = b.store.SetGenderPreference(ctx, id, pref, b.clock.Now())
	if model.IsNotFound(err) {
		b.reply(id, textNeedStart)
		return nil
	}
	if err != nil {
		return err
	}
	b.reply(id, fmt.Sprintf(textPrefSet, pref))
	return nil
}
