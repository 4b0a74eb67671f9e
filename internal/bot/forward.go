package bot

import (
	"context"
	"fmt"

	"github.com/roach88/ghostchat/internal/notify"
	"github.com/roach88/ghostchat/internal/transport"
)

// mediaNoun names what an unmatched user tried to share.
func mediaNoun(m *transport.Message) string {
	switch {
	case m.Photo != "":
		return "photos"
	case m.Document != "":
		return "documents"
	case m.Voice != nil:
		return "voice messages"
	case m.Video:
		return "videos"
	case m.Sticker:
		return "stickers"
	case m.Location != nil:
		return "location"
	}
	return ""
}

func (b *Bot) handleMedia(ctx context.Context, id string, m *transport.Message) error {
	noun := mediaNoun(m)
	if noun == "" {
		return nil
	}
	partner, ok, err := b.pairs.Current(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		b.reply(id, fmt.Sprintf(textShareFirst, noun))
		return nil
	}

	emoji := b.emoji(ctx, id)
	caption := func(fallback string) string {
		if m.Caption != "" {
			return emoji + " " + m.Caption
		}
		return emoji + " " + fallback
	}

	switch {
	case m.Photo != "":
		b.notifier.Notify(notify.MediaMessage(partner,
			transport.Media{Kind: transport.MediaPhoto, FileID: m.Photo}, caption("sent a photo")))
	case m.Document != "":
		b.notifier.Notify(notify.MediaMessage(partner,
			transport.Media{Kind: transport.MediaDocument, FileID: m.Document}, caption("sent a document")))
	case m.Voice != nil:
		b.notifier.Notify(notify.MediaMessage(partner,
			transport.Media{Kind: transport.MediaVoice, FileID: m.Voice.FileID, Duration: m.Voice.Duration},
			emoji+" sent a voice message"))
	case m.Video:
		b.notifier.Notify(notify.Copy(partner, m.ChatID, m.MessageID, emoji+" sent a video"))
	case m.Sticker:
		b.notifier.Notify(notify.Copy(partner, m.ChatID, m.MessageID, ""))
		b.notifier.Notify(notify.Text(partner, emoji+" sent a sticker"))
	case m.Location != nil:
		b.notifier.Notify(notify.Copy(partner, m.ChatID, m.MessageID, ""))
		b.notifier.Notify(notify.Text(partner, emoji+" shared their location"))
	}
	return nil
}

// handleEdited relays edits. Only text edits carry their content.
func (b *Bot) handleEdited(ctx context.Context, m *transport.Message) error {
	id := senderID(m)
	partner, ok, err := b.pairs.Current(ctx, id)
	if err != nil || !ok {
		return err
	}
	emoji := b.emoji(ctx, id)
	if m.Text != "" {
		b.notifier.Notify(notify.Text(partner, fmt.Sprintf("%s ✏️ (edited): %s", emoji, m.Text)))
		return nil
	}
	b.notifier.Notify(notify.Text(partner, emoji+" ✏️ Your partner edited their message"))
	return nil
}
