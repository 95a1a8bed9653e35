package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Koksbox/dream-interpreter/internal/entities"
	"github.com/Koksbox/dream-interpreter/internal/usecases"
)

const (
	historySessions   = 3
	historyExcerpt    = 50
	historyMaxChars   = 300
	limitResetsLayout = "15:04 02.01"
)

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	token := strings.TrimSpace(msg.CommandArguments())
	if token == "" {
		b.send(ctx, withKeyboard(tgbotapi.NewMessage(chatID, textWelcome)))
		return
	}

	u, err := b.auth.LinkTelegram(ctx, token, telegramID(msg.From))
	switch {
	case errors.Is(err, entities.ErrInvalidToken):
		b.reply(ctx, chatID, textLinkExpired)
	case errors.Is(err, entities.ErrIdentityConflict):
		b.reply(ctx, chatID, textConflict)
	case err != nil:
		b.log.Error(ctx, "link telegram", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, textError)
	default:
		b.chats.setUser(chatID, u.ID)
		b.send(ctx, withKeyboard(tgbotapi.NewMessage(chatID, textLinked)))
	}
}

func (b *Bot) handleContact(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.Contact.UserID != msg.From.ID {
		b.reply(ctx, chatID, textForeignContact)
		return
	}

	u, created, err := b.identity.Resolve(ctx, usecases.Credential{
		Channel:    usecases.ChannelTelegram,
		Phone:      msg.Contact.PhoneNumber,
		TelegramID: telegramID(msg.From),
	})
	switch {
	case errors.Is(err, entities.ErrIdentityConflict):
		b.reply(ctx, chatID, textConflict)
		return
	case errors.Is(err, entities.ErrInvalidPhone):
		b.reply(ctx, chatID, textForeignContact)
		return
	case err != nil:
		b.log.Error(ctx, "resolve contact", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, textError)
		return
	}
	b.chats.setContactUser(chatID, u.ID)

	text := textGreetBack
	if created {
		text = textGreetNew
	}
	if u.ProfileComplete() {
		text += textTellDream
	} else {
		text += textFillProfile
	}
	b.reply(ctx, chatID, text)
}

func (b *Bot) handleProfileStart(ctx context.Context, msg *tgbotapi.Message) {
	u, ok := b.currentUser(ctx, msg)
	if !ok {
		return
	}

	name, birth := textNotSet, textNotSetDate
	if u.Name != "" {
		name = u.Name
	}
	if u.BirthDate != nil {
		birth = u.BirthDate.Format("02.01.2006")
	}
	b.chats.setStep(msg.Chat.ID, stepAskName, "")
	b.reply(ctx, msg.Chat.ID, fmt.Sprintf(textProfileInfo, name, birth))
}

func (b *Bot) handleProfileStep(ctx context.Context, msg *tgbotapi.Message, step profileStep, tempName string) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch step {
	case stepAskName:
		b.chats.setStep(chatID, stepAskBirthDate, usecases.NormalizeName(text))
		b.reply(ctx, chatID, textAskBirthDate)

	case stepAskBirthDate:
		birth, err := usecases.ParseBirthDate(text, b.now().In(b.loc))
		if err != nil {
			b.reply(ctx, chatID, textBadBirthDate)
			return
		}
		u, ok := b.currentUser(ctx, msg)
		if !ok {
			b.chats.resetStep(chatID)
			return
		}
		if _, err := b.profiles.Update(ctx, u.ID, tempName, birth); err != nil {
			b.log.Error(ctx, "update profile", "user_id", u.ID, "error", err)
			b.reply(ctx, chatID, textError)
			return
		}
		b.chats.resetStep(chatID)
		b.reply(ctx, chatID, textProfileSaved)
	}
}

func (b *Bot) handleCancel(ctx context.Context, chatID int64) {
	if b.chats.resetStep(chatID) {
		b.reply(ctx, chatID, textProfileCancel)
		return
	}
	b.reply(ctx, chatID, textNothingToStop)
}

func (b *Bot) handleHistory(ctx context.Context, msg *tgbotapi.Message) {
	u, ok := b.currentUser(ctx, msg)
	if !ok {
		return
	}
	chatID := msg.Chat.ID

	dreams, err := b.dreams.RecentDreams(ctx, u.ID, historySessions)
	if err != nil {
		b.log.Error(ctx, "load recent dreams", "user_id", u.ID, "error", err)
		b.reply(ctx, chatID, textHistoryError)
		return
	}
	if len(dreams) == 0 {
		b.reply(ctx, chatID, textHistoryEmpty)
		return
	}
	b.reply(ctx, chatID, b.formatHistory(dreams))
}

func (b *Bot) formatHistory(dreams []entities.Turn) string {
	var sb strings.Builder
	sb.WriteString(textHistoryHeader)
	for _, d := range dreams {
		sb.WriteString("• ")
		sb.WriteString(excerpt(d.Prompt, historyExcerpt))
		sb.WriteString("\n")
		if utf8.RuneCountInString(sb.String()) > historyMaxChars {
			break
		}
	}
	if b.siteURL != "" {
		fmt.Fprintf(&sb, textHistorySite, b.siteURL)
	}
	return sb.String()
}

func (b *Bot) handleClear(ctx context.Context, msg *tgbotapi.Message) {
	u, ok := b.currentUser(ctx, msg)
	if !ok {
		return
	}
	if _, err := b.dreams.ClearChat(ctx, u.ID); err != nil {
		b.log.Error(ctx, "clear chat", "user_id", u.ID, "error", err)
		b.reply(ctx, msg.Chat.ID, textClearError)
		return
	}
	b.reply(ctx, msg.Chat.ID, textCleared)
}

func (b *Bot) handleDream(ctx context.Context, msg *tgbotapi.Message, text string) {
	u, ok := b.currentUser(ctx, msg)
	if !ok {
		return
	}
	chatID := msg.Chat.ID

	if utf8.RuneCountInString(text) > maxDreamLength {
		text = string([]rune(text)[:maxDreamLength])
	}
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.log.Debug(ctx, "chat action failed", "error", err)
	}

	reply, err := b.dreams.Interpret(ctx, u.ID, text)
	switch {
	case errors.Is(err, entities.ErrEmptyMessage):
		b.reply(ctx, chatID, textEmptyDream)
		return
	case err != nil:
		b.log.Error(ctx, "interpret dream", "user_id", u.ID, "error", err)
		b.reply(ctx, chatID, textError)
		return
	}

	if !reply.Quota.Allowed {
		resets := b.now()
		if reply.Quota.ResetsAt != nil {
			resets = *reply.Quota.ResetsAt
		}
		notice := tgbotapi.NewMessage(chatID, fmt.Sprintf(textLimit, resets.In(b.loc).Format(limitResetsLayout)))
		if reply.Quota.ShowUpgrade {
			notice.ReplyMarkup = PremiumKeyboard()
		}
		b.send(ctx, notice)
		return
	}
	b.reply(ctx, chatID, reply.Text)
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.log.Debug(ctx, "callback answer failed", "error", err)
	}
	if q.Data != callbackPremium || q.Message == nil || q.Message.Chat == nil {
		return
	}
	text := textPremium
	if b.siteURL != "" {
		text = fmt.Sprintf(textPremiumURL, b.siteURL+"/premium/")
	}
	b.reply(ctx, q.Message.Chat.ID, text)
}

// excerpt cuts s to limit runes and marks the cut.
func excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
