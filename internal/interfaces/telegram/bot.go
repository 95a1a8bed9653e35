// Package telegram is the Telegram channel of the dream interpreter.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Koksbox/dream-interpreter/internal/entities"
	"github.com/Koksbox/dream-interpreter/internal/logging"
	"github.com/Koksbox/dream-interpreter/internal/usecases"
)

const maxDreamLength = 4000

// Sender is the part of the bot API the handlers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Limiter throttles inbound messages per chat.
type Limiter interface {
	Allow(chatID int64) bool
}

type Deps struct {
	Dreams   *usecases.DreamService
	Identity *usecases.IdentityResolver
	Profiles *usecases.ProfileService
	Auth     *usecases.AuthUsecase
	Limiter  Limiter
	Log      logging.Logger
	Location *time.Location
	SiteURL  string
}

type Bot struct {
	api      Sender
	dreams   *usecases.DreamService
	identity *usecases.IdentityResolver
	profiles *usecases.ProfileService
	auth     *usecases.AuthUsecase
	limiter  Limiter
	log      logging.Logger
	loc      *time.Location
	siteURL  string
	chats    *chatStore
	now      func() time.Time
}

func NewBot(api Sender, deps Deps) *Bot {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Bot{
		api:      api,
		dreams:   deps.Dreams,
		identity: deps.Identity,
		profiles: deps.Profiles,
		auth:     deps.Auth,
		limiter:  deps.Limiter,
		log:      deps.Log,
		loc:      loc,
		siteURL:  strings.TrimRight(deps.SiteURL, "/"),
		chats:    newChatStore(),
		now:      time.Now,
	}
}

// HandleUpdate routes one update. Only private chats are served.
func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	ctx = logging.WithRequestID(ctx, fmt.Sprintf("tg-%d", upd.UpdateID))

	if upd.CallbackQuery != nil {
		b.handleCallback(ctx, upd.CallbackQuery)
		return
	}

	msg := upd.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}
	chatID := msg.Chat.ID

	if b.limiter != nil && !b.limiter.Allow(chatID) {
		b.log.Warn(ctx, "chat throttled", "chat_id", chatID)
		b.reply(ctx, chatID, textSlowDown)
		return
	}

	if msg.Contact != nil {
		b.chats.resetStep(chatID)
		b.handleContact(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		command := msg.Command()
		if command != "cancel" {
			b.chats.resetStep(chatID)
		}
		switch command {
		case "start":
			b.handleStart(ctx, msg)
		case "profile":
			b.handleProfileStart(ctx, msg)
		case "cancel":
			b.handleCancel(ctx, chatID)
		case "history":
			b.handleHistory(ctx, msg)
		case "clear":
			b.handleClear(ctx, msg)
		case "guide":
			b.send(ctx, withHTML(tgbotapi.NewMessage(chatID, textGuide)))
		default:
			b.reply(ctx, chatID, textHelp)
		}
		return
	}

	if step, tempName := b.chats.step(chatID); step != stepNone {
		b.handleProfileStep(ctx, msg, step, tempName)
		return
	}

	b.handleDream(ctx, msg, text)
}

// RunJanitor drops idle chat state until ctx is cancelled.
func (b *Bot) RunJanitor(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.chats.evictIdle(ttl); n > 0 {
				b.log.Debug(ctx, "evicted idle chats", "count", n)
			}
		}
	}
}

// currentUser resolves the sender without a phone. Unknown senders are asked
// to share their contact.
func (b *Bot) currentUser(ctx context.Context, msg *tgbotapi.Message) (*entities.User, bool) {
	chatID := msg.Chat.ID
	cached, verified := b.chats.cachedUser(chatID)
	u, _, err := b.identity.Resolve(ctx, usecases.Credential{
		Channel:         usecases.ChannelTelegram,
		TelegramID:      telegramID(msg.From),
		CachedUserID:    cached,
		ContactVerified: verified,
	})
	switch {
	case errors.Is(err, entities.ErrUnknownIdentity):
		b.send(ctx, withKeyboard(tgbotapi.NewMessage(chatID, textUnknown)))
		return nil, false
	case err != nil:
		b.log.Error(ctx, "resolve telegram user", "chat_id", chatID, "error", err)
		b.reply(ctx, chatID, textError)
		return nil, false
	}
	b.chats.setUser(chatID, u.ID)
	return u, true
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	b.send(ctx, tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.Warn(ctx, "telegram send failed", "error", err)
	}
}

func withKeyboard(m tgbotapi.MessageConfig) tgbotapi.MessageConfig {
	m.ReplyMarkup = MainKeyboard()
	return m
}

func withHTML(m tgbotapi.MessageConfig) tgbotapi.MessageConfig {
	m.ParseMode = tgbotapi.ModeHTML
	return m
}

func telegramID(u *tgbotapi.User) string {
	return strconv.FormatInt(u.ID, 10)
}
