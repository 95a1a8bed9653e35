package telegram

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Koksbox/dream-interpreter/internal/infrastructure"
	"github.com/Koksbox/dream-interpreter/internal/logging"
	"github.com/Koksbox/dream-interpreter/internal/repository"
	"github.com/Koksbox/dream-interpreter/internal/usecases"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type allowAll struct{}

func (allowAll) Allow(int64) bool { return true }

type fixture struct {
	bot    *Bot
	sender *fakeSender
	auth   *usecases.AuthUsecase
	ident  *usecases.IdentityResolver
	store  *repository.SQLManager
}

func setup(t *testing.T, limiter Limiter) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := infrastructure.OpenSQLite(ctx, filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := repository.NewSQLManager(db, repository.SQLite)
	require.NoError(t, store.RunMigrations(ctx))

	log := logging.Nop{}
	locks := infrastructure.NewUserLocks()
	identity := usecases.NewIdentityResolver(store, log)
	profiles := usecases.NewProfileService(store, locks, log)
	auth := usecases.NewAuthUsecase(identity, profiles, "bot-secret", time.Hour)
	dreams := usecases.NewDreamService(store, locks, infrastructure.NewMockGenerationClient(),
		usecases.DefaultEngineConfig(time.UTC), log)

	sender := &fakeSender{}
	bot := NewBot(sender, Deps{
		Dreams:   dreams,
		Identity: identity,
		Profiles: profiles,
		Auth:     auth,
		Limiter:  limiter,
		Log:      log,
		Location: time.UTC,
		SiteURL:  "https://dreams.example/",
	})
	return &fixture{bot: bot, sender: sender, auth: auth, ident: identity, store: store}
}

const (
	chatID = int64(1001)
	fromID = int64(2002)
)

func textUpdate(text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: fromID},
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd := strings.SplitN(text, " ", 2)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{UpdateID: 1, Message: msg}
}

func contactUpdate(phone string, ownerID int64) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: 2, Message: &tgbotapi.Message{
		MessageID: 2,
		From:      &tgbotapi.User{ID: fromID},
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		Contact:   &tgbotapi.Contact{PhoneNumber: phone, UserID: ownerID},
	}}
}

func (f *fixture) handle(text string) {
	f.bot.HandleUpdate(context.Background(), textUpdate(text))
}

func TestStartShowsContactKeyboard(t *testing.T) {
	f := setup(t, allowAll{})
	f.handle("/start")

	m := f.sender.last(t)
	assert.Equal(t, textWelcome, m.Text)
	kb, ok := m.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, kb.Keyboard[0][0].RequestContact)
}

func TestUnknownSenderIsAskedForContact(t *testing.T) {
	f := setup(t, allowAll{})
	f.handle("мне снилась река")
	assert.Equal(t, textUnknown, f.sender.last(t).Text)
}

func TestContactRegistersAndDreamIsAnswered(t *testing.T) {
	f := setup(t, allowAll{})

	f.bot.HandleUpdate(context.Background(), contactUpdate("89995554433", fromID))
	assert.Equal(t, textGreetNew+textFillProfile, f.sender.last(t).Text)

	f.handle("мне снилась река")
	assert.Contains(t, f.sender.last(t).Text, "мне снилась река")

	f.bot.HandleUpdate(context.Background(), contactUpdate("+79995554433", fromID))
	assert.Equal(t, textGreetBack+textFillProfile, f.sender.last(t).Text)

	u, err := f.store.Users(f.store.DB()).GetByTelegramID(context.Background(), "2002")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "+79995554433", u.Phone)
}

func TestForeignContactIsRejected(t *testing.T) {
	f := setup(t, allowAll{})
	f.bot.HandleUpdate(context.Background(), contactUpdate("+79995554400", 999))
	assert.Equal(t, textForeignContact, f.sender.last(t).Text)

	u, err := f.store.Users(f.store.DB()).GetByPhone(context.Background(), "+79995554400")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestProfileConversation(t *testing.T) {
	f := setup(t, allowAll{})
	f.bot.HandleUpdate(context.Background(), contactUpdate("+79995554401", fromID))

	f.handle("/profile")
	assert.Contains(t, f.sender.last(t).Text, textNotSet)

	f.handle("Лена")
	assert.Equal(t, textAskBirthDate, f.sender.last(t).Text)

	f.handle("31.31.1990")
	assert.Equal(t, textBadBirthDate, f.sender.last(t).Text)

	f.handle("15.03.1995")
	assert.Equal(t, textProfileSaved, f.sender.last(t).Text)

	u, err := f.store.Users(f.store.DB()).GetByTelegramID(context.Background(), "2002")
	require.NoError(t, err)
	assert.Equal(t, "Лена", u.Name)
	require.NotNil(t, u.BirthDate)
	assert.Equal(t, "1995-03-15", u.BirthDate.Format("2006-01-02"))

	f.handle("/profile")
	f.handle("/cancel")
	assert.Equal(t, textProfileCancel, f.sender.last(t).Text)
	f.handle("/cancel")
	assert.Equal(t, textNothingToStop, f.sender.last(t).Text)
}

func TestDailyLimitShowsPremiumButton(t *testing.T) {
	f := setup(t, allowAll{})
	f.bot.HandleUpdate(context.Background(), contactUpdate("+79995554402", fromID))

	for i := 0; i < 5; i++ {
		f.handle("сон")
	}
	f.handle("ещё сон")

	m := f.sender.last(t)
	assert.True(t, strings.HasPrefix(m.Text, "На сегодня лимит"), m.Text)
	kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.NotNil(t, kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, callbackPremium, *kb.InlineKeyboard[0][0].CallbackData)

	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: 9, CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    callbackPremium,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID, Type: "private"}},
	}})
	assert.Contains(t, f.sender.last(t).Text, "https://dreams.example/premium/")
}

func TestHistoryAndClear(t *testing.T) {
	f := setup(t, allowAll{})
	f.bot.HandleUpdate(context.Background(), contactUpdate("+79995554403", fromID))

	f.handle("/history")
	assert.Equal(t, textHistoryEmpty, f.sender.last(t).Text)

	f.handle(strings.Repeat("очень длинный сон ", 10))
	f.handle("/clear")
	assert.Equal(t, textCleared, f.sender.last(t).Text)
	f.handle("короткий сон")

	f.handle("/history")
	text := f.sender.last(t).Text
	assert.True(t, strings.HasPrefix(text, textHistoryHeader))
	assert.Contains(t, text, "• короткий сон\n")
	assert.Contains(t, text, "...")
	assert.Contains(t, text, "https://dreams.example/history/")
	assert.Less(t, strings.Index(text, "короткий"), strings.Index(text, "очень"), "newest first")
}

func TestStartWithLinkToken(t *testing.T) {
	f := setup(t, allowAll{})
	ctx := context.Background()
	web, _, err := f.ident.Resolve(ctx, usecases.Credential{Channel: usecases.ChannelWeb, Phone: "+79995554404"})
	require.NoError(t, err)

	token, err := f.auth.IssueLinkToken(web.ID)
	require.NoError(t, err)

	f.handle("/start " + token)
	assert.Equal(t, textLinked, f.sender.last(t).Text)

	f.handle("сон после привязки")
	assert.Contains(t, f.sender.last(t).Text, "сон после привязки")

	f.handle("/start broken")
	assert.Equal(t, textLinkExpired, f.sender.last(t).Text)
}

func TestFloodLimiter(t *testing.T) {
	f := setup(t, infrastructure.NewMessageRateLimiter(0.001, 1))
	f.handle("/help")
	assert.Equal(t, textHelp, f.sender.last(t).Text)
	f.handle("/help")
	assert.Equal(t, textSlowDown, f.sender.last(t).Text)
}

func TestGroupChatsAreIgnored(t *testing.T) {
	f := setup(t, allowAll{})
	upd := textUpdate("/start")
	upd.Message.Chat.Type = "group"
	f.bot.HandleUpdate(context.Background(), upd)
	assert.Empty(t, f.sender.sent)
}

func TestChatStoreEviction(t *testing.T) {
	s := newChatStore()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.setUser(1, 10)
	now = now.Add(time.Hour)
	s.setUser(2, 20)

	assert.Equal(t, 1, s.evictIdle(30*time.Minute))
	id, _ := s.cachedUser(2)
	assert.Equal(t, int64(20), id)
	id, _ = s.cachedUser(1)
	assert.Equal(t, int64(0), id)
}

func TestChatStoreVerifiedMark(t *testing.T) {
	s := newChatStore()

	s.setContactUser(1, 10)
	s.setUser(1, 10)
	id, verified := s.cachedUser(1)
	assert.Equal(t, int64(10), id)
	assert.True(t, verified, "re-caching the same user keeps the mark")

	s.setUser(1, 11)
	id, verified = s.cachedUser(1)
	assert.Equal(t, int64(11), id)
	assert.False(t, verified)
}

func TestContactFromNewTelegramAccountSignsIn(t *testing.T) {
	f := setup(t, allowAll{})
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, contactUpdate("+79995554405", fromID))
	assert.Equal(t, textGreetNew+textFillProfile, f.sender.last(t).Text)

	// Same phone, new Telegram account in a new chat.
	const newFrom, newChat = int64(3003), int64(1002)
	share := contactUpdate("89995554405", newFrom)
	share.Message.From.ID = newFrom
	share.Message.Chat.ID = newChat
	f.bot.HandleUpdate(ctx, share)
	assert.Equal(t, textGreetBack+textFillProfile, f.sender.last(t).Text)

	dream := textUpdate("сон с нового аккаунта")
	dream.Message.From.ID = newFrom
	dream.Message.Chat.ID = newChat
	f.bot.HandleUpdate(ctx, dream)
	m := f.sender.last(t)
	assert.Equal(t, newChat, m.ChatID)
	assert.Contains(t, m.Text, "сон с нового аккаунта")

	u, err := f.store.Users(f.store.DB()).GetByPhone(ctx, "+79995554405")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "2002", u.TelegramID, "the existing binding is kept")
}
