package infrastructure

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramClient wraps the bot API with a cancellable polling loop.
type TelegramClient struct {
	Bot *tgbotapi.BotAPI
}

func NewTelegramClient(token string) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramClient{Bot: bot}, nil
}

func (t *TelegramClient) UserName() string {
	return t.Bot.Self.UserName
}

func (t *TelegramClient) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return t.Bot.Send(c)
}

func (t *TelegramClient) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return t.Bot.Request(c)
}

// Poll long-polls updates and hands them to handle. Updates of one chat are
// handled one at a time in arrival order; different chats run concurrently.
// It returns after ctx is cancelled and all handlers have finished.
func (t *TelegramClient) Poll(ctx context.Context, handle func(context.Context, tgbotapi.Update)) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.Bot.GetUpdatesChan(u)

	DispatchByChat(ctx, updates, handle)
	if ctx.Err() != nil {
		t.Bot.StopReceivingUpdates()
	}
}

// DispatchByChat reads updates until ctx is done or the channel closes. Each
// chat gets a worker that drains its pending updates in order and exits when
// the queue is empty.
func DispatchByChat(ctx context.Context, updates <-chan tgbotapi.Update, handle func(context.Context, tgbotapi.Update)) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		pending = make(map[int64][]tgbotapi.Update)
	)
	defer wg.Wait()

	worker := func(chatID int64) {
		defer wg.Done()
		for {
			mu.Lock()
			queue := pending[chatID]
			if len(queue) == 0 {
				delete(pending, chatID)
				mu.Unlock()
				return
			}
			next := queue[0]
			pending[chatID] = queue[1:]
			mu.Unlock()

			handle(ctx, next)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			var chatID int64
			if chat := update.FromChat(); chat != nil {
				chatID = chat.ID
			}

			mu.Lock()
			_, running := pending[chatID]
			pending[chatID] = append(pending[chatID], update)
			mu.Unlock()

			if !running {
				wg.Add(1)
				go worker(chatID)
			}
		}
	}
}
