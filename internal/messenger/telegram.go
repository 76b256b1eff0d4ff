package messenger

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends via the Bot API. Bot clients are cached per token so
// rules overriding the default bot don't re-authorize on every send.
type Telegram struct {
	mu   sync.Mutex
	bots map[string]*tgbotapi.BotAPI
}

func NewTelegram() *Telegram {
	return &Telegram{bots: make(map[string]*tgbotapi.BotAPI)}
}

func (t *Telegram) bot(token string) (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if bot, ok := t.bots[token]; ok {
		return bot, nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	t.bots[token] = bot
	return bot, nil
}

func (t *Telegram) Send(ctx context.Context, botToken, chatID, text string) (string, error) {
	if botToken == "" {
		return "", fmt.Errorf("no bot token configured")
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid chat ID: %s", chatID)
	}
	bot, err := t.bot(botToken)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sent, err := bot.Send(tgbotapi.NewMessage(id, text))
	if err != nil {
		return "", err
	}
	return strconv.Itoa(sent.MessageID), nil
}
