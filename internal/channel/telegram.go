package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"memobot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMaxMsgLen = 4000

// Telegram implements domain.Channel for the Telegram Bot API. The Bot API
// client has no reaction call, so reactions degrade to a short emoji reply.
type Telegram struct {
	token  string
	chatID string // restrict to one chat; empty = all

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger
}

type TelegramConfig struct {
	Token  string
	ChatID string
	Logger *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	return &Telegram{
		token:  cfg.Token,
		chatID: cfg.ChatID,
		logger: cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and begins polling for updates.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	bus.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		content := msg.Content
		if content == "" && msg.Reaction != domain.ReactionNone {
			content = string(msg.Reaction)
		}
		if content == "" {
			return
		}
		t.sendReply(msg.ChatID, msg.ReplyToID, content)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

// Stop is a no-op: the bot stops when Start's context is cancelled.
func (t *Telegram) Stop() error {
	return nil
}

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message
	if msg.From != nil && msg.From.IsBot {
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if t.chatID != "" && chatID != t.chatID {
		return
	}

	t.logger.Info("telegram message received",
		"chat_id", chatID,
		"content_len", len(msg.Text),
	)

	t.bus.Publish(domain.InboundMessage{
		ID:        chatID + ":" + strconv.Itoa(msg.MessageID),
		Channel:   "telegram",
		ChatID:    chatID,
		SenderID:  strconv.FormatInt(msg.From.ID, 10),
		Content:   msg.Text,
		FromBot:   msg.From.IsBot,
		Timestamp: time.Now(),
	})
}

// sendReply answers the referenced message, splitting long content.
func (t *Telegram) sendReply(chatID, replyToID string, content string) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		t.logger.Error("invalid telegram chat ID", "chat_id", chatID, "err", err)
		return
	}

	// Inbound IDs are "<chat>:<message>"; recover the message part.
	replyTo := 0
	if i := len(chatID) + 1; len(replyToID) > i && replyToID[:i] == chatID+":" {
		if n, err := strconv.Atoi(replyToID[i:]); err == nil {
			replyTo = n
		}
	}

	for _, chunk := range splitMessage(content, telegramMaxMsgLen) {
		out := tgbotapi.NewMessage(id, chunk)
		if replyTo != 0 {
			out.ReplyToMessageID = replyTo
		}
		if _, err := t.bot.Send(out); err != nil {
			t.logger.Error("telegram send failed", "chat_id", chatID, "err", err)
		}
	}
}
