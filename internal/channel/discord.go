// Package channel implements the chat platform front-ends.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"memobot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const discordMaxMsgLen = 2000

// Discord implements domain.Channel for Discord. It delivers message events
// to the bus and turns outbound instructions into threaded replies and
// message reactions.
type Discord struct {
	token     string
	channelID string // restrict to one channel; empty = all
	session   *discordgo.Session
	bus       domain.MessageBus
	logger    *slog.Logger
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token     string
	ChannelID string
	Logger    *slog.Logger
}

// NewDiscord creates a new Discord channel handler.
func NewDiscord(cfg DiscordConfig) *Discord {
	return &Discord{
		token:     cfg.Token,
		channelID: cfg.ChannelID,
		logger:    cfg.Logger,
	}
}

func (d *Discord) Name() string { return "discord" }

// Start connects to Discord using a bot token and begins listening.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	d.bus = bus

	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	d.session = session

	// Register outbound handler.
	bus.OnOutbound("discord", func(msg domain.OutboundMessage) {
		if msg.Content != "" {
			d.sendReply(msg.ChatID, msg.ReplyToID, msg.Content)
		}
		if msg.Reaction != domain.ReactionNone {
			d.addReaction(msg.ChatID, msg.ReplyToID, msg.Reaction)
		}
	})

	// Register message handler.
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		// Ignore the bot's own messages and other bots.
		if m.Author.ID == s.State.User.ID || m.Author.Bot {
			return
		}

		// If a channel ID is configured, process only that channel.
		if d.channelID != "" && m.ChannelID != d.channelID {
			return
		}

		d.logger.Info("discord message received",
			"author", m.Author.Username,
			"channel_id", m.ChannelID,
			"content_len", len(m.Content),
		)

		bus.Publish(domain.InboundMessage{
			ID:        m.ID,
			Channel:   "discord",
			ChatID:    m.ChannelID,
			SenderID:  m.Author.ID,
			Content:   m.Content,
			FromBot:   m.Author.Bot,
			Timestamp: time.Now(),
		})
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	d.logger.Info("discord bot connected", "user", session.State.User.Username)

	// Wait for context cancellation.
	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

func (d *Discord) Stop() error {
	// No-op: the session closes when Start's context is cancelled.
	return nil
}

// sendReply answers a message in-thread, splitting long content.
func (d *Discord) sendReply(channelID, messageID, content string) {
	ref := &discordgo.MessageReference{MessageID: messageID, ChannelID: channelID}
	for _, chunk := range splitMessage(content, discordMaxMsgLen) {
		if _, err := d.session.ChannelMessageSendReply(channelID, chunk, ref); err != nil {
			d.logger.Error("discord reply failed", "channel", channelID, "err", err)
		}
	}
}

func (d *Discord) addReaction(channelID, messageID string, reaction domain.Reaction) {
	if err := d.session.MessageReactionAdd(channelID, messageID, string(reaction)); err != nil {
		d.logger.Error("discord reaction failed",
			"channel", channelID, "message_id", messageID, "err", err)
	}
}

// splitMessage splits a message into chunks that fit within the max length,
// trying to split on newlines when possible.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := strings.LastIndex(msg[:maxLen], "\n")
		if cut <= 0 {
			// No newline in the window; back up to a rune boundary so a
			// multi-byte character never splits across chunks.
			cut = maxLen
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
		}
		chunks = append(chunks, msg[:cut])
		msg = strings.TrimPrefix(msg[cut:], "\n")
	}
	return chunks
}
