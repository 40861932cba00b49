package domain

import "time"

// InboundMessage is one chat message delivered by a channel.
type InboundMessage struct {
	ID        string // platform message ID, used for dedup and reactions
	Channel   string // originating channel name ("discord", "telegram")
	ChatID    string
	SenderID  string
	Content   string
	FromBot   bool
	Timestamp time.Time
}

// OutboundMessage is a delivery instruction for a channel. It carries a
// reply, a reaction, or both; ReplyToID always names the message being
// answered so the platform can thread the reply and attach the reaction.
type OutboundMessage struct {
	Channel   string
	ChatID    string
	ReplyToID string
	Content   string   // empty for reaction-only deliveries
	Reaction  Reaction // ReactionNone for plain replies
}

// Reaction is the emoji attached to a processed message.
type Reaction string

const (
	ReactionNone    Reaction = ""
	ReactionSuccess Reaction = "✅"
	ReactionLink    Reaction = "🔗"
	ReactionFailure Reaction = "❌"
)
