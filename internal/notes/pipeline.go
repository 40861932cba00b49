package notes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"memobot/internal/domain"
	"memobot/internal/metrics"
)

const defaultConcurrency = 5

// Recorder receives a journal entry for every persisted note. Failures are
// logged and swallowed by the pipeline.
type Recorder interface {
	RecordSaved(ctx context.Context, e RecordedNote) error
}

// RecordedNote describes one persisted note for the journal.
type RecordedNote struct {
	Filename  string
	FileID    string
	Channel   string
	Kind      string // "text" | "url"
	CreatedAt time.Time
}

// Pipeline is the two-branch message-to-note orchestrator. After the dedup
// gate a message is either formatted directly (plain text) or routed through
// the URL fetch-and-summarize chain, then persisted and answered.
type Pipeline struct {
	provider   domain.Provider
	store      domain.FileStore
	bus        domain.MessageBus
	summarizer *Summarizer
	finder     *Finder
	dedup      *Deduplicator
	recorder   Recorder
	prompts    *Prompts

	notesFolderID    string
	urlNotesFolderID string
	concurrency      int

	now    func() time.Time // JST clock, injectable in tests
	logger *slog.Logger
}

type PipelineConfig struct {
	Provider         domain.Provider
	Store            domain.FileStore
	Bus              domain.MessageBus
	Summarizer       *Summarizer
	Finder           *Finder
	Dedup            *Deduplicator
	Recorder         Recorder // optional
	Prompts          *Prompts
	NotesFolderID    string
	URLNotesFolderID string
	Concurrency      int
	Now              func() time.Time // optional, defaults to NowJST
	Logger           *slog.Logger
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Prompts == nil {
		cfg.Prompts = DefaultPrompts()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Now == nil {
		cfg.Now = NowJST
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		provider:         cfg.Provider,
		store:            cfg.Store,
		bus:              cfg.Bus,
		summarizer:       cfg.Summarizer,
		finder:           cfg.Finder,
		dedup:            cfg.Dedup,
		recorder:         cfg.Recorder,
		prompts:          cfg.Prompts,
		notesFolderID:    cfg.NotesFolderID,
		urlNotesFolderID: cfg.URLNotesFolderID,
		concurrency:      cfg.Concurrency,
		now:              cfg.Now,
		logger:           cfg.Logger,
	}
}

var (
	messagesTotal   = metrics.Collector.Counter("memobot_messages_total", "Inbound messages accepted by the pipeline", "")
	duplicatesTotal = metrics.Collector.Counter("memobot_duplicates_total", "Messages skipped by the dedup gate", "")
	failuresTotal   = metrics.Collector.Counter("memobot_failures_total", "Messages whose processing pass failed", "")
	textSavedTotal  = metrics.Collector.Counter("memobot_notes_saved_total", "Notes persisted to the store", `kind="text"`)
	urlSavedTotal   = metrics.Collector.Counter("memobot_notes_saved_total", "Notes persisted to the store", `kind="url"`)
	fallbackTotal   = metrics.Collector.Counter("memobot_url_fallback_total", "URL summaries produced by the fallback prompt", "")
)

// Run consumes inbound messages from the bus until the context is done.
// Handlers overlap up to the configured concurrency; completion order
// between messages is not guaranteed.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Info("note pipeline started", "concurrency", p.concurrency)

	sem := make(chan struct{}, p.concurrency)
	inbound := p.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("note pipeline stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				p.logger.Info("inbound channel closed, note pipeline stopping")
				return
			}
			sem <- struct{}{}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				p.Process(ctx, m)
			}(msg)
		}
	}
}

// Process runs one full pipeline pass for a message. Failures after the
// dedup gate release the message ID so a redelivery can retry, attach the
// failure reaction, and never take the process down.
func (p *Pipeline) Process(ctx context.Context, msg domain.InboundMessage) {
	if msg.FromBot {
		return
	}
	if !p.dedup.ShouldProcess(msg.ID) {
		duplicatesTotal.Inc()
		return
	}
	messagesTotal.Inc()

	p.logger.Info("processing message",
		"channel", msg.Channel,
		"message_id", msg.ID,
		"content_len", len(msg.Content),
	)

	if err := p.handle(ctx, msg); err != nil {
		failuresTotal.Inc()
		p.logger.Error("message processing failed", "message_id", msg.ID, "err", err)
		p.react(msg, domain.ReactionFailure)
		p.dedup.Release(msg.ID)
	}
}

func (p *Pipeline) handle(ctx context.Context, msg domain.InboundMessage) error {
	now := p.now()
	if IsURLOnly(msg.Content) {
		return p.processURL(ctx, msg, now)
	}
	return p.processText(ctx, msg, now)
}

// processText is the plain-text branch: topic → filename → formatted body →
// related notes → backlinks → persist → reply → reaction.
func (p *Pipeline) processText(ctx context.Context, msg domain.InboundMessage, now time.Time) error {
	topic, err := p.generateTopic(ctx, p.prompts.TopicName, msg.Content)
	if err != nil {
		return fmt.Errorf("generate topic: %w", err)
	}

	filename := Filename(topic, now)

	formatted, err := p.formatMessage(ctx, msg.Content, topic, now)
	if err != nil {
		return fmt.Errorf("format note: %w", err)
	}

	related := p.finder.FindRelated(ctx, formatted)
	final := AppendBacklinks(formatted, related)

	created, err := p.store.CreateFile(ctx, domain.CreateFileRequest{
		Name:     filename,
		ParentID: p.notesFolderID,
		MIMEType: "text/markdown",
		Body:     []byte(final),
	})
	if err != nil {
		return fmt.Errorf("persist note: %w", err)
	}
	textSavedTotal.Inc()
	p.record(ctx, RecordedNote{
		Filename: filename, FileID: created.ID,
		Channel: msg.Channel, Kind: "text", CreatedAt: now,
	})

	parsed := ParseNote(formatted)
	p.reply(msg, FormatTextReply(parsed, filename, related))
	p.react(msg, domain.ReactionSuccess)

	p.logger.Info("saved note", "filename", filename, "related", len(related))
	return nil
}

// processURL is the URL branch: summarize (with fallback) → topic →
// filename → persist to the URL folder → abbreviated reply → link reaction.
// No relatedness lookup is performed for URL notes.
func (p *Pipeline) processURL(ctx context.Context, msg domain.InboundMessage, now time.Time) error {
	url := strings.TrimSpace(msg.Content)

	summary, err := p.summarizer.SummarizeURL(ctx, url, now)
	if err != nil {
		p.reply(msg, FormatURLError(err))
		return fmt.Errorf("summarize url: %w", err)
	}

	topic, err := p.generateTopic(ctx, p.prompts.URLTopicName, summary)
	if err != nil {
		p.reply(msg, FormatURLError(err))
		return fmt.Errorf("generate url topic: %w", err)
	}

	filename := Filename(topic, now)

	created, err := p.store.CreateFile(ctx, domain.CreateFileRequest{
		Name:     filename,
		ParentID: p.urlNotesFolderID,
		MIMEType: "text/markdown",
		Body:     []byte(summary),
	})
	if err != nil {
		p.reply(msg, FormatURLError(err))
		return fmt.Errorf("persist url note: %w", err)
	}
	urlSavedTotal.Inc()
	p.record(ctx, RecordedNote{
		Filename: filename, FileID: created.ID,
		Channel: msg.Channel, Kind: "url", CreatedAt: now,
	})

	p.reply(msg, FormatURLReply(topic, filename))
	p.react(msg, domain.ReactionLink)

	p.logger.Info("saved url summary", "filename", filename)
	return nil
}

// generateTopic produces a sanitized short topic label.
func (p *Pipeline) generateTopic(ctx context.Context, systemPrompt, input string) (string, error) {
	raw, err := p.provider.Complete(ctx, domain.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   input,
		MaxTokens:    50,
		Temperature:  0.3,
	})
	if err != nil {
		return "", err
	}
	topic := SanitizeTopic(raw)
	if topic == "" {
		return "", fmt.Errorf("empty topic from provider")
	}
	return topic, nil
}

// formatMessage produces the structured note body for a plain-text message.
// The template demands the full source information back, not a summary.
func (p *Pipeline) formatMessage(ctx context.Context, content, topic string, now time.Time) (string, error) {
	userPrompt := fmt.Sprintf("現在の日本時間: %s\nトピック名: %s\n\n投稿内容: %s",
		FormatTimestamp(now), topic, content)

	return p.provider.Complete(ctx, domain.CompletionRequest{
		SystemPrompt: p.prompts.FormatMessage,
		UserPrompt:   userPrompt,
		MaxTokens:    800,
		Temperature:  0.7,
	})
}

func (p *Pipeline) reply(msg domain.InboundMessage, content string) {
	p.bus.SendOutbound(domain.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		ReplyToID: msg.ID,
		Content:   content,
	})
}

func (p *Pipeline) react(msg domain.InboundMessage, reaction domain.Reaction) {
	p.bus.SendOutbound(domain.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		ReplyToID: msg.ID,
		Reaction:  reaction,
	})
}

func (p *Pipeline) record(ctx context.Context, rec RecordedNote) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordSaved(ctx, rec); err != nil {
		p.logger.Warn("journal write failed", "filename", rec.Filename, "err", err)
	}
}
