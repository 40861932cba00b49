package notes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"memobot/internal/domain"
	"memobot/internal/webpage"
)

// Summarizer turns a URL into note body text. The happy path fetches the
// page, extracts its text, and summarizes it; if any of those stages fails,
// a fallback completion synthesizes a content-free note from the URL string
// alone. Only a failure of the fallback itself propagates.
type Summarizer struct {
	provider   domain.Provider
	fetcher    domain.PageFetcher
	prompts    *Prompts
	maxTextLen int
	logger     *slog.Logger
}

type SummarizerConfig struct {
	Provider      domain.Provider
	Fetcher       domain.PageFetcher
	Prompts       *Prompts
	MaxTextLength int
	Logger        *slog.Logger
}

func NewSummarizer(cfg SummarizerConfig) *Summarizer {
	if cfg.Prompts == nil {
		cfg.Prompts = DefaultPrompts()
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = webpage.DefaultMaxTextLength
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Summarizer{
		provider:   cfg.Provider,
		fetcher:    cfg.Fetcher,
		prompts:    cfg.Prompts,
		maxTextLen: cfg.MaxTextLength,
		logger:     cfg.Logger,
	}
}

// SummarizeURL produces the note body for a URL-only message.
func (s *Summarizer) SummarizeURL(ctx context.Context, url string, ts time.Time) (string, error) {
	body, err := s.summarizeFetched(ctx, url, ts)
	if err == nil {
		return body, nil
	}

	s.logger.Warn("url summary failed, generating fallback from URL alone", "url", url, "err", err)
	fallbackTotal.Inc()
	return s.fallbackSummary(ctx, url, ts)
}

// summarizeFetched is the primary chain: fetch, extract, summarize.
func (s *Summarizer) summarizeFetched(ctx context.Context, url string, ts time.Time) (string, error) {
	raw, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}

	pageText := webpage.ExtractText(string(raw), s.maxTextLen)
	if pageText == "" {
		return "", fmt.Errorf("no text content extracted from %s", url)
	}

	userPrompt := fmt.Sprintf("現在の日本時間: %s\n\nURL: %s\n\nページ内容:\n%s\n\n上記のページ内容を要約してください。",
		FormatTimestamp(ts), url, pageText)

	return s.provider.Complete(ctx, domain.CompletionRequest{
		SystemPrompt: s.prompts.SummarizeURL,
		UserPrompt:   userPrompt,
		MaxTokens:    600,
		Temperature:  0.5,
	})
}

// fallbackSummary builds a best-guess note from only the URL string. Its
// failure is terminal for the message.
func (s *Summarizer) fallbackSummary(ctx context.Context, url string, ts time.Time) (string, error) {
	userPrompt := fmt.Sprintf("現在の日本時間: %s\n\nURL: %s", FormatTimestamp(ts), url)

	return s.provider.Complete(ctx, domain.CompletionRequest{
		SystemPrompt: s.prompts.SummarizeURLFallback,
		UserPrompt:   userPrompt,
		MaxTokens:    300,
		Temperature:  0.3,
	})
}
