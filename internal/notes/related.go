package notes

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"memobot/internal/domain"
)

const (
	maxRelatedNotes = 3
	keywordInputCap = 1000 // characters of the candidate body fed to extraction
	listPageSize    = 1000
	listOrderBy     = "name desc"
)

// RelatedNote is one ranked match from the relatedness search.
type RelatedNote struct {
	Name            string  // filename with the .md extension stripped
	Score           float64 // matched keywords / extracted keywords, in [0,1]
	MatchedKeywords int
}

// Finder scores existing note names against keywords extracted from a new
// note. The signal is lexical: a case-insensitive substring hit of a keyword
// in a filename counts as a match. No embeddings are involved.
type Finder struct {
	provider domain.Provider
	store    domain.FileStore
	folderID string
	prompts  *Prompts
	logger   *slog.Logger
}

type FinderConfig struct {
	Provider domain.Provider
	Store    domain.FileStore
	FolderID string
	Prompts  *Prompts
	Logger   *slog.Logger
}

func NewFinder(cfg FinderConfig) *Finder {
	if cfg.Prompts == nil {
		cfg.Prompts = DefaultPrompts()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Finder{
		provider: cfg.Provider,
		store:    cfg.Store,
		folderID: cfg.FolderID,
		prompts:  cfg.Prompts,
		logger:   cfg.Logger,
	}
}

// ExtractKeywords asks the LLM for 5-8 comma-separated keywords from the
// start of the body. Failures and empty responses degrade to nil; keyword
// extraction is best-effort and never fails the pipeline.
func (f *Finder) ExtractKeywords(ctx context.Context, body string) []string {
	input := body
	if runes := []rune(input); len(runes) > keywordInputCap {
		input = string(runes[:keywordInputCap])
	}

	raw, err := f.provider.Complete(ctx, domain.CompletionRequest{
		SystemPrompt: f.prompts.ExtractKeywords,
		UserPrompt:   input,
		MaxTokens:    100,
		Temperature:  0.3,
	})
	if err != nil {
		f.logger.Warn("keyword extraction failed", "err", err)
		return nil
	}

	var keywords []string
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token != "" {
			keywords = append(keywords, token)
		}
	}
	return keywords
}

// FindRelated returns up to three existing notes ranked by keyword overlap
// with the candidate body. Every failure path degrades to an empty result.
// Equal scores keep the store's listing order (stable sort).
func (f *Finder) FindRelated(ctx context.Context, body string) []RelatedNote {
	keywords := f.ExtractKeywords(ctx, body)
	if len(keywords) == 0 {
		return nil
	}
	f.logger.Debug("extracted keywords", "keywords", keywords)

	names, err := f.listAllNames(ctx)
	if err != nil {
		f.logger.Warn("listing existing notes failed", "err", err)
		return nil
	}

	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	var related []RelatedNote
	for _, name := range names {
		fileName := strings.ToLower(name)
		matches := 0
		for _, kw := range lowered {
			if strings.Contains(fileName, kw) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		related = append(related, RelatedNote{
			Name:            strings.TrimSuffix(name, ".md"),
			Score:           float64(matches) / float64(len(keywords)),
			MatchedKeywords: matches,
		})
	}

	sort.SliceStable(related, func(i, j int) bool {
		return related[i].Score > related[j].Score
	})

	if len(related) > maxRelatedNotes {
		related = related[:maxRelatedNotes]
	}
	return related
}

// listAllNames retrieves every note name in the folder, following page
// tokens until the store reports no more pages.
func (f *Finder) listAllNames(ctx context.Context) ([]string, error) {
	var names []string
	pageToken := ""
	for {
		page, err := f.store.ListFiles(ctx, domain.ListFilesRequest{
			ParentID:     f.folderID,
			NameContains: ".md",
			OrderBy:      listOrderBy,
			PageSize:     listPageSize,
			PageToken:    pageToken,
		})
		if err != nil {
			return nil, err
		}
		for _, file := range page.Files {
			names = append(names, file.Name)
		}
		if page.NextPageToken == "" {
			return names, nil
		}
		pageToken = page.NextPageToken
	}
}
