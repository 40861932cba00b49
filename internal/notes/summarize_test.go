package notes

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"memobot/internal/domain"
)

func TestSummarizeURL_HappyPath(t *testing.T) {
	prov := &fakeProvider{complete: func(req domain.CompletionRequest) (string, error) {
		if req.MaxTokens != 600 {
			t.Errorf("expected the full summary budget, got %d", req.MaxTokens)
		}
		if !strings.Contains(req.UserPrompt, "ページ内容:") {
			t.Error("user prompt should carry the extracted page text")
		}
		if !strings.Contains(req.UserPrompt, "記事本文") {
			t.Errorf("extracted text missing from prompt: %q", req.UserPrompt)
		}
		return "要約結果", nil
	}}
	s := NewSummarizer(SummarizerConfig{
		Provider: prov,
		Fetcher:  &fakeFetcher{body: []byte("<html><body><p>記事本文</p></body></html>")},
		Logger:   testLogger(),
	})

	got, err := s.SummarizeURL(context.Background(), "https://example.com", fixedNow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "要約結果" {
		t.Errorf("summary = %q", got)
	}
}

func TestSummarizeURL_FallbackOnFetchFailure(t *testing.T) {
	prov := &fakeProvider{complete: func(req domain.CompletionRequest) (string, error) {
		if req.MaxTokens != 300 {
			t.Errorf("expected the fallback budget, got %d", req.MaxTokens)
		}
		return "推測メモ", nil
	}}
	s := NewSummarizer(SummarizerConfig{
		Provider: prov,
		Fetcher:  &fakeFetcher{err: &domain.NetworkError{URL: "https://example.com", StatusCode: 503}},
		Logger:   testLogger(),
	})

	got, err := s.SummarizeURL(context.Background(), "https://example.com", fixedNow())
	if err != nil {
		t.Fatalf("fetch failure should fall back, got error: %v", err)
	}
	if got != "推測メモ" {
		t.Errorf("fallback summary = %q", got)
	}
}

func TestSummarizeURL_FallbackOnEmptyExtraction(t *testing.T) {
	prov := &fakeProvider{complete: func(req domain.CompletionRequest) (string, error) {
		return "推測メモ", nil
	}}
	s := NewSummarizer(SummarizerConfig{
		Provider: prov,
		Fetcher:  &fakeFetcher{body: []byte("<script>only()</script><style>.x{}</style>")},
		Logger:   testLogger(),
	})

	got, err := s.SummarizeURL(context.Background(), "https://example.com", fixedNow())
	if err != nil {
		t.Fatalf("empty extraction should fall back, got error: %v", err)
	}
	if got == "" {
		t.Error("fallback should produce a summary")
	}

	// Only the fallback completion ran; the primary prompt never got text.
	if len(prov.requests) != 1 || prov.requests[0].MaxTokens != 300 {
		t.Errorf("expected one fallback request, got %+v", prov.requests)
	}
}

func TestSummarizeURL_SummaryFailureFallsBack(t *testing.T) {
	prov := &fakeProvider{complete: func(req domain.CompletionRequest) (string, error) {
		if req.MaxTokens == 600 {
			return "", fmt.Errorf("model overloaded")
		}
		return "推測メモ", nil
	}}
	s := NewSummarizer(SummarizerConfig{
		Provider: prov,
		Fetcher:  &fakeFetcher{body: []byte("<p>本文</p>")},
		Logger:   testLogger(),
	})

	got, err := s.SummarizeURL(context.Background(), "https://example.com", fixedNow())
	if err != nil {
		t.Fatalf("summary failure should fall back, got error: %v", err)
	}
	if got != "推測メモ" {
		t.Errorf("fallback summary = %q", got)
	}
}

func TestSummarizeURL_FallbackFailurePropagates(t *testing.T) {
	prov := &fakeProvider{complete: func(req domain.CompletionRequest) (string, error) {
		return "", &domain.GenerationError{Provider: "fake", Err: fmt.Errorf("quota exhausted")}
	}}
	s := NewSummarizer(SummarizerConfig{
		Provider: prov,
		Fetcher:  &fakeFetcher{err: fmt.Errorf("unreachable")},
		Logger:   testLogger(),
	})

	if _, err := s.SummarizeURL(context.Background(), "https://example.com", fixedNow()); err == nil {
		t.Fatal("fallback failure must propagate")
	}
}
