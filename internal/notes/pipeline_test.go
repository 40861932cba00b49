package notes

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"memobot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func fixedNow() time.Time {
	return time.Date(2024, time.December, 30, 10, 30, 0, 0, JST)
}

// --- fakes ---

// fakeProvider routes completions by their token budget, which uniquely
// identifies each pipeline call site (50=topic, 100=keywords, 300=fallback,
// 600=url summary, 800=format).
type fakeProvider struct {
	mu       sync.Mutex
	requests []domain.CompletionRequest
	complete func(req domain.CompletionRequest) (string, error)
}

func (f *fakeProvider) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.complete(req)
}

func (f *fakeProvider) Name() string                      { return "fake" }
func (f *fakeProvider) Healthy(ctx context.Context) error { return nil }

type fakeStore struct {
	mu      sync.Mutex
	created []domain.CreateFileRequest
	pages   map[string]*domain.FileList // keyed by page token, "" = first page
	listErr error
}

func (f *fakeStore) CreateFile(ctx context.Context, req domain.CreateFileRequest) (*domain.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	return &domain.StoredFile{ID: fmt.Sprintf("file-%d", len(f.created)), Name: req.Name}, nil
}

func (f *fakeStore) ListFiles(ctx context.Context, req domain.ListFilesRequest) (*domain.FileList, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	page, ok := f.pages[req.PageToken]
	if !ok {
		return &domain.FileList{}, nil
	}
	return page, nil
}

func (f *fakeStore) Healthy(ctx context.Context) error { return nil }

func (f *fakeStore) createdNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.created))
	for i, c := range f.created {
		names[i] = c.Name
	}
	return names
}

type fakeFetcher struct {
	body []byte
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.body, f.err
}

// fakeBus records outbound deliveries; inbound flow is not exercised here.
type fakeBus struct {
	mu       sync.Mutex
	outbound []domain.OutboundMessage
	inbound  chan domain.InboundMessage
}

func newFakeBus() *fakeBus {
	return &fakeBus{inbound: make(chan domain.InboundMessage, 10)}
}

func (b *fakeBus) Publish(msg domain.InboundMessage)               { b.inbound <- msg }
func (b *fakeBus) Subscribe() <-chan domain.InboundMessage         { return b.inbound }
func (b *fakeBus) OnOutbound(string, func(domain.OutboundMessage)) {}
func (b *fakeBus) Close()                                          {}

func (b *fakeBus) SendOutbound(msg domain.OutboundMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbound = append(b.outbound, msg)
}

func (b *fakeBus) sent() []domain.OutboundMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.OutboundMessage(nil), b.outbound...)
}

func (b *fakeBus) reactions() []domain.Reaction {
	var out []domain.Reaction
	for _, m := range b.sent() {
		if m.Reaction != domain.ReactionNone {
			out = append(out, m.Reaction)
		}
	}
	return out
}

// --- pipeline wiring ---

const formattedNote = `# テストトピック

2024年12月30日10時30分 作成

- 猫と散歩した
- とても楽しかった

#猫 #散歩`

func newTestPipeline(t *testing.T, prov *fakeProvider, store *fakeStore, fetcher domain.PageFetcher, bus *fakeBus) *Pipeline {
	t.Helper()
	logger := testLogger()
	return NewPipeline(PipelineConfig{
		Provider: prov,
		Store:    store,
		Bus:      bus,
		Summarizer: NewSummarizer(SummarizerConfig{
			Provider: prov,
			Fetcher:  fetcher,
			Logger:   logger,
		}),
		Finder: NewFinder(FinderConfig{
			Provider: prov,
			Store:    store,
			FolderID: "notes-folder",
			Logger:   logger,
		}),
		Dedup:            NewDeduplicator(10, logger),
		NotesFolderID:    "notes-folder",
		URLNotesFolderID: "url-folder",
		Now:              fixedNow,
		Logger:           logger,
	})
}

func textMessage(id, content string) domain.InboundMessage {
	return domain.InboundMessage{
		ID:      id,
		Channel: "discord",
		ChatID:  "chat-1",
		Content: content,
	}
}

func TestPipeline_TextBranch(t *testing.T) {
	prov := &fakeProvider{complete: func(req domain.CompletionRequest) (string, error) {
		switch req.MaxTokens {
		case 50:
			return "テストトピック", nil
		case 100:
			return "猫, 散歩", nil
		case 800:
			return formattedNote, nil
		}
		return "", fmt.Errorf("unexpected request: %d tokens", req.MaxTokens)
	}}
	store := &fakeStore{pages: map[string]*domain.FileList{
		"": {Files: []domain.StoredFile{{ID: "old-1", Name: "2024_12-29_09-00_猫の餌.md"}}},
	}}
	bus := newFakeBus()
	p := newTestPipeline(t, prov, store, &fakeFetcher{}, bus)

	p.Process(context.Background(), textMessage("msg-1", "今日は猫と散歩した。とても楽しかった。"))

	names := store.createdNames()
	if len(names) != 1 {
		t.Fatalf("expected 1 created file, got %d", len(names))
	}
	if names[0] != "2024_12-30_10-30_テストトピック.md" {
		t.Errorf("unexpected filename: %s", names[0])
	}
	if store.created[0].ParentID != "notes-folder" {
		t.Errorf("expected notes folder, got %s", store.created[0].ParentID)
	}

	body := string(store.created[0].Body)
	if !strings.Contains(body, "[[2024_12-29_09-00_猫の餌]]") {
		t.Errorf("expected backlink in persisted body, got:\n%s", body)
	}

	reactions := bus.reactions()
	if len(reactions) != 1 || reactions[0] != domain.ReactionSuccess {
		t.Errorf("expected success reaction, got %v", reactions)
	}

	var reply string
	for _, m := range bus.sent() {
		if m.Content != "" {
			reply = m.Content
		}
	}
	if !strings.Contains(reply, "**Bot処理完了！**") {
		t.Errorf("unexpected reply header: %q", reply)
	}
	if !strings.Contains(reply, "テストトピック") || !strings.Contains(reply, "#猫 #散歩") {
		t.Errorf("reply missing parsed fields:\n%s", reply)
	}
	if !strings.Contains(reply, "2024_12-29_09-00_猫の餌") {
		t.Errorf("reply missing related notes:\n%s", reply)
	}
}

func TestPipeline_URLBranch(t *testing.T) {
	prov := &fakeProvider{complete: func(req domain.CompletionRequest) (string, error) {
		switch req.MaxTokens {
		case 600:
			return "# 記事の要約\n\n2024年12月30日10時30分 作成\n\n- 要点", nil
		case 50:
			return "記事の要約", nil
		}
		return "", fmt.Errorf("unexpected request: %d tokens", req.MaxTokens)
	}}
	store := &fakeStore{}
	bus := newFakeBus()
	fetcher := &fakeFetcher{body: []byte("<html><body><p>記事本文</p></body></html>")}
	p := newTestPipeline(t, prov, store, fetcher, bus)

	p.Process(context.Background(), textMessage("msg-2", "https://example.com/article"))

	names := store.createdNames()
	if len(names) != 1 {
		t.Fatalf("expected 1 created file, got %d", len(names))
	}
	if names[0] != "2024_12-30_10-30_記事の要約.md" {
		t.Errorf("unexpected filename: %s", names[0])
	}
	if store.created[0].ParentID != "url-folder" {
		t.Errorf("expected url folder, got %s", store.created[0].ParentID)
	}

	reactions := bus.reactions()
	if len(reactions) != 1 || reactions[0] != domain.ReactionLink {
		t.Errorf("expected link reaction, got %v", reactions)
	}

	for _, m := range bus.sent() {
		if m.Content != "" && !strings.HasPrefix(m.Content, "**URL要約完了！**") {
			t.Errorf("unexpected url reply: %q", m.Content)
		}
	}
}

func TestPipeline_URLFallbackOnFetchFailure(t *testing.T) {
	prov := &fakeProvider{complete: func(req domain.CompletionRequest) (string, error) {
		switch req.MaxTokens {
		case 300:
			return "# 推測メモ\n\n- URLからの推測", nil
		case 50:
			return "推測メモ", nil
		}
		return "", fmt.Errorf("unexpected request: %d tokens", req.MaxTokens)
	}}
	store := &fakeStore{}
	bus := newFakeBus()
	fetcher := &fakeFetcher{err: &domain.NetworkError{URL: "https://example.com", StatusCode: 404}}
	p := newTestPipeline(t, prov, store, fetcher, bus)

	p.Process(context.Background(), textMessage("msg-3", "https://example.com"))

	if len(store.createdNames()) != 1 {
		t.Fatalf("fallback summary should still persist a note")
	}
	reactions := bus.reactions()
	if len(reactions) != 1 || reactions[0] != domain.ReactionLink {
		t.Errorf("expected link reaction after fallback, got %v", reactions)
	}
}

func TestPipeline_SkipsBotMessages(t *testing.T) {
	prov := &fakeProvider{complete: func(req domain.CompletionRequest) (string, error) {
		t.Error("provider should not be called for bot messages")
		return "", nil
	}}
	store := &fakeStore{}
	bus := newFakeBus()
	p := newTestPipeline(t, prov, store, &fakeFetcher{}, bus)

	msg := textMessage("msg-4", "hello")
	msg.FromBot = true
	p.Process(context.Background(), msg)

	if len(store.createdNames()) != 0 || len(bus.sent()) != 0 {
		t.Error("bot message should produce no work")
	}
}

func TestPipeline_DuplicateSkipped(t *testing.T) {
	prov := &fakeProvider{complete: func(req domain.CompletionRequest) (string, error) {
		switch req.MaxTokens {
		case 50:
			return "トピック", nil
		case 100:
			return "", nil // no keywords, no relatedness
		case 800:
			return formattedNote, nil
		}
		return "", fmt.Errorf("unexpected request")
	}}
	store := &fakeStore{}
	bus := newFakeBus()
	p := newTestPipeline(t, prov, store, &fakeFetcher{}, bus)

	msg := textMessage("msg-5", "メモ内容")
	p.Process(context.Background(), msg)
	p.Process(context.Background(), msg)

	if n := len(store.createdNames()); n != 1 {
		t.Errorf("duplicate should be skipped, got %d created files", n)
	}
}

func TestPipeline_FailureReactsAndReleases(t *testing.T) {
	calls := 0
	prov := &fakeProvider{complete: func(req domain.CompletionRequest) (string, error) {
		calls++
		return "", &domain.GenerationError{Provider: "fake", StatusCode: 500, Err: fmt.Errorf("boom")}
	}}
	store := &fakeStore{}
	bus := newFakeBus()
	p := newTestPipeline(t, prov, store, &fakeFetcher{}, bus)

	msg := textMessage("msg-6", "メモ内容")
	p.Process(context.Background(), msg)

	reactions := bus.reactions()
	if len(reactions) != 1 || reactions[0] != domain.ReactionFailure {
		t.Fatalf("expected failure reaction, got %v", reactions)
	}
	if len(store.createdNames()) != 0 {
		t.Error("failed pass must not persist a note")
	}

	// The ID was released, so a redelivery gets a fresh attempt.
	before := calls
	p.Process(context.Background(), msg)
	if calls == before {
		t.Error("redelivery after failure should be processed again")
	}
}

func TestPipeline_EmptyTopicFails(t *testing.T) {
	prov := &fakeProvider{complete: func(req domain.CompletionRequest) (string, error) {
		if req.MaxTokens == 50 {
			return `<>:"/\|?*`, nil // sanitizes to empty
		}
		return "unused", nil
	}}
	store := &fakeStore{}
	bus := newFakeBus()
	p := newTestPipeline(t, prov, store, &fakeFetcher{}, bus)

	p.Process(context.Background(), textMessage("msg-7", "メモ内容"))

	reactions := bus.reactions()
	if len(reactions) != 1 || reactions[0] != domain.ReactionFailure {
		t.Errorf("expected failure reaction for empty topic, got %v", reactions)
	}
}

func TestPipeline_URLErrorSendsErrorReply(t *testing.T) {
	prov := &fakeProvider{complete: func(req domain.CompletionRequest) (string, error) {
		return "", fmt.Errorf("provider down")
	}}
	store := &fakeStore{}
	bus := newFakeBus()
	p := newTestPipeline(t, prov, store, &fakeFetcher{err: fmt.Errorf("unreachable")}, bus)

	p.Process(context.Background(), textMessage("msg-8", "https://example.com"))

	var errReply bool
	for _, m := range bus.sent() {
		if strings.HasPrefix(m.Content, "URL処理中にエラーが発生しました") {
			errReply = true
		}
	}
	if !errReply {
		t.Error("expected a Japanese error reply for the failed URL")
	}
	reactions := bus.reactions()
	if len(reactions) != 1 || reactions[0] != domain.ReactionFailure {
		t.Errorf("expected failure reaction, got %v", reactions)
	}
}

func TestPipeline_RunConsumesFromBus(t *testing.T) {
	prov := &fakeProvider{complete: func(req domain.CompletionRequest) (string, error) {
		switch req.MaxTokens {
		case 50:
			return "トピック", nil
		case 100:
			return "", nil
		case 800:
			return formattedNote, nil
		}
		return "", fmt.Errorf("unexpected request")
	}}
	store := &fakeStore{}
	bus := newFakeBus()
	p := newTestPipeline(t, prov, store, &fakeFetcher{}, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	bus.Publish(textMessage("msg-9", "メモ内容"))

	deadline := time.After(3 * time.Second)
	for len(store.createdNames()) == 0 {
		select {
		case <-deadline:
			t.Fatal("pipeline did not process the published message in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
