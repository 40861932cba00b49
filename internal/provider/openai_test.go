package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"memobot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func completionResponse(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, content)
}

func newTestOpenAI(baseURL string) *OpenAI {
	o := NewOpenAI(OpenAIConfig{
		APIKey:  "sk-test",
		APIBase: baseURL,
		Model:   "gpt-4o-mini",
		Logger:  testLogger(),
	})
	o.retry.backoffUnit = time.Millisecond
	return o
}

func TestOpenAI_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}

		var req oaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.MaxTokens != 50 {
			t.Errorf("max_tokens = %d", req.MaxTokens)
		}
		if req.Temperature == nil || *req.Temperature != 0.3 {
			t.Errorf("temperature = %v", req.Temperature)
		}

		fmt.Fprint(w, completionResponse("応答テキスト"))
	}))
	defer srv.Close()

	got, err := newTestOpenAI(srv.URL).Complete(context.Background(), domain.CompletionRequest{
		SystemPrompt: "system",
		UserPrompt:   "user",
		MaxTokens:    50,
		Temperature:  0.3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "応答テキスト" {
		t.Errorf("content = %q", got)
	}
}

func TestOpenAI_Complete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL).Complete(context.Background(), domain.CompletionRequest{
		UserPrompt: "user",
	})
	var genErr *domain.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", genErr.StatusCode)
	}
}

func TestOpenAI_Complete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := newTestOpenAI(srv.URL).Complete(context.Background(), domain.CompletionRequest{UserPrompt: "user"})
	var genErr *domain.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
}

func TestOpenAI_Complete_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, completionResponse("ok"))
	}))
	defer srv.Close()

	got, err := newTestOpenAI(srv.URL).Complete(context.Background(), domain.CompletionRequest{UserPrompt: "user"})
	if err != nil {
		t.Fatalf("expected retry to recover: %v", err)
	}
	if got != "ok" {
		t.Errorf("content = %q", got)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestOpenAI_Complete_RetryExhaustionKeepsStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "overloaded")
	}))
	defer srv.Close()

	o := NewOpenAI(OpenAIConfig{
		APIKey:     "sk-test",
		APIBase:    srv.URL,
		Model:      "gpt-4o-mini",
		MaxRetries: 1,
		Logger:     testLogger(),
	})
	o.retry.backoffUnit = time.Millisecond

	_, err := o.Complete(context.Background(), domain.CompletionRequest{UserPrompt: "user"})
	var genErr *domain.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}
	if genErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want %d", genErr.StatusCode, http.StatusServiceUnavailable)
	}
	if genErr.Provider != "openai" {
		t.Errorf("Provider = %q", genErr.Provider)
	}
	if calls.Load() != 2 {
		t.Errorf("expected initial call + 1 retry, got %d calls", calls.Load())
	}
}

func TestOpenAI_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	if err := newTestOpenAI(srv.URL).Healthy(context.Background()); err != nil {
		t.Errorf("unexpected health error: %v", err)
	}
}

func TestOpenAI_Healthy_BadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if err := newTestOpenAI(srv.URL).Healthy(context.Background()); err == nil {
		t.Error("expected health error for 401")
	}
}
