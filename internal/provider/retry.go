package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"memobot/internal/domain"
)

const (
	defaultMaxRetries  = 3
	defaultBackoffUnit = time.Second
)

// retryPolicy retries transient completion-call failures: network errors,
// 5xx and 429 responses. Attempt n backs off n²·unit plus jitter.
type retryPolicy struct {
	maxRetries  int
	backoffUnit time.Duration
	logger      *slog.Logger
}

func newRetryPolicy(maxRetries int, logger *slog.Logger) *retryPolicy {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retryPolicy{
		maxRetries:  maxRetries,
		backoffUnit: defaultBackoffUnit,
		logger:      logger,
	}
}

func (p *retryPolicy) wait(ctx context.Context, attempt int) error {
	base := time.Duration(attempt*attempt) * p.backoffUnit
	backoff := base + time.Duration(rand.Int63n(int64(base/2+1)))
	p.logger.Warn("retrying completion call", "attempt", attempt+1, "backoff", backoff)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(backoff):
		return nil
	}
}

// do runs buildReq until a non-transient response arrives or the retry
// budget is spent. Exhaustion surfaces a *domain.GenerationError so the
// last HTTP status survives the wrapping.
func (p *retryPolicy) do(ctx context.Context, client *http.Client, providerName string, buildReq func() (*http.Request, error)) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := p.wait(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			if attempt < p.maxRetries {
				p.logger.Warn("completion call failed, will retry", "err", err)
				continue
			}
			return nil, &domain.GenerationError{
				Provider: providerName,
				Err:      fmt.Errorf("request failed after %d retries: %w", p.maxRetries, err),
			}
		}

		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if attempt < p.maxRetries {
			p.logger.Warn("server error, will retry",
				"status", resp.StatusCode, "body", string(body))
			continue
		}
		return nil, &domain.GenerationError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server error after %d retries: %s", p.maxRetries, string(body)),
		}
	}
}
