// Package webpage fetches remote pages and reduces them to plain text for
// summarization.
package webpage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"memobot/internal/domain"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultMaxRedirects = 5
	fetchMaxBytes       = 1 << 20 // 1MB of raw HTML is plenty for extraction

	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
)

// Fetcher implements domain.PageFetcher with manual redirect handling so the
// hop count stays bounded.
type Fetcher struct {
	client       *http.Client
	maxRedirects int
	logger       *slog.Logger
}

type FetcherConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	Logger       *slog.Logger
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			// Redirects are followed by the loop in Fetch, not the client.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxRedirects: cfg.MaxRedirects,
		logger:       cfg.Logger,
	}
}

// Fetch GETs the page, following up to maxRedirects redirect hops. Any
// terminal non-2xx status, timeout, or connection error becomes a
// domain.NetworkError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	current := rawURL

	for hop := 0; hop <= f.maxRedirects; hop++ {
		parsed, err := url.Parse(current)
		if err != nil {
			return nil, &domain.NetworkError{URL: current, Err: fmt.Errorf("invalid URL: %w", err)}
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return nil, &domain.NetworkError{URL: current, Err: fmt.Errorf("unsupported scheme: %s", parsed.Scheme)}
		}

		req, err := http.NewRequestWithContext(ctx, "GET", current, nil)
		if err != nil {
			return nil, &domain.NetworkError{URL: current, Err: err}
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", acceptHeader)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, &domain.NetworkError{URL: current, Err: err}
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			location := resp.Header.Get("Location")
			resp.Body.Close()
			if location == "" {
				return nil, &domain.NetworkError{URL: current, StatusCode: resp.StatusCode}
			}
			next, err := parsed.Parse(location)
			if err != nil {
				return nil, &domain.NetworkError{URL: current, Err: fmt.Errorf("bad redirect location: %w", err)}
			}
			f.logger.Debug("following redirect", "from", current, "to", next.String(), "hop", hop+1)
			current = next.String()
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, &domain.NetworkError{URL: current, StatusCode: resp.StatusCode}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBytes))
		resp.Body.Close()
		if err != nil {
			return nil, &domain.NetworkError{URL: current, Err: fmt.Errorf("read body: %w", err)}
		}
		return body, nil
	}

	return nil, &domain.NetworkError{URL: rawURL, Err: fmt.Errorf("too many redirects (max %d)", f.maxRedirects)}
}
