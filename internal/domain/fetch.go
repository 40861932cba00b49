package domain

import "context"

// PageFetcher retrieves the raw body of a remote page, following redirects.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
