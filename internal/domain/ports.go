package domain

import "context"

// Extractor is the driven port for the remote extraction service.
type Extractor interface {
	// Submit starts an extraction for url. The returned job is pending, or
	// already completed when the service answers synchronously.
	Submit(ctx context.Context, url string) (*Job, error)

	// Status fetches the current state of a job. Each call issues exactly
	// one request and returns a fresh observation.
	Status(ctx context.Context, id string) (*Job, error)
}
