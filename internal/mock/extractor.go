// Package mock provides function-field test doubles for domain ports.
package mock

import (
	"context"

	"github.com/cwygoda/pagebrief/internal/domain"
)

var _ domain.Extractor = (*Extractor)(nil)

// Extractor is a mock implementation of domain.Extractor.
type Extractor struct {
	SubmitFn func(ctx context.Context, url string) (*domain.Job, error)
	StatusFn func(ctx context.Context, id string) (*domain.Job, error)
}

func (e *Extractor) Submit(ctx context.Context, url string) (*domain.Job, error) {
	return e.SubmitFn(ctx, url)
}

func (e *Extractor) Status(ctx context.Context, id string) (*domain.Job, error) {
	return e.StatusFn(ctx, id)
}
