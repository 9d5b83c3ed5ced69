package domain

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// ExtractionService validates requests and delegates them to the extractor.
type ExtractionService struct {
	extractor Extractor
}

// NewExtractionService creates a new ExtractionService.
func NewExtractionService(extractor Extractor) *ExtractionService {
	return &ExtractionService{extractor: extractor}
}

// ValidateURL checks that rawURL is an absolute http or https URL.
func ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %q is not a valid URL", ErrInvalidInput, rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q has no host", ErrInvalidInput, rawURL)
	}
	return nil
}

// Submit starts an extraction job for the given URL.
// Invalid URLs are rejected before any request is made.
func (s *ExtractionService) Submit(ctx context.Context, rawURL string) (*Job, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	job, err := s.extractor.Submit(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if job.URL == "" {
		job.URL = rawURL
	}
	return job, nil
}

// Poll fetches a single status observation for a job.
func (s *ExtractionService) Poll(ctx context.Context, id string) (*Job, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: job id is required", ErrInvalidInput)
	}
	return s.extractor.Status(ctx, id)
}
