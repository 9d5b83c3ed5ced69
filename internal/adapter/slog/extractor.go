// Package slog decorates domain ports with structured logging.
package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/cwygoda/pagebrief/internal/domain"
)

// Ensure LoggingExtractor implements domain.Extractor.
var _ domain.Extractor = (*LoggingExtractor)(nil)

// LoggingExtractor wraps an Extractor with per-call logging.
type LoggingExtractor struct {
	next   domain.Extractor
	logger *slog.Logger
}

// NewLoggingExtractor creates a new LoggingExtractor.
func NewLoggingExtractor(next domain.Extractor, logger *slog.Logger) *LoggingExtractor {
	return &LoggingExtractor{next: next, logger: logger}
}

// Submit logs the submitted URL and the job it produced.
func (e *LoggingExtractor) Submit(ctx context.Context, url string) (job *domain.Job, err error) {
	defer func(begin time.Time) {
		e.logger.Info("submit",
			"url", url,
			"id", jobID(job),
			"status", jobStatus(job),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return e.next.Submit(ctx, url)
}

// Status logs each observation at debug level; polling is chatty.
func (e *LoggingExtractor) Status(ctx context.Context, id string) (job *domain.Job, err error) {
	defer func(begin time.Time) {
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelWarn
		}
		e.logger.Log(ctx, level, "status",
			"id", id,
			"status", jobStatus(job),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return e.next.Status(ctx, id)
}

func jobID(job *domain.Job) string {
	if job == nil {
		return ""
	}
	return job.ID
}

func jobStatus(job *domain.Job) string {
	if job == nil {
		return ""
	}
	return string(job.Status)
}
