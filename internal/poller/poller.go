// Package poller drives an extraction job to a terminal state.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cwygoda/pagebrief/internal/domain"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 60
	DefaultTimeout     = 2 * time.Minute
)

// Poller polls the extraction service on a fixed interval until a job
// completes, fails, or the attempt budget or deadline runs out.
// It holds no per-job state and is safe for concurrent use.
type Poller struct {
	svc         *domain.ExtractionService
	interval    time.Duration
	maxAttempts int
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the delay between status requests.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithMaxAttempts caps the number of status requests per job.
// Zero means no ceiling; the deadline still applies.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		p.maxAttempts = n
	}
}

// WithTimeout sets the overall deadline for Wait and ExtractAndWait.
// Zero leaves only the caller's context in charge.
func WithTimeout(d time.Duration) Option {
	return func(p *Poller) {
		p.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// New creates a new poller.
func New(svc *domain.ExtractionService, opts ...Option) *Poller {
	p := &Poller{
		svc:         svc,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// ExtractAndWait submits url and blocks until its result is available.
// The poller's deadline covers both the submission and the polling.
func (p *Poller) ExtractAndWait(ctx context.Context, url string) (*domain.ExtractedData, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()

	job, err := p.svc.Submit(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, p.stopped(ctx, url, 0)
		}
		return nil, err
	}
	p.logger.Info("job submitted", "job", job.ID, "url", url, "status", job.Status)

	job, err = p.wait(ctx, job)
	if err != nil {
		return nil, err
	}
	return job.Result, nil
}

// Wait polls job until it reaches a terminal state. A completed job is
// returned with a non-nil Result. A failed job is returned together with
// an error wrapping domain.ErrJobFailed.
func (p *Poller) Wait(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	ctx, cancel := p.withDeadline(ctx)
	defer cancel()
	return p.wait(ctx, job)
}

func (p *Poller) wait(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if job.Status.IsTerminal() {
		return finish(job)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, p.stopped(ctx, job.ID, attempt-1)
		case <-ticker.C:
		}
		// Both channels may be ready at once; never poll past the deadline.
		if ctx.Err() != nil {
			return nil, p.stopped(ctx, job.ID, attempt-1)
		}

		obs, err := p.svc.Poll(ctx, job.ID)
		switch {
		case err == nil:
			if err := job.Advance(obs); err != nil {
				p.logger.Warn("ignoring status observation", "job", job.ID, "err", err)
			}
			p.logger.Debug("job polled", "job", job.ID, "attempt", attempt, "status", job.Status)
			if job.Status.IsTerminal() {
				return finish(job)
			}
		case ctx.Err() != nil:
			return nil, p.stopped(ctx, job.ID, attempt)
		case retryable(err):
			p.logger.Warn("poll failed, retrying", "job", job.ID, "attempt", attempt, "err", err)
		default:
			p.logger.Warn("poll failed", "job", job.ID, "attempt", attempt, "err", err)
			return nil, err
		}

		if p.maxAttempts > 0 && attempt >= p.maxAttempts {
			return nil, fmt.Errorf("%w: job %s still %s after %d polls", domain.ErrTimeout, job.ID, job.Status, attempt)
		}
	}
}

func (p *Poller) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

// stopped converts a finished context into the caller-facing error.
func (p *Poller) stopped(ctx context.Context, ref string, polls int) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		p.logger.Warn("deadline exceeded", "ref", ref, "polls", polls)
		return fmt.Errorf("%w: %s after %d polls", domain.ErrTimeout, ref, polls)
	}
	p.logger.Info("polling abandoned", "ref", ref, "polls", polls)
	return fmt.Errorf("polling %s: %w", ref, ctx.Err())
}

func finish(job *domain.Job) (*domain.Job, error) {
	if job.Status == domain.StatusFailed {
		reason := job.Error
		if reason == "" {
			reason = "remote job failed"
		}
		return job, fmt.Errorf("%w: %s", domain.ErrJobFailed, reason)
	}
	if job.Result == nil {
		job.Result = &domain.ExtractedData{Keywords: []string{}}
	}
	return job, nil
}

// retryable reports whether a failed poll may succeed on the next tick.
// Callers check their own context first, so a deadline error seen here
// belongs to a single request.
func retryable(err error) bool {
	if errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.Canceled) {
		return false
	}
	var re *domain.RemoteError
	if errors.As(err, &re) {
		return re.Temporary()
	}
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded)
}
