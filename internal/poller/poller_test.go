package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/cwygoda/pagebrief/internal/domain"
	"github.com/cwygoda/pagebrief/internal/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// scriptedExtractor answers status requests from a fixed script; the last
// entry repeats once the script is exhausted.
type scriptedExtractor struct {
	mu       sync.Mutex
	script   []func() (*domain.Job, error)
	polls    int
	submits  int
	submitFn func(url string) (*domain.Job, error)
}

func (s *scriptedExtractor) extractor() *mock.Extractor {
	return &mock.Extractor{
		SubmitFn: func(ctx context.Context, url string) (*domain.Job, error) {
			s.mu.Lock()
			s.submits++
			s.mu.Unlock()
			if s.submitFn != nil {
				return s.submitFn(url)
			}
			return &domain.Job{ID: "job123", URL: url, Status: domain.StatusPending}, nil
		},
		StatusFn: func(ctx context.Context, id string) (*domain.Job, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			i := s.polls
			if i >= len(s.script) {
				i = len(s.script) - 1
			}
			s.polls++
			return s.script[i]()
		},
	}
}

func (s *scriptedExtractor) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func status(st domain.JobStatus) func() (*domain.Job, error) {
	return func() (*domain.Job, error) {
		return &domain.Job{ID: "job123", Status: st}, nil
	}
}

func completed(data domain.ExtractedData) func() (*domain.Job, error) {
	return func() (*domain.Job, error) {
		return &domain.Job{ID: "job123", Status: domain.StatusCompleted, Result: &data}, nil
	}
}

func failing(err error) func() (*domain.Job, error) {
	return func() (*domain.Job, error) {
		return nil, err
	}
}

func newTestPoller(ext domain.Extractor, opts ...Option) *Poller {
	opts = append([]Option{
		WithInterval(5 * time.Millisecond),
		WithTimeout(time.Second),
		WithLogger(discard),
	}, opts...)
	return New(domain.NewExtractionService(ext), opts...)
}

func TestNew_Defaults(t *testing.T) {
	p := New(domain.NewExtractionService(&mock.Extractor{}))

	assert.Equal(t, 2*time.Second, p.interval)
	assert.Equal(t, 60, p.maxAttempts)
	assert.Equal(t, 2*time.Minute, p.timeout)
	assert.NotNil(t, p.logger)
}

func TestNew_NonPositiveInterval(t *testing.T) {
	p := New(domain.NewExtractionService(&mock.Extractor{}), WithInterval(0))
	assert.Equal(t, DefaultInterval, p.interval)
}

func TestPoller_ExtractAndWait_ProcessingThenCompleted(t *testing.T) {
	want := domain.ExtractedData{Title: "Example", Summary: "A summary", Keywords: []string{"a", "b"}}
	s := &scriptedExtractor{script: []func() (*domain.Job, error){
		status(domain.StatusProcessing),
		completed(want),
	}}
	p := newTestPoller(s.extractor())

	got, err := p.ExtractAndWait(context.Background(), "https://example.com")

	require.NoError(t, err)
	assert.Equal(t, want, *got)
	assert.Equal(t, 1, s.submits)
	assert.Equal(t, 2, s.pollCount())
}

func TestPoller_ExtractAndWait_InvalidURL(t *testing.T) {
	s := &scriptedExtractor{script: []func() (*domain.Job, error){status(domain.StatusProcessing)}}
	p := newTestPoller(s.extractor())

	_, err := p.ExtractAndWait(context.Background(), "not a url")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, s.submits)
	assert.Zero(t, s.pollCount())
}

func TestPoller_ExtractAndWait_SynchronousResult(t *testing.T) {
	want := domain.ExtractedData{Title: "Sync", Keywords: []string{}}
	s := &scriptedExtractor{
		script: []func() (*domain.Job, error){status(domain.StatusProcessing)},
		submitFn: func(url string) (*domain.Job, error) {
			return &domain.Job{URL: url, Status: domain.StatusCompleted, Result: &want}, nil
		},
	}
	p := newTestPoller(s.extractor())

	got, err := p.ExtractAndWait(context.Background(), "https://example.com")

	require.NoError(t, err)
	assert.Equal(t, want, *got)
	assert.Zero(t, s.pollCount())
}

func TestPoller_ExtractAndWait_SubmissionError(t *testing.T) {
	s := &scriptedExtractor{
		script: []func() (*domain.Job, error){status(domain.StatusProcessing)},
		submitFn: func(url string) (*domain.Job, error) {
			return nil, fmt.Errorf("%w: HTTP 500", domain.ErrSubmission)
		},
	}
	p := newTestPoller(s.extractor())

	_, err := p.ExtractAndWait(context.Background(), "https://example.com")

	assert.ErrorIs(t, err, domain.ErrSubmission)
	assert.Zero(t, s.pollCount())
}

func TestPoller_ExtractAndWait_Deadline(t *testing.T) {
	s := &scriptedExtractor{script: []func() (*domain.Job, error){status(domain.StatusProcessing)}}
	p := newTestPoller(s.extractor(),
		WithInterval(10*time.Millisecond),
		WithTimeout(60*time.Millisecond),
		WithMaxAttempts(0),
	)

	start := time.Now()
	_, err := p.ExtractAndWait(context.Background(), "https://example.com")
	elapsed := time.Since(start)

	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Less(t, elapsed, 500*time.Millisecond)

	polls := s.pollCount()
	assert.Positive(t, polls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, polls, s.pollCount(), "no polls after the deadline")
}

func TestPoller_Wait_MaxAttempts(t *testing.T) {
	s := &scriptedExtractor{script: []func() (*domain.Job, error){status(domain.StatusProcessing)}}
	p := newTestPoller(s.extractor(), WithMaxAttempts(3), WithTimeout(0))

	_, err := p.Wait(context.Background(), &domain.Job{ID: "job123", Status: domain.StatusPending})

	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, 3, s.pollCount())
}

func TestPoller_Wait_Failed(t *testing.T) {
	s := &scriptedExtractor{script: []func() (*domain.Job, error){
		status(domain.StatusProcessing),
		func() (*domain.Job, error) {
			return &domain.Job{ID: "job123", Status: domain.StatusFailed, Error: "site unreachable"}, nil
		},
	}}
	p := newTestPoller(s.extractor())

	job, err := p.Wait(context.Background(), &domain.Job{ID: "job123", Status: domain.StatusPending})

	require.ErrorIs(t, err, domain.ErrJobFailed)
	assert.Contains(t, err.Error(), "site unreachable")
	require.NotNil(t, job)
	assert.Equal(t, domain.StatusFailed, job.Status)
}

func TestPoller_Wait_RetriesTemporaryErrors(t *testing.T) {
	want := domain.ExtractedData{Title: "Example", Keywords: []string{}}
	s := &scriptedExtractor{script: []func() (*domain.Job, error){
		failing(fmt.Errorf("%w: %w", domain.ErrPoll, &domain.RemoteError{Op: "status", StatusCode: 503})),
		failing(fmt.Errorf("%w: %w", domain.ErrPoll, &domain.RemoteError{Op: "status", StatusCode: 429})),
		completed(want),
	}}
	p := newTestPoller(s.extractor())

	job, err := p.Wait(context.Background(), &domain.Job{ID: "job123", Status: domain.StatusPending})

	require.NoError(t, err)
	assert.Equal(t, want, *job.Result)
	assert.Equal(t, 3, s.pollCount())
}

func TestPoller_Wait_StopsOnMalformedResponse(t *testing.T) {
	s := &scriptedExtractor{script: []func() (*domain.Job, error){
		failing(fmt.Errorf("%w: %w", domain.ErrPoll, domain.ErrMalformedResponse)),
		completed(domain.ExtractedData{}),
	}}
	p := newTestPoller(s.extractor())

	_, err := p.Wait(context.Background(), &domain.Job{ID: "job123", Status: domain.StatusPending})

	assert.ErrorIs(t, err, domain.ErrPoll)
	assert.Equal(t, 1, s.pollCount())
}

func TestPoller_Wait_StopsOnClientError(t *testing.T) {
	s := &scriptedExtractor{script: []func() (*domain.Job, error){
		failing(fmt.Errorf("%w: %w", domain.ErrPoll, &domain.RemoteError{Op: "status", StatusCode: 401})),
	}}
	p := newTestPoller(s.extractor())

	_, err := p.Wait(context.Background(), &domain.Job{ID: "job123", Status: domain.StatusPending})

	assert.ErrorIs(t, err, domain.ErrPoll)
	assert.Equal(t, 1, s.pollCount())
}

func TestPoller_Wait_IgnoresRegression(t *testing.T) {
	want := domain.ExtractedData{Title: "Example", Keywords: []string{}}
	s := &scriptedExtractor{script: []func() (*domain.Job, error){
		status(domain.StatusProcessing),
		status(domain.StatusPending),
		completed(want),
	}}
	p := newTestPoller(s.extractor())

	job, err := p.Wait(context.Background(), &domain.Job{ID: "job123", Status: domain.StatusPending})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)
}

func TestPoller_Wait_CompletedWithoutResult(t *testing.T) {
	s := &scriptedExtractor{script: []func() (*domain.Job, error){status(domain.StatusCompleted)}}
	p := newTestPoller(s.extractor())

	job, err := p.Wait(context.Background(), &domain.Job{ID: "job123", Status: domain.StatusPending})

	require.NoError(t, err)
	require.NotNil(t, job.Result)
	assert.Equal(t, []string{}, job.Result.Keywords)
}

func TestPoller_Wait_Cancellation(t *testing.T) {
	s := &scriptedExtractor{script: []func() (*domain.Job, error){status(domain.StatusProcessing)}}
	p := newTestPoller(s.extractor(), WithInterval(10*time.Millisecond), WithMaxAttempts(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Wait(ctx, &domain.Job{ID: "job123", Status: domain.StatusPending})
		done <- err
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, errors.Is(err, domain.ErrTimeout))
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after context cancellation")
	}

	polls := s.pollCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, polls, s.pollCount(), "no polls after cancellation")
}

func TestPoller_ExtractAndWait_ConcurrentJobs(t *testing.T) {
	var next atomic.Int64
	ext := &mock.Extractor{
		SubmitFn: func(ctx context.Context, url string) (*domain.Job, error) {
			id := fmt.Sprintf("job-%d", next.Add(1))
			return &domain.Job{ID: id, URL: url, Status: domain.StatusPending}, nil
		},
		StatusFn: func(ctx context.Context, id string) (*domain.Job, error) {
			data := domain.ExtractedData{Title: id, Keywords: []string{}}
			return &domain.Job{ID: id, Status: domain.StatusCompleted, Result: &data}, nil
		},
	}
	p := newTestPoller(ext)

	const n = 10
	titles := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := p.ExtractAndWait(context.Background(), fmt.Sprintf("https://example.com/%d", i))
			if assert.NoError(t, err) {
				titles[i] = data.Title
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, title := range titles {
		assert.NotEmpty(t, title)
		seen[title] = true
	}
	assert.Len(t, seen, n)
}

func TestPoller_Wait_RetriesRequestDeadline(t *testing.T) {
	want := domain.ExtractedData{Title: "Example", Keywords: []string{}}
	s := &scriptedExtractor{script: []func() (*domain.Job, error){
		failing(fmt.Errorf("%w: %w", domain.ErrPoll, context.DeadlineExceeded)),
		completed(want),
	}}
	p := newTestPoller(s.extractor())

	job, err := p.Wait(context.Background(), &domain.Job{ID: "job123", Status: domain.StatusPending})

	require.NoError(t, err)
	assert.Equal(t, want, *job.Result)
	assert.Equal(t, 2, s.pollCount())
}

func TestPoller_Wait_StopsOnTimeoutFromBelow(t *testing.T) {
	s := &scriptedExtractor{script: []func() (*domain.Job, error){
		failing(fmt.Errorf("%w: %w: rate limit wait exceeds deadline", domain.ErrPoll, domain.ErrTimeout)),
		completed(domain.ExtractedData{}),
	}}
	p := newTestPoller(s.extractor())

	_, err := p.Wait(context.Background(), &domain.Job{ID: "job123", Status: domain.StatusPending})

	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, 1, s.pollCount())
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &domain.RemoteError{StatusCode: 502}, true},
		{"rate limited", &domain.RemoteError{StatusCode: 429}, true},
		{"client error", &domain.RemoteError{StatusCode: 400}, false},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"request deadline", fmt.Errorf("%w: %w", domain.ErrPoll, context.DeadlineExceeded), true},
		{"timeout from below", fmt.Errorf("%w: %w", domain.ErrPoll, domain.ErrTimeout), false},
		{"canceled", context.Canceled, false},
		{"malformed", domain.ErrMalformedResponse, false},
		{"not found", domain.ErrJobNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}
