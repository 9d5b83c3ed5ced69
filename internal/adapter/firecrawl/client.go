// Package firecrawl implements domain.Extractor on top of the Firecrawl
// extract API (POST /extract, GET /extract/{id}).
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cwygoda/pagebrief/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Firecrawl v1 API root.
	DefaultBaseURL = "https://api.firecrawl.dev/v1"

	// DefaultPrompt is the extraction instruction sent with every job.
	DefaultPrompt = "Generate a summary of the website, extract the title, and generate some keywords relevant to the website."

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 1 << 20

	// maxLoggedBody caps response snippets kept in errors.
	maxLoggedBody = 512
)

var _ domain.Extractor = (*Client)(nil)

// Client talks to the extraction service.
type Client struct {
	apiKey  string
	baseURL string
	prompt  string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root, e.g. for a self-hosted instance or tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithPrompt overrides the extraction instruction.
func WithPrompt(prompt string) Option {
	return func(c *Client) {
		c.prompt = prompt
	}
}

// WithTimeout sets the per-request timeout.
// Defaults to DefaultTimeout (30s) if not specified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. The timeout option is
// ignored when a client is supplied.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithRateLimit caps outbound requests per second across all jobs.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new extraction service client. An empty apiKey is
// accepted here; calls then fail with domain.ErrConfiguration.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		prompt:  DefaultPrompt,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: c.timeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// extractRequest is the POST body for /extract.
type extractRequest struct {
	URLs   []string `json:"urls"`
	Prompt string   `json:"prompt,omitempty"`
}

// submitResponse is the accepted-job envelope returned by /extract.
type submitResponse struct {
	Success *bool           `json:"success"`
	ID      string          `json:"id"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// Submit starts an extraction job for url.
func (c *Client) Submit(ctx context.Context, target string) (*domain.Job, error) {
	if c.apiKey == "" {
		return nil, domain.ErrConfiguration
	}

	body, err := json.Marshal(extractRequest{URLs: []string{target}, Prompt: c.prompt})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", domain.ErrSubmission, err)
	}

	raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/extract", body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSubmission, err)
	}

	var resp submitResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", domain.ErrSubmission, domain.ErrMalformedResponse, err)
	}
	if resp.Success != nil && !*resp.Success {
		reason := resp.Error
		if reason == "" {
			reason = "service reported failure"
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrSubmission, reason)
	}

	if resp.ID != "" {
		return &domain.Job{ID: resp.ID, URL: target, Status: domain.StatusPending}, nil
	}

	// Synchronous answer: the result is already in the envelope.
	if len(resp.Data) > 0 && string(resp.Data) != "null" {
		obs, err := Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrSubmission, err)
		}
		data := obs.Data
		return &domain.Job{URL: target, Status: domain.StatusCompleted, Result: &data}, nil
	}

	return nil, fmt.Errorf("%w: %w: no job id in response", domain.ErrSubmission, domain.ErrMalformedResponse)
}

// Status fetches the current state of job id.
func (c *Client) Status(ctx context.Context, id string) (*domain.Job, error) {
	if c.apiKey == "" {
		return nil, domain.ErrConfiguration
	}

	raw, err := c.do(ctx, http.MethodGet, c.baseURL+"/extract/"+url.PathEscape(id), nil)
	if err != nil {
		var re *domain.RemoteError
		if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrPoll, err)
	}

	obs, err := Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPoll, err)
	}

	job := &domain.Job{ID: id, Status: obs.Status, Error: obs.Error}
	if obs.Status == domain.StatusCompleted {
		data := obs.Data
		job.Result = &data
	}
	return job, nil
}

// do sends one request and returns the body of a 2xx response.
// Non-2xx answers are returned as *domain.RemoteError.
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			// Wait fails early when the next token lies past the deadline.
			if ctx.Err() == nil {
				return nil, fmt.Errorf("%w: rate limit wait exceeds deadline", domain.ErrTimeout)
			}
			return nil, err
		}
	}

	reqID := uuid.New().String()
	start := time.Now()
	op := "status"
	if method == http.MethodPost {
		op = "submit"
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("firecrawl.http.request",
		"req_id", reqID,
		"method", method,
		"url", endpoint,
		"content_length", len(body),
	)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("firecrawl.http.send_error",
			"req_id", reqID,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("firecrawl.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		c.logger.Warn("firecrawl.http.non_2xx",
			"req_id", reqID,
			"status", resp.StatusCode,
			"body", truncate(string(raw), maxLoggedBody),
		)
		return nil, &domain.RemoteError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(raw)), maxLoggedBody),
		}
	}
	return raw, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// RedactKey keeps only the last four characters of an API key for logging.
func RedactKey(key string) string {
	if key == "" {
		return "unset"
	}
	if len(key) > 8 {
		return "***" + key[len(key)-4:]
	}
	return "***"
}
