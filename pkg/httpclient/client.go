package httpclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	ConservativeRetry
	SmartRetry
)

// conservativeAttempts caps retries for plain server errors.
const conservativeAttempts = 2

type RateLimitInfo struct {
	RetryAfter        time.Duration
	ResetTime         int64
	RequestsRemaining int
	TokensRemaining   int
}

type RateLimitHeaderParser func(http.Header) RateLimitInfo

type RetryStrategyFunc func(int) RetryStrategy

type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	headerParser RateLimitHeaderParser
	strategyFunc RetryStrategyFunc
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithMaxRetries(max int) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

// WithMaxDelay caps any single wait, including server-provided Retry-After.
func WithMaxDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.maxDelay = delay
	}
}

func WithHeaderParser(parser RateLimitHeaderParser) Option {
	return func(c *Client) {
		c.headerParser = parser
	}
}

func WithRetryStrategy(strategyFunc RetryStrategyFunc) Option {
	return func(c *Client) {
		c.strategyFunc = strategyFunc
	}
}

func New(opts ...Option) *Client {
	client := &Client{
		client:       &http.Client{Timeout: 60 * time.Second},
		maxRetries:   5,
		baseDelay:    2 * time.Second,
		maxDelay:     60 * time.Second,
		strategyFunc: DefaultRetryStrategy,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// Do sends req, retrying rate limits and transient server errors. A non-2xx
// final response is returned together with an error; when retries are
// exhausted the error is a *RetryableError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.execute(req, c.client.Do)
}

func (c *Client) execute(req *http.Request, send func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	ctx := req.Context()

	for attempt := 0; ; attempt++ {
		attemptReq := req
		if attempt > 0 {
			r, err := rewind(req)
			if err != nil {
				return nil, err
			}
			attemptReq = r
		}

		resp, err := send(attemptReq)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		statusErr := fmt.Errorf("HTTP %d", resp.StatusCode)
		strategy := c.strategyFunc(resp.StatusCode)
		if strategy == NoRetry {
			return resp, statusErr
		}

		var retryInfo RateLimitInfo
		if c.headerParser != nil {
			retryInfo = c.headerParser(resp.Header)
		}
		delay := c.calculateDelay(strategy, attempt, retryInfo)

		if attempt >= c.maxRetries {
			return resp, &RetryableError{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("max HTTP retries (%d) exceeded", c.maxRetries),
				RetryAfter: delay,
				Err:        statusErr,
			}
		}

		// Delay of zero means the strategy gave up; a body that cannot be
		// replayed makes a retry impossible.
		if delay <= 0 || (req.Body != nil && req.Body != http.NoBody && req.GetBody == nil) {
			return resp, statusErr
		}

		c.logRetry(strategy, delay, attempt, resp.StatusCode)
		drain(resp)

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// rewind clones req with a fresh body for another attempt.
func rewind(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
		}
		r.Body = body
	}
	return r, nil
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) calculateDelay(strategy RetryStrategy, attempt int, retryInfo RateLimitInfo) time.Duration {
	var delay time.Duration

	switch strategy {
	case SmartRetry:
		switch {
		case retryInfo.RetryAfter > 0:
			delay = retryInfo.RetryAfter
		case retryInfo.ResetTime > 0 && time.Until(time.Unix(retryInfo.ResetTime, 0)) > 0:
			delay = time.Until(time.Unix(retryInfo.ResetTime, 0))
		default:
			exponentialDelay := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
			jitter := time.Duration(float64(exponentialDelay) * 0.1)
			delay = exponentialDelay + jitter
		}

	case ConservativeRetry:
		if attempt >= conservativeAttempts {
			return 0
		}
		delay = c.baseDelay + time.Duration(attempt)*c.baseDelay/2

	default:
		return 0
	}

	if c.maxDelay > 0 && delay > c.maxDelay {
		delay = c.maxDelay
	}
	return delay
}

func (c *Client) logRetry(strategy RetryStrategy, delay time.Duration, attempt int, statusCode int) {
	maxAttempts := c.maxRetries
	if strategy == ConservativeRetry {
		maxAttempts = conservativeAttempts
	}

	switch strategy {
	case SmartRetry:
		slog.Warn("Rate limited, retrying",
			"status", statusCode, "delay", delay, "attempt", attempt+1, "max_attempts", maxAttempts)
	case ConservativeRetry:
		slog.Warn("Server error, retrying",
			"status", statusCode, "delay", delay, "attempt", attempt+1, "max_attempts", maxAttempts)
	}
}

// Transport adapts the retry policy to http.RoundTripper so SDK clients can
// use it. Unlike Client.Do it never returns a response together with an
// error: the final response is handed back as-is for the SDK to interpret.
type Transport struct {
	Base   http.RoundTripper
	client *Client
}

// NewTransport wraps base (http.DefaultTransport when nil) with the retry
// policy configured by opts. WithHTTPClient is ignored.
func NewTransport(base http.RoundTripper, opts ...Option) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, client: New(opts...)}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.client.execute(req, t.Base.RoundTrip)
	if resp != nil {
		return resp, nil
	}
	return nil, err
}
