package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		options  []Option
		validate func(t *testing.T, client *Client)
	}{
		{
			name:    "default_configuration",
			options: []Option{},
			validate: func(t *testing.T, client *Client) {
				if client.maxRetries != 5 {
					t.Errorf("Expected maxRetries=5, got %d", client.maxRetries)
				}
				if client.baseDelay != 2*time.Second {
					t.Errorf("Expected baseDelay=2s, got %v", client.baseDelay)
				}
				if client.client.Timeout != 60*time.Second {
					t.Errorf("Expected timeout=60s, got %v", client.client.Timeout)
				}
				if client.strategyFunc == nil {
					t.Error("Expected strategyFunc to be set")
				}
			},
		},
		{
			name:    "custom_max_retries",
			options: []Option{WithMaxRetries(3)},
			validate: func(t *testing.T, client *Client) {
				if client.maxRetries != 3 {
					t.Errorf("Expected maxRetries=3, got %d", client.maxRetries)
				}
			},
		},
		{
			name:    "negative_max_retries_ignored",
			options: []Option{WithMaxRetries(-1)},
			validate: func(t *testing.T, client *Client) {
				if client.maxRetries != 5 {
					t.Errorf("Expected maxRetries=5, got %d", client.maxRetries)
				}
			},
		},
		{
			name:    "custom_delays",
			options: []Option{WithBaseDelay(5 * time.Second), WithMaxDelay(time.Second)},
			validate: func(t *testing.T, client *Client) {
				if client.baseDelay != 5*time.Second {
					t.Errorf("Expected baseDelay=5s, got %v", client.baseDelay)
				}
				if client.maxDelay != time.Second {
					t.Errorf("Expected maxDelay=1s, got %v", client.maxDelay)
				}
			},
		},
		{
			name:    "custom_http_client",
			options: []Option{WithHTTPClient(&http.Client{Timeout: 30 * time.Second})},
			validate: func(t *testing.T, client *Client) {
				if client.client.Timeout != 30*time.Second {
					t.Errorf("Expected timeout=30s, got %v", client.client.Timeout)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, New(tt.options...))
		})
	}
}

func TestDefaultRetryStrategy(t *testing.T) {
	tests := []struct {
		status int
		want   RetryStrategy
	}{
		{http.StatusTooManyRequests, SmartRetry},
		{http.StatusServiceUnavailable, SmartRetry},
		{http.StatusRequestTimeout, ConservativeRetry},
		{http.StatusInternalServerError, ConservativeRetry},
		{http.StatusBadGateway, ConservativeRetry},
		{http.StatusGatewayTimeout, ConservativeRetry},
		{http.StatusBadRequest, NoRetry},
		{http.StatusUnauthorized, NoRetry},
		{http.StatusNotFound, NoRetry},
	}

	for _, tt := range tests {
		if got := DefaultRetryStrategy(tt.status); got != tt.want {
			t.Errorf("DefaultRetryStrategy(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

// recorder tracks what a sequenceServer saw.
type recorder struct {
	mu     sync.Mutex
	calls  int
	bodies []string
}

func (r *recorder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *recorder) Bodies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.bodies...)
}

// sequenceServer replies with the given status codes in order, repeating the
// last one.
func sequenceServer(t *testing.T, statuses ...int) (*httptest.Server, *recorder) {
	t.Helper()

	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		rec.mu.Lock()
		n := rec.calls
		rec.calls++
		rec.bodies = append(rec.bodies, string(body))
		rec.mu.Unlock()

		status := statuses[len(statuses)-1]
		if n < len(statuses) {
			status = statuses[n]
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(http.StatusText(status)))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestClient_Do_Success(t *testing.T) {
	srv, rec := sequenceServer(t, http.StatusOK)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := New().Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if rec.Calls() != 1 {
		t.Errorf("Expected 1 call, got %d", rec.Calls())
	}
}

func TestClient_Do_NetworkError(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://127.0.0.1:1", nil)
	_, err := New(WithMaxRetries(2), WithBaseDelay(time.Millisecond)).Do(req)
	if err == nil {
		t.Fatal("Expected network error")
	}
}

func TestClient_Do_NoRetryOnClientError(t *testing.T) {
	srv, rec := sequenceServer(t, http.StatusBadRequest)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := New(WithBaseDelay(time.Millisecond)).Do(req)
	if err == nil {
		t.Fatal("Expected error for 400")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 response, got %v", resp)
	}
	resp.Body.Close()
	if rec.Calls() != 1 {
		t.Errorf("Expected 1 call, got %d", rec.Calls())
	}
}

func TestClient_Do_RetriesAndReplaysBody(t *testing.T) {
	srv, rec := sequenceServer(t, http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusOK)

	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"q":1}`))
	resp, err := New(WithBaseDelay(time.Millisecond)).Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if rec.Calls() != 3 {
		t.Errorf("Expected 3 calls, got %d", rec.Calls())
	}
	for i, b := range rec.Bodies() {
		if b != `{"q":1}` {
			t.Errorf("attempt %d: body %q was not replayed", i, b)
		}
	}
}

func TestClient_Do_MaxRetriesExceeded(t *testing.T) {
	srv, rec := sequenceServer(t, http.StatusTooManyRequests)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := New(WithMaxRetries(2), WithBaseDelay(time.Millisecond)).Do(req)
	if resp != nil {
		resp.Body.Close()
	}

	var retryErr *RetryableError
	if !errors.As(err, &retryErr) {
		t.Fatalf("Expected RetryableError, got %v", err)
	}
	if retryErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", retryErr.StatusCode)
	}
	if rec.Calls() != 3 {
		t.Errorf("Expected 3 calls (1 + 2 retries), got %d", rec.Calls())
	}
}

func TestClient_Do_ConservativeRetryLimit(t *testing.T) {
	srv, rec := sequenceServer(t, http.StatusInternalServerError)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := New(WithBaseDelay(time.Millisecond)).Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	if err == nil {
		t.Fatal("Expected error")
	}
	if rec.Calls() != conservativeAttempts+1 {
		t.Errorf("Expected %d calls, got %d", conservativeAttempts+1, rec.Calls())
	}
}

func TestClient_Do_RetryAfterHeader(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("retry-after-ms", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	client := New(WithBaseDelay(time.Hour), WithHeaderParser(ParseOpenAIHeaders))

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Expected Retry-After to override base delay, took %v", elapsed)
	}
}

func TestClient_Do_ContextCancelledDuringWait(t *testing.T) {
	srv, _ := sequenceServer(t, http.StatusTooManyRequests)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	_, err := New(WithBaseDelay(time.Hour), WithMaxDelay(0)).Do(req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
}

func TestTransport_ReturnsFinalResponseWithoutError(t *testing.T) {
	srv, rec := sequenceServer(t, http.StatusBadGateway, http.StatusBadGateway, http.StatusBadGateway)

	httpClient := &http.Client{Transport: NewTransport(nil, WithBaseDelay(time.Millisecond))}
	resp, err := httpClient.Get(srv.URL)
	if err != nil {
		t.Fatalf("RoundTripper must not return an error with a response: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Bad Gateway" {
		t.Errorf("Expected final body to be readable, got %q", body)
	}
	if rec.Calls() != conservativeAttempts+1 {
		t.Errorf("Expected %d calls, got %d", conservativeAttempts+1, rec.Calls())
	}
}

func TestTransport_RecoversFromRateLimit(t *testing.T) {
	srv, rec := sequenceServer(t, http.StatusTooManyRequests, http.StatusOK)

	httpClient := &http.Client{Transport: NewTransport(nil, WithBaseDelay(time.Millisecond))}
	resp, err := httpClient.Post(srv.URL, "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if bodies := rec.Bodies(); len(bodies) != 2 || bodies[1] != `{}` {
		t.Errorf("Expected replayed body on retry, got %v", bodies)
	}
}

func TestClient_calculateDelay(t *testing.T) {
	c := New(WithBaseDelay(time.Second), WithMaxDelay(10*time.Second))

	tests := []struct {
		name     string
		strategy RetryStrategy
		attempt  int
		info     RateLimitInfo
		want     time.Duration
	}{
		{"smart_exponential_0", SmartRetry, 0, RateLimitInfo{}, 1100 * time.Millisecond},
		{"smart_exponential_2", SmartRetry, 2, RateLimitInfo{}, 4400 * time.Millisecond},
		{"smart_capped", SmartRetry, 5, RateLimitInfo{}, 10 * time.Second},
		{"smart_retry_after", SmartRetry, 3, RateLimitInfo{RetryAfter: 3 * time.Second}, 3 * time.Second},
		{"conservative_first", ConservativeRetry, 0, RateLimitInfo{}, time.Second},
		{"conservative_second", ConservativeRetry, 1, RateLimitInfo{}, 1500 * time.Millisecond},
		{"conservative_gives_up", ConservativeRetry, 2, RateLimitInfo{}, 0},
		{"no_retry", NoRetry, 0, RateLimitInfo{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.calculateDelay(tt.strategy, tt.attempt, tt.info); got != tt.want {
				t.Errorf("calculateDelay() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryableError(t *testing.T) {
	inner := errors.New("HTTP 429")
	err := &RetryableError{StatusCode: 429, Message: "max HTTP retries (3) exceeded", RetryAfter: 2 * time.Second, Err: inner}

	if got := err.Error(); got != "HTTP 429: max HTTP retries (3) exceeded (retry after 2s)" {
		t.Errorf("unexpected message %q", got)
	}
	if !errors.Is(err, inner) {
		t.Error("Expected Unwrap to expose the inner error")
	}

	err.RetryAfter = 0
	if got := err.Error(); got != "HTTP 429: max HTTP retries (3) exceeded" {
		t.Errorf("unexpected message %q", got)
	}
}
