package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoWithRetry_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	resp, err := doWithRetry(context.Background(), defaultRetryConfig(), func() (*http.Response, error) {
		return http.Get(server.URL)
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestDoWithRetry_429ThenSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(429)
			w.Write([]byte(`rate limited`))
			return
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	cfg := retryConfig{maxRetries: 5, baseDelay: 10 * time.Millisecond, maxDelay: 100 * time.Millisecond}
	resp, err := doWithRetry(context.Background(), cfg, func() (*http.Response, error) {
		return http.Get(server.URL)
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDoWithRetry_ExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
		w.Write([]byte(`rate limited`))
	}))
	defer server.Close()

	cfg := retryConfig{maxRetries: 2, baseDelay: 10 * time.Millisecond, maxDelay: 50 * time.Millisecond}
	_, err := doWithRetry(context.Background(), cfg, func() (*http.Response, error) {
		return http.Get(server.URL)
	})
	require.Error(t, err)

	var retryErr *retryableError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 429, retryErr.StatusCode)
}

func TestDoWithRetry_AuthError_NoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(401)
		w.Write([]byte(`unauthorized`))
	}))
	defer server.Close()

	cfg := retryConfig{maxRetries: 3, baseDelay: 10 * time.Millisecond, maxDelay: 50 * time.Millisecond}
	_, err := doWithRetry(context.Background(), cfg, func() (*http.Response, error) {
		return http.Get(server.URL)
	})
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load(), "auth errors must not be retried")
}

func TestDoWithRetry_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
		w.Write([]byte(`rate limited`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	cfg := retryConfig{maxRetries: 5, baseDelay: time.Second, maxDelay: 10 * time.Second}
	_, err := doWithRetry(ctx, cfg, func() (*http.Response, error) {
		return http.Get(server.URL)
	})
	require.Error(t, err)
}

func TestDoWithRetry_CancelledDuringRetryBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
		w.Write([]byte(`rate limited`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := retryConfig{maxRetries: 5, baseDelay: 2 * time.Second, maxDelay: 10 * time.Second}

	// Cancel after the first request completes and retry backoff begins
	var calls atomic.Int32
	_, err := doWithRetry(ctx, cfg, func() (*http.Response, error) {
		if calls.Add(1) == 1 {
			// Cancel during the backoff wait after first 429
			go func() {
				time.Sleep(50 * time.Millisecond)
				cancel()
			}()
		}
		return http.Get(server.URL)
	})
	require.Error(t, err)

	// Should be a retryCancelledError with the 429 status preserved
	var retryCancel *retryCancelledError
	require.ErrorAs(t, err, &retryCancel)
	assert.Equal(t, 429, retryCancel.LastStatusCode)
	assert.GreaterOrEqual(t, retryCancel.Attempt, 1)

	// errors.Is should still match context.Canceled via Unwrap
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDoWithRetry_ServerError_Retries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 1 {
			w.WriteHeader(500)
			w.Write([]byte(`internal error`))
			return
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	cfg := retryConfig{maxRetries: 3, baseDelay: 10 * time.Millisecond, maxDelay: 50 * time.Millisecond}
	resp, err := doWithRetry(context.Background(), cfg, func() (*http.Response, error) {
		return http.Get(server.URL)
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.EqualValues(t, 2, calls.Load())
}

func TestDoWithRetry_RetryAfterIsOneShot(t *testing.T) {
	// Verify that a Retry-After header only affects the immediately next attempt,
	// not all subsequent attempts (i.e., exponential backoff is preserved).
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			// First call: 429 with large Retry-After
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(429)
			w.Write([]byte(`rate limited`))
			return
		}
		if n == 2 {
			// Second call: 429 without Retry-After
			w.WriteHeader(429)
			w.Write([]byte(`rate limited`))
			return
		}
		w.WriteHeader(200)
		w.Write([]byte(`ok`))
	}))
	defer server.Close()

	cfg := retryConfig{maxRetries: 5, baseDelay: 10 * time.Millisecond, maxDelay: 5 * time.Second}

	start := time.Now()
	resp, err := doWithRetry(context.Background(), cfg, func() (*http.Response, error) {
		return http.Get(server.URL)
	})
	elapsed := time.Since(start)
	require.NoError(t, err)
	defer resp.Body.Close()

	// The first retry should wait ~1s (Retry-After), the second should use normal
	// exponential backoff (~20ms = 10ms * 2^1 + jitter), not ~2s.
	// Total should be well under 2s if backoff isn't permanently overridden.
	assert.LessOrEqual(t, elapsed, 2*time.Second, "Retry-After must not permanently override backoff")
	assert.EqualValues(t, 3, calls.Load())
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{"not-a-number", 0},
		{"0", 0},
		{"30", 30 * time.Second},
	}
	for _, tt := range tests {
		resp := &http.Response{Header: http.Header{}}
		if tt.header != "" {
			resp.Header.Set("Retry-After", tt.header)
		}
		got := parseRetryAfter(resp)
		assert.Equal(t, tt.want, got, "parseRetryAfter(%q)", tt.header)
	}
}
