package retryhttp

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Backoff(t *testing.T) {
	p := DefaultPolicy(10, 0.8)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 1600 * time.Millisecond},
		{2, 3200 * time.Millisecond},
		{3, 6400 * time.Millisecond},
		{20, DefaultMaxBackoff},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.attempt, nil), "attempt %d", tt.attempt)
	}
}

func TestPolicy_BackoffHonoursRetryAfter(t *testing.T) {
	p := DefaultPolicy(10, 0.8)

	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	resp.Header.Set("Retry-After", "7")
	assert.Equal(t, 7*time.Second, p.Backoff(1, resp))

	resp.Header.Set("Retry-After", "100000")
	assert.Equal(t, DefaultMaxBackoff, p.Backoff(1, resp))

	// Retry-After is ignored on other statuses.
	resp = &http.Response{StatusCode: http.StatusBadGateway, Header: http.Header{}}
	resp.Header.Set("Retry-After", "7")
	assert.Equal(t, 1600*time.Millisecond, p.Backoff(1, resp))
}

func TestPolicy_Filters(t *testing.T) {
	p := DefaultPolicy(3, 0)

	assert.True(t, p.RetriesMethod("get"))
	assert.True(t, p.RetriesMethod(http.MethodPut))
	assert.False(t, p.RetriesMethod(http.MethodPost))
	assert.False(t, p.RetriesMethod(""))

	for _, code := range []int{404, 429, 500, 502, 503, 504} {
		assert.True(t, p.RetriesStatus(code), "status %d", code)
	}
	assert.False(t, p.RetriesStatus(http.StatusBadRequest))
	assert.False(t, p.RetriesStatus(http.StatusUnauthorized))
}
