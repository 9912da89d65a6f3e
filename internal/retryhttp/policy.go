// Package retryhttp wraps go-retryablehttp with a RetryPolicy that decides,
// per HTTP method and status code, whether a request is retried.
package retryhttp

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxBackoff caps a single backoff sleep.
const DefaultMaxBackoff = 120 * time.Second

// DefaultRetryableStatusCodes are retried for retryable methods. 404 is
// included because freshly uploaded objects may not be visible immediately.
var DefaultRetryableStatusCodes = []int{
	http.StatusNotFound,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// DefaultRetryableMethods lists the idempotent verbs. POST is never retried
// unless a policy lists it explicitly.
var DefaultRetryableMethods = []string{
	http.MethodHead,
	http.MethodGet,
	http.MethodPut,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodTrace,
}

// Policy describes when and how often a request is retried.
type Policy struct {
	// MaxAttempts is the number of retries after the first attempt.
	MaxAttempts int

	// BackoffFactor scales the exponential backoff: the n-th retry
	// (n >= 1) waits BackoffFactor * 2^n seconds, the first retry is
	// immediate.
	BackoffFactor float64

	// MaxBackoff caps the sleep between two attempts.
	MaxBackoff time.Duration

	RetryableStatusCodes []int
	RetryableMethods     []string
}

// DefaultPolicy returns a policy with the default status codes and methods.
func DefaultPolicy(maxAttempts int, backoffFactor float64) Policy {
	return Policy{
		MaxAttempts:          maxAttempts,
		BackoffFactor:        backoffFactor,
		MaxBackoff:           DefaultMaxBackoff,
		RetryableStatusCodes: append([]int(nil), DefaultRetryableStatusCodes...),
		RetryableMethods:     append([]string(nil), DefaultRetryableMethods...),
	}
}

// RetriesMethod reports whether requests with the given verb may be retried.
func (p Policy) RetriesMethod(method string) bool {
	for _, m := range p.RetryableMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// RetriesStatus reports whether a response status triggers a retry.
func (p Policy) RetriesStatus(code int) bool {
	for _, c := range p.RetryableStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Backoff returns the sleep before retry number attempt (0 based). A
// Retry-After header on 413, 429 and 503 responses takes precedence.
func (p Policy) Backoff(attempt int, resp *http.Response) time.Duration {
	maxBackoff := p.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = DefaultMaxBackoff
	}

	if d, ok := retryAfter(resp); ok {
		if d > maxBackoff {
			return maxBackoff
		}
		return d
	}

	if attempt <= 0 || p.BackoffFactor <= 0 {
		return 0
	}

	seconds := p.BackoffFactor * math.Pow(2, float64(attempt))
	d := time.Duration(seconds * float64(time.Second))
	if d > maxBackoff || d < 0 {
		return maxBackoff
	}
	return d
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	switch resp.StatusCode {
	case http.StatusRequestEntityTooLarge, http.StatusTooManyRequests, http.StatusServiceUnavailable:
	default:
		return 0, false
	}

	header := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(header); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
