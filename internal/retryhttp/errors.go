package retryhttp

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 1024

// StatusError reports a non-2xx response that is surfaced to the caller,
// either because it is not retryable or because retries were exhausted.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// CheckResponse returns nil for 2xx responses and a *StatusError otherwise.
// The body is consumed, but not closed, on error.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
	if resp.Request != nil {
		statusErr.Method = resp.Request.Method
		statusErr.URL = RedactURL(resp.Request.URL.String())
	}
	return statusErr
}
