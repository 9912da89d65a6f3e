package oauth

import "fmt"

// StatusError reports a non-200 response from an OAuth endpoint.
type StatusError struct {
	Endpoint   string
	StatusCode int
	// Body is truncated and never contains tokens issued to us, since
	// it is only captured for failed requests.
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("request to %s failed with status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("request to %s failed with status %d", e.Endpoint, e.StatusCode)
}

// DiscoveryError reports that the token endpoint could not be found in the
// signing service's OpenAPI document.
type DiscoveryError struct {
	DocumentURL string
	Reason      error
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("failed to discover token endpoint from %s: %v", e.DocumentURL, e.Reason)
}

// Unwrap returns the underlying error.
func (e *DiscoveryError) Unwrap() error {
	return e.Reason
}
