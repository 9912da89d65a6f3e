package cli

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"tld/internal/config"
	"tld/internal/session"
	"tld/pkg/oauth"
)

// Exit codes returned by the tld binary.
const (
	ExitCodeSuccess      = 0
	ExitCodeError        = 1
	ExitCodeAuthRequired = 2
	ExitCodeAuthFailed   = 3
	ExitCodeConfig       = 4
	ExitCodeConnection   = 5
)

// ConnectionErrorType categorizes the type of connection error.
type ConnectionErrorType int

const (
	ConnectionErrorUnknown ConnectionErrorType = iota
	ConnectionErrorTLS
	ConnectionErrorNetwork
	ConnectionErrorTimeout
	ConnectionErrorDNS
)

// String returns a human-readable name for the connection error type.
func (t ConnectionErrorType) String() string {
	switch t {
	case ConnectionErrorTLS:
		return "TLS certificate error"
	case ConnectionErrorNetwork:
		return "Network error"
	case ConnectionErrorTimeout:
		return "Connection timeout"
	case ConnectionErrorDNS:
		return "DNS resolution error"
	default:
		return "Connection error"
	}
}

// ConnectionError indicates the signing service or identity provider could
// not be reached.
type ConnectionError struct {
	Endpoint string
	Type     ConnectionErrorType
	Reason   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s while contacting %s: %v", e.Type, e.Endpoint, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Reason
}

// ClassifyConnectionError returns a ConnectionError of the matching type, or
// nil when err is nil.
func ClassifyConnectionError(err error, endpoint string) *ConnectionError {
	if err == nil {
		return nil
	}

	typ := ConnectionErrorUnknown
	var dnsErr *net.DNSError
	switch {
	case isTLSError(err):
		typ = ConnectionErrorTLS
	case errors.As(err, &dnsErr):
		typ = ConnectionErrorDNS
	case isTimeoutError(err):
		typ = ConnectionErrorTimeout
	case isNetworkError(err.Error()):
		typ = ConnectionErrorNetwork
	}
	return &ConnectionError{Endpoint: endpoint, Type: typ, Reason: err}
}

func isTLSError(err error) bool {
	var certErr *x509.CertificateInvalidError
	var hostErr *x509.HostnameError
	var unknownAuthErr *x509.UnknownAuthorityError
	if errors.As(err, &certErr) || errors.As(err, &hostErr) || errors.As(err, &unknownAuthErr) {
		return true
	}

	errStr := err.Error()
	for _, keyword := range []string{"x509:", "certificate", "tls:", "TLS handshake"} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}

func isNetworkError(errStr string) bool {
	for _, keyword := range []string{
		"connection refused",
		"connection reset",
		"network is unreachable",
		"no route to host",
		"dial tcp",
	} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}

// AuthExpiredError indicates the device authorization link was not used in
// time.
type AuthExpiredError struct {
	Endpoint string
	Reason   error
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf(`%v

To authenticate against %s, run:
  tld auth login`, e.Reason, e.Endpoint)
}

// Unwrap returns the underlying error.
func (e *AuthExpiredError) Unwrap() error {
	return e.Reason
}

// AuthFailedError indicates the identity provider rejected the client.
type AuthFailedError struct {
	Endpoint string
	Reason   error
}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthFailedError) Error() string {
	return fmt.Sprintf(`Authentication failed for %s: %v

To retry authentication, run:
  tld auth login`, e.Endpoint, e.Reason)
}

// Unwrap returns the underlying error.
func (e *AuthFailedError) Unwrap() error {
	return e.Reason
}

// WrapAuthError turns session and identity provider errors into their user
// facing counterparts. Other errors are returned unchanged.
func WrapAuthError(err error, endpoint string) error {
	if wrapped := authError(err, endpoint); wrapped != nil {
		return wrapped
	}
	return err
}

// authError returns the user facing form of err, or nil when err is not an
// authentication problem.
func authError(err error, endpoint string) error {
	if err == nil {
		return nil
	}

	var expired *session.ExpiredAuthLinkError
	if errors.As(err, &expired) {
		return &AuthExpiredError{Endpoint: endpoint, Reason: err}
	}

	var statusErr *oauth.StatusError
	var refreshErr *session.RefreshTokenError
	if errors.As(err, &statusErr) || errors.As(err, &refreshErr) {
		return &AuthFailedError{Endpoint: endpoint, Reason: err}
	}
	return nil
}

// WrapError prepares an error returned by a command for display: session
// and identity provider errors as in WrapAuthError, and transport failures
// (no HTTP response at all) as a classified *ConnectionError naming the
// unreachable URL. Other errors, including HTTP status errors and
// cancellation, are returned unchanged.
func WrapError(err error, endpoint string) error {
	if err == nil {
		return nil
	}
	if wrapped := authError(err, endpoint); wrapped != nil {
		return wrapped
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var urlErr *url.Error
	var netErr net.Error
	switch {
	case errors.As(err, &urlErr):
		if urlErr.URL != "" {
			endpoint = urlErr.URL
		}
	case errors.As(err, &netErr):
	default:
		return err
	}
	return ClassifyConnectionError(err, endpoint)
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var cfgErr *config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return ExitCodeConfig
	}

	var authExpired *AuthExpiredError
	var linkExpired *session.ExpiredAuthLinkError
	if errors.As(err, &authExpired) || errors.As(err, &linkExpired) {
		return ExitCodeAuthRequired
	}

	var authFailed *AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return ExitCodeConnection
	}
	return ExitCodeError
}
