package retryhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultTimeout bounds a single attempt.
const DefaultTimeout = 10 * time.Second

// Request is a rewindable request that can be sent several times.
type Request = retryablehttp.Request

type methodKey struct{}

// Client sends requests, retrying them according to its Policy.
type Client struct {
	policy Policy
	client *retryablehttp.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Request URLs are logged without their query
// string.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.client.HTTPClient = httpClient
	}
}

// WithTimeout sets the per attempt timeout of the underlying client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.HTTPClient.Timeout = d
	}
}

// New creates a Client enforcing policy.
func New(policy Policy, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = DefaultTimeout
	rc.RetryMax = policy.MaxAttempts
	rc.RetryWaitMin = 0
	rc.RetryWaitMax = policy.MaxBackoff
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		policy: policy,
		client: rc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	rc.Logger = &leveledLogger{logger: c.logger}
	rc.CheckRetry = c.checkRetry
	rc.Backoff = func(_, _ time.Duration, attempt int, resp *http.Response) time.Duration {
		return c.policy.Backoff(attempt, resp)
	}
	return c
}

// Policy returns the retry policy in use.
func (c *Client) Policy() Policy {
	return c.policy
}

// NewRequest builds a request. body may be nil, a []byte, a string reader,
// or an io.ReadSeeker which is rewound before each attempt.
func (c *Client) NewRequest(ctx context.Context, method, rawURL string, body interface{}) (*Request, error) {
	return retryablehttp.NewRequestWithContext(ctx, method, rawURL, body)
}

// Do sends req. Whatever response the last attempt produced is returned,
// so callers must check the status code (see CheckResponse).
func (c *Client) Do(req *Request) (*http.Response, error) {
	ctx := context.WithValue(req.Context(), methodKey{}, req.Method)
	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = RedactURL(urlErr.URL)
		}
		return nil, fmt.Errorf("%s %s: %w", req.Method, RedactURL(req.URL.String()), err)
	}
	return resp, nil
}

// StandardClient returns an *http.Client whose requests go through the
// retry policy. It is handed to libraries expecting a plain client.
func (c *Client) StandardClient() *http.Client {
	return &http.Client{Transport: &roundTripper{client: c}}
}

func (c *Client) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	method, _ := ctx.Value(methodKey{}).(string)
	if !c.policy.RetriesMethod(method) {
		return false, nil
	}

	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return c.policy.RetriesStatus(resp.StatusCode), nil
}

type roundTripper struct {
	client *Client
}

func (rt *roundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	req, err := retryablehttp.FromRequest(r)
	if err != nil {
		return nil, err
	}
	return rt.client.Do(req)
}

// RedactURL drops the query string, which may carry signatures.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

// leveledLogger adapts slog to retryablehttp.LeveledLogger, redacting URLs.
type leveledLogger struct {
	logger *slog.Logger
}

func (l *leveledLogger) redact(keysAndValues []interface{}) []interface{} {
	out := make([]interface{}, len(keysAndValues))
	copy(out, keysAndValues)
	for i := 0; i+1 < len(out); i += 2 {
		if key, ok := out[i].(string); ok && key == "url" {
			out[i+1] = RedactURL(fmt.Sprint(out[i+1]))
		}
	}
	return out
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, l.redact(keysAndValues)...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, l.redact(keysAndValues)...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, l.redact(keysAndValues)...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, l.redact(keysAndValues)...)
}
