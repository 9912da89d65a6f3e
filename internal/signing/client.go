// Package signing exchanges storage URLs for short-lived signed URLs.
//
// A Client filters out URLs that need no signature, serves read URLs from
// its Cache while they have more than the configured margin left, and sends
// the rest to the signing service in batches of at most MaxBatchSize.
// Write (PUT) signatures are never cached.
package signing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tld/internal/auth"
	"tld/internal/clock"
	"tld/internal/config"
	"tld/pkg/metrics"
	"tld/internal/retryhttp"

	"github.com/google/uuid"
)

// Route selects the signing service endpoint.
type Route string

const (
	// RouteRead signs URLs for GET access.
	RouteRead Route = "sign_urls"

	// RouteWrite signs URLs for PUT access.
	RouteWrite Route = "sign_urls_put"
)

// MaxBatchSize bounds the number of URLs sent in one request.
const MaxBatchSize = 64

// RequestIDHeader carries a per batch identifier for log correlation.
const RequestIDHeader = "X-Request-ID"

type batchRequest struct {
	URLs            []string `json:"urls"`
	DurationSeconds int      `json:"duration_seconds,omitempty"`
}

type batchResponse struct {
	Expiry Timestamp         `json:"expiry"`
	Hrefs  map[string]string `json:"hrefs"`
}

// Client signs URLs through the signing service.
type Client struct {
	endpoint  string
	http      *retryhttp.Client
	auth      auth.Provider
	cache     *Cache
	domain    string
	duration  time.Duration
	batchSize int
	clock     clock.Clock
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithCache sets the cache. Tests inject a fresh one per client.
func WithCache(cache *Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithStorageDomain restricts signing to hosts under domain.
func WithStorageDomain(domain string) Option {
	return func(c *Client) {
		c.domain = domain
	}
}

// WithDuration requests signatures valid for d. Zero lets the service decide.
func WithDuration(d time.Duration) Option {
	return func(c *Client) {
		c.duration = d
	}
}

// WithBatchSize overrides MaxBatchSize.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithClock sets the clock used by the default cache.
func WithClock(cl clock.Clock) Option {
	return func(c *Client) {
		c.clock = cl
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a signing client for endpoint, which must end with "/".
func NewClient(endpoint string, httpClient *retryhttp.Client, provider auth.Provider, opts ...Option) *Client {
	c := &Client{
		endpoint:  endpoint,
		http:      httpClient,
		auth:      provider,
		domain:    config.DefaultStorageDomain,
		batchSize: MaxBatchSize,
		clock:     clock.Real{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = NewCache(config.DefaultTTLMargin*time.Second, c.clock)
	}
	return c
}

// Cache returns the cache used for read signatures.
func (c *Client) Cache() *Cache {
	return c.cache
}

// StorageDomain returns the domain whose URLs get signed.
func (c *Client) StorageDomain() string {
	return c.domain
}

// SignURL signs one URL for reading.
func (c *Client) SignURL(ctx context.Context, rawURL string) (string, error) {
	return c.signOne(ctx, rawURL, RouteRead)
}

// SignURLPut signs one URL for uploading.
func (c *Client) SignURLPut(ctx context.Context, rawURL string) (string, error) {
	return c.signOne(ctx, rawURL, RouteWrite)
}

func (c *Client) signOne(ctx context.Context, rawURL string, route Route) (string, error) {
	signed, err := c.SignMany(ctx, []string{rawURL}, route)
	if err != nil {
		return "", err
	}
	return signed[rawURL], nil
}

// SignMany returns a map from every input URL to its signed form. URLs
// outside the storage domain or already signed map to themselves.
func (c *Client) SignMany(ctx context.Context, urls []string, route Route) (map[string]string, error) {
	result := make(map[string]string, len(urls))
	queued := make(map[string]bool)
	var pending []string
	var passthrough, cached int

	for _, u := range urls {
		if _, done := result[u]; done || queued[u] {
			continue
		}
		if !InDomain(u, c.domain) || IsSigned(u) {
			result[u] = u
			passthrough++
			continue
		}
		if route == RouteRead {
			if signed, ok := c.cache.Lookup(u); ok {
				result[u] = signed
				cached++
				continue
			}
		}
		queued[u] = true
		pending = append(pending, u)
	}

	metrics.AddSigningURLs(string(route), metrics.SourcePassthrough, passthrough)
	metrics.AddSigningURLs(string(route), metrics.SourceCache, cached)
	c.logger.Debug("Partitioned URLs to sign",
		"route", route,
		"passthrough", passthrough,
		"cached", cached,
		"pending", len(pending),
	)

	chunks := (len(pending) + c.batchSize - 1) / c.batchSize
	for i := 0; i < chunks; i++ {
		start := i * c.batchSize
		end := min(start+c.batchSize, len(pending))
		chunk := pending[start:end]

		batch, err := c.signBatch(ctx, chunk, route, i+1, chunks)
		if err != nil {
			return nil, err
		}
		for _, u := range chunk {
			signed := batch.Hrefs[u]
			result[u] = signed
			if route == RouteRead {
				c.cache.Put(Entry{URL: u, SignedURL: signed, Expiry: batch.Expiry.Time})
			}
		}
		metrics.AddSigningURLs(string(route), metrics.SourceSigned, len(chunk))
	}

	return result, nil
}

func (c *Client) signBatch(ctx context.Context, chunk []string, route Route, index, total int) (*batchResponse, error) {
	body := batchRequest{URLs: chunk}
	if c.duration > 0 {
		body.DurationSeconds = int(c.duration / time.Second)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signing request: %w", err)
	}

	req, err := c.http.NewRequest(ctx, http.MethodPost, c.endpoint+string(route), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create signing request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if err := auth.Apply(ctx, c.auth, req.Request); err != nil {
		return nil, err
	}

	c.logger.Debug("Sending signing batch",
		"route", route,
		"chunk", index,
		"chunks", total,
		"urls", len(chunk),
		"request_id", requestID,
	)

	batch, err := c.send(req)
	metrics.IncrementSigningRequest(string(route), err == nil)
	if err != nil {
		return nil, fmt.Errorf("signing batch %d/%d on %s (request %s): %w", index, total, route, requestID, err)
	}

	var missing []string
	for _, u := range chunk {
		if _, ok := batch.Hrefs[u]; !ok {
			missing = append(missing, u)
		}
	}
	if len(missing) > 0 {
		return nil, &ProtocolMismatchError{Route: route, Missing: missing}
	}
	return batch, nil
}

func (c *Client) send(req *retryhttp.Request) (*batchResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := retryhttp.CheckResponse(resp); err != nil {
		return nil, err
	}

	var batch batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("failed to decode signing response: %w", err)
	}
	return &batch, nil
}
