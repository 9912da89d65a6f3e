package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 10 * time.Second

	// securitySchemeName is the OpenAPI security scheme advertising the token URL.
	securitySchemeName = "OAuth2PasswordBearer"

	maxErrorBody = 512
)

// Client handles the OAuth2 exchanges needed by the device authorization
// grant: discovery, device challenge, token polling, refresh and userinfo.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	clientID   string
	scopes     []string

	// Discovered token endpoints, keyed by signing endpoint.
	endpointMu     sync.RWMutex
	tokenEndpoints map[string]string

	// singleflight group to deduplicate concurrent discovery fetches
	discoveryGroup singleflight.Group
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClientID overrides DefaultClientID.
func WithClientID(clientID string) ClientOption {
	return func(c *Client) {
		c.clientID = clientID
	}
}

// WithScopes overrides DefaultScopes.
func WithScopes(scopes ...string) ClientOption {
	return func(c *Client) {
		c.scopes = scopes
	}
}

// NewClient creates a new OAuth client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: DefaultHTTPTimeout},
		logger:         slog.Default(),
		clientID:       DefaultClientID,
		scopes:         DefaultScopes,
		tokenEndpoints: make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Scope returns the space separated scope sent with every grant.
func (c *Client) Scope() string {
	return strings.Join(c.scopes, " ")
}

// DiscoverTokenEndpoint returns the token URL advertised by the signing
// service's OpenAPI document. Results are cached for the lifetime of the
// client and concurrent lookups share one request.
func (c *Client) DiscoverTokenEndpoint(ctx context.Context, signingEndpoint string) (string, error) {
	if !strings.HasSuffix(signingEndpoint, "/") {
		signingEndpoint += "/"
	}

	c.endpointMu.RLock()
	if endpoint, ok := c.tokenEndpoints[signingEndpoint]; ok {
		c.endpointMu.RUnlock()
		return endpoint, nil
	}
	c.endpointMu.RUnlock()

	result, err, _ := c.discoveryGroup.Do(signingEndpoint, func() (interface{}, error) {
		c.endpointMu.RLock()
		if endpoint, ok := c.tokenEndpoints[signingEndpoint]; ok {
			c.endpointMu.RUnlock()
			return endpoint, nil
		}
		c.endpointMu.RUnlock()

		endpoint, err := c.fetchTokenEndpoint(ctx, signingEndpoint+"openapi.json")
		if err != nil {
			return "", err
		}

		c.endpointMu.Lock()
		c.tokenEndpoints[signingEndpoint] = endpoint
		c.endpointMu.Unlock()

		c.logger.Debug("Discovered token endpoint",
			"signing_endpoint", signingEndpoint,
			"token_endpoint", endpoint)
		return endpoint, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

type openAPIDocument struct {
	Components struct {
		SecuritySchemes map[string]struct {
			Flows struct {
				Password *struct {
					TokenURL string `json:"tokenUrl"`
				} `json:"password"`
			} `json:"flows"`
		} `json:"securitySchemes"`
	} `json:"components"`
}

func (c *Client) fetchTokenEndpoint(ctx context.Context, documentURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, documentURL, nil)
	if err != nil {
		return "", &DiscoveryError{DocumentURL: documentURL, Reason: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &DiscoveryError{DocumentURL: documentURL, Reason: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &DiscoveryError{DocumentURL: documentURL, Reason: newStatusError(documentURL, resp)}
	}

	var doc openAPIDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", &DiscoveryError{DocumentURL: documentURL, Reason: fmt.Errorf("failed to parse OpenAPI document: %w", err)}
	}

	schemes := doc.Components.SecuritySchemes
	if scheme, ok := schemes[securitySchemeName]; ok && scheme.Flows.Password != nil && scheme.Flows.Password.TokenURL != "" {
		return scheme.Flows.Password.TokenURL, nil
	}
	for name, scheme := range schemes {
		if scheme.Flows.Password != nil && scheme.Flows.Password.TokenURL != "" {
			c.logger.Debug("Using fallback security scheme", "scheme", name)
			return scheme.Flows.Password.TokenURL, nil
		}
	}

	return "", &DiscoveryError{DocumentURL: documentURL, Reason: errors.New("no password flow tokenUrl in security schemes")}
}

// DeviceEndpoint derives the device authorization endpoint from the token
// endpoint by replacing its last path segment with auth/device.
func DeviceEndpoint(tokenEndpoint string) string {
	base := tokenEndpoint
	if i := strings.LastIndex(tokenEndpoint, "/"); i >= 0 {
		base = tokenEndpoint[:i]
	}
	return base + "/auth/device"
}

// UserinfoEndpoint derives the userinfo endpoint from the token endpoint.
func UserinfoEndpoint(tokenEndpoint string) string {
	return strings.Replace(tokenEndpoint, "/token", "/userinfo", 1)
}

// RequestDeviceChallenge starts a device authorization grant. ExpiresIn is
// the raw lifetime announced by the identity provider, so the caller
// measures it against its own clock.
func (c *Client) RequestDeviceChallenge(ctx context.Context, tokenEndpoint string) (*DeviceChallenge, error) {
	deviceEndpoint := DeviceEndpoint(tokenEndpoint)
	data := url.Values{
		"client_id": {c.clientID},
		"scope":     {c.Scope()},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, deviceEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create device authorization request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("device authorization request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(deviceEndpoint, resp)
	}

	var challenge DeviceChallenge
	if err := json.NewDecoder(resp.Body).Decode(&challenge); err != nil {
		return nil, fmt.Errorf("failed to parse device authorization response: %w", err)
	}
	if challenge.DeviceCode == "" {
		return nil, errors.New("device authorization response has no device_code")
	}
	if challenge.Interval <= 0 {
		challenge.Interval = DefaultDeviceInterval
	}
	return &challenge, nil
}

// PollDeviceToken performs a single token request for a device challenge.
// Any non-200 answer, including authorization_pending, is returned as a
// *StatusError.
func (c *Client) PollDeviceToken(ctx context.Context, tokenEndpoint, deviceCode string) (*Token, error) {
	data := url.Values{
		"client_id":   {c.clientID},
		"scope":       {c.Scope()},
		"device_code": {deviceCode},
		"grant_type":  {DeviceCodeGrantType},
	}
	return c.doTokenRequest(ctx, tokenEndpoint, data)
}

// RefreshToken obtains a new access token using a refresh token.
func (c *Client) RefreshToken(ctx context.Context, tokenEndpoint, refreshToken string) (*Token, error) {
	data := url.Values{
		"client_id":     {c.clientID},
		"scope":         {c.Scope()},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}
	return c.doTokenRequest(ctx, tokenEndpoint, data)
}

// UserInfo fetches the identity claims of the bearer of accessToken.
func (c *Client) UserInfo(ctx context.Context, tokenEndpoint, accessToken string) (*UserInfo, error) {
	endpoint := UserinfoEndpoint(tokenEndpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(endpoint, resp)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse userinfo response: %w", err)
	}
	return &info, nil
}

// doTokenRequest performs a token endpoint request.
func (c *Client) doTokenRequest(ctx context.Context, tokenEndpoint string, data url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := newStatusError(tokenEndpoint, resp)
		c.logger.Debug("Token request failed",
			"grant_type", data.Get("grant_type"),
			"status", resp.StatusCode)
		return nil, statusErr
	}

	var token Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("token response has no access_token")
	}

	return &token, nil
}

func newStatusError(endpoint string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Body:       truncate(string(body)),
	}
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
