// Package apikeys manages the API keys a user holds on the signing service.
package apikeys

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"tld/internal/auth"
	"tld/internal/credentials"
	"tld/internal/retryhttp"
)

// Metadata describes one key as listed by the service.
type Metadata struct {
	AccessKey   string `json:"access-key"`
	Description string `json:"description"`
	Created     string `json:"created"`
}

// Client calls the key management routes of the signing service.
type Client struct {
	endpoint string
	http     *retryhttp.Client
	auth     auth.Provider
	logger   *slog.Logger
}

// NewClient creates a Client. endpoint must end with "/".
func NewClient(endpoint string, httpClient *retryhttp.Client, provider auth.Provider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		http:     httpClient,
		auth:     provider,
		logger:   logger,
	}
}

// DefaultDescription is the description given to keys created without one.
func DefaultDescription(user string, now time.Time) string {
	return fmt.Sprintf("Created by %s on %s", user, now.Format("2006-01-02 15:04"))
}

// List returns the keys of the authenticated user.
func (c *Client) List(ctx context.Context) ([]Metadata, error) {
	var keys []Metadata
	if err := c.get(ctx, "list_api_keys_with_metadata", nil, &keys); err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	return keys, nil
}

// Create issues a new key. The secret half is only ever returned here.
func (c *Client) Create(ctx context.Context, description string) (credentials.APIKey, error) {
	var key credentials.APIKey
	params := url.Values{"description": {description}}
	if err := c.get(ctx, "create_api_key", params, &key); err != nil {
		return credentials.APIKey{}, fmt.Errorf("failed to create API key: %w", err)
	}
	if !key.Valid() {
		return credentials.APIKey{}, fmt.Errorf("signing service returned an incomplete API key")
	}
	c.logger.Info("Created API key", "access_key", key.AccessKey)
	return key, nil
}

// Revoke revokes one key.
func (c *Client) Revoke(ctx context.Context, accessKey string) error {
	params := url.Values{"access_key": {accessKey}}
	if err := c.get(ctx, "revoke_api_key", params, nil); err != nil {
		return fmt.Errorf("failed to revoke API key %s: %w", accessKey, err)
	}
	c.logger.Info("Revoked API key", "access_key", accessKey)
	return nil
}

// RevokeAll revokes every listed key and returns the revoked access keys.
// It stops at the first failure.
func (c *Client) RevokeAll(ctx context.Context) ([]string, error) {
	keys, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	revoked := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := c.Revoke(ctx, k.AccessKey); err != nil {
			return revoked, err
		}
		revoked = append(revoked, k.AccessKey)
	}
	return revoked, nil
}

func (c *Client) get(ctx context.Context, route string, params url.Values, out interface{}) error {
	target := c.endpoint + route
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := c.http.NewRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if err := auth.Apply(ctx, c.auth, req.Request); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := retryhttp.CheckResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", route, err)
	}
	return nil
}
