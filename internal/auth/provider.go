// Package auth provides the authentication headers sent to the signing
// service.
//
// Three providers exist: NoAuth, APIKeyProvider and OAuth2Provider. A
// Selector picks one with a fixed priority: disabled authentication first,
// then an API key from the environment, then a persisted API key, and
// finally the managed OAuth2 session.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"tld/internal/credentials"

	"golang.org/x/oauth2"
)

// Provider returns the headers authenticating a request.
type Provider interface {
	Headers(ctx context.Context) (map[string]string, error)
	Method() string
}

// Authentication methods reported by Provider.Method.
const (
	MethodNone   = "none"
	MethodAPIKey = "apikey"
	MethodOAuth2 = "oauth2"
)

// NoAuth sends no credentials.
type NoAuth struct{}

// Headers implements Provider.
func (NoAuth) Headers(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

// Method implements Provider.
func (NoAuth) Method() string { return MethodNone }

// APIKeyProvider sends a static access/secret key pair.
type APIKeyProvider struct {
	Key credentials.APIKey

	// Source describes where the key came from, for display.
	Source string
}

// Headers implements Provider.
func (p APIKeyProvider) Headers(context.Context) (map[string]string, error) {
	return p.Key.Headers(), nil
}

// Method implements Provider.
func (APIKeyProvider) Method() string { return MethodAPIKey }

// TokenSource yields a valid OAuth2 token. *session.Manager implements it.
type TokenSource interface {
	OAuth2Token(ctx context.Context) (*oauth2.Token, error)
}

// OAuth2Provider sends the bearer token of a managed session. Headers may
// block while the session refreshes or runs a device authorization grant.
type OAuth2Provider struct {
	Tokens TokenSource
}

// Headers implements Provider.
func (p OAuth2Provider) Headers(ctx context.Context) (map[string]string, error) {
	tok, err := p.Tokens.OAuth2Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}
	req := &http.Request{Header: make(http.Header)}
	tok.SetAuthHeader(req)
	return map[string]string{"Authorization": req.Header.Get("Authorization")}, nil
}

// Method implements Provider.
func (OAuth2Provider) Method() string { return MethodOAuth2 }

// Apply sets the headers of p on req.
func Apply(ctx context.Context, p Provider, req *http.Request) error {
	headers, err := p.Headers(ctx)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return nil
}
