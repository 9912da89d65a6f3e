package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"tld/internal/config"
	"tld/internal/credentials"
)

// Key sources reported by APIKeyProvider.Source.
const (
	SourceEnvironment = "environment"
	SourceFile        = "file"
)

// KeyStore loads persisted records. *credentials.Store implements it.
type KeyStore interface {
	Load(r credentials.Record) error
}

// Selector chooses the provider once and delegates to it. Refresh forces a
// new evaluation, for instance after an API key was registered.
type Selector struct {
	settings config.Settings
	keys     KeyStore
	tokens   TokenSource
	logger   *slog.Logger

	mu      sync.Mutex
	current Provider
}

// NewSelector creates a Selector.
func NewSelector(settings config.Settings, keys KeyStore, tokens TokenSource) *Selector {
	return &Selector{
		settings: settings,
		keys:     keys,
		tokens:   tokens,
		logger:   slog.Default(),
	}
}

// Provider returns the selected provider, evaluating the policy on first use.
func (s *Selector) Provider() Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		s.current = s.selectLocked()
	}
	return s.current
}

// Refresh evaluates the policy again.
func (s *Selector) Refresh() Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = s.selectLocked()
	return s.current
}

// Headers implements Provider.
func (s *Selector) Headers(ctx context.Context) (map[string]string, error) {
	return s.Provider().Headers(ctx)
}

// Method implements Provider.
func (s *Selector) Method() string {
	return s.Provider().Method()
}

func (s *Selector) selectLocked() Provider {
	p := Select(s.settings, s.keys, s.tokens)
	s.logger.Debug("Selected authentication method", "method", p.Method())
	return p
}

// Select applies the priority chain to the given environment. It is
// deterministic and never falls back on errors.
func Select(settings config.Settings, keys KeyStore, tokens TokenSource) Provider {
	if settings.DisableAuth {
		return NoAuth{}
	}

	if settings.HasAPIKey() {
		return APIKeyProvider{
			Key:    credentials.APIKey{AccessKey: settings.AccessKey, SecretKey: settings.SecretKey},
			Source: SourceEnvironment,
		}
	}

	if keys != nil {
		var key credentials.APIKey
		err := keys.Load(&key)
		switch {
		case err == nil && key.Valid():
			return APIKeyProvider{Key: key, Source: SourceFile}
		case err != nil && !errors.Is(err, credentials.ErrNotFound):
			slog.Warn("Ignoring unreadable API key record", "error", err)
		}
	}

	return OAuth2Provider{Tokens: tokens}
}
