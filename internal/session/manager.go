package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tld/internal/clock"
	"tld/internal/credentials"
	"tld/pkg/metrics"
	"tld/pkg/oauth"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshMargin is the remaining lifetime under which a token is
// refreshed before use.
const DefaultRefreshMargin = 30 * time.Second

// TokenClient performs the OAuth2 exchanges. *oauth.Client implements it.
type TokenClient interface {
	DiscoverTokenEndpoint(ctx context.Context, signingEndpoint string) (string, error)
	RequestDeviceChallenge(ctx context.Context, tokenEndpoint string) (*oauth.DeviceChallenge, error)
	PollDeviceToken(ctx context.Context, tokenEndpoint, deviceCode string) (*oauth.Token, error)
	RefreshToken(ctx context.Context, tokenEndpoint, refreshToken string) (*oauth.Token, error)
	UserInfo(ctx context.Context, tokenEndpoint, accessToken string) (*oauth.UserInfo, error)
}

// Store persists credential records. *credentials.Store implements it.
type Store interface {
	Save(r credentials.Record) error
	Load(r credentials.Record) error
	Delete(kind string) error
}

// Manager owns the OAuth2 session for one signing endpoint.
type Manager struct {
	client    TokenClient
	store     Store
	endpoint  string
	clock     clock.Clock
	presenter Presenter
	logger    *slog.Logger
	margin    time.Duration

	mu       sync.RWMutex
	token    *oauth.Token
	issuedAt time.Time
	state    AuthState
	loaded   bool

	flight singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for expiry checks and polling sleeps.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithRefreshMargin overrides DefaultRefreshMargin.
func WithRefreshMargin(d time.Duration) Option {
	return func(m *Manager) {
		m.margin = d
	}
}

// WithPresenter sets how device challenges are shown to the user.
func WithPresenter(p Presenter) Option {
	return func(m *Manager) {
		m.presenter = p
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager for signingEndpoint.
func NewManager(client TokenClient, store Store, signingEndpoint string, opts ...Option) *Manager {
	m := &Manager{
		client:   client,
		store:    store,
		endpoint: signingEndpoint,
		clock:    clock.Real{},
		logger:   slog.Default(),
		margin:   DefaultRefreshMargin,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.presenter == nil {
		m.presenter = LogPresenter{Logger: m.logger}
	}
	return m
}

type snapshot struct {
	token    *oauth.Token
	issuedAt time.Time
}

// AccessToken returns a bearer value with more than the refresh margin left.
// It may refresh the token or run a device authorization grant, which blocks
// until the user approves it.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	snap, err := m.ensure(ctx)
	if err != nil {
		return "", err
	}
	return snap.token.AccessToken, nil
}

// OAuth2Token returns the current token as an oauth2.Token.
func (m *Manager) OAuth2Token(ctx context.Context) (*oauth2.Token, error) {
	snap, err := m.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return snap.token.ToOAuth2Token(snap.issuedAt), nil
}

// Login runs a device authorization grant regardless of the current token.
func (m *Manager) Login(ctx context.Context) error {
	_, err, _ := m.flight.Do("token", func() (interface{}, error) {
		return m.bootstrap(ctx)
	})
	return err
}

// Logout forgets the token and deletes its persisted copy.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.token = nil
	m.issuedAt = time.Time{}
	m.state = StateUninitialized
	m.loaded = true
	m.mu.Unlock()

	if err := m.store.Delete(credentials.KindJWT); err != nil {
		return fmt.Errorf("failed to delete persisted token: %w", err)
	}
	return nil
}

// Status returns a snapshot of the session, loading the persisted token if
// none has been loaded yet. It never performs network I/O.
func (m *Manager) Status() Status {
	m.load()

	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Status{State: m.state}
	if m.token == nil {
		return st
	}
	st.IssuedAt = m.issuedAt
	st.ExpiresAt = m.token.ExpiresAt(m.issuedAt)
	st.HasRefreshToken = m.token.RefreshToken != ""
	st.State = m.stateLocked()
	return st
}

// Username returns the preferred_username of the authenticated user.
func (m *Manager) Username(ctx context.Context) (string, error) {
	accessToken, err := m.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	tokenEndpoint, err := m.client.DiscoverTokenEndpoint(ctx, m.endpoint)
	if err != nil {
		return "", err
	}
	info, err := m.client.UserInfo(ctx, tokenEndpoint, accessToken)
	if err != nil {
		return "", fmt.Errorf("failed to fetch user info: %w", err)
	}
	return info.PreferredUsername, nil
}

// stateLocked derives Valid/NearExpiry from the held token unless a grant
// is in flight. Callers hold m.mu.
func (m *Manager) stateLocked() AuthState {
	switch m.state {
	case StateRefreshing, StateReauthenticating, StateChallengeExpired:
		return m.state
	}
	if m.token == nil {
		return StateUninitialized
	}
	if m.token.NeedsRefresh(m.issuedAt, m.clock.Now(), m.margin) {
		return StateNearExpiry
	}
	return StateValid
}

func (m *Manager) current() (snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == nil {
		return snapshot{}, false
	}
	snap := snapshot{token: m.token, issuedAt: m.issuedAt}
	return snap, !m.token.NeedsRefresh(m.issuedAt, m.clock.Now(), m.margin)
}

func (m *Manager) ensure(ctx context.Context) (snapshot, error) {
	m.load()
	if snap, fresh := m.current(); fresh {
		return snap, nil
	}

	v, err, _ := m.flight.Do("token", func() (interface{}, error) {
		// Another caller may have completed a grant since the check above.
		snap, fresh := m.current()
		if fresh {
			return snap, nil
		}
		if snap.token == nil {
			return m.bootstrap(ctx)
		}
		return m.refreshOrBootstrap(ctx, snap.token)
	})
	if err != nil {
		return snapshot{}, err
	}
	return v.(snapshot), nil
}

// load reads the persisted token once. A token persisted without an
// issuance time is treated as already expired.
func (m *Manager) load() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return
	}
	m.loaded = true

	var rec credentials.JWT
	if err := m.store.Load(&rec); err != nil {
		if !errors.Is(err, credentials.ErrNotFound) {
			m.logger.Warn("Ignoring unreadable persisted token", "error", err)
		}
		return
	}
	if rec.AccessToken == "" {
		return
	}
	m.token = rec.Token()
	m.issuedAt = rec.IssuedAt
	m.logger.Debug("Loaded persisted token", "issued_at", rec.IssuedAt)
}

func (m *Manager) setState(s AuthState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) refreshOrBootstrap(ctx context.Context, old *oauth.Token) (snapshot, error) {
	snap, err := m.refresh(ctx, old)
	if err == nil {
		return snap, nil
	}

	var refreshErr *RefreshTokenError
	if !errors.As(err, &refreshErr) {
		return snapshot{}, err
	}
	m.logger.Warn("Unable to refresh token, renewing initial authentication", "reason", refreshErr.Err)
	return m.bootstrap(ctx)
}

func (m *Manager) refresh(ctx context.Context, old *oauth.Token) (snapshot, error) {
	m.setState(StateRefreshing)

	if old.RefreshToken == "" {
		metrics.IncrementTokenRefresh(false)
		return snapshot{}, &RefreshTokenError{Err: errors.New("no refresh token")}
	}

	tokenEndpoint, err := m.client.DiscoverTokenEndpoint(ctx, m.endpoint)
	if err != nil {
		m.setState(StateNearExpiry)
		return snapshot{}, err
	}

	m.logger.Debug("Refreshing access token")
	tok, err := m.client.RefreshToken(ctx, tokenEndpoint, old.RefreshToken)
	if err != nil {
		metrics.IncrementTokenRefresh(false)
		if ctx.Err() != nil {
			m.setState(StateNearExpiry)
			return snapshot{}, ctx.Err()
		}
		return snapshot{}, &RefreshTokenError{Err: err}
	}
	metrics.IncrementTokenRefresh(true)

	if tok.RefreshToken == "" {
		tok.RefreshToken = old.RefreshToken
	}
	return m.accept(tok), nil
}

func (m *Manager) bootstrap(ctx context.Context) (snap snapshot, err error) {
	m.setState(StateReauthenticating)
	defer func() {
		metrics.IncrementTokenBootstrap(err == nil)
		if err == nil {
			return
		}
		var expired *ExpiredAuthLinkError
		if errors.As(err, &expired) {
			m.setState(StateChallengeExpired)
		} else {
			m.setState(StateUninitialized)
		}
	}()

	tokenEndpoint, err := m.client.DiscoverTokenEndpoint(ctx, m.endpoint)
	if err != nil {
		return snapshot{}, err
	}

	m.logger.Debug("Getting token using device authorization grant")
	challenge, err := m.client.RequestDeviceChallenge(ctx, tokenEndpoint)
	if err != nil {
		return snapshot{}, fmt.Errorf("failed to request device challenge: %w", err)
	}

	m.presenter.ShowChallenge(challenge)
	tok, err := m.poll(ctx, tokenEndpoint, challenge)
	m.presenter.ChallengeDone(err)
	if err != nil {
		return snapshot{}, err
	}
	return m.accept(tok), nil
}

// poll asks for the token every challenge interval until it is issued or
// the challenge expires. The interval is fixed by the server.
func (m *Manager) poll(ctx context.Context, tokenEndpoint string, challenge *oauth.DeviceChallenge) (*oauth.Token, error) {
	interval := challenge.IntervalDuration()
	if interval <= 0 {
		interval = oauth.DefaultDeviceInterval * time.Second
	}
	lifetime := challenge.ExpiresInDuration()
	start := m.clock.Now()

	for {
		tok, err := m.client.PollDeviceToken(ctx, tokenEndpoint, challenge.DeviceCode)
		if err == nil {
			return tok, nil
		}

		var statusErr *oauth.StatusError
		if !errors.As(err, &statusErr) {
			return nil, fmt.Errorf("failed to poll token endpoint: %w", err)
		}

		elapsed := clock.Since(m.clock, start)
		m.logger.Debug("Waiting for device authorization",
			"elapsed", elapsed.Round(time.Second),
			"status", statusErr.StatusCode,
			"remaining", (lifetime - elapsed).Round(time.Second),
		)
		if elapsed > lifetime {
			return nil, &ExpiredAuthLinkError{URI: challenge.URI(), ExpiresIn: lifetime}
		}

		if err := m.clock.Sleep(ctx, interval); err != nil {
			return nil, err
		}
	}
}

// accept installs tok as the session token and persists it.
func (m *Manager) accept(tok *oauth.Token) snapshot {
	now := m.clock.Now()

	m.mu.Lock()
	m.token = tok
	m.issuedAt = now
	m.state = StateValid
	m.mu.Unlock()

	if err := m.store.Save(credentials.NewJWT(tok, now)); err != nil {
		m.logger.Warn("Unable to persist token", "error", err)
	}
	return snapshot{token: tok, issuedAt: now}
}
