package app

import (
	"tld/internal/apikeys"
	"tld/internal/auth"
	"tld/internal/clock"
	"tld/internal/config"
	"tld/internal/credentials"
	"tld/internal/dispatch"
	"tld/internal/retryhttp"
	"tld/internal/session"
	"tld/internal/signing"
	"tld/internal/transfer"
	"tld/pkg/logging"
	"tld/pkg/oauth"

	"github.com/spf13/afero"
)

// Services holds every component built from the resolved settings.
type Services struct {
	// Fs is the filesystem local files are read from and written to.
	Fs afero.Fs

	Store      *credentials.Store
	HTTP       *retryhttp.Client
	OAuth      *oauth.Client
	Session    *session.Manager
	Auth       *auth.Selector
	Signer     *signing.Client
	Dispatcher *dispatch.Dispatcher
	Pusher     *transfer.Pusher
	APIKeys    *apikeys.Client
}

// InitializeServices wires the components together. Nothing here touches
// the network.
func InitializeServices(cfg *Config, settings config.Settings) *Services {
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	store := credentials.NewStore(credentials.StoreConfig{Dir: settings.ConfigDir, Fs: fs})

	httpOpts := []retryhttp.Option{retryhttp.WithLogger(logging.For("HTTP"))}
	if cfg.HTTPClient != nil {
		httpOpts = append(httpOpts, retryhttp.WithHTTPClient(cfg.HTTPClient))
	}
	httpClient := retryhttp.New(retryhttp.DefaultPolicy(settings.RetryTotal, settings.RetryBackoffFactor), httpOpts...)

	oauthClient := oauth.NewClient(
		oauth.WithHTTPClient(httpClient.StandardClient()),
		oauth.WithLogger(logging.For("OAuth")),
	)

	sessionOpts := []session.Option{
		session.WithClock(clk),
		session.WithLogger(logging.For("Session")),
	}
	if cfg.Presenter != nil {
		sessionOpts = append(sessionOpts, session.WithPresenter(cfg.Presenter))
	}
	manager := session.NewManager(oauthClient, store, settings.SigningEndpoint, sessionOpts...)

	selector := auth.NewSelector(settings, store, manager)

	signer := signing.NewClient(settings.SigningEndpoint, httpClient, selector,
		signing.WithStorageDomain(settings.StorageDomain),
		signing.WithDuration(settings.SignedURLDuration()),
		signing.WithCache(signing.NewCache(settings.Margin(), clk)),
		signing.WithLogger(logging.For("Signing")),
	)

	logger := logging.For("App")
	logger.Debug("Services initialized",
		"endpoint", settings.SigningEndpoint,
		"storage_domain", settings.StorageDomain,
		"persistent", store.Persistent(),
	)

	dispatcher := dispatch.New(signer,
		dispatch.WithStorageDomain(settings.StorageDomain),
		dispatch.WithLogger(logging.For("Dispatch")),
	)
	pusher := transfer.NewPusher(signer, httpClient,
		transfer.WithFs(fs),
		transfer.WithLogger(logging.For("Transfer")),
	)

	return &Services{
		Fs:         fs,
		Store:      store,
		HTTP:       httpClient,
		OAuth:      oauthClient,
		Session:    manager,
		Auth:       selector,
		Signer:     signer,
		Dispatcher: dispatcher,
		Pusher:     pusher,
		APIKeys:    apikeys.NewClient(settings.SigningEndpoint, httpClient, selector, logging.For("APIKeys")),
	}
}
