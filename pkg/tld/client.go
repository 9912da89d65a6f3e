package tld

import (
	"context"
	"net/http"

	"tld/internal/app"
	"tld/internal/config"
	"tld/internal/session"
	"tld/internal/signing"
	"tld/pkg/oauth"

	"github.com/spf13/afero"
)

type (
	// Settings are the resolved client settings.
	Settings = config.Settings
	// Presenter shows a device authorization challenge to the user.
	Presenter = session.Presenter
	// ConfigurationError reports an invalid setting.
	ConfigurationError = config.ConfigurationError
	// ExpiredAuthLinkError is returned when the device authorization link
	// expired before the user approved it.
	ExpiredAuthLinkError = session.ExpiredAuthLinkError
	// StatusError is returned when the identity provider answers with an
	// unexpected HTTP status.
	StatusError = oauth.StatusError
)

// Option configures a Client.
type Option func(*options)

type options struct {
	cfg app.Config
}

// WithLookupEnv replaces os.LookupEnv when reading TLD_* variables.
func WithLookupEnv(lookup func(key string) (string, bool)) Option {
	return func(o *options) { o.cfg.LookupEnv = lookup }
}

// WithConfigDir overrides TLD_CONFIG_DIR.
func WithConfigDir(dir string) Option {
	return func(o *options) { o.cfg.ConfigDir = dir }
}

// WithEndpoint overrides the signing endpoint from files and environment.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.cfg.Endpoint = endpoint }
}

// WithHTTPClient sets the client the retry policy wraps.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.cfg.HTTPClient = c }
}

// WithFs sets the filesystem credentials and pushed files live on.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.cfg.Fs = fs }
}

// WithPresenter sets how device authorization challenges are shown. By
// default they are logged.
func WithPresenter(p Presenter) Option {
	return func(o *options) { o.cfg.Presenter = p }
}

// Client signs URLs and documents against the signing service.
type Client struct {
	services *app.Services
	settings Settings
}

// New resolves the settings and builds a Client. Invalid settings are
// returned as *ConfigurationError; nothing is sent over the network until
// the first call that needs it.
func New(opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	settings, err := config.Load(config.LoadOptions{
		ConfigDir: o.cfg.ConfigDir,
		LookupEnv: o.cfg.LookupEnv,
	})
	if err != nil {
		return nil, err
	}
	if o.cfg.Endpoint != "" {
		endpoint, cfgErr := config.NormalizeEndpoint(o.cfg.Endpoint)
		if cfgErr != nil {
			cfgErr.Source = "option"
			return nil, cfgErr
		}
		settings.SigningEndpoint = endpoint
	}

	return &Client{
		services: app.InitializeServices(&o.cfg, settings),
		settings: settings,
	}, nil
}

// Settings returns the resolved settings.
func (c *Client) Settings() Settings {
	return c.settings
}

// Headers returns the authentication headers the signing service expects,
// running the device authorization grant first if no usable credentials
// are stored.
func (c *Client) Headers(ctx context.Context) (map[string]string, error) {
	return c.services.Auth.Headers(ctx)
}

// Username returns the preferred_username of the OAuth2 user.
func (c *Client) Username(ctx context.Context) (string, error) {
	return c.services.Session.Username(ctx)
}

// SignURL signs a single URL for reading. URLs outside the storage domain
// and already signed URLs are returned unchanged.
func (c *Client) SignURL(ctx context.Context, rawURL string) (string, error) {
	return c.services.Signer.SignURL(ctx, rawURL)
}

// SignURLPut signs a single URL for uploading.
func (c *Client) SignURLPut(ctx context.Context, rawURL string) (string, error) {
	return c.services.Signer.SignURLPut(ctx, rawURL)
}

// SignURLs signs urls for reading and returns them in the same order.
func (c *Client) SignURLs(ctx context.Context, urls []string) ([]string, error) {
	signed, err := c.services.Signer.SignMany(ctx, urls, signing.RouteRead)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = signed[u]
	}
	return out, nil
}

// Sign returns a signed copy of v, which may be a URL string, a STAC
// asset, item, collection, item collection or search, a slice of items,
// or a map or slice decoded from JSON. v itself is left untouched.
func (c *Client) Sign(ctx context.Context, v interface{}) (interface{}, error) {
	return c.services.Dispatcher.Sign(ctx, v)
}

// SignInPlace is Sign without the copy: hrefs inside v are replaced.
func (c *Client) SignInPlace(ctx context.Context, v interface{}) (interface{}, error) {
	return c.services.Dispatcher.SignInPlace(ctx, v)
}

// Push uploads the file at localPath, read from the WithFs filesystem, to
// targetURL and returns the presigned URL used.
func (c *Client) Push(ctx context.Context, localPath, targetURL string) (string, error) {
	return c.services.Pusher.Push(ctx, localPath, targetURL)
}
