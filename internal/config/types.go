package config

import "time"

// Settings holds every tunable of the signing client.
type Settings struct {
	// SigningEndpoint is the base URL of the signing service, always ending with "/".
	SigningEndpoint string `yaml:"signing_endpoint"`

	// DisableAuth sends signing requests without any authentication header.
	DisableAuth bool `yaml:"disable_auth"`

	// AccessKey and SecretKey form a static API key. They take precedence
	// over an API key persisted in the configuration directory.
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`

	// TTLMargin is the minimum remaining validity, in seconds, for a cached
	// signed URL to be reused.
	TTLMargin int `yaml:"ttl_margin"`

	// URLDuration is the requested signed URL lifetime in seconds.
	// Zero lets the signing service decide.
	URLDuration int `yaml:"url_duration"`

	RetryTotal         int     `yaml:"retry_total"`
	RetryBackoffFactor float64 `yaml:"retry_backoff_factor"`

	// StorageDomain scopes which hosts get signed.
	StorageDomain string `yaml:"storage_domain"`

	LogLevel string `yaml:"log_level"`

	// ConfigDir is where config.yaml and credential records live. Empty
	// means persistence is disabled.
	ConfigDir string `yaml:"-"`
}

// Margin returns TTLMargin as a duration.
func (s Settings) Margin() time.Duration {
	return time.Duration(s.TTLMargin) * time.Second
}

// SignedURLDuration returns URLDuration as a duration.
func (s Settings) SignedURLDuration() time.Duration {
	return time.Duration(s.URLDuration) * time.Second
}

// HasAPIKey reports whether a static API key was provided through the
// environment, the config file or flags.
func (s Settings) HasAPIKey() bool {
	return s.AccessKey != "" && s.SecretKey != ""
}

// PersistenceEnabled reports whether credentials can be written to disk.
func (s Settings) PersistenceEnabled() bool {
	return s.ConfigDir != ""
}
