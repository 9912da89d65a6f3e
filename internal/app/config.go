package app

import (
	"io"
	"net/http"

	"tld/internal/clock"
	"tld/internal/config"
	"tld/internal/session"

	"github.com/spf13/afero"
)

// Config holds the command line side of the application configuration.
// Settings resolved from files and the environment live in config.Settings.
type Config struct {
	// Debug forces debug logging regardless of TLD_LOG_LEVEL.
	Debug bool

	// ConfigDir overrides TLD_CONFIG_DIR.
	ConfigDir string

	// Endpoint overrides the signing endpoint from files and environment.
	Endpoint string

	// LogOutput receives log lines. Defaults to stderr.
	LogOutput io.Writer

	// Presenter shows device challenges. Defaults to logging them.
	Presenter session.Presenter

	// The fields below are replaced in tests.
	LookupEnv  config.LookupEnvFunc
	Fs         afero.Fs
	HTTPClient *http.Client
	Clock      clock.Clock
}

// NewConfig creates a new application configuration.
func NewConfig(debug bool, configDir, endpoint string) *Config {
	return &Config{
		Debug:     debug,
		ConfigDir: configDir,
		Endpoint:  endpoint,
	}
}
