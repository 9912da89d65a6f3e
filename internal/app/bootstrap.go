package app

import (
	"io"
	"os"

	"tld/internal/config"
	"tld/pkg/logging"
)

// Application is the fully wired signing client used by every command.
//
// It follows a two-phase initialization:
//  1. Settings: defaults, config.yaml, environment, then flags
//  2. Services: credential store, HTTP client, session, signer and friends
//
// Example usage:
//
//	application, err := app.NewApplication(app.NewConfig(false, "", ""))
//	if err != nil {
//	    return err
//	}
//	signed, err := application.Signer.SignURL(ctx, href)
type Application struct {
	*Services

	config   *Config
	settings config.Settings
}

// NewApplication resolves the settings and builds the services. Invalid
// settings are reported as *config.ConfigurationError before any network
// activity.
func NewApplication(cfg *Config) (*Application, error) {
	settings, err := config.Load(config.LoadOptions{
		ConfigDir: cfg.ConfigDir,
		LookupEnv: cfg.LookupEnv,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Endpoint != "" {
		endpoint, cfgErr := config.NormalizeEndpoint(cfg.Endpoint)
		if cfgErr != nil {
			cfgErr.Source = "flag"
			return nil, cfgErr
		}
		settings.SigningEndpoint = endpoint
	}

	if err := initLogging(cfg, settings); err != nil {
		return nil, err
	}
	logging.Debug("Bootstrap", "Using signing endpoint %s", settings.SigningEndpoint)
	if !settings.PersistenceEnabled() {
		logging.Warn("Bootstrap", "Credential persistence is disabled, you will be asked to authenticate on every run")
	}

	return &Application{
		Services: InitializeServices(cfg, settings),
		config:   cfg,
		settings: settings,
	}, nil
}

// Settings returns the resolved settings.
func (a *Application) Settings() config.Settings {
	return a.settings
}

func initLogging(cfg *Config, settings config.Settings) error {
	level := logging.LevelDebug
	if !cfg.Debug {
		parsed, err := logging.ParseLevel(settings.LogLevel)
		if err != nil {
			return &config.ConfigurationError{
				Field:  "log_level",
				Value:  settings.LogLevel,
				Reason: err.Error(),
			}
		}
		level = parsed
	}

	var out io.Writer = os.Stderr
	if cfg.LogOutput != nil {
		out = cfg.LogOutput
	}
	logging.InitForCLI(level, out)
	return nil
}
