package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tld/pkg/logging"

	"gopkg.in/yaml.v3"
)

// LookupEnvFunc matches os.LookupEnv.
type LookupEnvFunc func(key string) (string, bool)

// LoadOptions tweaks how Load resolves settings.
type LoadOptions struct {
	// ConfigDir overrides the configuration directory, taking precedence
	// over TLD_CONFIG_DIR.
	ConfigDir string

	// LookupEnv defaults to os.LookupEnv.
	LookupEnv LookupEnvFunc

	// UserConfigDir defaults to os.UserConfigDir.
	UserConfigDir func() (string, error)
}

// Load resolves settings from defaults, config.yaml and the environment,
// makes sure the configuration directory exists and validates the result.
func Load(opts LoadOptions) (Settings, error) {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	if opts.UserConfigDir == nil {
		opts.UserConfigDir = os.UserConfigDir
	}

	settings := Defaults()

	dir, err := resolveConfigDir(opts)
	if err != nil {
		logging.Warn("Config", "Could not determine configuration directory, credentials will not be persisted: %v", err)
	}

	if dir != "" {
		if err := loadFile(filepath.Join(dir, configFileName), &settings); err != nil {
			return Settings{}, err
		}
	}

	if err := applyEnv(&settings, opts.LookupEnv); err != nil {
		return Settings{}, err
	}

	settings.ConfigDir = ensureConfigDir(dir)

	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// ConfigFilePath returns the location of config.yaml for the given settings,
// or "" when persistence is disabled.
func ConfigFilePath(s Settings) string {
	if s.ConfigDir == "" {
		return ""
	}
	return filepath.Join(s.ConfigDir, configFileName)
}

func resolveConfigDir(opts LoadOptions) (string, error) {
	if opts.ConfigDir != "" {
		return opts.ConfigDir, nil
	}
	if v, ok := opts.LookupEnv(EnvPrefix + "CONFIG_DIR"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), nil
	}
	base, err := opts.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppName), nil
}

// ensureConfigDir creates dir with owner-only permissions. A permission
// failure disables persistence instead of failing.
func ensureConfigDir(dir string) string {
	if dir == "" {
		return ""
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			logging.Warn("Config", "No permission to create %s, credentials will not be persisted", dir)
		} else {
			logging.Warn("Config", "Unable to create %s, credentials will not be persisted: %v", dir, err)
		}
		return ""
	}
	return dir
}

func loadFile(path string, settings *Settings) error {
	// #nosec G304 -- path is the configuration file chosen by the user
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Debug("Config", "No config.yaml found at %s, using defaults", path)
			return nil
		}
		if errors.Is(err, fs.ErrPermission) {
			logging.Warn("Config", "Cannot read %s, ignoring it", path)
			return nil
		}
		return fmt.Errorf("error reading config from %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return &ConfigurationError{
			Field:  configFileName,
			Value:  path,
			Reason: fmt.Sprintf("malformed YAML: %v", err),
			Source: "file",
		}
	}
	logging.Debug("Config", "Loaded configuration from %s", path)
	return nil
}

func applyEnv(s *Settings, lookup LookupEnvFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return envError(name, v, "must be an integer")
		}
		*dst = n
		return nil
	}

	str("SIGNING_ENDPOINT", &s.SigningEndpoint)
	str("ACCESS_KEY", &s.AccessKey)
	str("SECRET_KEY", &s.SecretKey)
	str("STORAGE_DOMAIN", &s.StorageDomain)
	str("LOG_LEVEL", &s.LogLevel)

	if v, ok := lookup(EnvPrefix + "DISABLE_AUTH"); ok && strings.TrimSpace(v) != "" {
		b, err := parseBool(v)
		if err != nil {
			return envError("DISABLE_AUTH", v, "must be a boolean")
		}
		s.DisableAuth = b
	}

	for name, dst := range map[string]*int{
		"TTL_MARGIN":   &s.TTLMargin,
		"URL_DURATION": &s.URLDuration,
		"RETRY_TOTAL":  &s.RetryTotal,
	} {
		if err := integer(name, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup(EnvPrefix + "RETRY_BACKOFF_FACTOR"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return envError("RETRY_BACKOFF_FACTOR", v, "must be a number")
		}
		s.RetryBackoffFactor = f
	}
	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

func envError(name, value, reason string) *ConfigurationError {
	return &ConfigurationError{
		Field:  EnvPrefix + name,
		Value:  value,
		Reason: reason,
		Source: "env",
	}
}
