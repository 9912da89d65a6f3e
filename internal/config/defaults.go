package config

const (
	// AppName names the per-user configuration directory.
	AppName = "teledetection"

	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "TLD_"

	DefaultSigningEndpoint    = "https://signing.stac.teledetection.fr/"
	DefaultStorageDomain      = "meso.umontpellier.fr"
	DefaultTTLMargin          = 1800
	DefaultRetryTotal         = 10
	DefaultRetryBackoffFactor = 0.8
	DefaultLogLevel           = "info"

	configFileName = "config.yaml"
)

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		SigningEndpoint:    DefaultSigningEndpoint,
		TTLMargin:          DefaultTTLMargin,
		RetryTotal:         DefaultRetryTotal,
		RetryBackoffFactor: DefaultRetryBackoffFactor,
		StorageDomain:      DefaultStorageDomain,
		LogLevel:           DefaultLogLevel,
	}
}
