package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupEnvFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	base := t.TempDir()

	s, err := Load(LoadOptions{
		LookupEnv:     envMap(nil),
		UserConfigDir: func() (string, error) { return base, nil },
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultSigningEndpoint, s.SigningEndpoint)
	assert.Equal(t, 1800, s.TTLMargin)
	assert.Equal(t, 0, s.URLDuration)
	assert.Equal(t, 10, s.RetryTotal)
	assert.InDelta(t, 0.8, s.RetryBackoffFactor, 1e-9)
	assert.False(t, s.DisableAuth)
	assert.False(t, s.HasAPIKey())
	assert.Equal(t, DefaultStorageDomain, s.StorageDomain)
	assert.Equal(t, filepath.Join(base, AppName), s.ConfigDir)

	info, err := os.Stat(s.ConfigDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `signing_endpoint: https://file.example.com
ttl_margin: 60
url_duration: 600
storage_domain: file.domain
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlContent), 0o600))

	s, err := Load(LoadOptions{
		LookupEnv: envMap(map[string]string{
			"TLD_CONFIG_DIR":           dir,
			"TLD_TTL_MARGIN":           "120",
			"TLD_DISABLE_AUTH":         "true",
			"TLD_ACCESS_KEY":           "ak",
			"TLD_SECRET_KEY":           "sk",
			"TLD_RETRY_BACKOFF_FACTOR": "1.5",
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.com/", s.SigningEndpoint)
	assert.Equal(t, 120, s.TTLMargin)
	assert.Equal(t, 600, s.URLDuration)
	assert.Equal(t, "file.domain", s.StorageDomain)
	assert.True(t, s.DisableAuth)
	assert.True(t, s.HasAPIKey())
	assert.InDelta(t, 1.5, s.RetryBackoffFactor, 1e-9)
	assert.Equal(t, dir, s.ConfigDir)
}

func TestLoad_ExplicitConfigDirWins(t *testing.T) {
	explicit := t.TempDir()
	s, err := Load(LoadOptions{
		ConfigDir: explicit,
		LookupEnv: envMap(map[string]string{"TLD_CONFIG_DIR": t.TempDir()}),
	})
	require.NoError(t, err)
	assert.Equal(t, explicit, s.ConfigDir)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{
			name:  "endpoint without scheme",
			env:   map[string]string{"TLD_SIGNING_ENDPOINT": "signing.example.com"},
			field: "signing_endpoint",
		},
		{
			name:  "non numeric margin",
			env:   map[string]string{"TLD_TTL_MARGIN": "soon"},
			field: "TLD_TTL_MARGIN",
		},
		{
			name:  "bad boolean",
			env:   map[string]string{"TLD_DISABLE_AUTH": "maybe"},
			field: "TLD_DISABLE_AUTH",
		},
		{
			name:  "half an api key",
			env:   map[string]string{"TLD_ACCESS_KEY": "ak"},
			field: "access_key/secret_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := map[string]string{"TLD_CONFIG_DIR": t.TempDir()}
			for k, v := range tt.env {
				env[k] = v
			}

			_, err := Load(LoadOptions{LookupEnv: envMap(env)})
			require.Error(t, err)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %T", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("ttl_margin: [oops"), 0o600))

	_, err := Load(LoadOptions{ConfigDir: dir, LookupEnv: envMap(nil)})
	require.Error(t, err)
	assert.ErrorIs(t, err, &ConfigurationError{})
}

func TestLoad_UnwritableConfigDirDisablesPersistence(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	parent := t.TempDir()
	require.NoError(t, os.Chmod(parent, 0o500))
	t.Cleanup(func() { _ = os.Chmod(parent, 0o700) })

	s, err := Load(LoadOptions{
		ConfigDir: filepath.Join(parent, "nested"),
		LookupEnv: envMap(nil),
	})
	require.NoError(t, err)
	assert.False(t, s.PersistenceEnabled())
	assert.Empty(t, ConfigFilePath(s))
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://signing.example.com", "https://signing.example.com/", false},
		{"http://localhost:8080/", "http://localhost:8080/", false},
		{"https://example.com/api", "https://example.com/api/", false},
		{"HTTPS://signing.example.com", "HTTPS://signing.example.com/", false},
		{"Http://localhost:8080", "Http://localhost:8080/", false},
		{"ftp://example.com", "", true},
		{"https://", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeEndpoint(tt.in)
			if tt.wantErr {
				assert.NotNil(t, err)
				return
			}
			assert.Nil(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	s := Defaults()
	s.TTLMargin = -1
	s.RetryTotal = -2

	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 configuration errors")
	assert.Contains(t, err.Error(), "ttl_margin")
	assert.Contains(t, err.Error(), "retry_total")
}

func TestSettingsDurations(t *testing.T) {
	s := Defaults()
	s.URLDuration = 90
	assert.Equal(t, "30m0s", s.Margin().String())
	assert.Equal(t, "1m30s", s.SignedURLDuration().String())
}
