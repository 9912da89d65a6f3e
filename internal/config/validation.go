package config

import (
	"net/url"
	"strings"
)

// Validate normalizes the settings in place and reports every invalid field.
// The signing endpoint gets a trailing "/" when it lacks one.
func (s *Settings) Validate() error {
	var errs ValidationErrors

	endpoint, err := NormalizeEndpoint(s.SigningEndpoint)
	if err != nil {
		errs = append(errs, err)
	} else {
		s.SigningEndpoint = endpoint
	}

	if s.TTLMargin < 0 {
		errs.add("ttl_margin", s.TTLMargin, "must not be negative")
	}
	if s.URLDuration < 0 {
		errs.add("url_duration", s.URLDuration, "must not be negative")
	}
	if s.RetryTotal < 0 {
		errs.add("retry_total", s.RetryTotal, "must not be negative")
	}
	if s.RetryBackoffFactor < 0 {
		errs.add("retry_backoff_factor", s.RetryBackoffFactor, "must not be negative")
	}
	if (s.AccessKey == "") != (s.SecretKey == "") {
		errs.add("access_key/secret_key", nil, "both keys must be set together")
	}

	s.StorageDomain = strings.Trim(strings.TrimSpace(s.StorageDomain), ".")
	if s.StorageDomain == "" {
		errs.add("storage_domain", nil, "must not be empty")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// NormalizeEndpoint checks that raw is an absolute http(s) URL and returns it
// with a trailing slash.
func NormalizeEndpoint(raw string) (string, *ConfigurationError) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "", &ConfigurationError{
			Field:  "signing_endpoint",
			Value:  raw,
			Reason: "must start with http:// or https://",
		}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", &ConfigurationError{
			Field:  "signing_endpoint",
			Value:  raw,
			Reason: "must be an absolute URL with a host",
		}
	}

	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return raw, nil
}
