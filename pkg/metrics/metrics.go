// Package metrics provides Prometheus metrics for signing and authentication.
//
// Metrics are registered on Registry rather than the global default registry
// so that embedding applications decide whether and where to expose them,
// for instance by registering Registry with their own HTTP handler. The tld
// binary prints them with WriteText when run with --metrics.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "tld"

// Result labels for metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Source labels for signing_urls_total.
const (
	SourcePassthrough = "passthrough"
	SourceCache       = "cache"
	SourceSigned      = "signed"
)

// Registry holds every tld collector.
var Registry = prometheus.NewRegistry()

var (
	// SigningRequestsTotal counts batch signing requests sent to the signing service.
	SigningRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signing_requests_total",
			Help:      "Total number of batch signing requests",
		},
		[]string{"route", "result"},
	)

	// SigningURLsTotal counts resolved URLs by where their result came from.
	SigningURLsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signing_urls_total",
			Help:      "Total number of URLs resolved, by source (passthrough, cache, signed)",
		},
		[]string{"route", "source"},
	)

	// TokenRefreshTotal counts refresh token grants.
	TokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Total number of refresh token grants",
		},
		[]string{"result"},
	)

	// TokenBootstrapTotal counts device authorization bootstraps.
	TokenBootstrapTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_bootstrap_total",
			Help:      "Total number of device authorization bootstraps",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		SigningRequestsTotal,
		SigningURLsTotal,
		TokenRefreshTotal,
		TokenBootstrapTotal,
	)
}

func result(success bool) string {
	if success {
		return ResultSuccess
	}
	return ResultFailure
}

// IncrementSigningRequest records one batch request on route.
func IncrementSigningRequest(route string, success bool) {
	SigningRequestsTotal.WithLabelValues(route, result(success)).Inc()
}

// AddSigningURLs records n URLs resolved from source on route.
func AddSigningURLs(route, source string, n int) {
	if n <= 0 {
		return
	}
	SigningURLsTotal.WithLabelValues(route, source).Add(float64(n))
}

// IncrementTokenRefresh records the outcome of a refresh grant.
func IncrementTokenRefresh(success bool) {
	TokenRefreshTotal.WithLabelValues(result(success)).Inc()
}

// IncrementTokenBootstrap records the outcome of a device grant bootstrap.
func IncrementTokenBootstrap(success bool) {
	TokenBootstrapTotal.WithLabelValues(result(success)).Inc()
}

// WriteText writes every collected tld metric to w in the Prometheus text
// exposition format.
func WriteText(w io.Writer) error {
	families, err := Registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
