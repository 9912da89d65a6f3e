package signing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"tld/internal/auth"
	"tld/internal/credentials"
	"tld/internal/retryhttp"
	"tld/internal/testing/mock"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const domain = "storage.domain"

var now = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *mock.SigningService
	clock  *mock.Clock
	client *Client
}

func newFixture(t *testing.T, mutate func(*mock.SigningServiceConfig), opts ...Option) *fixture {
	t.Helper()
	clk := mock.NewClock(now)
	cfg := mock.DefaultSigningServiceConfig()
	cfg.Clock = clk
	if mutate != nil {
		mutate(&cfg)
	}
	svc := mock.NewSigningService(cfg)
	t.Cleanup(svc.Close)

	httpClient := retryhttp.New(retryhttp.DefaultPolicy(0, 0), retryhttp.WithHTTPClient(svc.Client()))
	base := []Option{
		WithStorageDomain(domain),
		WithCache(NewCache(1800*time.Second, clk)),
	}
	return &fixture{
		svc:    svc,
		clock:  clk,
		client: NewClient(svc.URL(), httpClient, auth.NoAuth{}, append(base, opts...)...),
	}
}

func urlsN(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://x.%s/tiles/%03d.tif", domain, i)
	}
	return out
}

func TestSignMany_PlainSigning(t *testing.T) {
	f := newFixture(t, nil)
	in := "https://x.storage.domain/a.tif"
	out := "https://other.org/b.tif"

	got, err := f.client.SignMany(context.Background(), []string{in, out}, RouteRead)
	require.NoError(t, err)

	assert.Equal(t, out, got[out])
	assert.NotEqual(t, in, got[in])
	assert.Contains(t, got[in], "X-Amz-Signature=")

	batches := f.svc.Batches(mock.RouteRead)
	require.Len(t, batches, 1)
	assert.Equal(t, []string{in}, batches[0].URLs)
}

func TestSignMany_BatchCompleteness(t *testing.T) {
	tests := []struct {
		n, batchSize, wantRequests int
	}{
		{n: 1, batchSize: MaxBatchSize, wantRequests: 1},
		{n: 64, batchSize: MaxBatchSize, wantRequests: 1},
		{n: 65, batchSize: MaxBatchSize, wantRequests: 2},
		{n: 150, batchSize: MaxBatchSize, wantRequests: 3},
		{n: 10, batchSize: 3, wantRequests: 4},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_urls_by_%d", tt.n, tt.batchSize), func(t *testing.T) {
			f := newFixture(t, nil, WithBatchSize(tt.batchSize))
			urls := urlsN(tt.n)

			got, err := f.client.SignMany(context.Background(), urls, RouteRead)
			require.NoError(t, err)

			batches := f.svc.Batches(mock.RouteRead)
			assert.Len(t, batches, tt.wantRequests)

			seen := map[string]bool{}
			for _, b := range batches {
				assert.LessOrEqual(t, len(b.URLs), tt.batchSize)
				for _, u := range b.URLs {
					seen[u] = true
				}
			}
			assert.Len(t, seen, tt.n)
			for _, u := range urls {
				assert.True(t, IsSigned(got[u]), "url %s not signed", u)
			}
		})
	}
}

func TestSignMany_DeduplicatesInput(t *testing.T) {
	f := newFixture(t, nil)
	u := "https://x.storage.domain/a.tif"

	got, err := f.client.SignMany(context.Background(), []string{u, u, u}, RouteRead)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	batches := f.svc.Batches(mock.RouteRead)
	require.Len(t, batches, 1)
	assert.Equal(t, []string{u}, batches[0].URLs)
}

func TestSignMany_CacheCorrectness(t *testing.T) {
	f := newFixture(t, nil)
	u := "https://x.storage.domain/a.tif"
	ctx := context.Background()

	first, err := f.client.SignURL(ctx, u)
	require.NoError(t, err)

	second, err := f.client.SignURL(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, f.svc.Batches(mock.RouteRead), 1, "valid entry served without a request")

	// Signed for 2h with a 30m margin: 1h31m later only 29m are left.
	f.clock.Advance(91 * time.Minute)
	third, err := f.client.SignURL(ctx, u)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	assert.Len(t, f.svc.Batches(mock.RouteRead), 2)
}

func TestSignMany_WriteRouteIsNeverCached(t *testing.T) {
	f := newFixture(t, nil)
	u := "https://x.storage.domain/upload.tif"
	ctx := context.Background()

	_, err := f.client.SignURL(ctx, u)
	require.NoError(t, err)
	require.Equal(t, 1, f.client.Cache().Len())

	for i := 0; i < 2; i++ {
		signed, err := f.client.SignURLPut(ctx, u)
		require.NoError(t, err)
		assert.True(t, IsSigned(signed))
	}
	assert.Len(t, f.svc.Batches(mock.RouteWrite), 2, "write signatures always hit the service")
	assert.Equal(t, 1, f.client.Cache().Len())
}

func TestSignMany_Idempotence(t *testing.T) {
	f := newFixture(t, nil)
	signed := mock.SignedURL("https://x.storage.domain/a.tif", 7)

	got, err := f.client.SignURL(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, signed, got)
	assert.Empty(t, f.svc.Batches(mock.RouteRead))
}

func TestSignMany_ProtocolMismatch(t *testing.T) {
	f := newFixture(t, func(cfg *mock.SigningServiceConfig) { cfg.OmitHrefs = 1 })
	urls := []string{"https://x.storage.domain/a.tif", "https://x.storage.domain/b.tif"}

	_, err := f.client.SignMany(context.Background(), urls, RouteRead)
	require.Error(t, err)

	var mismatch *ProtocolMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, RouteRead, mismatch.Route)
	assert.Equal(t, []string{urls[0]}, mismatch.Missing)
	assert.Contains(t, err.Error(), urls[0])
	assert.Len(t, f.svc.Batches(mock.RouteRead), 1, "mismatches are not retried")
	assert.Zero(t, f.client.Cache().Len())
}

func TestSignMany_StatusError(t *testing.T) {
	f := newFixture(t, func(cfg *mock.SigningServiceConfig) { cfg.SignStatus = http.StatusInternalServerError })

	_, err := f.client.SignURL(context.Background(), "https://x.storage.domain/a.tif")
	require.Error(t, err)

	var statusErr *retryhttp.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Len(t, f.svc.Batches(mock.RouteRead), 1, "POST is not retried by default")
}

func TestSignMany_RequestShape(t *testing.T) {
	svcAuth := auth.APIKeyProvider{Key: credentials.APIKey{AccessKey: "ak", SecretKey: "sk"}}
	f := newFixture(t, func(cfg *mock.SigningServiceConfig) { cfg.RequireAuth = true },
		WithDuration(10*time.Minute))
	f.svc.AddAPIKey("ak", "sk", "test")
	f.client.auth = svcAuth

	_, err := f.client.SignURL(context.Background(), "https://x.storage.domain/a.tif")
	require.NoError(t, err)

	batches := f.svc.Batches(mock.RouteRead)
	require.Len(t, batches, 1)
	assert.Equal(t, 600, batches[0].DurationSeconds)
	assert.Equal(t, "ak", batches[0].Headers.Get("access-key"))
	_, err = uuid.Parse(batches[0].RequestID)
	assert.NoError(t, err)
}

func TestSignMany_ZonelessExpiry(t *testing.T) {
	f := newFixture(t, func(cfg *mock.SigningServiceConfig) {
		cfg.ExpiryLayout = "2006-01-02T15:04:05.000000"
	})
	u := "https://x.storage.domain/a.tif"

	_, err := f.client.SignURL(context.Background(), u)
	require.NoError(t, err)

	entry, ok := f.client.Cache().Get(u)
	require.True(t, ok)
	assert.True(t, entry.Expiry.Equal(now.Add(2*time.Hour)), "got %s", entry.Expiry)
}
