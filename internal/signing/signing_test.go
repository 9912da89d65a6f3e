package signing

import (
	"encoding/json"
	"testing"
	"time"

	"tld/internal/testing/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInDomain(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://x.meso.umontpellier.fr/a.tif", true},
		{"https://meso.umontpellier.fr/a.tif", true},
		{"https://X.MESO.umontpellier.fr/a.tif", true},
		{"https://x.meso.umontpellier.fr:9000/a.tif", true},
		{"https://x.meso.umontpellier.fr/", true},
		{"https://notmeso.umontpellier.fr/a.tif", false},
		{"https://meso.umontpellier.fr.evil.org/a.tif", false},
		{"https://other.org/b.tif", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, InDomain(tt.url, "meso.umontpellier.fr"))
		})
	}
}

func TestIsSigned(t *testing.T) {
	assert.True(t, IsSigned("https://x/a.tif?X-Amz-Signature=abc"))
	assert.True(t, IsSigned("https://x/a.tif?foo=1&X-Amz-Credential=abc"))
	assert.True(t, IsSigned("https://x/a.tif?X-Amz-Security-Token=t/"))
	assert.False(t, IsSigned("https://x/a.tif"))
	assert.False(t, IsSigned("https://x/a.tif?x-amz-signature=abc"))
}

func TestCache_IsValidBoundary(t *testing.T) {
	clk := mock.NewClock(now)
	c := NewCache(30*time.Minute, clk)

	c.Put(Entry{URL: "u", SignedURL: "s", Expiry: now.Add(30 * time.Minute)})
	_, ok := c.Lookup("u")
	assert.False(t, ok, "exactly the margin left is stale")

	c.Put(Entry{URL: "u", SignedURL: "s2", Expiry: now.Add(30*time.Minute + time.Second)})
	got, ok := c.Lookup("u")
	require.True(t, ok)
	assert.Equal(t, "s2", got)

	clk.Advance(time.Second)
	_, ok = c.Lookup("u")
	assert.False(t, ok)

	_, ok = c.Get("u")
	assert.True(t, ok, "stale entries are kept until overwritten")
}

func TestParseExpiry(t *testing.T) {
	want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"2025-06-01T10:00:00Z",
		"2025-06-01T12:00:00+02:00",
		"2025-06-01T10:00:00",
		"2025-06-01T10:00:00.000000",
		"2025-06-01 10:00:00",
	} {
		got, err := ParseExpiry(s)
		require.NoError(t, err, s)
		assert.True(t, got.Equal(want), "%s parsed as %s", s, got)
	}

	_, err := ParseExpiry("tomorrow")
	assert.Error(t, err)

	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`12`), &ts))
}

func TestProtocolMismatchError(t *testing.T) {
	err := &ProtocolMismatchError{Route: RouteWrite, Missing: []string{"a", "b"}}
	assert.Equal(t, "signing service response on sign_urls_put is missing 2 requested URL(s): a, b", err.Error())
}
