package oauth

import (
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultClientID is the public client registered for tld.
	DefaultClientID = "gdal"

	// DeviceCodeGrantType is the grant_type used when polling a device challenge.
	DeviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"

	// DefaultDeviceInterval is used when the server omits the polling interval.
	DefaultDeviceInterval = 5
)

// DefaultScopes requests an ID token and an offline refresh token.
var DefaultScopes = []string{"openid", "offline_access"}

// Token is a token endpoint success response.
type Token struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type,omitempty"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
}

// ExpiresAt returns when the access token expires given when it was issued.
func (t *Token) ExpiresAt(issuedAt time.Time) time.Time {
	return issuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// RemainingTTL returns the access token lifetime left at now.
func (t *Token) RemainingTTL(issuedAt, now time.Time) time.Duration {
	return t.ExpiresAt(issuedAt).Sub(now)
}

// NeedsRefresh reports whether less than margin of the token lifetime is left.
// A token without a positive lifetime always needs a refresh.
func (t *Token) NeedsRefresh(issuedAt, now time.Time, margin time.Duration) bool {
	if t.ExpiresIn <= 0 {
		return true
	}
	return t.RemainingTTL(issuedAt, now) < margin
}

// ToOAuth2Token converts the Token to an oauth2.Token for compatibility with golang.org/x/oauth2.
func (t *Token) ToOAuth2Token(issuedAt time.Time) *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    int64(t.ExpiresIn),
	}
	if t.ExpiresIn > 0 {
		token.Expiry = t.ExpiresAt(issuedAt)
	}
	if t.RefreshExpiresIn > 0 {
		token = token.WithExtra(map[string]interface{}{
			"refresh_expires_in": t.RefreshExpiresIn,
		})
	}
	return token
}

// DeviceChallenge is the device authorization response shown to the user.
type DeviceChallenge struct {
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	VerificationURI         string `json:"verification_uri"`
	UserCode                string `json:"user_code"`
	DeviceCode              string `json:"device_code"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval,omitempty"`
}

// ExpiresInDuration returns ExpiresIn as a duration.
func (c *DeviceChallenge) ExpiresInDuration() time.Duration {
	return time.Duration(c.ExpiresIn) * time.Second
}

// IntervalDuration returns the polling interval as a duration.
func (c *DeviceChallenge) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// URI returns the best URI to present to the user.
func (c *DeviceChallenge) URI() string {
	if c.VerificationURIComplete != "" {
		return c.VerificationURIComplete
	}
	return c.VerificationURI
}

// UserInfo holds the claims returned by the userinfo endpoint.
type UserInfo struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email,omitempty"`
	Name              string `json:"name,omitempty"`
}
