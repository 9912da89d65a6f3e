package credentials

import (
	"time"

	"tld/pkg/oauth"
)

// Record is a persistable credential. Kind determines the file name.
type Record interface {
	Kind() string
}

// Kinds of records managed by the store.
const (
	KindJWT    = "jwt"
	KindAPIKey = "apikey"
)

// APIKey is a static access/secret key pair issued by the signing service.
type APIKey struct {
	AccessKey string `json:"access-key"`
	SecretKey string `json:"secret-key"`
}

// Kind implements Record.
func (APIKey) Kind() string { return KindAPIKey }

// Valid reports whether both halves of the key are present.
func (k APIKey) Valid() bool {
	return k.AccessKey != "" && k.SecretKey != ""
}

// Headers returns the HTTP headers authenticating with this key.
func (k APIKey) Headers() map[string]string {
	return map[string]string{
		"access-key": k.AccessKey,
		"secret-key": k.SecretKey,
	}
}

// JWT is the persisted form of an OAuth2 token together with the time it
// was accepted.
type JWT struct {
	AccessToken      string    `json:"access_token"`
	ExpiresIn        int       `json:"expires_in"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresIn int       `json:"refresh_expires_in"`
	TokenType        string    `json:"token_type"`
	IssuedAt         time.Time `json:"issued_at,omitempty"`
}

// Kind implements Record.
func (JWT) Kind() string { return KindJWT }

// NewJWT builds the persisted record for a token accepted at issuedAt.
func NewJWT(token *oauth.Token, issuedAt time.Time) *JWT {
	return &JWT{
		AccessToken:      token.AccessToken,
		ExpiresIn:        token.ExpiresIn,
		RefreshToken:     token.RefreshToken,
		RefreshExpiresIn: token.RefreshExpiresIn,
		TokenType:        token.TokenType,
		IssuedAt:         issuedAt.UTC(),
	}
}

// Token converts the record back into its wire representation.
func (j *JWT) Token() *oauth.Token {
	return &oauth.Token{
		AccessToken:      j.AccessToken,
		ExpiresIn:        j.ExpiresIn,
		RefreshToken:     j.RefreshToken,
		RefreshExpiresIn: j.RefreshExpiresIn,
		TokenType:        j.TokenType,
	}
}
