package auth

import "time"

// Method kinds reported in MethodStatus.Kind.
const (
	MethodNone   = "none"
	MethodAPIKey = "api_key"
	MethodOAuth2 = "oauth2"
)

// StatusResponse represents the authentication state against one signing
// service.
type StatusResponse struct {
	Endpoint string       `json:"endpoint" yaml:"endpoint"`
	Method   MethodStatus `json:"method" yaml:"method"`

	// Token is the stored OAuth2 token, omitted when another method signs
	// requests.
	Token *TokenStatus `json:"token,omitempty" yaml:"token,omitempty"`
}

// MethodStatus describes the credentials attached to signing requests.
type MethodStatus struct {
	Kind      string `json:"kind" yaml:"kind"`
	AccessKey string `json:"access_key,omitempty" yaml:"access_key,omitempty"`
	Source    string `json:"source,omitempty" yaml:"source,omitempty"`
}

// TokenStatus describes the stored OAuth2 token.
type TokenStatus struct {
	// State is one of: "uninitialized", "valid", "near_expiry",
	// "refreshing", "reauthenticating", "challenge_expired"
	State string `json:"state" yaml:"state"`

	IssuedAt  *time.Time `json:"issued_at,omitempty" yaml:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`

	RefreshAvailable bool `json:"refresh_available" yaml:"refresh_available"`
}

// Authenticated reports whether signing can proceed without a device
// authorization prompt.
func (s StatusResponse) Authenticated() bool {
	switch s.Method.Kind {
	case MethodNone, MethodAPIKey:
		return true
	}
	if s.Token == nil {
		return false
	}
	return s.Token.State == "valid" || (s.Token.State == "near_expiry" && s.Token.RefreshAvailable)
}
