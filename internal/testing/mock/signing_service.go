package mock

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	tokenPath    = "/realms/tld/protocol/openid-connect/token"
	devicePath   = "/realms/tld/protocol/openid-connect/auth/device"
	userinfoPath = "/realms/tld/protocol/openid-connect/userinfo"

	// RouteRead and RouteWrite are the batch signing routes.
	RouteRead  = "sign_urls"
	RouteWrite = "sign_urls_put"
)

// SigningServiceConfig configures the mock signing service behavior.
type SigningServiceConfig struct {
	// TokenExpiresIn is the expires_in of issued access tokens, in seconds.
	// Zero issues tokens that must be refreshed immediately.
	TokenExpiresIn int

	// DeviceExpiresIn and DeviceInterval describe the device challenge.
	DeviceExpiresIn int
	DeviceInterval  int

	// ApproveAfter is the number of pending polls answered before the device
	// challenge is approved. Negative values never approve.
	ApproveAfter int

	// RejectRefresh answers every refresh_token grant with 400.
	RejectRefresh bool

	// RequireAuth rejects signing and API key calls without a valid bearer
	// token or API key.
	RequireAuth bool

	// SignedTTL is added to Clock.Now() to compute the batch expiry.
	SignedTTL time.Duration

	// ExpiryLayout formats the batch expiry. Defaults to time.RFC3339.
	ExpiryLayout string

	// OmitHrefs drops this many URLs from every batch response.
	OmitHrefs int

	// SignStatus, when non-zero, is returned by the signing routes.
	SignStatus int

	// Username is returned as preferred_username by the userinfo endpoint.
	Username string

	// Clock is used for expiry computation. Defaults to RealClock.
	Clock interface{ Now() time.Time }
}

// DefaultSigningServiceConfig returns a service that approves the first
// device poll and issues hour long tokens.
func DefaultSigningServiceConfig() SigningServiceConfig {
	return SigningServiceConfig{
		TokenExpiresIn:  3600,
		DeviceExpiresIn: 600,
		DeviceInterval:  5,
		SignedTTL:       2 * time.Hour,
		Username:        "jdoe",
	}
}

// SigningBatch is one request received on a signing route.
type SigningBatch struct {
	Route           string
	URLs            []string
	DurationSeconds int
	RequestID       string
	Headers         http.Header
}

// APIKeyMetadata is one entry of list_api_keys_with_metadata.
type APIKeyMetadata struct {
	AccessKey   string `json:"access-key"`
	Description string `json:"description"`
	Created     string `json:"created"`
}

type issuedKey struct {
	APIKeyMetadata
	secret string
}

// SigningService is an httptest fake of the signing service together with
// the OpenID provider it delegates authentication to.
type SigningService struct {
	config SigningServiceConfig
	server *httptest.Server
	clock  interface{ Now() time.Time }

	mu       sync.Mutex
	requests map[string]int
	polls    int
	batches  []SigningBatch
	tokens   map[string]string // access token -> refresh token
	refresh  map[string]bool
	keys     []*issuedKey
	uploads  map[string][]byte
	signSeq  int
}

// NewSigningService starts a mock signing service.
func NewSigningService(config SigningServiceConfig) *SigningService {
	if config.ExpiryLayout == "" {
		config.ExpiryLayout = time.RFC3339
	}
	if config.Username == "" {
		config.Username = "jdoe"
	}
	clock := config.Clock
	if clock == nil {
		clock = RealClock{}
	}

	s := &SigningService{
		config:   config,
		clock:    clock,
		requests: make(map[string]int),
		tokens:   make(map[string]string),
		refresh:  make(map[string]bool),
		uploads:  make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/openapi.json", s.handleOpenAPI)
	mux.HandleFunc(devicePath, s.handleDevice)
	mux.HandleFunc(tokenPath, s.handleToken)
	mux.HandleFunc(userinfoPath, s.handleUserInfo)
	mux.HandleFunc("/"+RouteRead, s.handleSign(RouteRead))
	mux.HandleFunc("/"+RouteWrite, s.handleSign(RouteWrite))
	mux.HandleFunc("/list_api_keys_with_metadata", s.handleListKeys)
	mux.HandleFunc("/create_api_key", s.handleCreateKey)
	mux.HandleFunc("/revoke_api_key", s.handleRevokeKey)
	mux.HandleFunc("/", s.handleObject)

	s.server = httptest.NewServer(s.count(mux))
	return s
}

// Close shuts the server down.
func (s *SigningService) Close() {
	s.server.Close()
}

// URL returns the signing endpoint, with a trailing slash.
func (s *SigningService) URL() string {
	return s.server.URL + "/"
}

// Host returns the host name the service listens on, usable as a storage domain.
func (s *SigningService) Host() string {
	u, _ := url.Parse(s.server.URL)
	return u.Hostname()
}

// TokenURL returns the advertised token endpoint.
func (s *SigningService) TokenURL() string {
	return s.server.URL + tokenPath
}

// Client returns an HTTP client for the service.
func (s *SigningService) Client() *http.Client {
	return s.server.Client()
}

// Requests returns how many requests hit path.
func (s *SigningService) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// Polls returns how many device_code grants were received.
func (s *SigningService) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// Batches returns the signing requests received on route.
func (s *SigningService) Batches(route string) []SigningBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SigningBatch
	for _, b := range s.batches {
		if b.Route == route {
			out = append(out, b)
		}
	}
	return out
}

// Upload returns the body received by a PUT on path.
func (s *SigningService) Upload(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.uploads[path]
	return data, ok
}

// IssueToken registers and returns a valid access/refresh token pair.
func (s *SigningService) IssueToken() (accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked()
}

// AddAPIKey registers a key pair accepted by the service.
func (s *SigningService) AddAPIKey(accessKey, secretKey, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, &issuedKey{
		APIKeyMetadata: APIKeyMetadata{
			AccessKey:   accessKey,
			Description: description,
			Created:     s.clock.Now().UTC().Format(time.RFC3339),
		},
		secret: secretKey,
	})
}

// APIKeys returns the access keys currently registered.
func (s *SigningService) APIKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k.AccessKey)
	}
	return out
}

// SignedURL returns how the service signs raw with sequence number seq.
func SignedURL(raw string, seq int) string {
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sX-Amz-Credential=mock&X-Amz-Signature=sig%d", raw, sep, seq)
}

func (s *SigningService) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *SigningService) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"openapi": "3.1.0",
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"OAuth2PasswordBearer": map[string]interface{}{
					"type": "oauth2",
					"flows": map[string]interface{}{
						"password": map[string]interface{}{
							"tokenUrl": s.TokenURL(),
							"scopes":   map[string]string{},
						},
					},
				},
			},
		},
	})
}

func (s *SigningService) handleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil || r.FormValue("client_id") == "" {
		oauthError(w, "invalid_client", "client_id required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"device_code":               "device-code-1",
		"user_code":                 "ABCD-EFGH",
		"verification_uri":          s.server.URL + "/device",
		"verification_uri_complete": s.server.URL + "/device?user_code=ABCD-EFGH",
		"expires_in":                s.config.DeviceExpiresIn,
		"interval":                  s.config.DeviceInterval,
	})
}

func (s *SigningService) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	switch r.FormValue("grant_type") {
	case "urn:ietf:params:oauth:grant-type:device_code":
		s.mu.Lock()
		s.polls++
		approved := s.config.ApproveAfter >= 0 && s.polls > s.config.ApproveAfter
		s.mu.Unlock()
		if !approved {
			oauthError(w, "authorization_pending", "user has not approved the request yet")
			return
		}
		s.writeToken(w)
	case "refresh_token":
		s.mu.Lock()
		known := s.refresh[r.FormValue("refresh_token")]
		s.mu.Unlock()
		if s.config.RejectRefresh || !known {
			oauthError(w, "invalid_grant", "refresh token not found")
			return
		}
		s.writeToken(w)
	default:
		oauthError(w, "unsupported_grant_type", "grant_type not supported")
	}
}

func (s *SigningService) writeToken(w http.ResponseWriter) {
	s.mu.Lock()
	access, refresh := s.issueLocked()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":       access,
		"refresh_token":      refresh,
		"token_type":         "Bearer",
		"expires_in":         s.config.TokenExpiresIn,
		"refresh_expires_in": 1800,
	})
}

func (s *SigningService) issueLocked() (string, string) {
	access, refresh := randomToken(), randomToken()
	s.tokens[access] = refresh
	s.refresh[refresh] = true
	return access, refresh
}

func (s *SigningService) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	if !s.bearerValid(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sub":                "user-123",
		"preferred_username": s.config.Username,
		"email":              s.config.Username + "@example.com",
	})
}

func (s *SigningService) handleSign(route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.config.RequireAuth && !s.authorized(r) {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}

		var body struct {
			URLs            []string `json:"urls"`
			DurationSeconds int      `json:"duration_seconds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusUnprocessableEntity)
			return
		}

		s.mu.Lock()
		s.batches = append(s.batches, SigningBatch{
			Route:           route,
			URLs:            body.URLs,
			DurationSeconds: body.DurationSeconds,
			RequestID:       r.Header.Get("X-Request-ID"),
			Headers:         r.Header.Clone(),
		})
		hrefs := make(map[string]string, len(body.URLs))
		for i, u := range body.URLs {
			if i < s.config.OmitHrefs {
				continue
			}
			s.signSeq++
			hrefs[u] = SignedURL(u, s.signSeq)
		}
		s.mu.Unlock()

		if s.config.SignStatus != 0 {
			http.Error(w, "signing unavailable", s.config.SignStatus)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"expiry": s.clock.Now().Add(s.config.SignedTTL).UTC().Format(s.config.ExpiryLayout),
			"hrefs":  hrefs,
		})
	}
}

func (s *SigningService) handleListKeys(w http.ResponseWriter, r *http.Request) {
	if s.config.RequireAuth && !s.authorized(r) {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	out := make([]APIKeyMetadata, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k.APIKeyMetadata)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].AccessKey < out[j].AccessKey })
	writeJSON(w, http.StatusOK, out)
}

func (s *SigningService) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	if s.config.RequireAuth && !s.authorized(r) {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	access, secret := "AK"+randomToken()[:14], randomToken()
	s.AddAPIKey(access, secret, r.URL.Query().Get("description"))
	writeJSON(w, http.StatusOK, map[string]string{
		"access-key": access,
		"secret-key": secret,
	})
}

func (s *SigningService) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	if s.config.RequireAuth && !s.authorized(r) {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	accessKey := r.URL.Query().Get("access_key")

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range s.keys {
		if k.AccessKey == accessKey {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
			return
		}
	}
	http.Error(w, "unknown access key", http.StatusNotFound)
}

// handleObject stores PUT bodies sent to presigned URLs.
func (s *SigningService) handleObject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}
	if r.URL.Query().Get("X-Amz-Signature") == "" {
		http.Error(w, "missing signature", http.StatusForbidden)
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.uploads[r.URL.Path] = data
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *SigningService) authorized(r *http.Request) bool {
	if s.bearerValid(r) {
		return true
	}
	access, secret := r.Header.Get("access-key"), r.Header.Get("secret-key")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.AccessKey == access && k.secret == secret {
			return true
		}
	}
	return false
}

func (s *SigningService) bearerValid(r *http.Request) bool {
	token := ExtractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	return ok
}

// ExtractBearerToken extracts a bearer token from an Authorization header.
func ExtractBearerToken(authHeader string) string {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}

func oauthError(w http.ResponseWriter, code, description string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func randomToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Errorf("crypto/rand failed: %w", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// RealClock reads the system time.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time { return time.Now() }
