// Package oauth implements the client side of the OAuth2 protocol used by
// the signing service's identity provider.
//
// The token endpoint is discovered from the signing service's OpenAPI
// document (the password flow tokenUrl of its OAuth2PasswordBearer
// security scheme). From the token endpoint the package derives:
//
//   - the device authorization endpoint: {token endpoint parent}/auth/device
//   - the userinfo endpoint: the token endpoint with /token replaced by /userinfo
//
// The Client performs single protocol exchanges only. Polling cadence,
// refresh policy and persistence are decided by the caller (see the session
// package).
package oauth
