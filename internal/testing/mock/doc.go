// Package mock provides test doubles for tld components.
//
// Clock is a controllable clock whose Sleep advances time instead of
// blocking, so device-grant polling and expiry logic run instantly.
//
// SigningService is an httptest server faking the signing service and the
// OpenID provider it relies on:
//
//   - GET  /openapi.json advertising the token URL
//   - POST .../auth/device and .../token for the device authorization grant
//     and refresh grants, GET .../userinfo
//   - POST /sign_urls and /sign_urls_put answering batch signing requests
//   - GET  /list_api_keys_with_metadata, /create_api_key, /revoke_api_key
//   - PUT  on any other path, accepted when the URL carries a signature
//
// Every request is counted per path and signing batches are recorded, so
// tests can assert on the exact traffic a component produced.
package mock
