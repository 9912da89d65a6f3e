// Package app wires the signing client together for the tld command.
//
// NewApplication resolves config.Settings (defaults, config.yaml, TLD_*
// environment variables, then command line flags) and builds the services
// in dependency order:
//
//	credentials.Store -> retryhttp.Client -> oauth.Client -> session.Manager
//	                                      -> auth.Selector -> signing.Client
//	                                      -> dispatch.Dispatcher, transfer.Pusher, apikeys.Client
//
// The oauth.Client talks through the retrying client's StandardClient so
// that identity provider calls share the retry policy. The auth.Selector
// chooses between no authentication, an API key and the OAuth2 session on
// first use.
package app
