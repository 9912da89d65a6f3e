// Package session manages the OAuth2 session used to authenticate against
// the signing service.
//
// A Manager owns the authoritative in-memory token and its issuance time.
// AccessToken returns a usable bearer value, loading a persisted token on
// first use, refreshing it when less than the refresh margin is left and
// falling back to a new device authorization grant when the refresh is
// rejected. At most one refresh or bootstrap runs at a time; concurrent
// callers wait for it and share its result.
//
// Every accepted token is written to the credential store together with the
// time it was accepted. Failing to persist is logged and otherwise ignored.
//
// The device grant blocks until the user approves the request, the
// challenge expires (ExpiredAuthLinkError) or the context is cancelled.
package session
