// Package auth provides the authentication status document printed by
// "tld auth status" in the JSON and YAML output formats.
//
// The types are stable so scripts can check whether signing will prompt
// for a device authorization before running a batch job.
package auth
