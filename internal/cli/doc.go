// Package cli holds the terminal side of the tld command: user facing error
// types and their exit codes, output rendering (tables, JSON, YAML), the
// device authorization presenter and interactive prompts.
//
// Commands in cmd/ build on these helpers so that every command reports
// failures, renders lists and asks for confirmation the same way.
package cli
