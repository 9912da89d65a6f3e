package config

import (
	"fmt"
	"strings"
)

// ConfigurationError reports an invalid setting detected before any
// network activity takes place.
type ConfigurationError struct {
	Field  string
	Value  interface{}
	Reason string
	// Source tells where the value came from: "default", "file", "env", "flag" or "option".
	Source string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid configuration: %s", e.Field)
	if e.Value != nil {
		fmt.Fprintf(&b, "=%v", e.Value)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	if e.Source != "" {
		fmt.Fprintf(&b, " (from %s)", e.Source)
	}
	return b.String()
}

// Is allows errors.Is() to match any ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)
	return ok
}

// ValidationErrors collects every problem found by Validate.
type ValidationErrors []*ConfigurationError

// Error implements the error interface for multiple validation errors.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	messages := make([]string, 0, len(ve))
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("%d configuration errors: %s", len(ve), strings.Join(messages, "; "))
}

// Unwrap exposes the individual errors to errors.As.
func (ve ValidationErrors) Unwrap() []error {
	out := make([]error, len(ve))
	for i, err := range ve {
		out[i] = err
	}
	return out
}

func (ve *ValidationErrors) add(field string, value interface{}, reason string) {
	*ve = append(*ve, &ConfigurationError{Field: field, Value: value, Reason: reason})
}
