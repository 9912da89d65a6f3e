package signing

import (
	"fmt"
	"strings"
)

// ProtocolMismatchError reports a batch response that does not cover every
// requested URL. It is never retried.
type ProtocolMismatchError struct {
	Route   Route
	Missing []string
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("signing service response on %s is missing %d requested URL(s): %s",
		e.Route, len(e.Missing), strings.Join(e.Missing, ", "))
}
