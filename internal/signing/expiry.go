package signing

import (
	"encoding/json"
	"fmt"
	"time"
)

// expiryLayouts are tried in order. Timestamps without a zone are UTC.
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is an ISO-8601 time as returned by the signing service.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expiry must be a string: %w", err)
	}
	parsed, err := ParseExpiry(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseExpiry parses an RFC 3339 or zone-less ISO-8601 timestamp.
func ParseExpiry(s string) (time.Time, error) {
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized expiry timestamp %q", s)
}
