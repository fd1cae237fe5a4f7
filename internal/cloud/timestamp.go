package cloud

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp wraps time.Time to accept the cloud's ISO 8601 timestamps,
// which appear both with and without fractional seconds.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON parses an RFC 3339 timestamp. Empty and null values
// leave the zero time in place.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("cloud: invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MarshalJSON renders the timestamp in RFC 3339 UTC form.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}
