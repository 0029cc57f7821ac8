package gateway

import (
	"encoding/json"
	"time"
)

// jsonTime accepts an RFC3339 timestamp on the wire, the format the original
// implementation's JSON encoder produces for every datetime field.
type jsonTime struct {
	time.Time
}

func (t *jsonTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func timeOrNow(t *jsonTime) time.Time {
	if t == nil || t.Time.IsZero() {
		return time.Now()
	}
	return t.Time
}
