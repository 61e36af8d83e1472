package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// secondsThreshold values below it are seconds, values at or above are milliseconds.
const secondsThreshold = 1e12

// NormalizeTimestamp converts a seconds-or-milliseconds epoch value into milliseconds.
func NormalizeTimestamp(v float64) int64 {
	if v < secondsThreshold {
		return int64(math.Round(v * 1000))
	}
	return int64(math.Round(v))
}

// Timestamp epoch time as it arrives on the wire: seconds or milliseconds,
// as a JSON number, a numeric string or an RFC 3339 string.
type Timestamp struct {
	ms    int64
	valid bool
}

// NewTimestamp returns a valid timestamp for the given ms epoch value.
func NewTimestamp(ms int64) Timestamp {
	return Timestamp{ms: ms, valid: true}
}

// Valid reports whether a timestamp was present.
func (t Timestamp) Valid() bool {
	return t.valid
}

// Millis returns the normalized ms epoch value, zero when absent.
func (t Timestamp) Millis() int64 {
	return t.ms
}

// OrElse returns the timestamp or the fallback time when absent.
func (t Timestamp) OrElse(fallback time.Time) int64 {
	if t.valid {
		return t.ms
	}
	return fallback.UnixMilli()
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(err, "decode timestamp string")
		}
		if s == "" {
			*t = Timestamp{}
			return nil
		}
		ms, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		*t = NewTimestamp(ms)
		return nil
	}

	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return errors.Wrap(err, "decode timestamp number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.Errorf("timestamp is not finite: %s", data)
	}
	*t = NewTimestamp(NormalizeTimestamp(v))
	return nil
}

// MarshalJSON implements json.Marshaler, emitting milliseconds.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.ms, 10)), nil
}

// ParseTimestamp parses a numeric or RFC 3339 timestamp into ms since epoch.
func ParseTimestamp(s string) (int64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, errors.Errorf("timestamp is not finite: %s", s)
		}
		return NormalizeTimestamp(v), nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, errors.Wrapf(err, "unsupported timestamp %q", s)
	}
	return parsed.UnixMilli(), nil
}
