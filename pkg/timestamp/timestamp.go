// Package timestamp normalizes source timestamps into the single wire format
// used by every atomic record: microsecond precision UTC with a literal Z,
// for example 2021-01-01T00:00:00.123457Z.
//
// Inputs are either Unix epoch seconds (any integer or float type, or a
// json.Number) in the range [0, MaxEpoch], or a date/time string in one of
// the common ISO-8601 / RFC layouts. Strings without a zone are read as UTC;
// strings with a zone are converted to UTC.
package timestamp

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Layout is the canonical rendering of a normalized timestamp.
const Layout = "2006-01-02T15:04:05.000000Z"

// MaxEpoch is 9999-12-31T23:59:59Z, the last second with a four digit year.
const MaxEpoch = 253402300799

var (
	ErrOutOfRange      = errors.New("timestamp out of range")
	ErrInvalidFormat   = errors.New("invalid timestamp string format")
	ErrUnsupportedType = errors.New("unsupported timestamp type")
)

// layouts are tried in order; the first successful parse wins.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999 -07:00",
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006/01/02 15:04:05.999999999Z07:00",
	"2006/01/02 15:04:05.999999999",
	"2006/01/02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.RFC822Z,
	time.RFC822,
	time.ANSIC,
}

// Normalize converts an epoch number or date/time string into Layout.
func Normalize(input any) (string, error) {
	t, err := Parse(input)
	if err != nil {
		return "", err
	}
	return Format(t), nil
}

// Format renders t in Layout, rounded to the microsecond.
func Format(t time.Time) string {
	return t.UTC().Round(time.Microsecond).Format(Layout)
}

// Parse converts an epoch number or date/time string into a UTC time.
func Parse(input any) (time.Time, error) {
	switch v := input.(type) {
	case string:
		return parseString(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFormat, v.String())
		}
		return fromEpoch(f)
	case float64:
		return fromEpoch(v)
	case float32:
		return fromEpoch(float64(v))
	case int:
		return fromEpochInt(int64(v))
	case int8:
		return fromEpochInt(int64(v))
	case int16:
		return fromEpochInt(int64(v))
	case int32:
		return fromEpochInt(int64(v))
	case int64:
		return fromEpochInt(v)
	case uint:
		return fromEpochUint(uint64(v))
	case uint8:
		return fromEpochUint(uint64(v))
	case uint16:
		return fromEpochUint(uint64(v))
	case uint32:
		return fromEpochUint(uint64(v))
	case uint64:
		return fromEpochUint(v)
	default:
		return time.Time{}, fmt.Errorf("%w: %T", ErrUnsupportedType, input)
	}
}

func fromEpochInt(sec int64) (time.Time, error) {
	if sec < 0 || sec > MaxEpoch {
		return time.Time{}, fmt.Errorf("%w: %d", ErrOutOfRange, sec)
	}
	return time.Unix(sec, 0).UTC(), nil
}

func fromEpochUint(sec uint64) (time.Time, error) {
	if sec > MaxEpoch {
		return time.Time{}, fmt.Errorf("%w: %d", ErrOutOfRange, sec)
	}
	return time.Unix(int64(sec), 0).UTC(), nil
}

func fromEpoch(f float64) (time.Time, error) {
	if math.IsNaN(f) || f < 0 || f > MaxEpoch {
		return time.Time{}, fmt.Errorf("%w: %v", ErrOutOfRange, f)
	}

	sec, frac := math.Modf(f)
	micros := int64(math.Round(frac * 1e6))
	if micros >= 1e6 {
		sec++
		micros -= 1e6
	}
	return time.Unix(int64(sec), micros*int64(time.Microsecond)).UTC(), nil
}

func parseString(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", ErrInvalidFormat)
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
}
