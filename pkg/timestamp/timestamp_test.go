package timestamp

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var layoutPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{6}Z$`)

func TestNormalize_Epoch(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"zero", 0, "1970-01-01T00:00:00.000000Z"},
		{"int seconds", 1609459200, "2021-01-01T00:00:00.000000Z"},
		{"int64 seconds", int64(1609459200), "2021-01-01T00:00:00.000000Z"},
		{"uint32 seconds", uint32(1609459200), "2021-01-01T00:00:00.000000Z"},
		{"float microsecond rounding", 1609459200.123456789, "2021-01-01T00:00:00.123457Z"},
		{"float half second", 1609459200.5, "2021-01-01T00:00:00.500000Z"},
		{"json number", json.Number("1609459200.25"), "2021-01-01T00:00:00.250000Z"},
		{"upper bound inclusive", MaxEpoch, "9999-12-31T23:59:59.000000Z"},
		{"upper bound float", float64(MaxEpoch), "9999-12-31T23:59:59.000000Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.Regexp(t, layoutPattern, got)
		})
	}
}

func TestNormalize_String(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"rfc3339 zulu", "2022-01-01T12:34:56Z", "2022-01-01T12:34:56.000000Z"},
		{"rfc3339 nanos", "2022-01-01T12:34:56.123456789Z", "2022-01-01T12:34:56.123457Z"},
		{"offset converted to utc", "2022-01-01T12:34:56+01:00", "2022-01-01T11:34:56.000000Z"},
		{"compact offset", "2022-01-01T12:34:56.5+0000", "2022-01-01T12:34:56.500000Z"},
		{"no zone", "2022-01-01T12:34:56", "2022-01-01T12:34:56.000000Z"},
		{"space separated", "2022-01-01 12:34:56", "2022-01-01T12:34:56.000000Z"},
		{"date only", "2022-01-01", "2022-01-01T00:00:00.000000Z"},
		{"spaced offset", "2022-01-01 12:34:56 +00:00", "2022-01-01T12:34:56.000000Z"},
		{"spaced compact offset", "2022-01-01 12:34:56.25 -0130", "2022-01-01T14:04:56.250000Z"},
		{"slash date", "2022/01/02", "2022-01-02T00:00:00.000000Z"},
		{"slash date time", "2022/01/02 03:04:05", "2022-01-02T03:04:05.000000Z"},
		{"slash date time with offset", "2022/01/02 03:04:05+02:00", "2022-01-02T01:04:05.000000Z"},
		{"rfc1123", "Sat, 01 Jan 2022 12:34:56 GMT", "2022-01-01T12:34:56.000000Z"},
		{"surrounding space", "  2022-01-01T12:34:56Z ", "2022-01-01T12:34:56.000000Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalize_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected error
	}{
		{"past upper bound", 253402300800, ErrOutOfRange},
		{"past upper bound float", 253402300800.0, ErrOutOfRange},
		{"negative", -1, ErrOutOfRange},
		{"negative float", -0.5, ErrOutOfRange},
		{"invalid string", "invalid_date_string", ErrInvalidFormat},
		{"empty string", "", ErrInvalidFormat},
		{"map", map[string]any{}, ErrUnsupportedType},
		{"nil", nil, ErrUnsupportedType},
		{"bool", true, ErrUnsupportedType},
		{"slice", []any{1}, ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.input)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestNormalize_TotalOverEpochRange(t *testing.T) {
	for _, sec := range []int64{0, 1, 86399, 951782400, 1700000000, MaxEpoch - 1, MaxEpoch} {
		got, err := Normalize(sec)
		require.NoError(t, err, "epoch %d", sec)
		assert.Regexp(t, layoutPattern, got)

		back, err := time.Parse(Layout, got)
		require.NoError(t, err)
		assert.Equal(t, sec, back.Unix())
	}
}

func TestFormat_RoundsToMicrosecond(t *testing.T) {
	ts := time.Date(2023, 6, 1, 8, 0, 0, 999999600, time.FixedZone("X", 3600))
	assert.Equal(t, "2023-06-01T07:00:01.000000Z", Format(ts))
}
