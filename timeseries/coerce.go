package timeseries

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrUnknownDataType       = errors.New("unknown data type")
	ErrInvalidBooleanValue   = errors.New("invalid boolean value")
	ErrInvalidNumberValue    = errors.New("invalid number value")
	ErrInvalidGeographyValue = errors.New("invalid geography value")
	ErrInvalidLatitude       = errors.New("invalid latitude value")
	ErrInvalidLongitude      = errors.New("invalid longitude value")
)

// Coerce converts v into the variant dt demands.
//
//   - boolean: a flag, or the case-insensitive strings "true"/"false"
//   - number: a number, or a string that parses as a float
//   - string: text unchanged; numbers and flags are rendered as text
//   - geography: a point, or a "lat,lon" string, with both ranges validated
func Coerce(dt DataType, v Value) (Value, error) {
	switch dt {
	case TypeBoolean:
		return coerceBoolean(v)
	case TypeNumber:
		return coerceNumber(v)
	case TypeString:
		return coerceString(v)
	case TypeGeography:
		p, err := coercePoint(v)
		if err != nil {
			return Value{}, err
		}
		return PointValue(p.Lat, p.Lon), nil
	default:
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownDataType, string(dt))
	}
}

func coerceBoolean(v Value) (Value, error) {
	switch v.kind {
	case KindFlag:
		return v, nil
	case KindText:
		switch strings.ToLower(v.text) {
		case "true":
			return FlagValue(true), nil
		case "false":
			return FlagValue(false), nil
		}
	}
	return Value{}, fmt.Errorf("%w: %s", ErrInvalidBooleanValue, v.String())
}

// coerceNumber rejects NaN and infinities, which no JSON encoding or numeric
// column can carry.
func coerceNumber(v Value) (Value, error) {
	switch v.kind {
	case KindNumber:
		if isFinite(v.num) {
			return v, nil
		}
	case KindText:
		if f, ok := parseFinite(v.text); ok {
			return NumberValue(f), nil
		}
	}
	return Value{}, fmt.Errorf("%w: %s", ErrInvalidNumberValue, v.String())
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// parseFinite parses s as a finite float.
func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !isFinite(f) {
		return 0, false
	}
	return f, true
}

func coerceString(v Value) (Value, error) {
	switch v.kind {
	case KindText:
		return v, nil
	case KindNumber, KindFlag:
		return TextValue(v.String()), nil
	default:
		return Value{}, fmt.Errorf("%w: %s cannot be stored as string", ErrUnknownPayloadType, v.kind)
	}
}

func coercePoint(v Value) (Point, error) {
	switch v.kind {
	case KindPoint:
		return ValidatePoint(v.point.Lat, v.point.Lon)
	case KindText:
		return ParsePoint(v.text)
	default:
		return Point{}, fmt.Errorf("%w: invalid input type or format: %s", ErrInvalidGeographyValue, v.String())
	}
}

// ParsePoint parses a "lat,lon" string and validates both ranges.
func ParsePoint(s string) (Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidGeographyValue, s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidGeographyValue, s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidGeographyValue, s)
	}
	return ValidatePoint(lat, lon)
}

// ValidatePoint checks latitude in [-90, 90] and longitude in [-180, 180].
func ValidatePoint(lat, lon float64) (Point, error) {
	if !(lat >= -90 && lat <= 90) {
		return Point{}, fmt.Errorf("%w: %s", ErrInvalidLatitude, formatFloat(lat))
	}
	if !(lon >= -180 && lon <= 180) {
		return Point{}, fmt.Errorf("%w: %s", ErrInvalidLongitude, formatFloat(lon))
	}
	return Point{Lat: lat, Lon: lon}, nil
}

// WKT renders p as an extended well-known-text point, longitude first.
func (p Point) WKT() string {
	return "SRID=4326;POINT(" + formatFloat(p.Lon) + " " + formatFloat(p.Lat) + ")"
}

// ParseGeoPoint coerces any accepted geography input straight to WKT.
// It accepts a "lat,lon" string or a two-element list of numbers or numeric
// strings.
func ParseGeoPoint(raw any) (string, error) {
	var v Value
	switch r := raw.(type) {
	case string:
		v = TextValue(r)
	default:
		p, ok := pairFrom(raw)
		if !ok {
			return "", fmt.Errorf("%w: invalid input type or format: %v", ErrInvalidGeographyValue, raw)
		}
		v = PointValue(p.Lat, p.Lon)
	}

	p, err := coercePoint(v)
	if err != nil {
		return "", err
	}
	return p.WKT(), nil
}
