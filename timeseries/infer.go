package timeseries

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownPayloadType is returned when a leaf value has no storable shape.
var ErrUnknownPayloadType = errors.New("unknown payload type")

// Infer classifies a decoded JSON leaf into a Value.
//
// Booleans are checked first, then numbers (any Go integer or float type, or
// json.Number), then strings. A two-element list whose elements are numbers
// or numeric strings is a geographic point. Anything else (maps, nil, lists
// of other lengths) is ErrUnknownPayloadType.
func Infer(raw any) (Value, error) {
	if b, ok := raw.(bool); ok {
		return FlagValue(b), nil
	}
	if f, ok := toFloat(raw); ok {
		return NumberValue(f), nil
	}
	if s, ok := raw.(string); ok {
		return TextValue(s), nil
	}
	if p, ok := pairFrom(raw); ok {
		return PointValue(p.Lat, p.Lon), nil
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnknownPayloadType, raw)
}

// InferType returns only the data type Infer would assign to raw.
func InferType(raw any) (DataType, error) {
	v, err := Infer(raw)
	if err != nil {
		return "", err
	}
	return v.DataType(), nil
}

// toFloat accepts Go numeric types and json.Number, but never bool.
func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// numericOrNumericString accepts a number, or a string that parses as one.
func numericOrNumericString(raw any) (float64, bool) {
	if _, isBool := raw.(bool); isBool {
		return 0, false
	}
	if f, ok := toFloat(raw); ok {
		return f, true
	}
	if s, ok := raw.(string); ok {
		return parseFinite(s)
	}
	return 0, false
}

// pairFrom reads a two-element list of numeric-or-numeric-string values.
func pairFrom(raw any) (Point, bool) {
	var elems []any
	switch l := raw.(type) {
	case []any:
		elems = l
	case []float64:
		elems = []any{}
		for _, f := range l {
			elems = append(elems, f)
		}
	case [2]float64:
		elems = []any{l[0], l[1]}
	case []string:
		elems = []any{}
		for _, s := range l {
			elems = append(elems, s)
		}
	default:
		return Point{}, false
	}

	if len(elems) != 2 {
		return Point{}, false
	}
	lat, ok := numericOrNumericString(elems[0])
	if !ok {
		return Point{}, false
	}
	lon, ok := numericOrNumericString(elems[1])
	if !ok {
		return Point{}, false
	}
	return Point{Lat: lat, Lon: lon}, true
}
