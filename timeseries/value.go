package timeseries

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	// KindNone is the zero Value: no measurement present.
	KindNone Kind = iota
	KindNumber
	KindText
	KindFlag
	KindPoint
	// KindOther holds a decoded wire value of a shape no variant accepts.
	// It only arises from UnmarshalJSON and never survives Coerce.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindFlag:
		return "flag"
	case KindPoint:
		return "point"
	default:
		return "other"
	}
}

// Point is a WGS-84 latitude/longitude pair.
type Point struct {
	Lat float64
	Lon float64
}

// Value is an immutable measurement value.
type Value struct {
	kind  Kind
	num   float64
	text  string
	flag  bool
	point Point
	other any
}

// NumberValue returns a numeric Value.
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }

// TextValue returns a string Value.
func TextValue(s string) Value { return Value{kind: KindText, text: s} }

// FlagValue returns a boolean Value.
func FlagValue(b bool) Value { return Value{kind: KindFlag, flag: b} }

// PointValue returns a geographic Value. Ranges are not checked here; see Coerce.
func PointValue(lat, lon float64) Value { return Value{kind: KindPoint, point: Point{Lat: lat, Lon: lon}} }

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v holds no measurement.
func (v Value) IsZero() bool { return v.kind == KindNone }

// Number returns the numeric payload and whether v is a number.
func (v Value) Number() (float64, bool) { return v.num, v.kind == KindNumber }

// Text returns the string payload and whether v is text.
func (v Value) Text() (string, bool) { return v.text, v.kind == KindText }

// Flag returns the boolean payload and whether v is a flag.
func (v Value) Flag() (bool, bool) { return v.flag, v.kind == KindFlag }

// Point returns the coordinate payload and whether v is a point.
func (v Value) Point() (Point, bool) { return v.point, v.kind == KindPoint }

// DataType returns the data type implied by the variant, or "" for KindNone/KindOther.
func (v Value) DataType() DataType {
	switch v.kind {
	case KindNumber:
		return TypeNumber
	case KindText:
		return TypeString
	case KindFlag:
		return TypeBoolean
	case KindPoint:
		return TypeGeography
	default:
		return ""
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.text
	case KindFlag:
		return strconv.FormatBool(v.flag)
	case KindPoint:
		return formatFloat(v.point.Lat) + "," + formatFloat(v.point.Lon)
	case KindOther:
		return fmt.Sprint(v.other)
	default:
		return ""
	}
}

// MarshalJSON renders the raw value: a number, string, boolean or [lat, lon].
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindText:
		return json.Marshal(v.text)
	case KindFlag:
		return json.Marshal(v.flag)
	case KindPoint:
		return json.Marshal([2]float64{v.point.Lat, v.point.Lon})
	case KindOther:
		return json.Marshal(v.other)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a raw wire value by shape. Unrecognised shapes are
// kept as KindOther so the persistence side can report a precise error.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	inferred, err := Infer(raw)
	if err != nil {
		*v = Value{kind: KindOther, other: raw}
		return nil
	}
	*v = inferred
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
