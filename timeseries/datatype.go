package timeseries

// DataType tags how a measurement value is interpreted and stored.
type DataType string

// The four storable data types.
const (
	TypeNumber    DataType = "number"
	TypeString    DataType = "string"
	TypeBoolean   DataType = "boolean"
	TypeGeography DataType = "geography"
)

// Valid reports whether dt is one of the four storable data types.
func (dt DataType) Valid() bool {
	switch dt {
	case TypeNumber, TypeString, TypeBoolean, TypeGeography:
		return true
	default:
		return false
	}
}

func (dt DataType) String() string {
	return string(dt)
}
