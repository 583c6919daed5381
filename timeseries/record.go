package timeseries

import (
	"github.com/google/uuid"
)

// Record is one atomic measurement. Records are values: construct them with
// NewRecord or Flatten and never modify them afterwards.
type Record struct {
	Timestamp     string   `json:"timestamp"`
	Subject       string   `json:"measurement_subject"`
	Publisher     string   `json:"measurement_publisher"`
	Of            string   `json:"measurement_of"`
	Value         Value    `json:"measurement_value"`
	DataType      DataType `json:"measurement_data_type"`
	CorrelationID string   `json:"correlation_id"`
}

// Meta is the part of a record shared by everything derived from one source event.
type Meta struct {
	Timestamp     string
	Subject       string
	Publisher     string
	CorrelationID string
}

// NewRecord builds a record whose data type is taken from the value variant,
// so the two always agree.
func NewRecord(meta Meta, of string, value Value) Record {
	return Record{
		Timestamp:     meta.Timestamp,
		Subject:       meta.Subject,
		Publisher:     meta.Publisher,
		Of:            of,
		Value:         value,
		DataType:      value.DataType(),
		CorrelationID: meta.CorrelationID,
	}
}

// Meta returns the shared part of r.
func (r Record) Meta() Meta {
	return Meta{
		Timestamp:     r.Timestamp,
		Subject:       r.Subject,
		Publisher:     r.Publisher,
		CorrelationID: r.CorrelationID,
	}
}

// Required lists the wire names of every field a persistable record must carry.
var Required = []string{
	"timestamp",
	"measurement_publisher",
	"measurement_subject",
	"correlation_id",
	"measurement_of",
	"measurement_data_type",
	"measurement_value",
}

// Missing returns the wire names of every absent required field, in Required order.
func (r Record) Missing() []string {
	present := map[string]bool{
		"timestamp":             r.Timestamp != "",
		"measurement_publisher": r.Publisher != "",
		"measurement_subject":   r.Subject != "",
		"correlation_id":        r.CorrelationID != "",
		"measurement_of":        r.Of != "",
		"measurement_data_type": r.DataType != "",
		"measurement_value":     !r.Value.IsZero(),
	}

	var missing []string
	for _, field := range Required {
		if !present[field] {
			missing = append(missing, field)
		}
	}
	return missing
}

// NewCorrelationID returns a random identifier for grouping records of one event.
func NewCorrelationID() string {
	return uuid.NewString()
}
