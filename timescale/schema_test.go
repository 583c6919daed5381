package timescale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaValidator(t *testing.T) {
	v, err := NewSchemaValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", recordJSON, false},
		{"geography pair", `{"timestamp":"2022-01-01T00:00:00Z","measurement_subject":"s","measurement_publisher":"p",` +
			`"measurement_of":"loc","measurement_value":[51.5,-0.1],"measurement_data_type":"geography","correlation_id":"c"}`, false},
		{"missing value", `{"timestamp":"2022-01-01T00:00:00Z","measurement_subject":"s","measurement_publisher":"p",` +
			`"measurement_of":"x","measurement_data_type":"number","correlation_id":"c"}`, true},
		{"unknown type", `{"timestamp":"2022-01-01T00:00:00Z","measurement_subject":"s","measurement_publisher":"p",` +
			`"measurement_of":"x","measurement_value":1,"measurement_data_type":"integer","correlation_id":"c"}`, true},
		{"bad timestamp", `{"timestamp":"yesterday","measurement_subject":"s","measurement_publisher":"p",` +
			`"measurement_of":"x","measurement_value":1,"measurement_data_type":"number","correlation_id":"c"}`, true},
		{"three element value", `{"timestamp":"2022-01-01T00:00:00Z","measurement_subject":"s","measurement_publisher":"p",` +
			`"measurement_of":"x","measurement_value":[1,2,3],"measurement_data_type":"geography","correlation_id":"c"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate([]byte(tt.input))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrSchemaViolation)
				return
			}
			assert.NoError(t, err)
		})
	}
}
