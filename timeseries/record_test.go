package timeseries

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_JSONFieldNames(t *testing.T) {
	r := NewRecord(testMeta, "import_value", NumberValue(100))

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"timestamp": "2022-01-01T12:34:56.000000Z",
		"measurement_subject": "electricitymeter",
		"measurement_publisher": "glow",
		"measurement_of": "import_value",
		"measurement_value": 100,
		"measurement_data_type": "number",
		"correlation_id": "corr-1"
	}`, string(data))
}

func TestRecord_DecodeWire(t *testing.T) {
	wire := `{
		"timestamp": "2024-03-01T10:00:00.000000Z",
		"measurement_subject": "WBA123",
		"measurement_publisher": "bmw",
		"measurement_of": "isChargerConnected",
		"measurement_value": "true",
		"measurement_data_type": "boolean",
		"correlation_id": "2024-03-01T10:00:00Z"
	}`

	var r Record
	require.NoError(t, json.Unmarshal([]byte(wire), &r))
	assert.Empty(t, r.Missing())

	text, ok := r.Value.Text()
	require.True(t, ok)
	assert.Equal(t, "true", text)

	coerced, err := Coerce(r.DataType, r.Value)
	require.NoError(t, err)
	b, ok := coerced.Flag()
	assert.True(t, ok)
	assert.True(t, b)
}

func TestRecord_Missing(t *testing.T) {
	t.Run("all missing", func(t *testing.T) {
		assert.Equal(t, Required, Record{}.Missing())
	})

	t.Run("some missing", func(t *testing.T) {
		var r Record
		require.NoError(t, json.Unmarshal([]byte(`{"timestamp":"x","measurement_value":null,"measurement_of":"y"}`), &r))
		assert.Equal(t, []string{
			"measurement_publisher",
			"measurement_subject",
			"correlation_id",
			"measurement_data_type",
			"measurement_value",
		}, r.Missing())
	})

	t.Run("empty string value is present", func(t *testing.T) {
		r := NewRecord(testMeta, "label", TextValue(""))
		assert.Empty(t, r.Missing())
	})
}

func TestNewCorrelationID(t *testing.T) {
	a := NewCorrelationID()
	b := NewCorrelationID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
