package timescale

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnbf9rca/eventhub-to-timescale/timeseries"
)

const recordJSON = `{"timestamp":"2022-01-01T12:34:56.000000Z","measurement_subject":"electricitymeter",` +
	`"measurement_publisher":"glow","measurement_of":"import_value","measurement_value":100,` +
	`"measurement_data_type":"number","correlation_id":"corr-1"}`

func TestSplitBatch(t *testing.T) {
	quoted, err := json.Marshal(recordJSON)
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"single object", recordJSON, 1},
		{"array of objects", "[" + recordJSON + "," + recordJSON + "]", 2},
		{"array of strings", "[" + string(quoted) + "]", 1},
		{"empty array", "[]", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := SplitBatch([]byte(tt.input))
			require.NoError(t, err)
			require.Len(t, items, tt.want)
			for _, item := range items {
				r, err := DecodeRecord(item)
				require.NoError(t, err)
				assert.Equal(t, "import_value", r.Of)
			}
		})
	}

	_, err = SplitBatch([]byte("  "))
	require.ErrorIs(t, err, ErrEmptyBatch)

	_, err = SplitBatch([]byte("not json"))
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestEncodeBatchRoundTrip(t *testing.T) {
	meta := timeseries.Meta{Timestamp: "2022-01-01T12:34:56.000000Z", Subject: "s", Publisher: "p", CorrelationID: "c"}
	records := []timeseries.Record{
		timeseries.NewRecord(meta, "n", timeseries.NumberValue(1.25)),
		timeseries.NewRecord(meta, "loc", timeseries.PointValue(40.7128, -74.0062)),
	}

	data, err := EncodeBatch(records)
	require.NoError(t, err)

	items, err := SplitBatch(data)
	require.NoError(t, err)
	require.Len(t, items, 2)

	loc, err := DecodeRecord(items[1])
	require.NoError(t, err)
	p, ok := loc.Value.Point()
	require.True(t, ok)
	assert.Equal(t, timeseries.Point{Lat: 40.7128, Lon: -74.0062}, p)
	assert.Equal(t, timeseries.TypeGeography, loc.DataType)

	empty, err := EncodeBatch(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}

func TestDecodeRecord_KeepsMissingValueDetectable(t *testing.T) {
	r, err := DecodeRecord([]byte(`{"timestamp":"2022-01-01T00:00:00Z","measurement_data_type":"number"}`))
	require.NoError(t, err)
	assert.Contains(t, r.Missing(), "measurement_value")
}
