package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnbf9rca/eventhub-to-timescale/timeseries"
)

func TestEmon(t *testing.T) {
	payload := `{"time": 1672531200, "MSG": 12, "Vrms": 242.1, "P1": 310, "pulse": 5}`

	records, err := Emon(input(t, "emon/emonTx4", nil, payload))
	require.NoError(t, err)
	require.Len(t, records, 4)

	got := byName(records)
	assert.NotContains(t, got, "time")
	assert.Equal(t, "242.1", got["Vrms"].Value.String())

	for _, r := range records {
		assert.Equal(t, "emonTx4", r.Subject)
		assert.Equal(t, "emon", r.Publisher)
		assert.Equal(t, "2023-01-01T00:00:00.000000Z", r.Timestamp)
		assert.Equal(t, timeseries.TypeNumber, r.DataType)
	}
}

func TestEmon_Rejections(t *testing.T) {
	t.Run("other device ignored", func(t *testing.T) {
		records, err := Emon(input(t, "emon/emonPi", nil, `{"time": 1}`))
		require.NoError(t, err)
		assert.Nil(t, records)
	})

	t.Run("missing time", func(t *testing.T) {
		_, err := Emon(input(t, "emon/emonTx4", nil, `{"P1": 1}`))
		require.ErrorIs(t, err, ErrMissingKey)
	})

	t.Run("wrong publisher", func(t *testing.T) {
		_, err := Emon(input(t, "glow/emonTx4", nil, `{"time": 1}`))
		require.ErrorIs(t, err, ErrInvalidPublisher)
	})
}
