package timeseries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMeta = Meta{
	Timestamp:     "2022-01-01T12:34:56.000000Z",
	Subject:       "electricitymeter",
	Publisher:     "glow",
	CorrelationID: "corr-1",
}

func measurements(records []Record) map[string]string {
	out := make(map[string]string, len(records))
	for _, r := range records {
		out[r.Of] = r.Value.String()
	}
	return out
}

func TestFlatten(t *testing.T) {
	payload := map[string]any{
		"a": map[string]any{"b": 1},
		"c": 2,
	}

	t.Run("no options", func(t *testing.T) {
		records, err := Flatten(payload, testMeta, FlattenOptions{})
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, map[string]string{"b": "1", "c": "2"}, measurements(records))
	})

	t.Run("ignore key skips subtree", func(t *testing.T) {
		records, err := Flatten(payload, testMeta, FlattenOptions{IgnoreKeys: []string{"a"}})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "c", records[0].Of)
		assert.Equal(t, "2", records[0].Value.String())
	})

	t.Run("prefix", func(t *testing.T) {
		records, err := Flatten(payload, testMeta, FlattenOptions{Prefix: "p"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"p_b": "1", "p_c": "2"}, measurements(records))
	})

	t.Run("deterministic order", func(t *testing.T) {
		first, err := Flatten(payload, testMeta, FlattenOptions{})
		require.NoError(t, err)
		second, err := Flatten(payload, testMeta, FlattenOptions{})
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, "b", first[0].Of)
	})
}

func TestFlatten_SharedMeta(t *testing.T) {
	payload := map[string]any{
		"value":  100,
		"label":  "day",
		"active": true,
		"deeper": map[string]any{"loc": []any{51.5, -0.12}},
	}

	records, err := Flatten(payload, testMeta, FlattenOptions{})
	require.NoError(t, err)
	require.Len(t, records, 4)

	types := map[string]DataType{}
	for _, r := range records {
		assert.Equal(t, testMeta, r.Meta())
		assert.Equal(t, r.Value.DataType(), r.DataType)
		types[r.Of] = r.DataType
	}
	assert.Equal(t, map[string]DataType{
		"value":  TypeNumber,
		"label":  TypeString,
		"active": TypeBoolean,
		"loc":    TypeGeography,
	}, types)
}

func TestFlatten_IgnoreAppliesAtDepth(t *testing.T) {
	payload := map[string]any{
		"import": map[string]any{
			"units": "kWh",
			"day":   1.5,
			"price": map[string]any{"units": "GBP", "unitrate": 0.3},
		},
	}

	records, err := Flatten(payload, testMeta, FlattenOptions{IgnoreKeys: []string{"units"}, Prefix: "import"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"import_day": "1.5", "import_unitrate": "0.3"}, measurements(records))
}

func TestFlatten_Empty(t *testing.T) {
	records, err := Flatten(nil, testMeta, FlattenOptions{})
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = Flatten(map[string]any{}, testMeta, FlattenOptions{Prefix: "p"})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFlatten_UninferableLeaf(t *testing.T) {
	_, err := Flatten(map[string]any{"bad": nil}, testMeta, FlattenOptions{})
	assert.ErrorIs(t, err, ErrUnknownPayloadType)
}

func TestFlatten_DoesNotMutateInput(t *testing.T) {
	inner := map[string]any{"b": 1}
	payload := map[string]any{"a": inner, "c": 2}

	_, err := Flatten(payload, testMeta, FlattenOptions{IgnoreKeys: []string{"c"}})
	require.NoError(t, err)
	assert.Len(t, payload, 2)
	assert.Len(t, inner, 1)
}
