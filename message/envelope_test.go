package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBatch(t *testing.T) {
	single := `{"topic":"glow/x/gasmeter","timestamp":1700000000,"payload":"{\"gasmeter\":{}}"}`

	t.Run("single object", func(t *testing.T) {
		envs, err := DecodeBatch([]byte(single))
		require.NoError(t, err)
		require.Len(t, envs, 1)
		assert.Equal(t, "glow/x/gasmeter", envs[0].Topic)
		assert.Equal(t, json.Number("1700000000"), envs[0].Timestamp)
	})

	t.Run("array of objects", func(t *testing.T) {
		envs, err := DecodeBatch([]byte("[" + single + "," + single + "]"))
		require.NoError(t, err)
		assert.Len(t, envs, 2)
	})

	t.Run("array of strings", func(t *testing.T) {
		encoded, err := json.Marshal([]string{single})
		require.NoError(t, err)

		envs, err := DecodeBatch(encoded)
		require.NoError(t, err)
		require.Len(t, envs, 1)
		assert.Equal(t, "glow/x/gasmeter", envs[0].Topic)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := DecodeBatch([]byte("  "))
		assert.ErrorIs(t, err, ErrEmptyBatch)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := DecodeBatch([]byte("{not json"))
		assert.ErrorIs(t, err, ErrInvalidEnvelope)
	})

	t.Run("bad item reports position", func(t *testing.T) {
		_, err := DecodeBatch([]byte(`[` + single + `, 12]`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "batch item 1")
	})
}

func TestEnvelope_Object(t *testing.T) {
	t.Run("json string payload", func(t *testing.T) {
		env := Envelope{Payload: json.RawMessage(`"{\"a\":{\"b\":1}}"`)}
		obj, err := env.Object()
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": map[string]any{"b": json.Number("1")}}, obj)
	})

	t.Run("object payload", func(t *testing.T) {
		env := Envelope{Payload: json.RawMessage(`{"a":2}`)}
		obj, err := env.Object()
		require.NoError(t, err)
		assert.Equal(t, json.Number("2"), obj["a"])
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Envelope{}.Object()
		assert.ErrorIs(t, err, ErrMissingKey)
	})

	t.Run("string that is not json", func(t *testing.T) {
		env := Envelope{Payload: json.RawMessage(`"hello"`)}
		_, err := env.Object()
		assert.ErrorIs(t, err, ErrPayloadNotJSON)
	})

	t.Run("array is not an object", func(t *testing.T) {
		env := Envelope{Payload: json.RawMessage(`"[1,2]"`)}
		_, err := env.Object()
		assert.ErrorIs(t, err, ErrPayloadNotJSON)
	})
}

func TestEnvelope_Scalar(t *testing.T) {
	v, err := Envelope{Payload: json.RawMessage(`21.5`)}.Scalar()
	require.NoError(t, err)
	assert.Equal(t, json.Number("21.5"), v)

	v, err = Envelope{Payload: json.RawMessage(`"heat"`)}.Scalar()
	require.NoError(t, err)
	assert.Equal(t, "heat", v)

	_, err = Envelope{Payload: json.RawMessage(`null`)}.Scalar()
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestNewEnvelope(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 500000000, time.UTC)
	env := NewEnvelope("homie/boiler/state", at, []byte("on"))

	assert.Equal(t, "homie/boiler/state", env.Topic)
	assert.InDelta(t, 1704164645.5, env.Timestamp, 1e-6)
	assert.True(t, env.HasTimestamp())

	v, err := env.Scalar()
	require.NoError(t, err)
	assert.Equal(t, "on", v)

	data, err := json.Marshal(env)
	require.NoError(t, err)
	back, err := DecodeBatch(data)
	require.NoError(t, err)
	assert.Equal(t, env.Topic, back[0].Topic)
}
