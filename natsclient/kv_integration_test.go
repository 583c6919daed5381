//go:build integration

package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVStore_Integration(t *testing.T) {
	tc := NewTestClient(t, WithJetStream())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	bucket, err := tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "kv-test"})
	require.NoError(t, err)

	again, err := tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "kv-test"})
	require.NoError(t, err)
	assert.Equal(t, bucket.Bucket(), again.Bucket())

	kv := tc.Client.NewKVStore(bucket, 5*time.Second)

	_, err = kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)

	_, err = kv.Create(ctx, "k1", []byte("v1"))
	require.NoError(t, err)

	_, err = kv.Create(ctx, "k1", []byte("v2"))
	assert.ErrorIs(t, err, ErrKVKeyExists)

	value, err := kv.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	require.NoError(t, kv.Delete(ctx, "k1"))
	_, err = kv.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrKVKeyNotFound)
}

func TestClient_PublishSubscribe_Integration(t *testing.T) {
	tc := NewTestClient(t)
	ctx := context.Background()

	received := make(chan []byte, 4)
	sub, err := tc.Client.Subscribe(ctx, "telemetry.raw.>", func(_ context.Context, data []byte) {
		received <- data
	})
	require.NoError(t, err)
	require.NoError(t, tc.Client.Publish(ctx, "telemetry.raw.glow", []byte(`{"x":1}`)))

	select {
	case data := <-received:
		assert.Equal(t, `{"x":1}`, string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, tc.Client.Publish(ctx, "telemetry.raw.glow", []byte(`{"x":2}`)))
	_, err = tc.Client.RTT()
	require.NoError(t, err)

	select {
	case data := <-received:
		t.Fatalf("message delivered after Unsubscribe: %s", data)
	case <-time.After(200 * time.Millisecond):
	}
}
