// Package message decodes the inbound envelopes carried between the
// ingress bridges and the normalizer.
package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrEmptyBatch      = errors.New("empty batch")
	ErrMissingKey      = errors.New("missing required key")
	ErrPayloadNotJSON  = errors.New("payload is not valid JSON")
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// Envelope is one message as received from a publisher bus.
//
// Timestamp is the bus receive time and is intentionally loose (epoch number
// or string); several publishers embed their own timestamp inside Payload.
// Payload is either a JSON string whose content is itself JSON, or a bare
// JSON scalar for publishers that send single values.
type Envelope struct {
	Topic     string          `json:"topic"`
	Timestamp any             `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a raw bus payload received on topic at t.
func NewEnvelope(topic string, t time.Time, payload []byte) Envelope {
	encoded, _ := json.Marshal(string(payload))
	return Envelope{
		Topic:     topic,
		Timestamp: float64(t.UnixMicro()) / 1e6,
		Payload:   encoded,
	}
}

// HasTimestamp reports whether the envelope carried a timestamp key.
func (e Envelope) HasTimestamp() bool {
	return e.Timestamp != nil
}

// HasPayload reports whether the envelope carried a non-null payload.
func (e Envelope) HasPayload() bool {
	trimmed := bytes.TrimSpace(e.Payload)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Scalar decodes the payload as a single JSON value. A JSON string is
// returned as a Go string without further decoding.
func (e Envelope) Scalar() (any, error) {
	if !e.HasPayload() {
		return nil, fmt.Errorf("%w: payload", ErrMissingKey)
	}
	dec := json.NewDecoder(bytes.NewReader(e.Payload))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadNotJSON, err)
	}
	return v, nil
}

// Object decodes a payload that holds a JSON object, either directly or as a
// JSON-encoded string.
func (e Envelope) Object() (map[string]any, error) {
	v, err := e.Scalar()
	if err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		dec := json.NewDecoder(bytes.NewReader([]byte(s)))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayloadNotJSON, err)
		}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %T", ErrPayloadNotJSON, v)
	}
	return obj, nil
}

// DecodeBatch accepts a single envelope object or an array of envelopes.
// Arrays may hold envelope objects or JSON strings that encode them.
func DecodeBatch(data []byte) ([]Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyBatch
	}

	if trimmed[0] != '[' {
		env, err := decodeEnvelope(trimmed)
		if err != nil {
			return nil, err
		}
		return []Envelope{env}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	out := make([]Envelope, 0, len(items))
	for i, item := range items {
		env, err := decodeEnvelope(item)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		out = append(out, env)
	}
	return out, nil
}

func decodeEnvelope(data []byte) (Envelope, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
		data = []byte(inner)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return env, nil
}
