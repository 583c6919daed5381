package timescale

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/mnbf9rca/eventhub-to-timescale/timeseries"
)

var (
	ErrEmptyBatch    = stderrors.New("empty record batch")
	ErrInvalidRecord = stderrors.New("invalid record")
)

// SplitBatch splits a record batch into one JSON object per record. It
// accepts a single object, an array of objects, or an array of JSON strings
// each encoding an object.
func SplitBatch(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyBatch
	}
	if trimmed[0] == '{' {
		return []json.RawMessage{trimmed}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	out := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var inner string
			if err := json.Unmarshal(item, &inner); err != nil {
				return nil, fmt.Errorf("record %d: %w: %v", i, ErrInvalidRecord, err)
			}
			item = json.RawMessage(inner)
		}
		out = append(out, item)
	}
	return out, nil
}

// DecodeRecord decodes one record object. Field presence and value shape
// are checked later by Writer.Persist.
func DecodeRecord(raw json.RawMessage) (timeseries.Record, error) {
	var r timeseries.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return timeseries.Record{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return r, nil
}

// EncodeBatch renders records as a JSON array of objects, the form the
// normalizer publishes.
func EncodeBatch(records []timeseries.Record) ([]byte, error) {
	if records == nil {
		records = []timeseries.Record{}
	}
	return json.Marshal(records)
}
