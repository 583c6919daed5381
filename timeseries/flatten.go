package timeseries

import (
	"fmt"
	"slices"
	"sort"
)

// FlattenOptions controls which keys are skipped and how leaves are named.
type FlattenOptions struct {
	// IgnoreKeys are skipped entirely, at any depth, and never recursed into.
	IgnoreKeys []string
	// Prefix, when set, names each leaf "<Prefix>_<key>".
	Prefix string
}

// Flatten walks payload and returns one record per leaf value. Nested maps are
// recursed with the same options; the leaf key alone (plus prefix) names the
// measurement. Keys are visited in sorted order so output is deterministic.
// A nil or empty payload yields no records and no error.
func Flatten(payload map[string]any, meta Meta, opts FlattenOptions) ([]Record, error) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if !slices.Contains(opts.IgnoreKeys, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []Record
	for _, key := range keys {
		switch child := payload[key].(type) {
		case map[string]any:
			nested, err := Flatten(child, meta, opts)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		default:
			value, err := Infer(child)
			if err != nil {
				return nil, fmt.Errorf("flatten key %q: %w", key, err)
			}
			out = append(out, NewRecord(meta, measurementName(opts.Prefix, key), value))
		}
	}
	return out, nil
}

func measurementName(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}
