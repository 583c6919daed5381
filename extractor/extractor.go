// Package extractor turns publisher specific payloads into atomic records.
//
// Each topic-driven extractor is a pure function over an Input. It returns
// (nil, nil) when the topic is not one it cares about, records when it is,
// and an error when the message is addressed to it but malformed.
package extractor

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mnbf9rca/eventhub-to-timescale/message"
	"github.com/mnbf9rca/eventhub-to-timescale/router"
	"github.com/mnbf9rca/eventhub-to-timescale/timeseries"
)

var (
	ErrInvalidPublisher = errors.New("invalid publisher")
	ErrMissingKey       = errors.New("missing required key")
	ErrNotTopicDriven   = errors.New("publisher is not topic driven")
)

// Input is one routed envelope plus the correlation id its records will share.
type Input struct {
	Envelope      message.Envelope
	Route         router.Route
	CorrelationID string
}

// Func extracts records from one routed envelope.
type Func func(in Input) ([]timeseries.Record, error)

// Dispatch returns the extractor owning p.
func Dispatch(p router.Publisher) (Func, error) {
	switch p {
	case router.PublisherGlow:
		return Glow, nil
	case router.PublisherHomie:
		return Homie, nil
	case router.PublisherEmon:
		return Emon, nil
	case router.PublisherVehicle:
		return nil, fmt.Errorf("%w: %s", ErrNotTopicDriven, p)
	default:
		return nil, fmt.Errorf("%w: %s", router.ErrUnknownPublisher, p)
	}
}

func checkPublisher(want router.Publisher, got string) error {
	if !want.Matches(got) {
		return fmt.Errorf("%w: expected %s, got %q", ErrInvalidPublisher, want, got)
	}
	return nil
}

// lookupMap walks nested objects along path.
func lookupMap(obj map[string]any, path ...string) (map[string]any, error) {
	current := obj
	for i, key := range path {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingKey, strings.Join(path[:i+1], "."))
		}
		current = next
	}
	return current, nil
}

func lookupValue(obj map[string]any, path ...string) (any, error) {
	parent, err := lookupMap(obj, path[:len(path)-1]...)
	if err != nil {
		return nil, err
	}
	leaf, ok := parent[path[len(path)-1]]
	if !ok || leaf == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, strings.Join(path, "."))
	}
	return leaf, nil
}

func interested(segment string, of []string) bool {
	return slices.Contains(of, segment)
}
