// Package router splits hierarchical topics and resolves the publisher that
// owns them.
package router

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedTopic   = errors.New("malformed topic")
	ErrUnknownPublisher = errors.New("unknown publisher")
)

// Route is a topic split at "/". Publisher is everything before the first
// separator and may be empty; rejecting it is the caller's job.
type Route struct {
	Topic     string
	Publisher string
	Segments  []string
}

// Parse splits topic. An empty topic is ErrMalformedTopic.
func Parse(topic string) (Route, error) {
	if topic == "" {
		return Route{}, fmt.Errorf("%w: empty topic", ErrMalformedTopic)
	}
	segments := strings.Split(topic, "/")
	return Route{
		Topic:     topic,
		Publisher: segments[0],
		Segments:  segments,
	}, nil
}

// Last returns the final segment.
func (r Route) Last() string {
	if len(r.Segments) == 0 {
		return ""
	}
	return r.Segments[len(r.Segments)-1]
}

// SecondToLast returns the segment before the final one, or "" for single
// segment topics.
func (r Route) SecondToLast() string {
	if len(r.Segments) < 2 {
		return ""
	}
	return r.Segments[len(r.Segments)-2]
}

// Publisher is the closed set of sources the pipeline understands.
type Publisher int

const (
	PublisherUnknown Publisher = iota
	PublisherGlow
	PublisherHomie
	PublisherEmon
	PublisherVehicle
)

var publisherNames = map[Publisher]string{
	PublisherGlow:    "glow",
	PublisherHomie:   "homie",
	PublisherEmon:    "emon",
	PublisherVehicle: "bmw",
}

// String returns the canonical lowercase publisher name.
func (p Publisher) String() string {
	if name, ok := publisherNames[p]; ok {
		return name
	}
	return "unknown"
}

// Matches reports whether name refers to p, ignoring case.
func (p Publisher) Matches(name string) bool {
	return p != PublisherUnknown && strings.EqualFold(name, p.String())
}

// ParsePublisher resolves a publisher name case-insensitively.
func ParsePublisher(name string) (Publisher, error) {
	for p, canonical := range publisherNames {
		if strings.EqualFold(name, canonical) {
			return p, nil
		}
	}
	return PublisherUnknown, fmt.Errorf("%w: %q", ErrUnknownPublisher, name)
}

// Resolve parses topic and resolves its publisher in one step.
func Resolve(topic string) (Route, Publisher, error) {
	route, err := Parse(topic)
	if err != nil {
		return Route{}, PublisherUnknown, err
	}
	p, err := ParsePublisher(route.Publisher)
	if err != nil {
		return route, PublisherUnknown, err
	}
	return route, p, nil
}
