// Package health turns component health into the status tree served on
// /health.
package health

import (
	"fmt"
	"regexp"
	"time"

	"github.com/mnbf9rca/eventhub-to-timescale/component"
)

// Level is the coarse health of a component or of the whole pipeline.
type Level string

const (
	LevelHealthy   Level = "healthy"
	LevelDegraded  Level = "degraded"
	LevelUnhealthy Level = "unhealthy"
)

// Error messages can carry DSNs and broker URLs; these are masked before
// they are exposed.
var (
	urlPattern        = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*://[^\s]+`)
	credentialPattern = regexp.MustCompile(`(?i)(password|token|secret)\s*[:=]\s*[^,\s}]+`)
	ipPattern         = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(:\d+)?\b`)
)

// Status is the health of one component, or of a group via SubStatuses.
type Status struct {
	Component   string        `json:"component"`
	Level       Level         `json:"status"`
	Message     string        `json:"message"`
	Timestamp   time.Time     `json:"timestamp"`
	ErrorCount  int           `json:"error_count,omitempty"`
	Uptime      time.Duration `json:"uptime,omitempty"`
	SubStatuses []Status      `json:"sub_statuses,omitempty"`
}

// Healthy reports whether the status is not unhealthy. Degraded still
// serves traffic.
func (s Status) Healthy() bool { return s.Level != LevelUnhealthy }

// Err returns nil unless the status is unhealthy.
func (s Status) Err() error {
	if s.Healthy() {
		return nil
	}
	return fmt.Errorf("%s is %s: %s", s.Component, s.Level, s.Message)
}

// Sanitize masks URLs, credentials and IP addresses in msg.
func Sanitize(msg string) string {
	msg = urlPattern.ReplaceAllString(msg, "[URL]")
	msg = credentialPattern.ReplaceAllString(msg, "$1=[REDACTED]")
	return ipPattern.ReplaceAllString(msg, "[IP]")
}

// FromComponent converts a component's self-reported health. A running
// component whose last message failed is degraded.
func FromComponent(name string, h component.HealthStatus) Status {
	s := Status{
		Component:  name,
		Level:      LevelHealthy,
		Message:    "running",
		Timestamp:  time.Now(),
		ErrorCount: h.ErrorCount,
		Uptime:     h.Uptime,
	}
	switch {
	case !h.Healthy:
		s.Level = LevelUnhealthy
		s.Message = "not running"
		if h.LastError != "" {
			s.Message = Sanitize(h.LastError)
		}
	case h.LastError != "":
		s.Level = LevelDegraded
		s.Message = Sanitize(h.LastError)
	}
	return s
}

// FromCheck wraps a dependency probe such as the NATS connection.
func FromCheck(name string, err error) Status {
	if err != nil {
		return Status{Component: name, Level: LevelUnhealthy, Message: Sanitize(err.Error()), Timestamp: time.Now()}
	}
	return Status{Component: name, Level: LevelHealthy, Message: "ok", Timestamp: time.Now()}
}

// Aggregate combines sub-statuses: any unhealthy makes the group unhealthy,
// otherwise any degraded makes it degraded.
func Aggregate(name string, subs []Status) Status {
	s := Status{
		Component:   name,
		Level:       LevelHealthy,
		Message:     "all components healthy",
		Timestamp:   time.Now(),
		SubStatuses: append([]Status(nil), subs...),
	}
	for _, sub := range subs {
		s.ErrorCount += sub.ErrorCount
		switch sub.Level {
		case LevelUnhealthy:
			s.Level = LevelUnhealthy
			s.Message = fmt.Sprintf("%s unhealthy", sub.Component)
		case LevelDegraded:
			if s.Level == LevelHealthy {
				s.Level = LevelDegraded
				s.Message = fmt.Sprintf("%s degraded", sub.Component)
			}
		}
	}
	return s
}
