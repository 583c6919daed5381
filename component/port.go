package component

import "fmt"

// Direction for data flow
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// Port describes one input or output of a component.
type Port struct {
	Name        string    `json:"name"`
	Direction   Direction `json:"direction"`
	Required    bool      `json:"required"`
	Description string    `json:"description"`
	Config      Portable  `json:"config"`
}

// Portable identifies the resource behind a port.
type Portable interface {
	ResourceID() string // unique identifier for conflict detection
	IsExclusive() bool  // whether only one component may own it
	Type() string
}

// NATSPort is a core NATS subject.
type NATSPort struct {
	Subject string `json:"subject"`
}

func (n NATSPort) ResourceID() string { return fmt.Sprintf("nats:%s", n.Subject) }
func (n NATSPort) IsExclusive() bool  { return false }
func (n NATSPort) Type() string       { return "nats" }

// KVPort is a JetStream key-value bucket (or bucket prefix).
type KVPort struct {
	Bucket string `json:"bucket"`
}

func (k KVPort) ResourceID() string { return fmt.Sprintf("kv:%s", k.Bucket) }
func (k KVPort) IsExclusive() bool  { return false }
func (k KVPort) Type() string       { return "kv" }

// MQTTPort is a topic filter on an MQTT broker.
type MQTTPort struct {
	Broker string `json:"broker"`
	Topic  string `json:"topic"`
}

func (m MQTTPort) ResourceID() string { return fmt.Sprintf("mqtt:%s/%s", m.Broker, m.Topic) }
func (m MQTTPort) IsExclusive() bool  { return false }
func (m MQTTPort) Type() string       { return "mqtt" }

// DatabasePort is a relational table.
type DatabasePort struct {
	Table string `json:"table"`
}

func (d DatabasePort) ResourceID() string { return fmt.Sprintf("db:%s", d.Table) }
func (d DatabasePort) IsExclusive() bool  { return false }
func (d DatabasePort) Type() string       { return "database" }

// FilePort is a directory written by exactly one component.
type FilePort struct {
	Path    string `json:"path"`
	Pattern string `json:"pattern,omitempty"`
}

func (f FilePort) ResourceID() string { return fmt.Sprintf("file:%s", f.Path) }
func (f FilePort) IsExclusive() bool  { return true }
func (f FilePort) Type() string       { return "file" }

// HTTPPort is a remote HTTP API.
type HTTPPort struct {
	URL string `json:"url"`
}

func (h HTTPPort) ResourceID() string { return fmt.Sprintf("http:%s", h.URL) }
func (h HTTPPort) IsExclusive() bool  { return false }
func (h HTTPPort) Type() string       { return "http" }
