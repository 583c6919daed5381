// Package component defines the contract shared by every pipeline stage.
//
// A component is built by a Factory from its raw JSON configuration and a
// Dependencies bundle (NATS client, metrics registry, logger). Factories do
// no I/O; connections are opened in Start and released in Stop.
//
//	type Processor struct { ... }
//
//	func NewProcessor(raw json.RawMessage, deps component.Dependencies) (component.Discoverable, error)
//
//	func (p *Processor) Initialize() error
//	func (p *Processor) Start(ctx context.Context) error
//	func (p *Processor) Stop(timeout time.Duration) error
//
// Components describe themselves through Discoverable: metadata, the ports
// they read and write, a configuration schema generated from struct tags,
// and live health and flow numbers.
//
// The Registry maps factory names to Registrations. The binary registers
// every built-in factory through componentregistry.Register and then
// creates one instance per enabled entry in the configuration.
package component
