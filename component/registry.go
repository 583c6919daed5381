package component

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"sort"
	"sync"

	"github.com/mnbf9rca/eventhub-to-timescale/config"
	"github.com/mnbf9rca/eventhub-to-timescale/errors"
)

// maxConfigSize bounds the raw JSON handed to a factory.
const maxConfigSize = 1 << 20

var componentNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,63}$`)

// Factory creates a component from its raw configuration. Factories do no I/O.
type Factory func(rawConfig json.RawMessage, deps Dependencies) (Discoverable, error)

// Info is the public description of a registered factory.
type Info struct {
	Type        string `json:"type"`
	Protocol    string `json:"protocol"`
	Domain      string `json:"domain"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Registration holds a factory and its metadata.
type Registration struct {
	Name        string
	Type        string // "input", "processor", "output"
	Protocol    string // "mqtt", "nats", "timescale", ...
	Domain      string
	Description string
	Version     string
	Schema      ConfigSchema
	Factory     Factory
}

// RegistrationConfig is the argument to RegisterWithConfig.
type RegistrationConfig struct {
	Name        string
	Factory     Factory
	Schema      ConfigSchema
	Type        string
	Protocol    string
	Domain      string
	Description string
	Version     string
}

// Registry holds factories and the instances created from them.
type Registry struct {
	mu              sync.RWMutex
	factories       map[string]*Registration
	instances       map[string]Discoverable
	resourceTracker map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories:       make(map[string]*Registration),
		instances:       make(map[string]Discoverable),
		resourceTracker: make(map[string]string),
	}
}

// RegisterFactory registers a factory under name. Names are unique.
func (r *Registry) RegisterFactory(name string, registration *Registration) error {
	if err := ValidateComponentName(name); err != nil {
		return errors.Wrap(err, "Registry", "RegisterFactory", "factory name validation")
	}
	if registration == nil || registration.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "registration validation")
	}
	switch registration.Type {
	case "input", "processor", "output":
	default:
		msg := fmt.Errorf("factory '%s' has unknown type '%s'", name, registration.Type)
		return errors.WrapInvalid(msg, "Registry", "RegisterFactory", "type validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		msg := fmt.Errorf("factory '%s' is already registered", name)
		return errors.WrapInvalid(msg, "Registry", "RegisterFactory", "duplicate factory check")
	}
	registration.Name = name
	r.factories[name] = registration
	return nil
}

// RegisterWithConfig registers a factory from a RegistrationConfig
func (r *Registry) RegisterWithConfig(cfg RegistrationConfig) error {
	return r.RegisterFactory(cfg.Name, &Registration{
		Name:        cfg.Name,
		Type:        cfg.Type,
		Protocol:    cfg.Protocol,
		Domain:      cfg.Domain,
		Description: cfg.Description,
		Version:     cfg.Version,
		Schema:      cfg.Schema,
		Factory:     cfg.Factory,
	})
}

// CreateComponent builds the instance instanceName from the factory named in
// cfg and registers it.
func (r *Registry) CreateComponent(instanceName string, cfg config.ComponentConfig, deps Dependencies) (Discoverable, error) {
	if err := ValidateComponentName(instanceName); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "instance name validation")
	}
	if cfg.Type == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "CreateComponent", "component type validation")
	}
	if err := ValidateComponentName(cfg.Name); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "factory name validation")
	}
	if len(cfg.Config) > maxConfigSize {
		msg := fmt.Errorf("config is %d bytes, limit is %d", len(cfg.Config), maxConfigSize)
		return nil, errors.WrapInvalid(msg, "Registry", "CreateComponent", "config size validation")
	}
	if len(cfg.Config) > 0 && !json.Valid(cfg.Config) {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "CreateComponent", "config syntax validation")
	}

	r.mu.RLock()
	registration, exists := r.factories[cfg.Name]
	r.mu.RUnlock()
	if !exists {
		msg := fmt.Errorf("unknown component factory '%s'", cfg.Name)
		return nil, errors.WrapInvalid(msg, "Registry", "CreateComponent", "factory lookup")
	}
	if registration.Type != string(cfg.Type) {
		msg := fmt.Errorf("component '%s' is type '%s', not '%s'", cfg.Name, registration.Type, cfg.Type)
		return nil, errors.WrapInvalid(msg, "Registry", "CreateComponent", "type validation")
	}

	comp, err := registration.Factory(cfg.Config, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "factory execution")
	}
	if err := r.RegisterInstance(instanceName, comp); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "instance registration")
	}
	return comp, nil
}

// RegisterInstance records a created component. Exclusive port resources
// may only be owned by one instance.
func (r *Registry) RegisterInstance(name string, comp Discoverable) error {
	if name == "" || comp == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterInstance", "instance validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[name]; exists {
		msg := fmt.Errorf("instance '%s' is already registered", name)
		return errors.WrapInvalid(msg, "Registry", "RegisterInstance", "duplicate instance check")
	}

	ports := append(comp.InputPorts(), comp.OutputPorts()...)
	for _, port := range ports {
		if port.Config == nil || !port.Config.IsExclusive() {
			continue
		}
		if owner, taken := r.resourceTracker[port.Config.ResourceID()]; taken {
			msg := fmt.Errorf("resource conflict: %s already used by component '%s'", port.Config.ResourceID(), owner)
			return errors.WrapInvalid(msg, "Registry", "RegisterInstance", "exclusive resource check")
		}
	}
	for _, port := range ports {
		if port.Config != nil && port.Config.IsExclusive() {
			r.resourceTracker[port.Config.ResourceID()] = name
		}
	}

	r.instances[name] = comp
	return nil
}

// UnregisterInstance removes an instance and releases its resources
func (r *Registry) UnregisterInstance(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, owner := range r.resourceTracker {
		if owner == name {
			delete(r.resourceTracker, id)
		}
	}
	delete(r.instances, name)
}

// Component returns the named instance, or nil
func (r *Registry) Component(name string) Discoverable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[name]
}

// ListComponents returns a copy of all registered instances
func (r *Registry) ListComponents() map[string]Discoverable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]Discoverable, len(r.instances))
	maps.Copy(result, r.instances)
	return result
}

// GetFactory returns the factory registered under name
func (r *Registry) GetFactory(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return reg.Factory, true
}

// GetComponentSchema returns the schema registered with a factory
func (r *Registry) GetComponentSchema(name string) (ConfigSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.factories[name]
	if !ok {
		msg := fmt.Errorf("unknown component factory '%s'", name)
		return ConfigSchema{}, errors.WrapInvalid(msg, "Registry", "GetComponentSchema", "factory lookup")
	}
	return reg.Schema, nil
}

// ListAvailable describes every registered factory
func (r *Registry) ListAvailable() map[string]Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]Info, len(r.factories))
	for name, reg := range r.factories {
		result[name] = Info{
			Type:        reg.Type,
			Protocol:    reg.Protocol,
			Domain:      reg.Domain,
			Description: reg.Description,
			Version:     reg.Version,
		}
	}
	return result
}

// ListFactoryNames returns registered factory names in sorted order
func (r *Registry) ListFactoryNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateComponentName checks factory and instance names
func ValidateComponentName(name string) error {
	if !componentNamePattern.MatchString(name) {
		msg := fmt.Errorf("invalid component name %q", name)
		return errors.WrapInvalid(msg, "Registry", "ValidateComponentName", "name validation")
	}
	return nil
}
