// Package service runs the configured pipeline components as one unit.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mnbf9rca/eventhub-to-timescale/component"
	"github.com/mnbf9rca/eventhub-to-timescale/config"
	"github.com/mnbf9rca/eventhub-to-timescale/errors"
	"github.com/mnbf9rca/eventhub-to-timescale/health"
)

// startStages orders component types so that every subscriber exists before
// anything upstream publishes. Stop runs the stages in reverse.
var startStages = []config.ComponentType{
	config.ComponentTypeOutput,
	config.ComponentTypeProcessor,
	config.ComponentTypeInput,
}

type managed struct {
	name  string
	typ   config.ComponentType
	comp  component.LifecycleComponent
	state component.State
}

// ComponentManager creates, starts and stops components.
//
//	Build(cfgs)  - create every enabled component through the registry
//	Start(ctx)   - initialize all, then start outputs, processors, inputs
//	Stop(t)      - stop inputs, processors, outputs
type ComponentManager struct {
	registry *component.Registry
	deps     component.Dependencies
	logger   *slog.Logger

	// checks are dependency probes (NATS) folded into Health.
	checks map[string]func() error

	mu         sync.RWMutex
	components []*managed
	started    []*managed
}

// NewComponentManager returns a manager creating components from registry.
func NewComponentManager(registry *component.Registry, deps component.Dependencies) *ComponentManager {
	return &ComponentManager{
		registry: registry,
		deps:     deps,
		logger:   deps.GetLoggerWithComponent("component-manager"),
		checks:   make(map[string]func() error),
	}
}

// AddCheck folds a dependency probe into Health.
func (m *ComponentManager) AddCheck(name string, check func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// Build creates every enabled component in cfg, in name order.
func (m *ComponentManager) Build(cfg *config.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.components) > 0 {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "ComponentManager", "Build", "check state")
	}

	for _, name := range cfg.EnabledComponents() {
		compCfg := cfg.Components[name]
		comp, err := m.registry.CreateComponent(name, compCfg, m.deps)
		if err != nil {
			m.unregisterAll()
			return errors.Wrap(err, "ComponentManager", "Build", fmt.Sprintf("create %s", name))
		}
		lc, ok := comp.(component.LifecycleComponent)
		if !ok {
			m.unregisterAll()
			return errors.WrapFatal(fmt.Errorf("component %s has no lifecycle", name), "ComponentManager", "Build", "check lifecycle")
		}
		m.components = append(m.components, &managed{name: name, typ: compCfg.Type, comp: lc, state: component.StateCreated})
		m.logger.Debug("Created component", "name", name, "factory", compCfg.Name, "type", compCfg.Type)
	}
	if len(m.components) == 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: no enabled components", errors.ErrMissingConfig), "ComponentManager", "Build", "check components")
	}
	m.logger.Info("Components created", "count", len(m.components))
	return nil
}

func (m *ComponentManager) unregisterAll() {
	for _, c := range m.components {
		m.registry.UnregisterInstance(c.name)
	}
	m.components = nil
}

func (m *ComponentManager) stage(typ config.ComponentType) []*managed {
	var out []*managed
	for _, c := range m.components {
		if c.typ == typ {
			out = append(out, c)
		}
	}
	return out
}

// Start initializes every component and then starts them stage by stage.
// Components within a stage start concurrently. If any start fails, the
// components already started are stopped again.
func (m *ComponentManager) Start(ctx context.Context, rollbackTimeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.started) > 0 {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "ComponentManager", "Start", "check state")
	}

	var initGroup errgroup.Group
	for _, c := range m.components {
		initGroup.Go(func() error {
			if err := c.comp.Initialize(); err != nil {
				c.state = component.StateFailed
				return errors.Wrap(err, "ComponentManager", "Start", fmt.Sprintf("initialize %s", c.name))
			}
			c.state = component.StateInitialized
			return nil
		})
	}
	if err := initGroup.Wait(); err != nil {
		return err
	}

	for _, typ := range startStages {
		stage := m.stage(typ)
		group, groupCtx := errgroup.WithContext(ctx)
		var mu sync.Mutex
		var ok []*managed
		for _, c := range stage {
			group.Go(func() error {
				if err := c.comp.Start(groupCtx); err != nil {
					c.state = component.StateFailed
					return errors.Wrap(err, "ComponentManager", "Start", fmt.Sprintf("start %s", c.name))
				}
				c.state = component.StateStarted
				mu.Lock()
				ok = append(ok, c)
				mu.Unlock()
				m.logger.Info("Started component", "name", c.name, "type", c.typ)
				return nil
			})
		}
		err := group.Wait()
		m.started = append(m.started, ok...)
		if err != nil {
			m.stopLocked(rollbackTimeout)
			return err
		}
	}
	return nil
}

// Stop stops the started components in reverse start order, giving each
// at most timeout. Every component is asked to stop even if one fails.
func (m *ComponentManager) Stop(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(timeout)
}

func (m *ComponentManager) stopLocked(timeout time.Duration) error {
	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		c := m.started[i]
		if err := c.comp.Stop(timeout); err != nil {
			c.state = component.StateFailed
			m.logger.Error("Failed to stop component", "name", c.name, "error", err)
			errs = append(errs, fmt.Errorf("stop %s: %w", c.name, err))
			continue
		}
		c.state = component.StateStopped
		m.logger.Info("Stopped component", "name", c.name)
	}
	m.started = nil
	if len(errs) > 0 {
		return errors.WrapTransient(stderrors.Join(errs...), "ComponentManager", "Stop", "stop components")
	}
	return nil
}

// Health aggregates every component and dependency check.
func (m *ComponentManager) Health() health.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := make([]health.Status, 0, len(m.components)+len(m.checks))
	for name, check := range m.checks {
		subs = append(subs, health.FromCheck(name, check()))
	}
	for _, c := range m.components {
		subs = append(subs, health.FromComponent(c.name, c.comp.Health()))
	}
	return health.Aggregate("pipeline", subs)
}

// Check returns an error when the pipeline is unhealthy. It matches
// metric.HealthFunc.
func (m *ComponentManager) Check() error {
	return m.Health().Err()
}

// States returns the lifecycle state of every created component.
func (m *ComponentManager) States() map[string]component.State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]component.State, len(m.components))
	for _, c := range m.components {
		states[c.name] = c.state
	}
	return states
}

// Components returns the names of the created components in start order.
func (m *ComponentManager) Components() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.components))
	for _, typ := range startStages {
		for _, c := range m.stage(typ) {
			names = append(names, c.name)
		}
	}
	return names
}
