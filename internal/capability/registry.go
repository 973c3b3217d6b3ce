package capability

import (
	"context"
	"fmt"
	"sort"
)

// Registered pairs a handler with the factory ID it was built from.
type Registered[T any] struct {
	ID      string
	Handler T
}

// Snapshot is the immutable result of one registry build.
type Snapshot struct {
	sensors    []Registered[Sensor]
	listeners  []Registered[Listener]
	operations []string
	templates  []string
	instances  int
}

// EmptySnapshot returns a snapshot with no handlers.
func EmptySnapshot() *Snapshot {
	return &Snapshot{}
}

// Sensors returns the sensors in discovery order.
func (s *Snapshot) Sensors() []Registered[Sensor] {
	return append([]Registered[Sensor](nil), s.sensors...)
}

// Listeners returns the listeners in discovery order.
func (s *Snapshot) Listeners() []Registered[Listener] {
	return append([]Registered[Listener](nil), s.listeners...)
}

// Operations returns the sorted, de-duplicated union of declared operations.
func (s *Snapshot) Operations() []string {
	return append([]string(nil), s.operations...)
}

// Templates returns the sorted, de-duplicated union of declared templates.
func (s *Snapshot) Templates() []string {
	return append([]string(nil), s.templates...)
}

// InstanceCount returns how many handler values the build constructed.
func (s *Snapshot) InstanceCount() int {
	return s.instances
}

// builder holds the per-build state. It is discarded when Build returns.
type builder struct {
	env        Env
	cache      map[string]any
	operations map[string]struct{}
	templates  map[string]struct{}
}

// Build constructs every discovered handler and publishes initializer messages.
//
// Passes run in order: sensors, listeners (collecting operations and
// templates), initializers (publishing their messages in discovery order
// through env.Publisher). A factory ID is constructed at most once.
//
// Parameters:
//   - ctx: Checked between handlers; cancellation aborts the build
//   - env: Identity, publisher and logger handed to every factory
//   - discovery: Factories per role
//
// Returns:
//   - *Snapshot: The complete registry
//   - error: ErrRegistryBuild wrapping the first failure
func Build(ctx context.Context, env Env, discovery Discovery) (*Snapshot, error) {
	if env.Logger == nil {
		env.Logger = noopLogger{}
	}

	b := &builder{
		env:        env,
		cache:      make(map[string]any),
		operations: make(map[string]struct{}),
		templates:  make(map[string]struct{}),
	}
	snap := &Snapshot{}

	for _, f := range discovery.Sensors {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRegistryBuild, err)
		}
		inst, err := b.instance(f)
		if err != nil {
			return nil, err
		}
		sensor, ok := inst.(Sensor)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a Sensor", ErrRegistryBuild, f.ID)
		}
		snap.sensors = append(snap.sensors, Registered[Sensor]{ID: f.ID, Handler: sensor})
	}

	for _, f := range discovery.Listeners {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRegistryBuild, err)
		}
		inst, err := b.instance(f)
		if err != nil {
			return nil, err
		}
		listener, ok := inst.(Listener)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a Listener", ErrRegistryBuild, f.ID)
		}
		if err := b.collect(f.ID, listener); err != nil {
			return nil, err
		}
		snap.listeners = append(snap.listeners, Registered[Listener]{ID: f.ID, Handler: listener})
	}

	for _, f := range discovery.Initializers {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRegistryBuild, err)
		}
		inst, err := b.instance(f)
		if err != nil {
			return nil, err
		}
		initializer, ok := inst.(Initializer)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not an Initializer", ErrRegistryBuild, f.ID)
		}
		if err := b.publishInitial(f.ID, initializer); err != nil {
			return nil, err
		}
	}

	snap.operations = sortedKeys(b.operations)
	snap.templates = sortedKeys(b.templates)
	snap.instances = len(b.cache)

	env.Logger.Info("capability registry built",
		"sensors", len(snap.sensors),
		"listeners", len(snap.listeners),
		"instances", snap.instances,
		"operations", snap.operations,
	)
	return snap, nil
}

// instance returns the cached handler for f.ID, constructing it on first use.
func (b *builder) instance(f Factory) (inst any, err error) {
	if f.ID == "" || f.New == nil {
		return nil, fmt.Errorf("%w: factory without id or constructor", ErrRegistryBuild)
	}
	if inst, ok := b.cache[f.ID]; ok {
		return inst, nil
	}

	defer func() {
		if r := recover(); r != nil {
			inst, err = nil, fmt.Errorf("%w: constructing %s panicked: %v", ErrRegistryBuild, f.ID, r)
		}
	}()

	inst, err = f.New(b.env)
	if err != nil {
		return nil, fmt.Errorf("%w: constructing %s: %w", ErrRegistryBuild, f.ID, err)
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: %s constructed nil", ErrRegistryBuild, f.ID)
	}
	b.cache[f.ID] = inst
	return inst, nil
}

// collect adds a listener's declarations to the unions.
func (b *builder) collect(id string, l Listener) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: querying %s panicked: %v", ErrRegistryBuild, id, r)
		}
	}()

	for _, op := range l.SupportedOperations() {
		b.operations[op] = struct{}{}
	}
	for _, t := range l.SupportedTemplates() {
		b.templates[t] = struct{}{}
	}
	return nil
}

func (b *builder) publishInitial(id string, init Initializer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: querying %s panicked: %v", ErrRegistryBuild, id, r)
		}
	}()

	for _, msg := range init.Messages() {
		b.env.Logger.Debug("publishing initializer message", "handler", id, "topic", msg.Topic, "id", msg.ID)
		if err := b.env.Publisher.Publish(msg, 0); err != nil {
			return fmt.Errorf("%w: publishing %s message %s: %w", ErrRegistryBuild, id, msg.ID, err)
		}
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
