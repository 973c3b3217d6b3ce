package plugins

import (
	"context"

	"github.com/nerrad567/edge-agent/internal/capability"
	"github.com/nerrad567/edge-agent/internal/infrastructure/config"
)

// Handler ids. They key the registry's instance cache.
const (
	IDConfiguration = "configuration"
	IDSystem        = "system"
	IDCommand       = "command"
)

// Catalog discovers the built-in handlers enabled in the current
// configuration.
type Catalog struct {
	provider *config.Provider

	// System overrides the system handler's collectors and restart hook.
	System SystemOptions
}

// NewCatalog returns a Catalog reading plugin toggles from provider.
func NewCatalog(provider *config.Provider) *Catalog {
	return &Catalog{provider: provider}
}

// Discover returns the factories for every enabled handler.
// Toggles are read on each call so a rebuild picks up config edits.
func (c *Catalog) Discover(ctx context.Context) (capability.Discovery, error) {
	if err := ctx.Err(); err != nil {
		return capability.Discovery{}, err
	}

	cfg := c.provider.Current().Plugins
	var d capability.Discovery

	if cfg.System.Enabled {
		system := capability.Factory{ID: IDSystem, New: func(env capability.Env) (any, error) {
			return NewSystem(env, c.System), nil
		}}
		d.Sensors = append(d.Sensors, system)
		d.Listeners = append(d.Listeners, system)
	}

	if cfg.Configuration.Enabled {
		configuration := capability.Factory{ID: IDConfiguration, New: func(env capability.Env) (any, error) {
			return NewConfiguration(env, c.provider), nil
		}}
		d.Listeners = append(d.Listeners, configuration)
		d.Initializers = append(d.Initializers, configuration)
	}

	if cfg.Command.Enabled {
		d.Listeners = append(d.Listeners, capability.Factory{ID: IDCommand, New: func(env capability.Env) (any, error) {
			return NewCommand(env, c.provider), nil
		}})
	}

	return d, nil
}
