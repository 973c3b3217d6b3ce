package config

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Provider serves the current configuration and picks up edits to the file.
//
// The file is re-read when its modification time changes. A broken edit
// (unreadable, invalid YAML, failed validation) is reported through the
// error callback and the last good configuration stays in effect.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Provider struct {
	path string

	mu      sync.Mutex
	current *Config
	modTime time.Time
	onError func(err error)
}

// NewProvider loads the file once and returns a Provider serving it.
//
// Returns:
//   - *Provider: Provider holding the initial configuration
//   - error: If the initial load fails (there is no last good config yet)
func NewProvider(path string) (*Provider, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	return &Provider{
		path:    path,
		current: cfg,
		modTime: info.ModTime(),
	}, nil
}

// NewStaticProvider returns a Provider that always serves cfg.
// Useful for tests and embedded use.
func NewStaticProvider(cfg *Config) *Provider {
	return &Provider{current: cfg}
}

// SetOnError sets a callback invoked when a reload fails.
func (p *Provider) SetOnError(callback func(err error)) {
	p.mu.Lock()
	p.onError = callback
	p.mu.Unlock()
}

// Path returns the watched file path (empty for static providers).
func (p *Provider) Path() string {
	return p.path
}

// Current returns the latest valid configuration.
// The returned value must be treated as read-only.
func (p *Provider) Current() *Config {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.path == "" {
		return p.current
	}

	info, err := os.Stat(p.path)
	if err != nil {
		p.reportLocked(fmt.Errorf("reading config file: %w", err))
		return p.current
	}
	if info.ModTime().Equal(p.modTime) {
		return p.current
	}

	cfg, err := Load(p.path)
	if err != nil {
		p.reportLocked(err)
		// Remember the broken mtime so the same bad file is not re-parsed every call.
		p.modTime = info.ModTime()
		return p.current
	}

	p.current = cfg
	p.modTime = info.ModTime()
	return p.current
}

// Connection returns the broker settings from the latest configuration.
func (p *Provider) Connection() ConnectionConfig {
	return p.Current().Connection()
}

// Agent returns the agent section from the latest configuration.
func (p *Provider) Agent() AgentConfig {
	return p.Current().Agent
}

// MainLoopInterval returns the steady-state cycle length from the latest configuration.
func (p *Provider) MainLoopInterval() time.Duration {
	return p.Current().GetMainLoopInterval()
}

// Auth returns the configured tenant credentials.
func (p *Provider) Auth() MQTTAuthConfig {
	return p.Current().MQTT.Auth
}

func (p *Provider) reportLocked(err error) {
	if p.onError != nil {
		p.onError(err)
	}
}
