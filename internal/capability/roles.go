package capability

import (
	"context"

	"github.com/nerrad567/edge-agent/internal/device"
	"github.com/nerrad567/edge-agent/internal/smartrest"
)

// Logger is the logging interface handlers and the registry use.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger returns a Logger that discards everything.
func NoopLogger() Logger { return noopLogger{} }

// Publisher sends messages to the management endpoint.
// Publish is best effort: an error means the message was not queued.
type Publisher interface {
	Publish(msg smartrest.Message, qos byte) error
}

// Env is what a handler receives when it is constructed.
type Env struct {
	Identity  device.Identity
	Publisher Publisher
	Logger    Logger
}

// Measurement is one numeric reading reported by a Sensor.
type Measurement struct {
	Fragment string
	Series   string
	Value    float64
	Unit     string
}

// Sensor produces measurements on every steady-state cycle.
type Sensor interface {
	Measurements(ctx context.Context) ([]Measurement, error)
}

// Listener declares what it supports and handles inbound messages.
//
// HandleOperation receives every routed message, whatever its id; a
// listener ignores ids it does not care about. It runs on a worker pool and
// may block, but must honour ctx.
type Listener interface {
	// SupportedOperations returns operation names (nil declares none).
	SupportedOperations() []string

	// SupportedTemplates returns custom template collection ids (nil declares none).
	SupportedTemplates() []string

	HandleOperation(ctx context.Context, msg smartrest.Message) error
}

// Initializer contributes messages published once during registration.
type Initializer interface {
	Messages() []smartrest.Message
}

// Factory constructs one handler. ID must be stable and unique per handler
// type; it is the key of the per-build instance cache.
type Factory struct {
	ID  string
	New func(env Env) (any, error)
}

// Discovery lists the factories for each role in discovery order.
type Discovery struct {
	Sensors      []Factory
	Listeners    []Factory
	Initializers []Factory
}

// Catalog discovers the available handler factories.
type Catalog interface {
	Discover(ctx context.Context) (Discovery, error)
}
