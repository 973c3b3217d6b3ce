package agent

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/edge-agent/internal/capability"
	"github.com/nerrad567/edge-agent/internal/credentials"
	"github.com/nerrad567/edge-agent/internal/device"
	"github.com/nerrad567/edge-agent/internal/dispatch"
	"github.com/nerrad567/edge-agent/internal/infrastructure/config"
	"github.com/nerrad567/edge-agent/internal/infrastructure/influxdb"
	"github.com/nerrad567/edge-agent/internal/maintenance"
	"github.com/nerrad567/edge-agent/internal/metrics"
	"github.com/nerrad567/edge-agent/internal/session"
	"github.com/nerrad567/edge-agent/internal/smartrest"
)

// Default timings.
const (
	DefaultRetryDelay            = 5 * time.Second
	DefaultConnectedPollInterval = time.Second
)

// identityQoS is the QoS of the acknowledged identity announcement.
const identityQoS = 2

// ConfigSource serves the settings re-read on every cycle.
// *config.Provider satisfies it.
type ConfigSource interface {
	Connection() config.ConnectionConfig
	Agent() config.AgentConfig
	MainLoopInterval() time.Duration
}

// MeasurementSink receives sensor samples in addition to the platform.
// *influxdb.Client satisfies it.
type MeasurementSink interface {
	WriteSample(s influxdb.Sample)
}

// Logger is the logging interface used by the agent.
type Logger = capability.Logger

// Options wires an Agent. Config, Credentials and Catalog are required.
type Options struct {
	Config      ConfigSource
	Credentials credentials.Source
	Identity    device.Identity
	Catalog     capability.Catalog

	// Dialer builds transports; nil selects the MQTT client.
	Dialer session.Dialer

	// Sink optionally receives every sensor sample.
	Sink MeasurementSink

	Recorder metrics.Recorder
	Logger   Logger

	// HandlerLogger is handed to capability handlers. Defaults to Logger.
	HandlerLogger Logger

	// Workers bounds concurrent listener invocations.
	Workers int

	RetryDelay            time.Duration
	ConnectedPollInterval time.Duration
	PendingPollInterval   time.Duration
}

// Agent is the orchestrator for one device.
//
// Thread Safety:
//   - Run must be called once; Stop may be called from any goroutine.
type Agent struct {
	opts    Options
	session *session.Session
	router  *dispatch.Router
	poller  *maintenance.Poller

	mu       sync.Mutex
	cancel   context.CancelFunc
	snapshot *capability.Snapshot

	stopped atomic.Bool
}

// New creates an Agent.
//
// Returns:
//   - *Agent: Agent ready for Run
//   - error: ErrInvalidOptions if a required collaborator is missing
func New(opts Options) (*Agent, error) {
	switch {
	case opts.Config == nil:
		return nil, fmt.Errorf("%w: config source is required", ErrInvalidOptions)
	case opts.Credentials == nil:
		return nil, fmt.Errorf("%w: credential source is required", ErrInvalidOptions)
	case opts.Catalog == nil:
		return nil, fmt.Errorf("%w: catalog is required", ErrInvalidOptions)
	}

	if opts.Recorder == nil {
		opts.Recorder = metrics.Nop()
	}
	if opts.Logger == nil {
		opts.Logger = capability.NoopLogger()
	}
	if opts.HandlerLogger == nil {
		opts.HandlerLogger = opts.Logger
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.ConnectedPollInterval <= 0 {
		opts.ConnectedPollInterval = DefaultConnectedPollInterval
	}

	sess := session.New(session.Options{
		Dialer:     opts.Dialer,
		RetryDelay: opts.RetryDelay,
		Recorder:   opts.Recorder,
		Logger:     opts.Logger,
	})

	return &Agent{
		opts:    opts,
		session: sess,
		router: dispatch.New(dispatch.Options{
			Workers:  opts.Workers,
			Tokens:   sess,
			Recorder: opts.Recorder,
			Logger:   opts.Logger,
		}),
		poller: maintenance.NewPoller(sess, opts.PendingPollInterval, opts.Logger),
	}, nil
}

// Session returns the agent's session.
func (a *Agent) Session() *session.Session {
	return a.session
}

// Snapshot returns the registry of the last completed registration, or nil.
func (a *Agent) Snapshot() *capability.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}

// Run drives the agent until ctx is cancelled or Stop is called.
// It always returns nil; failures are logged and retried.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
	if a.stopped.Load() {
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.poller.Run(ctx)
	}()

	log := a.opts.Logger
	log.Info("agent starting", "serial", a.opts.Identity.Serial, "device", a.opts.Identity.Name)

	for {
		cycle := uuid.NewString()
		err := a.runCycle(ctx, cycle)
		if ctx.Err() != nil || a.session.Stopped() {
			break
		}

		a.opts.Recorder.Restart()
		log.Error("agent cycle failed",
			"cycle", cycle,
			"retry_in", a.opts.RetryDelay,
			"error", err,
		)
		a.session.Disconnect()

		if !sleep(ctx, a.opts.RetryDelay) {
			break
		}
	}

	cancel()
	a.session.Stop()
	a.router.Close()
	wg.Wait()

	log.Info("agent stopped")
	return nil
}

// Stop ends Run. It does not wait for dispatched handlers.
func (a *Agent) Stop() {
	a.stopped.Store(true)
	a.session.Stop()

	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// runCycle runs one connect-register-operate pass. It returns only on
// failure or cancellation.
func (a *Agent) runCycle(ctx context.Context, cycle string) error {
	log := a.opts.Logger
	conn := a.opts.Config.Connection()

	creds, err := a.opts.Credentials.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("fetching credentials: %w", err)
	}

	log.Info("connecting", "cycle", cycle, "host", conn.Host, "port", conn.Port)
	if err := a.session.Connect(ctx, creds, a.opts.Identity, conn); err != nil {
		return err
	}

	if err := a.waitConnected(ctx); err != nil {
		return err
	}

	snap, err := a.register(ctx, conn)
	if err != nil {
		return fmt.Errorf("registration: %w", err)
	}
	log.Info("registration complete",
		"cycle", cycle,
		"operations", snap.Operations(),
		"templates", snap.Templates(),
	)

	return a.operate(ctx, snap)
}

func (a *Agent) waitConnected(ctx context.Context) error {
	for !a.session.IsConnected() {
		if a.session.State() == session.StateDisconnected {
			return ErrConnectionLost
		}
		if !sleep(ctx, a.opts.ConnectedPollInterval) {
			return ctx.Err()
		}
	}
	return nil
}

// register runs the registration sequence on a connected session.
func (a *Agent) register(ctx context.Context, conn config.ConnectionConfig) (*capability.Snapshot, error) {
	id := a.opts.Identity
	a.session.BeginRegistration()

	// Everything after this depends on the device being known to the platform.
	if err := a.session.PublishSync(smartrest.New(smartrest.MsgDeviceCreation, id.Name, id.Type), identityQoS); err != nil {
		return nil, fmt.Errorf("announcing identity: %w", err)
	}

	discovery, err := a.opts.Catalog.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering handlers: %w", err)
	}

	snap, err := capability.Build(ctx, capability.Env{
		Identity:  id,
		Publisher: a.session,
		Logger:    a.opts.HandlerLogger,
	}, discovery)
	if err != nil {
		return nil, err
	}
	a.opts.Recorder.SetSupportedOperations(len(snap.Operations()))

	announcements := []smartrest.Message{
		smartrest.New(smartrest.MsgSupportedOperations, snap.Operations()...),
		smartrest.New(smartrest.MsgRequiredAvailability, strconv.Itoa(a.opts.Config.Agent().RequiredInterval)),
		smartrest.New(smartrest.MsgHardware, id.Serial, id.Model, id.Version),
	}
	for _, msg := range announcements {
		if err := a.session.Publish(msg, 0); err != nil {
			return nil, fmt.Errorf("publishing %s: %w", msg.ID, err)
		}
	}

	// Listeners must be in place before the first subscription delivers.
	a.router.SetSnapshot(snap)

	for _, topic := range (smartrest.Topics{}).Subscriptions(snap.Templates()) {
		if err := a.session.Subscribe(topic, 0, a.router.Route); err != nil {
			return nil, fmt.Errorf("subscribing %s: %w", topic, err)
		}
	}

	if conn.CertAuth {
		refresher := maintenance.NewRefresher(a.session, conn.TokenRefreshInterval, a.opts.Logger)
		a.session.AttachRefresher(refresher)
		refresher.Start()
	}

	a.session.RegistrationComplete()

	a.mu.Lock()
	a.snapshot = snap
	a.mu.Unlock()
	return snap, nil
}

// operate samples sensors every main-loop interval until ctx ends or the
// session reports a fault. The interval is re-read every cycle.
func (a *Agent) operate(ctx context.Context, snap *capability.Snapshot) error {
	faults := a.session.Faults()
	for {
		timer := time.NewTimer(a.opts.Config.MainLoopInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case err := <-faults:
			timer.Stop()
			return err
		case <-timer.C:
		}
		a.sample(ctx, snap)
	}
}

func (a *Agent) sample(ctx context.Context, snap *capability.Snapshot) {
	now := time.Now()
	for _, sensor := range snap.Sensors() {
		measurements, err := a.measure(ctx, sensor)
		if err != nil {
			a.opts.Logger.Warn("sensor failed", "sensor", sensor.ID, "error", err)
			continue
		}

		for _, m := range measurements {
			if err := a.session.Publish(smartrest.Measurement(m.Fragment, m.Series, m.Value, m.Unit), 0); err != nil {
				a.opts.Logger.Debug("measurement not sent", "sensor", sensor.ID, "error", err)
			}
			if a.opts.Sink != nil {
				a.opts.Sink.WriteSample(influxdb.Sample{
					DeviceID: a.opts.Identity.Serial,
					Fragment: m.Fragment,
					Series:   m.Series,
					Unit:     m.Unit,
					Value:    m.Value,
					Time:     now,
				})
			}
		}
	}
}

// measure calls one sensor with panic isolation.
func (a *Agent) measure(ctx context.Context, sensor capability.Registered[capability.Sensor]) (ms []capability.Measurement, err error) {
	defer func() {
		if r := recover(); r != nil {
			ms, err = nil, fmt.Errorf("sensor panicked: %v", r)
		}
	}()
	return sensor.Handler.Measurements(ctx)
}

// sleep waits d or until ctx ends. It reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
