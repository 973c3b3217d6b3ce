package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/edge-agent/internal/credentials"
	"github.com/nerrad567/edge-agent/internal/device"
	"github.com/nerrad567/edge-agent/internal/infrastructure/config"
	"github.com/nerrad567/edge-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/edge-agent/internal/metrics"
	"github.com/nerrad567/edge-agent/internal/smartrest"
)

// DefaultRetryDelay is the pause between failed connect attempts.
const DefaultRetryDelay = 5 * time.Second

// Transport is the broker connection a Session drives.
// *mqtt.Client satisfies it.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishAsync(topic string, payload []byte, qos byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Dialer builds an unconnected Transport for one connect attempt.
type Dialer func(o mqtt.Options) (Transport, error)

// DialMQTT is the default Dialer.
func DialMQTT(o mqtt.Options) (Transport, error) {
	c, err := mqtt.New(o)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Stopper is a background task the session stops on disconnect.
type Stopper interface {
	Stop()
}

// Logger is the logging interface used by the session.
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

// Options configures a Session. Zero values select defaults.
type Options struct {
	Dialer     Dialer
	RetryDelay time.Duration
	Recorder   metrics.Recorder
	Logger     Logger
}

// Session owns one broker connection at a time.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - The connected flag is written only by HandleConnect and the
//     disconnect paths; readers tolerate staleness.
type Session struct {
	dialer     Dialer
	retryDelay time.Duration
	rec        metrics.Recorder
	logger     Logger

	mu         sync.Mutex
	transport  Transport
	state      State
	certAuth   bool
	registered bool
	refresher  Stopper
	token      string

	// generation identifies the current Connect call; callbacks from
	// transports of earlier calls are ignored.
	generation uint64

	connected atomic.Bool
	stopped   atomic.Bool
	stopCh    chan struct{}
	faults    chan error
}

// New creates a disconnected Session.
func New(opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = DialMQTT
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.Nop()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Session{
		dialer:     opts.Dialer,
		retryDelay: opts.RetryDelay,
		rec:        opts.Recorder,
		logger:     opts.Logger,
		state:      StateDisconnected,
		stopCh:     make(chan struct{}),
		faults:     make(chan error, 1),
	}
}

// Connect establishes a connection, retrying transport failures.
//
// TLS runs in one of two exclusive modes chosen by cfg: CA-only with
// username and password taken from creds, or mutual TLS with the client
// certificate and no password. creds may be nil in mutual-TLS mode.
//
// Parameters:
//   - ctx: Cancels the retry loop
//   - creds: Credentials for this attempt only; never retained
//   - identity: The serial becomes the MQTT client id
//   - cfg: Broker settings for this attempt
//
// Returns:
//   - nil once the broker accepted the connection
//   - ErrConnectRefused (wrapping *mqtt.RefusedError) on a non-zero CONNACK
//   - ErrStopped if the session was stopped
//   - ctx.Err() if the context ended
func (s *Session) Connect(ctx context.Context, creds *credentials.Credentials, identity device.Identity, cfg config.ConnectionConfig) error {
	if s.stopped.Load() {
		return ErrStopped
	}

	s.mu.Lock()
	s.certAuth = cfg.CertAuth
	s.registered = false
	s.generation++
	gen := s.generation
	s.mu.Unlock()
	s.setState(StateConnecting)

	// A fault from the previous connection has already ended its cycle.
	select {
	case <-s.faults:
	default:
	}

	opts := mqtt.Options{
		Connection:       cfg,
		ClientID:         identity.Serial,
		OnConnect:        func() { s.HandleConnect(0) },
		OnConnectionLost: s.HandleConnectionLost,
		OnReconnecting: func() {
			s.logger.Info("reconnecting to broker", "host", cfg.Host)
		},
		OnRefused: func(code byte) { s.handleRefused(gen, code) },
	}
	if !cfg.CertAuth && creds != nil {
		opts.Username = creds.MQTTUsername()
		opts.Password = creds.Password
	}
	if cfg.CertAuth && cfg.InsecureSkipVerify {
		s.logger.Warn("broker certificate verification disabled", "host", cfg.Host)
	}

	for attempt := 1; ; attempt++ {
		err := s.attempt(ctx, opts)
		if err == nil {
			s.rec.ConnectAttempt(metrics.ResultSuccess)
			s.logger.Info("connected to broker",
				"host", cfg.Host,
				"port", cfg.Port,
				"tls", cfg.TLS,
				"cert_auth", cfg.CertAuth,
				"attempt", attempt,
			)
			return nil
		}

		var refused *mqtt.RefusedError
		switch {
		case errors.As(err, &refused):
			s.rec.ConnectAttempt(metrics.ResultRefused)
			s.HandleConnect(refused.Code)
			return fmt.Errorf("%w: %w", ErrConnectRefused, err)
		case s.stopped.Load():
			return ErrStopped
		case ctx.Err() != nil:
			s.setState(StateDisconnected)
			return ctx.Err()
		}

		s.rec.ConnectAttempt(metrics.ResultFailed)
		s.logger.Warn("connect attempt failed",
			"host", cfg.Host,
			"port", cfg.Port,
			"attempt", attempt,
			"retry_in", s.retryDelay,
			"error", err,
		)

		if err := s.wait(ctx, s.retryDelay); err != nil {
			s.setState(StateDisconnected)
			return err
		}
	}
}

// attempt builds a transport and connects it once.
func (s *Session) attempt(ctx context.Context, opts mqtt.Options) error {
	t, err := s.dialer(opts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()

	if err := t.Connect(ctx); err != nil {
		s.dropTransport(t)
		return err
	}

	// Mark connected here as well: the transport's connect callback runs
	// asynchronously and may lag behind Connect returning.
	s.HandleConnect(0)
	return nil
}

// dropTransport disconnects t and forgets it if it is still current.
func (s *Session) dropTransport(t Transport) {
	s.mu.Lock()
	if s.transport == t {
		s.transport = nil
	}
	s.mu.Unlock()
	t.Disconnect()
}

func (s *Session) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopCh:
		return ErrStopped
	case <-timer.C:
		return nil
	}
}

// HandleConnect is the on-connect callback.
//
// Code 0 marks the session connected. A reconnect after a lost connection
// returns to Operating when registration had completed. Any other code
// disconnects the session and reports ErrConnectRefused on Faults; during
// Connect the same error is also returned directly.
func (s *Session) HandleConnect(code byte) {
	if s.stopped.Load() {
		return
	}

	if code != 0 {
		s.logger.Error("broker refused connection", "code", code)
		s.Disconnect()
		s.fault(fmt.Errorf("%w: %w", ErrConnectRefused, &mqtt.RefusedError{Code: code}))
		return
	}

	s.connected.Store(true)
	s.rec.SetConnected(true)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == StateConnecting && s.registered:
		s.state = StateOperating
		s.logger.Info("connection restored")
	case s.state == StateConnecting || s.state == StateDisconnected:
		s.state = StateConnected
	}
}

// handleRefused reports a refused automatic reconnect of the transport
// built by Connect call gen.
func (s *Session) handleRefused(gen uint64, code byte) {
	s.mu.Lock()
	current := gen == s.generation
	s.mu.Unlock()
	if !current {
		return
	}
	s.rec.ConnectAttempt(metrics.ResultRefused)
	s.HandleConnect(code)
}

// Faults delivers errors that end the current connection outside of
// Connect, such as a refused reconnect. At most one fault is buffered;
// Connect discards a fault left over from the previous connection.
func (s *Session) Faults() <-chan error {
	return s.faults
}

func (s *Session) fault(err error) {
	select {
	case s.faults <- err:
	default:
	}
}

// HandleConnectionLost is the on-disconnect callback for unexpected drops.
// The transport reconnects on its own; the registry and subscriptions are
// kept.
func (s *Session) HandleConnectionLost(err error) {
	s.connected.Store(false)
	s.rec.SetConnected(false)
	s.logger.Warn("connection lost", "error", err)

	s.mu.Lock()
	if s.state.live() {
		s.state = StateConnecting
	}
	s.mu.Unlock()
}

// Disconnect closes the current transport. In mutual-TLS mode the attached
// refresher is stopped; it is detached so it is stopped only once.
func (s *Session) Disconnect() {
	s.mu.Lock()
	t := s.transport
	s.transport = nil
	var refresher Stopper
	if s.certAuth {
		refresher = s.refresher
	}
	s.refresher = nil
	s.registered = false
	if s.state != StateStopped {
		s.state = StateDisconnected
	}
	s.mu.Unlock()

	if t != nil {
		t.Disconnect()
	}
	s.connected.Store(false)
	s.rec.SetConnected(false)

	if refresher != nil {
		refresher.Stop()
	}
}

// Stop disconnects and moves the session to the terminal Stopped state.
func (s *Session) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.stopCh)

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	s.Disconnect()
	s.logger.Info("session stopped")
}

// Stopped reports whether Stop has been called.
func (s *Session) Stopped() bool {
	return s.stopped.Load()
}

// IsConnected reports the connected flag.
func (s *Session) IsConnected() bool {
	return s.connected.Load()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	if s.state != StateStopped {
		s.state = state
	}
	s.mu.Unlock()
}

// BeginRegistration moves a connected session to Registering.
func (s *Session) BeginRegistration() {
	s.mu.Lock()
	if s.state == StateConnected {
		s.state = StateRegistering
	}
	s.mu.Unlock()
}

// RegistrationComplete moves the session to Operating.
func (s *Session) RegistrationComplete() {
	s.mu.Lock()
	s.registered = true
	if s.state == StateRegistering || s.state == StateConnected {
		s.state = StateOperating
	}
	s.mu.Unlock()
}

// AttachRefresher registers the credential refresher stopped by the next
// Disconnect in mutual-TLS mode.
func (s *Session) AttachRefresher(r Stopper) {
	s.mu.Lock()
	s.refresher = r
	s.mu.Unlock()
}

func (s *Session) current() (Transport, error) {
	if s.stopped.Load() {
		return nil, ErrStopped
	}
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return nil, mqtt.ErrNotConnected
	}
	return t, nil
}

// Publish queues msg without waiting for acknowledgement.
func (s *Session) Publish(msg smartrest.Message, qos byte) error {
	t, err := s.current()
	if err == nil {
		err = t.PublishAsync(msg.Topic, msg.Payload(), qos)
	}
	s.recordPublish(msg, err)
	return err
}

// PublishSync sends msg and waits for the broker to acknowledge it.
func (s *Session) PublishSync(msg smartrest.Message, qos byte) error {
	t, err := s.current()
	if err == nil {
		err = t.Publish(msg.Topic, msg.Payload(), qos, false)
	}
	s.recordPublish(msg, err)
	return err
}

func (s *Session) recordPublish(msg smartrest.Message, err error) {
	if err != nil {
		s.rec.Publish(msg.ID, metrics.StatusError)
		s.logger.Debug("publish failed", "topic", msg.Topic, "id", msg.ID, "error", err)
		return
	}
	s.rec.Publish(msg.ID, metrics.StatusOK)
}

// Subscribe subscribes the current transport to topic.
func (s *Session) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	t, err := s.current()
	if err != nil {
		return err
	}
	if err := t.Subscribe(topic, qos, handler); err != nil {
		return err
	}
	s.logger.Debug("subscribed", "topic", topic, "qos", qos)
	return nil
}

// SetToken stores the latest security token.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Token returns the latest security token, or "" if none was received.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}
