package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Client wraps paho.mqtt.golang for one device session.
//
// A Client is built for a single connection (one set of credentials and TLS
// material). Dropped connections are re-established by paho on the same
// Client and tracked subscriptions are restored; a refused or abandoned
// connection is replaced by building a new Client.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	opts   Options

	// subscriptions tracks active subscriptions for re-subscription on reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	// reconnecting is true while paho runs automatic reconnect attempts.
	reconnecting atomic.Bool

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on paho's delivery goroutine and must not block;
// hand long work to a queued worker pool. While a handler blocks, paho
// delivers nothing else and keepalive responses queue behind it.
type MessageHandler func(topic string, payload []byte) error

// New builds a Client for the given options without connecting.
//
// Returns:
//   - *Client: Client ready for Connect
//   - error: ErrTLSConfig if certificate material cannot be loaded
func New(o Options) (*Client, error) {
	c := &Client{
		opts:          o,
		subscriptions: make(map[string]subscription),
	}

	pahoOpts, err := buildClientOptions(o)
	if err != nil {
		return nil, err
	}

	pahoOpts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	pahoOpts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if o.OnReconnecting != nil {
			o.OnReconnecting()
		}
	})
	// The reconnect loop discards the CONNACK code; notifications still carry it.
	pahoOpts.SetConnectionNotificationHandler(func(_ pahomqtt.Client, n pahomqtt.ConnectionNotification) {
		c.handleNotification(n)
	})

	c.client = pahomqtt.NewClient(pahoOpts)
	return c, nil
}

// Connect performs one connection attempt.
//
// Returns:
//   - nil once the broker accepted the connection
//   - *RefusedError (errors.Is ErrConnectionRefused) for a non-zero CONNACK
//   - ErrConnectionFailed for dial, TLS or timeout failures
//   - ctx.Err() if the context ends first
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		c.client.Disconnect(0)
		return ctx.Err()
	case <-time.After(defaultConnectTimeout + time.Second):
		c.client.Disconnect(0)
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}

	if err := token.Error(); err != nil {
		if ct, ok := token.(*pahomqtt.ConnectToken); ok && isRefusal(ct.ReturnCode()) {
			return &RefusedError{Code: ct.ReturnCode()}
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler runs asynchronously and may not have executed yet.
	c.setConnected(true)
	return nil
}

// isRefusal reports whether a CONNACK code came from the broker rather than
// from a local network or protocol failure.
func isRefusal(code byte) bool {
	return code != packets.Accepted && code < packets.ErrNetworkError
}

// refusalCode maps a paho connect error back to the broker's CONNACK code.
func refusalCode(err error) (byte, bool) {
	if err == nil {
		return 0, false
	}
	for code, known := range packets.ConnErrors {
		if isRefusal(code) && errors.Is(err, known) {
			return code, true
		}
	}
	return 0, false
}

func (c *Client) handleNotification(n pahomqtt.ConnectionNotification) {
	switch n := n.(type) {
	case pahomqtt.ConnectionNotificationConnecting:
		c.reconnecting.Store(n.IsReconnect)
	case pahomqtt.ConnectionNotificationConnected:
		c.reconnecting.Store(false)
	case pahomqtt.ConnectionNotificationFailed:
		if !c.reconnecting.Load() || c.opts.OnRefused == nil {
			return
		}
		if code, ok := refusalCode(n.Reason); ok {
			// Called from paho's reconnect goroutine; Disconnect from the
			// callback must not wait on it.
			go c.opts.OnRefused(code)
		}
	}
}

func (c *Client) handleConnect() {
	c.setConnected(true)
	c.restoreSubscriptions()

	if c.opts.OnConnect != nil {
		c.opts.OnConnect()
	}
}

func (c *Client) handleConnectionLost(err error) {
	c.setConnected(false)

	if c.opts.OnConnectionLost != nil {
		c.opts.OnConnectionLost(err)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after reconnect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Errors surface through the next lost-connection callback.
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// Disconnect closes the connection and stops automatic reconnects,
// including a reconnect loop that is still running.
// Safe to call on a client that never connected.
func (c *Client) Disconnect() {
	if c.client == nil {
		return
	}
	if c.client.IsConnected() {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}
	c.setConnected(false)
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

func (c *Client) setConnected(v bool) {
	c.connMu.Lock()
	c.connected = v
	c.connMu.Unlock()
}

// SetLogger sets a logger for handler errors and panics.
// If not set, handler errors are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
