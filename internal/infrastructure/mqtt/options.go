package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/edge-agent/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for a CONNACK.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive applies when the configured keep-alive is zero.
	defaultKeepAlive = 60 * time.Second

	// maxReconnectInterval caps paho's backoff between automatic reconnects.
	maxReconnectInterval = 30 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options describes one connection to the broker.
type Options struct {
	// Connection holds broker address, keep-alive and TLS settings.
	Connection config.ConnectionConfig

	// ClientID is the MQTT client identifier (the device serial).
	ClientID string

	// Username and Password are sent only when mutual TLS is off.
	Username string
	Password string

	// OnConnect is invoked after every successful connect and reconnect,
	// after tracked subscriptions have been restored.
	OnConnect func()

	// OnConnectionLost is invoked when an established connection drops.
	OnConnectionLost func(err error)

	// OnReconnecting is invoked before paho attempts an automatic reconnect.
	OnReconnecting func()

	// OnRefused is invoked when the broker answers an automatic reconnect
	// with a non-zero CONNACK code. paho keeps retrying with the same
	// credentials, so the owner is expected to Disconnect and rebuild.
	// Refusals of the initial connect are returned by Connect instead.
	OnRefused func(code byte)
}

// brokerURL returns the broker URL for the given connection settings.
func brokerURL(conn config.ConnectionConfig) string {
	scheme := "tcp"
	if conn.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, conn.Host, conn.Port)
}

// buildClientOptions creates paho options from Options.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID (device serial)
//   - Username/password unless mutual TLS is active
//   - Clean session and keep-alive
//   - Auto-reconnect for dropped connections (no retry of the initial connect;
//     the session owns that loop)
//   - TLS in one of two exclusive modes
func buildClientOptions(o Options) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL(o.Connection))
	opts.SetClientID(o.ClientID)

	if !o.Connection.CertAuth && o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	opts.SetCleanSession(true)

	// The session retries the first connect itself with a fixed delay.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(maxReconnectInterval)

	opts.SetConnectTimeout(defaultConnectTimeout)

	keepAlive := o.Connection.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if o.Connection.TLS {
		tlsConfig, err := buildTLSConfig(o.Connection)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts, nil
}

// buildTLSConfig returns the TLS settings for the connection.
//
// Modes:
//   - server-authenticated TLS: verify the broker against CACert (or the
//     system pool when CACert is empty)
//   - mutual TLS (CertAuth): additionally present the client certificate;
//     broker verification can be disabled with InsecureSkipVerify
func buildTLSConfig(conn config.ConnectionConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tlsMinVersion,
	}

	if conn.CACert != "" {
		pem, err := os.ReadFile(conn.CACert)
		if err != nil {
			return nil, fmt.Errorf("%w: reading CA certificate: %w", ErrTLSConfig, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates found in %s", ErrTLSConfig, conn.CACert)
		}
		tlsConfig.RootCAs = pool
	}

	if conn.CertAuth {
		cert, err := tls.LoadX509KeyPair(conn.ClientCert, conn.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("%w: loading client certificate: %w", ErrTLSConfig, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
		tlsConfig.InsecureSkipVerify = conn.InsecureSkipVerify //nolint:gosec // opt-in legacy broker setups
	}

	return tlsConfig, nil
}
