package credentials

import (
	"context"
	"errors"

	"github.com/nerrad567/edge-agent/internal/infrastructure/config"
)

// ErrNotFound is returned when no credentials have been stored yet.
var ErrNotFound = errors.New("credentials: none stored")

// Credentials are the tenant, user and password for broker authentication.
type Credentials struct {
	Tenant   string
	Username string
	Password string
}

// MQTTUsername returns the broker username "<tenant>/<username>".
// Without a tenant the plain username is used.
func (c Credentials) MQTTUsername() string {
	if c.Tenant == "" {
		return c.Username
	}
	return c.Tenant + "/" + c.Username
}

// Source returns the credentials for the next connection attempt.
// A nil result with a nil error means no credentials are needed (mutual TLS).
type Source interface {
	Credentials(ctx context.Context) (*Credentials, error)
}

// ConfigSource reads credentials from the live configuration.
type ConfigSource struct {
	provider *config.Provider
}

// NewConfigSource returns a Source backed by the configuration provider.
func NewConfigSource(provider *config.Provider) *ConfigSource {
	return &ConfigSource{provider: provider}
}

// Credentials returns the configured tenant credentials, or nil in
// mutual-TLS mode.
func (s *ConfigSource) Credentials(_ context.Context) (*Credentials, error) {
	cfg := s.provider.Current()
	if cfg.MQTT.Broker.CertAuth {
		return nil, nil
	}
	auth := cfg.MQTT.Auth
	return &Credentials{
		Tenant:   auth.Tenant,
		Username: auth.Username,
		Password: auth.Password,
	}, nil
}
