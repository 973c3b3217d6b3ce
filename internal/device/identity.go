package device

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// Hardware model tags reported with message 110.
const (
	ModelSimulated = "docker"
	ModelHardware  = "raspberry"

	// Version is the hardware revision reported with message 110.
	Version = "1.0"
)

// ErrNoSerial is returned when no serial is configured and the host id
// cannot be determined.
var ErrNoSerial = errors.New("device: serial could not be determined")

// Identity is the device as announced to the management endpoint.
type Identity struct {
	Serial  string
	Name    string
	Type    string
	Model   string
	Version string
}

// Settings are the inputs to Resolve.
type Settings struct {
	// Serial from the command line; wins over everything else.
	FlagSerial string

	// Serial from the configuration file.
	ConfigSerial string

	// NamePrefix is combined with the serial as "<prefix>-<serial>".
	NamePrefix string

	// Type is the device type.
	Type string

	// Simulated selects the simulated model tag.
	Simulated bool
}

// HostIDFunc returns a stable host identifier.
type HostIDFunc func(ctx context.Context) (string, error)

// Resolver builds the Identity. The host-id lookup is injectable for tests.
type Resolver struct {
	hostID HostIDFunc
}

// NewResolver returns a Resolver that falls back to the gopsutil host id.
func NewResolver() *Resolver {
	return &Resolver{hostID: host.HostIDWithContext}
}

// NewResolverWithHostID returns a Resolver using fn for the host id fallback.
func NewResolverWithHostID(fn HostIDFunc) *Resolver {
	return &Resolver{hostID: fn}
}

// Resolve computes the device identity.
//
// The serial comes from the flag, else the configuration, else the host id.
//
// Returns:
//   - Identity: The resolved identity
//   - error: ErrNoSerial if every source is empty or fails
func (r *Resolver) Resolve(ctx context.Context, s Settings) (Identity, error) {
	serial := strings.TrimSpace(s.FlagSerial)
	if serial == "" {
		serial = strings.TrimSpace(s.ConfigSerial)
	}
	if serial == "" && r.hostID != nil {
		id, err := r.hostID(ctx)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %w", ErrNoSerial, err)
		}
		serial = strings.TrimSpace(id)
	}
	if serial == "" {
		return Identity{}, ErrNoSerial
	}

	model := ModelHardware
	if s.Simulated {
		model = ModelSimulated
	}

	return Identity{
		Serial:  serial,
		Name:    s.NamePrefix + "-" + serial,
		Type:    s.Type,
		Model:   model,
		Version: Version,
	}, nil
}
