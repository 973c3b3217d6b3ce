package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticHostID(id string, err error) HostIDFunc {
	return func(context.Context) (string, error) { return id, err }
}

func TestResolve_SerialPrecedence(t *testing.T) {
	tests := []struct {
		name       string
		settings   Settings
		hostID     HostIDFunc
		wantSerial string
	}{
		{
			name:       "flag wins",
			settings:   Settings{FlagSerial: "flag-1", ConfigSerial: "cfg-1"},
			hostID:     staticHostID("host-1", nil),
			wantSerial: "flag-1",
		},
		{
			name:       "config when no flag",
			settings:   Settings{ConfigSerial: " cfg-1 "},
			hostID:     staticHostID("host-1", nil),
			wantSerial: "cfg-1",
		},
		{
			name:       "host id fallback",
			settings:   Settings{},
			hostID:     staticHostID("host-1", nil),
			wantSerial: "host-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := NewResolverWithHostID(tt.hostID).Resolve(context.Background(), tt.settings)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSerial, id.Serial)
		})
	}
}

func TestResolve_Identity(t *testing.T) {
	r := NewResolverWithHostID(staticHostID("", nil))

	id, err := r.Resolve(context.Background(), Settings{
		ConfigSerial: "0001",
		NamePrefix:   "dm-example-device",
		Type:         "c8y_dm_example_device",
		Simulated:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, Identity{
		Serial:  "0001",
		Name:    "dm-example-device-0001",
		Type:    "c8y_dm_example_device",
		Model:   ModelSimulated,
		Version: Version,
	}, id)

	id, err = r.Resolve(context.Background(), Settings{ConfigSerial: "0001"})
	require.NoError(t, err)
	assert.Equal(t, ModelHardware, id.Model)
}

func TestResolve_NoSerial(t *testing.T) {
	_, err := NewResolverWithHostID(staticHostID("", nil)).Resolve(context.Background(), Settings{})
	assert.True(t, errors.Is(err, ErrNoSerial))

	_, err = NewResolverWithHostID(staticHostID("", errors.New("no machine-id"))).Resolve(context.Background(), Settings{})
	assert.True(t, errors.Is(err, ErrNoSerial))
}
