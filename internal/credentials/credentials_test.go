package credentials

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/edge-agent/internal/infrastructure/config"
	"github.com/nerrad567/edge-agent/internal/infrastructure/database"
	"github.com/nerrad567/edge-agent/migrations"
)

func openStore(t *testing.T, certAuth func() bool) *Store {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "agent.db"),
		WALMode:     true,
		BusyTimeout: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	require.NoError(t, db.Migrate(ctx, migrations.FS))
	return NewStore(db, certAuth)
}

func TestCredentials_MQTTUsername(t *testing.T) {
	assert.Equal(t, "t100/device01", Credentials{Tenant: "t100", Username: "device01"}.MQTTUsername())
	assert.Equal(t, "device01", Credentials{Username: "device01"}.MQTTUsername())
}

func TestConfigSource(t *testing.T) {
	cfg := &config.Config{}
	cfg.MQTT.Auth = config.MQTTAuthConfig{Tenant: "t100", Username: "device01", Password: "secret"}
	src := NewConfigSource(config.NewStaticProvider(cfg))

	creds, err := src.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Credentials{Tenant: "t100", Username: "device01", Password: "secret"}, creds)

	cfg.MQTT.Broker.CertAuth = true
	creds, err = src.Credentials(context.Background())
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestStore_ReturnsMostRecent(t *testing.T) {
	store := openStore(t, nil)
	ctx := context.Background()

	_, err := store.Credentials(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, Credentials{Tenant: "t100", Username: "device01", Password: "first"}))
	require.NoError(t, store.Save(ctx, Credentials{Tenant: "t100", Username: "device01", Password: "rotated"}))

	creds, err := store.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rotated", creds.Password)
}

func TestStore_Sync(t *testing.T) {
	store := openStore(t, nil)
	ctx := context.Background()

	tests := []struct {
		name      string
		creds     Credentials
		wantWrite bool
		wantPass  string
	}{
		{"empty store", Credentials{Tenant: "t100", Username: "device01", Password: "pw1"}, true, "pw1"},
		{"unchanged", Credentials{Tenant: "t100", Username: "device01", Password: "pw1"}, false, "pw1"},
		{"rotated", Credentials{Tenant: "t100", Username: "device01", Password: "pw2"}, true, "pw2"},
		{"no username", Credentials{Tenant: "t100", Password: "pw3"}, false, "pw2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrote, err := store.Sync(ctx, tt.creds)
			require.NoError(t, err)
			assert.Equal(t, tt.wantWrite, wrote)

			creds, err := store.Credentials(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPass, creds.Password)
		})
	}
}

func TestStore_FollowsConfigChanges(t *testing.T) {
	store := openStore(t, nil)
	ctx := context.Background()

	cfg := &config.Config{}
	cfg.MQTT.Auth = config.MQTTAuthConfig{Tenant: "t100", Username: "device01", Password: "pw1"}
	store.Follow(NewConfigSource(config.NewStaticProvider(cfg)))

	creds, err := store.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pw1", creds.Password)

	// The password is changed in the configuration after the first start.
	cfg.MQTT.Auth.Password = "pw2"
	creds, err = store.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pw2", creds.Password)

	// A set saved directly stays active while the configuration is unchanged.
	require.NoError(t, store.Save(ctx, Credentials{Tenant: "t100", Username: "device01", Password: "issued"}))
	creds, err = store.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "issued", creds.Password)
}

func TestStore_CertAuthReturnsNil(t *testing.T) {
	store := openStore(t, func() bool { return true })

	creds, err := store.Credentials(context.Background())
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestStore_SaveRequiresUsername(t *testing.T) {
	store := openStore(t, nil)

	assert.Error(t, store.Save(context.Background(), Credentials{Tenant: "t100"}))
}
