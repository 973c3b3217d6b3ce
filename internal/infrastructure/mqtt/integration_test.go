//go:build integration

package mqtt

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/edge-agent/internal/infrastructure/config"
)

// Integration tests against a real broker.
// These tests require an anonymous MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationOptions(clientID string) Options {
	return Options{
		Connection: config.ConnectionConfig{
			Host:      "127.0.0.1",
			Port:      1883,
			KeepAlive: 10 * time.Second,
		},
		ClientID: clientID,
	}
}

func connectIntegration(t *testing.T, o Options) *Client {
	t.Helper()
	client, err := New(o)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(client.Disconnect)
	return client
}

func TestIntegration_PublishSubscribeRoundtrip(t *testing.T) {
	var connects atomic.Int32
	o := integrationOptions("edgeagent-int-roundtrip")
	o.OnConnect = func() { connects.Add(1) }
	client := connectIntegration(t, o)

	received := make(chan string, 1)
	if err := client.Subscribe("edgeagent/int/s/ds", 1, func(_ string, payload []byte) error {
		received <- string(payload)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := client.Publish("edgeagent/int/s/ds", []byte("510,serial-1"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != "510,serial-1" {
			t.Errorf("payload = %q, want 510,serial-1", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}

	if connects.Load() < 1 {
		t.Error("OnConnect was not invoked")
	}
}

func TestIntegration_UnreachableBroker(t *testing.T) {
	o := integrationOptions("edgeagent-int-unreachable")
	o.Connection.Port = 19999

	client, err := New(o)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = client.Connect(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_ContextCancelled(t *testing.T) {
	client, err := New(integrationOptions("edgeagent-int-cancel"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.Connect(ctx); err == nil {
		client.Disconnect()
		t.Skip("broker answered before cancellation was observed")
	}
}
