package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/edge-agent/internal/credentials"
	"github.com/nerrad567/edge-agent/internal/infrastructure/config"
	"github.com/nerrad567/edge-agent/internal/infrastructure/logging"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("EDGEAGENT_CONFIG", "/nonexistent/path/agent.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, nil, &bytes.Buffer{}); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"--version"}, &out); err != nil {
		t.Fatalf("run(--version) error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "edgeagent dev") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-h"}, &out); err != nil {
		t.Fatalf("run(-h) error = %v", err)
	}
	if !strings.Contains(out.String(), "--config") {
		t.Errorf("help output missing --config: %q", out.String())
	}
}

func TestRun_BadArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown flag", args: []string{"--bogus"}},
		{name: "positional argument", args: []string{"extra"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := run(context.Background(), tt.args, &bytes.Buffer{}); err == nil {
				t.Errorf("run(%v) expected error", tt.args)
			}
		})
	}
}

// TestRun_ShutsDownOnCancel wires the full stack against an unreachable
// broker and checks that cancellation stops it cleanly.
// writeAgentConfig writes a config that points the broker at a closed port
// and enables the database and metrics endpoint.
func writeAgentConfig(t *testing.T, dir, metricsListen string) string {
	t.Helper()
	configPath := filepath.Join(dir, "agent.yaml")
	configContent := `
agent:
  name: "dm-test"
  type: "c8y_test"
  main_loop_interval: 1
mqtt:
  broker:
    host: "127.0.0.1"
    port: 1
  auth:
    tenant: "t100"
    username: "device01"
    password: "secret"
database:
  enabled: true
  path: "` + filepath.Join(dir, "agent.db") + `"
metrics:
  enabled: true
  listen: "` + metricsListen + `"
logging:
  level: "error"
  output: "discard"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeAgentConfig(t, tmpDir, "127.0.0.1:0")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := run(ctx, []string{"--config", configPath, "--serial", "0001", "--simulated"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "agent.db")); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestRun_MetricsPortInUseKeepsAgentRunning(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to occupy port: %v", err)
	}
	defer occupied.Close()

	configPath := writeAgentConfig(t, t.TempDir(), occupied.Addr().String())

	const lifetime = 500 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), lifetime)
	defer cancel()

	start := time.Now()
	err = run(ctx, []string{"--config", configPath, "--serial", "0001", "--simulated"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("run() error = %v, want nil", err)
	}
	if elapsed := time.Since(start); elapsed < lifetime-50*time.Millisecond {
		t.Errorf("run() returned after %v, want the agent to run until cancelled", elapsed)
	}
}

func TestOpenCredentialStore_ImportsRotatedPassword(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeAgentConfig(t, tmpDir, "127.0.0.1:0")
	ctx := context.Background()

	open := func() *credentials.Credentials {
		t.Helper()
		provider, err := config.NewProvider(configPath)
		if err != nil {
			t.Fatalf("NewProvider() error = %v", err)
		}
		db, err := openCredentialStore(ctx, provider.Current(), provider, logging.Discard())
		if err != nil {
			t.Fatalf("openCredentialStore() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup
		creds, err := credentials.NewStore(db, nil).Credentials(ctx)
		if err != nil {
			t.Fatalf("Credentials() error = %v", err)
		}
		return creds
	}

	if got := open().Password; got != "secret" {
		t.Fatalf("first start password = %q, want %q", got, "secret")
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	rotated := strings.Replace(string(content), `password: "secret"`, `password: "rotated"`, 1)
	if err := os.WriteFile(configPath, []byte(rotated), 0600); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	if got := open().Password; got != "rotated" {
		t.Errorf("restart password = %q, want %q", got, "rotated")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("EDGEAGENT_CONFIG", "")
	if got := getConfigPath(""); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("EDGEAGENT_CONFIG", "/etc/edgeagent/agent.yaml")
	if got := getConfigPath(""); got != "/etc/edgeagent/agent.yaml" {
		t.Errorf("getConfigPath() = %q, want env value", got)
	}
	if got := getConfigPath("/tmp/flag.yaml"); got != "/tmp/flag.yaml" {
		t.Errorf("getConfigPath() = %q, want flag value", got)
	}
}
