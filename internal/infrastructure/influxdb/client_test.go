package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/edge-agent/internal/infrastructure/config"
)

// fakeInflux answers /ping and records line-protocol bodies posted to
// /api/v2/write.
type fakeInflux struct {
	mu     sync.Mutex
	lines  []string
	status int
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		status := f.status
		f.mu.Unlock()
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// waitForLines polls until at least n lines were written or a second passes.
func (f *fakeInflux) waitForLines(n int) []string {
	deadline := time.Now().Add(time.Second)
	for {
		lines := f.written()
		if len(lines) >= n || time.Now().After(deadline) {
			return lines
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "edge",
		Bucket:        "measurements",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(context.Background(), config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := Connect(context.Background(), testConfig(url))
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteSample(t *testing.T) {
	fake := &fakeInflux{}
	server := httptest.NewServer(fake)
	defer server.Close()

	client, err := Connect(context.Background(), testConfig(server.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.WriteSample(Sample{
		DeviceID: "0001",
		Fragment: "c8y_MemoryMeasurement",
		Series:   "used",
		Unit:     "%",
		Value:    41.5,
		Time:     time.Unix(1700000000, 0),
	})
	client.Flush()

	lines := fake.waitForLines(1)
	if len(lines) != 1 {
		t.Fatalf("written lines = %d, want 1 (%v)", len(lines), lines)
	}
	line := lines[0]
	for _, want := range []string{"c8y_MemoryMeasurement,", "device_id=0001", "series=used", "value=41.5", "1700000000000000000"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWriteSample_AfterClose(t *testing.T) {
	fake := &fakeInflux{}
	server := httptest.NewServer(fake)
	defer server.Close()

	client, err := Connect(context.Background(), testConfig(server.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.Close()

	client.WriteSample(Sample{DeviceID: "0001", Fragment: "c8y_CPUMeasurement", Series: "usage", Value: 1})
	client.Flush()

	if len(fake.written()) != 0 {
		t.Error("writes after Close should be dropped")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestSamplePoint(t *testing.T) {
	p := samplePoint(Sample{DeviceID: "0001", Fragment: "c8y_CPUMeasurement", Series: "usage", Value: 3})

	if p.Name() != "c8y_CPUMeasurement" {
		t.Errorf("Name() = %q, want c8y_CPUMeasurement", p.Name())
	}
	for _, tag := range p.TagList() {
		if tag.Key == "unit" {
			t.Error("empty unit should not be tagged")
		}
	}
	if p.Time().IsZero() {
		t.Error("zero sample time should default to now")
	}
}

func TestClose_Nil(t *testing.T) {
	var client *Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}
