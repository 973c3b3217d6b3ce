package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ConnectAttempt(ResultFailed)
	rec.ConnectAttempt(ResultFailed)
	rec.ConnectAttempt(ResultSuccess)
	rec.Restart()
	rec.SetConnected(true)
	rec.MessageRouted("510")
	rec.DecodeError()
	rec.Dispatch("system", StatusPanic)
	rec.Publish("100", StatusOK)
	rec.SetSupportedOperations(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.connectAttempts.WithLabelValues(ResultFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.restarts))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.connected))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.messagesRouted.WithLabelValues("510")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.decodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.dispatches.WithLabelValues("system", StatusPanic)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.publishes.WithLabelValues("100", StatusOK)))
	assert.Equal(t, 3.0, testutil.ToFloat64(rec.supportedOperations))

	rec.SetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(rec.connected))
}

func TestNop(t *testing.T) {
	rec := Nop()
	rec.ConnectAttempt(ResultRefused)
	rec.Dispatch("x", StatusOK)
	rec.SetConnected(true)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)
	rec.Restart()

	healthy := true
	handler := Handler(reg, func() error {
		if !healthy {
			return errors.New("not connected")
		}
		return nil
	}, nil)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "edgeagent_restarts_total 1")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	healthy = false
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "not connected")

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandler_RequestID(t *testing.T) {
	handler := Handler(prometheus.NewRegistry(), nil, nil)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "abc123", rr.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(noopLogger{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, ln, Handler(prometheus.NewRegistry(), nil, nil))
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.HasPrefix(string(body), "ok"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServe_ListenError(t *testing.T) {
	err := Serve(context.Background(), "not-an-address", http.NotFoundHandler())
	assert.Error(t, err)
}
