package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "genhat_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	m := NewManager(Config{}, WithGatherers(reg))
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "genhat_test_total 1")
}

func TestHandler_Health(t *testing.T) {
	m := NewManager(Config{}, WithHealth(func() any {
		return map[string]string{"state": "Running", "model": "a.gguf"}
	}))
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status  string            `json:"status"`
		Backend map[string]string `json:"backend"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "Running", body.Backend["state"])
}

func TestManager_ServeAndShutdown(t *testing.T) {
	m := NewManager(Config{MetricsAddr: "127.0.0.1:0"})
	require.NoError(t, m.Initialize(context.Background()))
	require.NotEmpty(t, m.Addr())

	resp, err := http.Get("http://" + m.Addr() + "/health")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.NoError(t, m.Shutdown(context.Background()), "shutdown is idempotent")
}

func TestManager_Tracing(t *testing.T) {
	var out bytes.Buffer
	m := NewManager(Config{ServiceName: "genhat-test", EnableTracing: true, TraceWriter: &out})
	require.NoError(t, m.Initialize(context.Background()))

	_, span := m.Tracer("test").Start(context.Background(), "unit")
	span.End()

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Contains(t, out.String(), `"Name": "unit"`)
}

func TestManager_Disabled(t *testing.T) {
	m := NewManager(Config{})
	require.NoError(t, m.Initialize(context.Background()))
	assert.Empty(t, m.Addr())
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_BadExporter(t *testing.T) {
	m := NewManager(Config{EnableTracing: true, TraceExporter: "jaeger"})
	assert.Error(t, m.Initialize(context.Background()))
}
