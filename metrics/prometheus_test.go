package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-gateway-console/logger"
	"github.com/saiset-co/sai-gateway-console/types"
	"github.com/saiset-co/sai-gateway-console/utils"
)

func TestNew_DisabledReturnsNil(t *testing.T) {
	assert.Nil(t, New(logger.NewNop(), &types.MetricsConfig{Enabled: false}))
	assert.Nil(t, New(logger.NewNop(), nil))
	assert.NotNil(t, New(logger.NewNop(), &types.MetricsConfig{Enabled: true}))
}

func TestPrometheus_CounterGaugeHistogram(t *testing.T) {
	p := NewPrometheus(logger.NewNop(), &types.MetricsConfig{Enabled: true, Namespace: "test"})

	p.Counter("api_requests_total", map[string]string{"method": "GET", "result": "success"}).Inc()
	p.Counter("api_requests_total", map[string]string{"method": "GET", "result": "success"}).Add(2)
	p.Counter("api_requests_total", map[string]string{"method": "POST", "result": "api_error"}).Inc()

	assert.Equal(t, 3.0, p.Counter("api_requests_total", map[string]string{"method": "GET", "result": "success"}).Get())
	assert.Equal(t, 1.0, p.Counter("api_requests_total", map[string]string{"method": "POST", "result": "api_error"}).Get())

	gauge := p.Gauge("stream_connection_state", map[string]string{"state": "connected"})
	gauge.Set(1)
	gauge.Inc()
	gauge.Sub(0.5)
	assert.Equal(t, 1.5, gauge.Get())

	histogram := p.Histogram("api_request_duration_seconds", []float64{0.1, 1}, map[string]string{"method": "GET"})
	histogram.Observe(0.05)
	histogram.Observe(0.5)
	assert.Equal(t, uint64(2), histogram.GetCount())
	assert.InDelta(t, 0.55, histogram.GetSum(), 1e-9)

	unlabelled := p.Counter("stream_reconnects_total", nil)
	unlabelled.Inc()
	assert.Equal(t, 1.0, unlabelled.Get())
}

func TestPrometheus_GetMetrics(t *testing.T) {
	p := NewPrometheus(logger.NewNop(), &types.MetricsConfig{
		Enabled:   true,
		Namespace: "test",
		Labels:    map[string]string{"console": "admin"},
	})
	p.Counter("mutations_total", map[string]string{"resource": "routes", "result": "committed"}).Inc()

	data, err := p.GetMetrics()
	require.NoError(t, err)

	var values []types.MetricValue
	require.NoError(t, utils.Unmarshal(data, &values))
	require.Len(t, values, 1)
	assert.Equal(t, "test_mutations_total", values[0].Name)
	assert.Equal(t, "COUNTER", values[0].Type)
	assert.Equal(t, 1.0, values[0].Value)
	assert.Equal(t, map[string]string{"console": "admin", "resource": "routes", "result": "committed"}, values[0].Labels)
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus(logger.NewNop(), &types.MetricsConfig{Enabled: true, Namespace: "test"})
	p.Gauge("stream_connection_state", nil).Set(1)

	recorder := httptest.NewRecorder()
	p.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "test_stream_connection_state 1")
}
