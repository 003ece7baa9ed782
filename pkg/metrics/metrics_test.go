package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()

	r.IncWebhookOutcome("created")
	r.IncWebhookOutcome("created")
	r.IncWebhookOutcome("duplicate")
	r.IncHTTPRequest("/webhook", http.StatusOK)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.WebhookRequestsTotal.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.WebhookRequestsTotal.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.HTTPRequestsTotal.WithLabelValues("/webhook", "200")))
}

func TestRegistry_IndependentInstances(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	a.IncWebhookOutcome("created")

	assert.Equal(t, 0.0, testutil.ToFloat64(b.WebhookRequestsTotal.WithLabelValues("created")))
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.IncWebhookOutcome("created")
		r.IncHTTPRequest("/", 200)
		r.ObserveRequestLatency(time.Millisecond)
		r.IncDatabaseQuery("memory", "insert", "ok")
		r.ObserveDatabaseQueryDuration("memory", "insert", time.Millisecond)
		r.SetCircuitBreakerState("store", 0)
		r.IncCircuitBreakerRequest("store", "closed", false)
		r.IncRateLimit("allowed")
		r.IncStatsCache("hit")
	})
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.IncWebhookOutcome("validation_error")
	r.ObserveRequestLatency(42 * time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `webhook_requests_total{result="validation_error"} 1`)
	assert.Contains(t, string(body), "request_latency_ms_bucket")
}
