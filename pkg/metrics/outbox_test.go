package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetrics(t *testing.T) {
	m := NewOutboxMetrics(prometheus.NewRegistry())

	m.AddSettled(SettledPublished, 3)
	m.AddSettled(SettledDeadLettered, 1)
	m.AddSettled(SettledRetry, 0)
	m.ObservePublish(40 * time.Millisecond)
	m.ObserveBatch(true, nil)
	m.ObserveBatch(false, nil)
	m.ObserveBatch(true, errors.New("tx aborted"))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.settled.WithLabelValues(SettledPublished)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settled.WithLabelValues(SettledDeadLettered)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.settled, "outbox_events_settled_total"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues(ResultFailure)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.publish, "outbox_publish_duration_seconds"))
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.AddSettled(SettledPublished, 1)
	m.ObservePublish(time.Second)
	m.ObserveBatch(true, nil)

	NewOutboxMetrics(nil).ObserveBatch(true, errors.New("boom"))
}

func TestHandlerServesGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewOutboxMetrics(reg).AddSettled(SettledPublished, 2)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `outbox_events_settled_total{outcome="published"} 2`)
}

func TestServeDisabledWithoutAddr(t *testing.T) {
	s := Serve(t.Context(), nil, "", nil)
	assert.Nil(t, s)
	s.Shutdown()
}
