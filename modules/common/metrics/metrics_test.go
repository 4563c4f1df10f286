package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountsGenerations(t *testing.T) {
	m := New()

	m.ObserveGeneration(KindVideo, "completed", 3*time.Second)
	m.ObserveGeneration(KindVideo, "completed", time.Second)
	m.ObserveGeneration(KindImage, "failed", time.Second)
	m.VideoFallback("transient_failure")
	m.CredentialRecovery("declined")
	m.SetActiveSessions(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.generations.WithLabelValues(KindVideo, "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations.WithLabelValues(KindImage, "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks.WithLabelValues("transient_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recoveries.WithLabelValues("declined")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeSessions))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveGeneration(KindEDL, "completed", time.Second)
		m.VideoFallback("timeout")
		m.CredentialRecovery("recovered")
		m.SetActiveSessions(1)
		m.JobEnqueued(KindImage)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.JobEnqueued(KindVideo)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `storyboard_jobs_enqueued_total{kind="video"} 1`)
}
