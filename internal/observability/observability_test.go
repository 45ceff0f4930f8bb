package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.Observe(StageFirstAIAudio, 500)
	w.Observe(StageFirstAIAudio, 700)
	w.Observe(StageFirstAIAudio, 900)
	w.ObserveIndicator("end_call")
	w.ObserveIndicator("end_call")

	snap := w.Snapshot()
	assert.Equal(t, 8, snap.WindowSize)
	require.Len(t, snap.Stages, 1)

	s := snap.Stages[0]
	assert.Equal(t, StageFirstAIAudio, s.Stage)
	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, 900.0, s.LastMS)
	assert.Equal(t, 700.0, s.P50MS)
	assert.Greater(t, s.P95MS, 700.0)
	assert.LessOrEqual(t, s.P95MS, 900.0)
	assert.Equal(t, 2500.0, s.TargetP95MS)

	require.Len(t, snap.Events, 1)
	assert.Equal(t, EventCount{Name: "end_call", Count: 2}, snap.Events[0])
}

func TestLatencyWindowWrapsRing(t *testing.T) {
	w := newLatencyWindow(2)
	for _, v := range []float64{100, 200, 300} {
		w.Observe(StageAIConnect, v)
	}
	snap := w.Snapshot()
	require.Len(t, snap.Stages, 1)
	assert.Equal(t, 2, snap.Stages[0].Samples)
	assert.Equal(t, 250.0, snap.Stages[0].AvgMS)
}

func TestMetricsUsePrivateRegistry(t *testing.T) {
	a := NewMetrics("callbridge")
	b := NewMetrics("callbridge")

	a.CallEvent("start")
	a.Frame(LegTelephony, "in", "media")
	a.Dropped(LegTelephony, "no_session")
	a.ToolCall("take_message", "success")
	a.ProviderError("openai", "rate_limit_exceeded", true)
	a.RecordSave("s3", errors.New("boom"))
	a.SetActiveCalls(3)
	a.ObserveCallDuration(30 * time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.CallEvents.WithLabelValues("start")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CallEvents.WithLabelValues("start")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.RecordSaves.WithLabelValues("s3", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.ProviderErrors.WithLabelValues("openai", "rate_limit_exceeded", "true")))
	assert.Equal(t, 3.0, testutil.ToFloat64(a.ActiveCalls))
}

func TestMetricsHandlerServesNamespacedSeries(t *testing.T) {
	m := NewMetrics("callbridge")
	m.CallEvent("stop")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `callbridge_call_events_total{event="stop"} 1`), body)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = NewLogger("loud", "json")
	require.Error(t, err)

	_, err = NewLogger("info", "xml")
	require.Error(t, err)
}
