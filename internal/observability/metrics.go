package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Leg labels.
const (
	LegTelephony = "telephony"
	LegAI        = "ai"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	registry *prometheus.Registry

	ActiveCalls    prometheus.Gauge
	CallEvents     *prometheus.CounterVec
	Frames         *prometheus.CounterVec
	DroppedFrames  *prometheus.CounterVec
	ToolCalls      *prometheus.CounterVec
	ProviderErrors *prometheus.CounterVec
	CallDuration   prometheus.Histogram
	RecordSaves    *prometheus.CounterVec

	latency *latencyWindow
}

// NewMetrics registers every instrument on its own registry, served by Handler.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		ActiveCalls: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of calls currently registered.",
		}),
		CallEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_events_total",
			Help:      "Call lifecycle events by type.",
		}, []string{"event"}),
		Frames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "WebSocket frames by leg, direction and type.",
		}, []string{"leg", "direction", "type"}),
		DroppedFrames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_frames_total",
			Help:      "Frames dropped by leg and reason.",
		}, []string{"leg", "reason"}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Model tool calls by tool and result status.",
		}, []string{"tool", "status"}),
		ProviderErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider, code and retryability.",
		}, []string{"provider", "code", "retryable"}),
		CallDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Duration of finished calls.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		RecordSaves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_saves_total",
			Help:      "Call record saves by backend and result.",
		}, []string{"backend", "result"}),
		latency: newLatencyWindow(256),
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

func (m *Metrics) CallEvent(event string) {
	m.CallEvents.WithLabelValues(event).Inc()
	m.latency.ObserveIndicator(event)
}

func (m *Metrics) Frame(leg, direction, typ string) {
	m.Frames.WithLabelValues(leg, direction, typ).Inc()
}

func (m *Metrics) Dropped(leg, reason string) {
	m.DroppedFrames.WithLabelValues(leg, reason).Inc()
}

func (m *Metrics) ToolCall(tool, status string) {
	m.ToolCalls.WithLabelValues(tool, status).Inc()
}

func (m *Metrics) ProviderError(provider, code string, retryable bool) {
	r := "false"
	if retryable {
		r = "true"
	}
	m.ProviderErrors.WithLabelValues(provider, code, r).Inc()
}

func (m *Metrics) ObserveCallDuration(d time.Duration) {
	m.CallDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordSave(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RecordSaves.WithLabelValues(backend, result).Inc()
}

func (m *Metrics) SetActiveCalls(n int) {
	m.ActiveCalls.Set(float64(n))
}

// ObserveStage records one latency sample for a call stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.latency.Observe(stage, float64(d.Microseconds())/1000)
}

func (m *Metrics) LatencySnapshot() LatencySnapshot {
	return m.latency.Snapshot()
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
