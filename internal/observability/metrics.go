package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	WSMessages        *prometheus.CounterVec
	TurnStates        *prometheus.CounterVec
	ProviderErrors    *prometheus.CounterVec
	PhrasesSpoken     *prometheus.CounterVec
	TTSFallbacks      prometheus.Counter
	FirstAudioLatency prometheus.Histogram
	TurnStageLatency  *prometheus.HistogramVec

	latency *turnLatency
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of registered chat sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		TurnStates: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_state_transitions_total",
			Help:      "Chat turn state transitions by target state.",
		}, []string{"state"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		PhrasesSpoken: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phrases_spoken_total",
			Help:      "Synthesized phrases by the TTS model that produced them.",
		}, []string{"model"}),
		TTSFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_fallbacks_total",
			Help:      "Phrases retried on the fallback TTS model.",
		}),
		FirstAudioLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from user message to first assistant audio in milliseconds.",
			Buckets:   []float64{300, 500, 800, 1200, 1600, 2000, 3000, 5000},
		}),
		TurnStageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_stage_latency_ms",
			Help:      "Chat turn stage latencies in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 15000},
		}, []string{"stage"}),
		latency: newTurnLatency(256),
	}
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
}

// ObserveTurnStage records a stage latency in the histogram and the latency report.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil || d < 0 {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.TurnStageLatency.WithLabelValues(stage).Observe(ms)
	m.latency.observeStage(stage, ms)
}

func (m *Metrics) ObserveTurnIndicator(name string) {
	if m == nil {
		return
	}
	m.latency.observeIndicator(name)
}

func (m *Metrics) ObserveTurnState(state string) {
	if m == nil {
		return
	}
	m.TurnStates.WithLabelValues(state).Inc()
	m.latency.observeState(state)
}

func (m *Metrics) ObserveProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) LatencyReport() LatencyReport {
	if m == nil {
		return LatencyReport{GeneratedAt: time.Now().UTC(), Stages: []StageLatency{}, Outcomes: map[string]int{}}
	}
	return m.latency.report()
}

func (m *Metrics) ResetLatency() {
	if m == nil {
		return
	}
	m.latency.mu.Lock()
	m.latency.reset()
	m.latency.mu.Unlock()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
