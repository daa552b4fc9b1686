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
	Generations          *prometheus.CounterVec
	GenerationFragments  prometheus.Counter
	FirstFragmentLatency prometheus.Histogram
	CacheLookups         *prometheus.CounterVec
	CacheWrites          prometheus.Counter
	AudioSessionEvents   *prometheus.CounterVec
	AudioFrames          *prometheus.CounterVec
	AudioPlaybackLagMS   prometheus.Histogram
	ArtifactRequests     *prometheus.CounterVec
	WSMessages           *prometheus.CounterVec
	WSWriteErrors        prometheus.Counter
	DesktopInteractions  *prometheus.CounterVec
	perf                 *perfWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Generations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Content generations by outcome.",
		}, []string{"outcome"}),
		GenerationFragments: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_fragments_total",
			Help:      "Streamed content fragments received from the generator.",
		}),
		FirstFragmentLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_fragment_latency_ms",
			Help:      "Latency from generation start to first fragment in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000},
		}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Content cache lookups by result.",
		}, []string{"result"}),
		CacheWrites: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Content cache writes that changed a stored entry.",
		}),
		AudioSessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_session_events_total",
			Help:      "Audio session lifecycle events.",
		}, []string{"event"}),
		AudioFrames: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_total",
			Help:      "Audio frames by direction.",
		}, []string{"direction"}),
		AudioPlaybackLagMS: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_playback_lag_ms",
			Help:      "Distance between the device clock and a buffer's scheduled start in milliseconds.",
			Buckets:   []float64{0, 20, 50, 100, 250, 500, 1000, 3000},
		}),
		ArtifactRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_requests_total",
			Help:      "Image, video and icon requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "WebSocket write failures.",
		}),
		DesktopInteractions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "desktop_interactions_total",
			Help:      "Desktop boundary calls by kind.",
		}, []string{"kind"}),
		perf:                newPerfWindow(defaultPerfHorizon, defaultPerfSamples),
	}
}

// ObserveFirstFragment records time-to-first-fragment for a generation.
func (m *Metrics) ObserveFirstFragment(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstFragmentLatency.Observe(float64(d.Milliseconds()))
	m.perf.observeStage(StageFirstFragment, float64(d.Microseconds())/1000)
}

// ObserveStage records a latency sample for the /v1/perf/latency snapshot.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.perf.observeStage(stage, float64(d.Microseconds())/1000)
}

// The helpers below tolerate a nil *Metrics so components can run unmetered in tests.

func (m *Metrics) IncGeneration(outcome string) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(outcome).Inc()
	m.perf.observeOutcome(outcome)
}

func (m *Metrics) IncFragment() {
	if m == nil {
		return
	}
	m.GenerationFragments.Inc()
}

func (m *Metrics) IncCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
	m.perf.observeLookup(result == "hit")
}

func (m *Metrics) IncCacheWrite() {
	if m == nil {
		return
	}
	m.CacheWrites.Inc()
}

func (m *Metrics) IncAudioSessionEvent(event string) {
	if m == nil {
		return
	}
	m.AudioSessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) IncAudioFrame(direction string) {
	if m == nil {
		return
	}
	m.AudioFrames.WithLabelValues(direction).Inc()
}

func (m *Metrics) ObservePlaybackLag(seconds float64) {
	if m == nil {
		return
	}
	m.AudioPlaybackLagMS.Observe(seconds * 1000)
}

func (m *Metrics) IncArtifact(kind, outcome string) {
	if m == nil {
		return
	}
	m.ArtifactRequests.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) IncInteraction(kind string) {
	if m == nil {
		return
	}
	m.DesktopInteractions.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) IncWSWriteError() {
	if m == nil {
		return
	}
	m.WSWriteErrors.Inc()
}

// SnapshotStages summarizes recent latencies, cache hits and generation outcomes.
func (m *Metrics) SnapshotStages() PerfSnapshot {
	if m == nil {
		return PerfSnapshot{}
	}
	return m.perf.snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
