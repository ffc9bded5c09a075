// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "live_subtitle"

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Capture metrics
	FramesCaptured prometheus.Counter
	CaptureGaps    prometheus.Counter

	// Transcription stream metrics
	FramesBuffered  prometheus.Gauge
	RingDrops       prometheus.Counter
	Reconnects      prometheus.Counter
	SegmentsPartial prometheus.Counter
	SegmentsFinal   prometheus.Counter
	ProtocolFaults  prometheus.Counter
	SessionState    prometheus.Gauge // 1 connected, 0 disconnected
	Discontinuities prometheus.Counter

	// Aggregator metrics
	UtterancesFinalized *prometheus.CounterVec // by reason
	UtteranceQueueDrops prometheus.Counter

	// Translation metrics
	TranslateRequests prometheus.Counter
	TranslateRetries  prometheus.Counter
	TranslateFallback prometheus.Counter
	TranslateInflight prometheus.Gauge
	TranslateLatency  prometheus.Histogram

	// Render metrics
	SubtitlesShown     prometheus.Counter
	ReorderPlaceholder prometheus.Counter
	ReorderLateArrival prometheus.Counter
	ReorderWaiting     prometheus.Gauge

	// History metrics
	HistoryAppends        prometheus.Counter
	HistoryAppendErrors   prometheus.Counter
	HistoryPublishLatency prometheus.Histogram
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Total audio frames emitted by the capture source",
		}),
		CaptureGaps: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_gaps_total",
			Help:      "Total capture gap signals from the audio source",
		}),

		FramesBuffered: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frames_buffered",
			Help:      "Frames currently held in the reconnect ring buffer",
		}),
		RingDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ring_drops_total",
			Help:      "Frames dropped from the reconnect ring on overflow",
		}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asr_reconnects_total",
			Help:      "Total recognizer session reconnect attempts",
		}),
		SegmentsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_partial_total",
			Help:      "Total partial segment events received",
		}),
		SegmentsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_final_total",
			Help:      "Total final segment events received",
		}),
		ProtocolFaults: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asr_protocol_faults_total",
			Help:      "Malformed or unexpected recognizer events dropped",
		}),
		SessionState: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "asr_session_connected",
			Help:      "Whether the recognizer session is connected (1) or not (0)",
		}),
		Discontinuities: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discontinuities_total",
			Help:      "Total marked breaks in the audio or transcript stream",
		}),

		UtterancesFinalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_finalized_total",
			Help:      "Total utterances finalized by the aggregator",
		}, []string{"reason"}),
		UtteranceQueueDrops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterance_queue_drops_total",
			Help:      "Utterances dropped from the dispatcher queue on overflow",
		}),

		TranslateRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translate_requests_total",
			Help:      "Total translation requests issued",
		}),
		TranslateRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translate_retries_total",
			Help:      "Total translation request retries",
		}),
		TranslateFallback: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translate_fallback_total",
			Help:      "Translations that fell back to passthrough source text",
		}),
		TranslateInflight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "translate_inflight",
			Help:      "Translation requests currently in flight",
		}),
		TranslateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translate_latency_seconds",
			Help:      "Translation request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		SubtitlesShown: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subtitles_shown_total",
			Help:      "Total subtitles emitted to the overlay",
		}),
		ReorderPlaceholder: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reorder_placeholders_total",
			Help:      "Placeholders emitted for sequence numbers that exceeded the hold time",
		}),
		ReorderLateArrival: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reorder_late_arrivals_total",
			Help:      "Results that arrived after their placeholder was already shown",
		}),
		ReorderWaiting: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reorder_waiting",
			Help:      "Out-of-order results currently held by the render buffer",
		}),

		HistoryAppends: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_appends_total",
			Help:      "Total history records appended",
		}),
		HistoryAppendErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_append_errors_total",
			Help:      "History append attempts that failed",
		}),
		HistoryPublishLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "history_publish_latency_seconds",
			Help:      "History sink append latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// RecordFrame records one captured audio frame.
func (m *Metrics) RecordFrame() {
	m.FramesCaptured.Inc()
}

// RecordCaptureGap records a capture gap signal.
func (m *Metrics) RecordCaptureGap() {
	m.CaptureGaps.Inc()
	m.Discontinuities.Inc()
}

// RecordSegment records a segment event by kind.
func (m *Metrics) RecordSegment(isFinal bool) {
	if isFinal {
		m.SegmentsFinal.Inc()
	} else {
		m.SegmentsPartial.Inc()
	}
}

// RecordFinalized records an utterance finalization with its trigger reason.
func (m *Metrics) RecordFinalized(reason string) {
	m.UtterancesFinalized.WithLabelValues(reason).Inc()
}

// RecordTranslate records one completed translation attempt.
func (m *Metrics) RecordTranslate(latencySeconds float64, fallback bool) {
	m.TranslateRequests.Inc()
	m.TranslateLatency.Observe(latencySeconds)
	if fallback {
		m.TranslateFallback.Inc()
	}
}

// RecordHistoryAppend records a history sink append attempt.
func (m *Metrics) RecordHistoryAppend(err error, latencySeconds float64) {
	m.HistoryPublishLatency.Observe(latencySeconds)
	if err != nil {
		m.HistoryAppendErrors.Inc()
		return
	}
	m.HistoryAppends.Inc()
}
