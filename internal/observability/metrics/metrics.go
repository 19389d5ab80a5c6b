// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "recording_orchestrator"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsActive  prometheus.Gauge
	Finalizations   *prometheus.CounterVec
	FinalizeLatency prometheus.Histogram

	// Chunk metrics
	ChunksReceived     prometheus.Counter
	ChunkBytesReceived prometheus.Counter
	ScreenshotsStored  prometheus.Counter

	// Transcription job metrics
	JobsSubmitted prometheus.Counter
	JobsSucceeded prometheus.Counter
	JobsFailed    prometheus.Counter
	JobDuration   prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of recording sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions currently registered",
		}),
		Finalizations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalizations_total",
			Help:      "Total number of finalization attempts by outcome",
		}, []string{"outcome"}),
		FinalizeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "finalize_duration_seconds",
			Help:      "Duration of session finalization in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}),

		ChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_received_total",
			Help:      "Total number of audio chunks received",
		}),
		ChunkBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		ScreenshotsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screenshots_stored_total",
			Help:      "Total number of screenshots stored",
		}),

		JobsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_jobs_submitted_total",
			Help:      "Total number of transcription jobs submitted",
		}),
		JobsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_jobs_succeeded_total",
			Help:      "Total number of transcription jobs that succeeded",
		}),
		JobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_jobs_failed_total",
			Help:      "Total number of transcription jobs that failed",
		}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_job_duration_seconds",
			Help:      "Duration of individual transcription jobs in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordSessionStarted records a new session being created.
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEvicted records a session leaving the registry.
func (m *Metrics) RecordSessionEvicted() {
	m.SessionsActive.Dec()
}

// RecordChunkReceived records a stored audio chunk.
func (m *Metrics) RecordChunkReceived(bytes int64) {
	m.ChunksReceived.Inc()
	m.ChunkBytesReceived.Add(float64(bytes))
}

// RecordScreenshot records a stored screenshot.
func (m *Metrics) RecordScreenshot() {
	m.ScreenshotsStored.Inc()
}

// RecordJobSubmitted records a transcription job entering the queue.
func (m *Metrics) RecordJobSubmitted() {
	m.JobsSubmitted.Inc()
}

// RecordJobDone records a transcription job outcome.
func (m *Metrics) RecordJobDone(err error, durationSeconds float64) {
	m.JobDuration.Observe(durationSeconds)
	if err != nil {
		m.JobsFailed.Inc()
	} else {
		m.JobsSucceeded.Inc()
	}
}

// RecordFinalization records a finalization attempt outcome.
func (m *Metrics) RecordFinalization(outcome string, durationSeconds float64) {
	m.Finalizations.WithLabelValues(outcome).Inc()
	m.FinalizeLatency.Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
