// Package metrics registers the service's Prometheus instrumentation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsEnded   prometheus.Counter
	SessionsFailed  prometheus.Counter
	SessionsSwept   prometheus.Counter

	ChunksReceived prometheus.Counter
	ChunksRejected *prometheus.CounterVec
	QueueDepth     prometheus.Gauge

	TranscriptionDuration prometheus.Histogram
	TranscriptionRetries  prometheus.Counter
	TranscriptionFailures prometheus.Counter

	PartialsEmitted prometheus.Counter
	FinalsEmitted   prometheus.Counter

	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter
}

var (
	defaultOnce sync.Once
	defaultSet  *Metrics
)

// Default returns the process-wide metrics set, registering collectors on
// first use.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultSet = &Metrics{
			ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "voxwire_active_sessions",
				Help: "Current number of sessions in Created or Active state",
			}),
			SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
				Name: "voxwire_sessions_created_total",
				Help: "Total number of sessions created",
			}),
			SessionsEnded: promauto.NewCounter(prometheus.CounterOpts{
				Name: "voxwire_sessions_ended_total",
				Help: "Total number of sessions ended",
			}),
			SessionsFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "voxwire_sessions_failed_total",
				Help: "Total number of sessions that ended in the failed state",
			}),
			SessionsSwept: promauto.NewCounter(prometheus.CounterOpts{
				Name: "voxwire_sessions_swept_total",
				Help: "Total number of sessions finalized by the idle sweep",
			}),
			ChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
				Name: "voxwire_audio_chunks_received_total",
				Help: "Total number of audio chunks accepted onto session queues",
			}),
			ChunksRejected: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "voxwire_audio_chunks_rejected_total",
				Help: "Total number of audio chunks rejected, by reason",
			}, []string{"reason"}),
			QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "voxwire_audio_queue_depth",
				Help: "Depth of the most recently sampled session audio queue",
			}),
			TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "voxwire_transcription_duration_seconds",
				Help:    "Duration of external transcription calls",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			}),
			TranscriptionRetries: promauto.NewCounter(prometheus.CounterOpts{
				Name: "voxwire_transcription_retries_total",
				Help: "Total number of transcription call retries",
			}),
			TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
				Name: "voxwire_transcription_failures_total",
				Help: "Total number of chunks abandoned after exhausting retries",
			}),
			PartialsEmitted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "voxwire_transcript_partials_total",
				Help: "Total number of partial transcript chunks emitted",
			}),
			FinalsEmitted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "voxwire_transcript_finals_total",
				Help: "Total number of final transcript chunks emitted",
			}),
			EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "voxwire_events_published_total",
				Help: "Total number of events published to the broker, by kind",
			}, []string{"kind"}),
			PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "voxwire_event_publish_errors_total",
				Help: "Total number of broker publish failures",
			}),
		}
	})
	return defaultSet
}
