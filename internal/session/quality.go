package session

import "sync"

// qualityAccumulator maintains the rolling QualityMetrics for one session.
// Running means are updated in place (avg += (sample - avg) / n) so no
// history is stored. Written by the dispatcher worker, read by status calls.
type qualityAccumulator struct {
	mu             sync.Mutex
	metrics        QualityMetrics
	latencySamples int64
}

// observeChunk records one emitted transcript chunk. Word counts include
// revised partials: the metric reflects total processing volume, not final
// transcript length.
func (q *qualityAccumulator) observeChunk(confidence float64, words int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.metrics.TotalChunksProcessed++
	n := float64(q.metrics.TotalChunksProcessed)
	q.metrics.AvgConfidence += (confidence - q.metrics.AvgConfidence) / n
	q.metrics.TotalWords += int64(words)
}

// observeLatency records one transcription invocation duration in
// milliseconds, successful or not.
func (q *qualityAccumulator) observeLatency(ms float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.latencySamples++
	q.metrics.AvgProcessingTimeMs += (ms - q.metrics.AvgProcessingTimeMs) / float64(q.latencySamples)
}

// observeFailure records a chunk abandoned after exhausting retries.
func (q *qualityAccumulator) observeFailure() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.metrics.FailedChunks++
}

func (q *qualityAccumulator) snapshot() QualityMetrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.metrics
}
