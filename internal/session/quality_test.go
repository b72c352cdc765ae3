package session

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestQualityIncrementalMeans(t *testing.T) {
	q := &qualityAccumulator{}

	q.observeChunk(0.8, 3)
	q.observeChunk(0.6, 2)
	q.observeChunk(0.7, 5)

	m := q.snapshot()
	if m.TotalChunksProcessed != 3 {
		t.Fatalf("expected 3 chunks, got %d", m.TotalChunksProcessed)
	}
	if !almostEqual(m.AvgConfidence, 0.7) {
		t.Fatalf("expected avg confidence 0.7, got %v", m.AvgConfidence)
	}
	if m.TotalWords != 10 {
		t.Fatalf("expected 10 words, got %d", m.TotalWords)
	}
}

func TestQualityLatencyIndependentOfChunks(t *testing.T) {
	q := &qualityAccumulator{}

	// Latency is sampled per transcription call, including failed ones.
	q.observeLatency(10)
	q.observeLatency(30)
	q.observeFailure()

	m := q.snapshot()
	if !almostEqual(m.AvgProcessingTimeMs, 20) {
		t.Fatalf("expected avg latency 20ms, got %v", m.AvgProcessingTimeMs)
	}
	if m.TotalChunksProcessed != 0 {
		t.Fatalf("expected no processed chunks, got %d", m.TotalChunksProcessed)
	}
	if m.FailedChunks != 1 {
		t.Fatalf("expected 1 failed chunk, got %d", m.FailedChunks)
	}
}

func TestQualityZeroValueSnapshot(t *testing.T) {
	q := &qualityAccumulator{}
	m := q.snapshot()
	if m != (QualityMetrics{}) {
		t.Fatalf("expected zero metrics, got %+v", m)
	}
}
