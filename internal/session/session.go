// Package session implements the real-time session manager: the registry of
// live sessions, the bounded audio queue, the per-session dispatcher worker,
// the transcript aggregator, and the quality metrics accumulator.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/voxwire/voxwire/internal/transcribe"
)

// Summary lifecycle statuses pushed to clients and persisted by the store.
const (
	SummaryPending   = "pending"
	SummaryRunning   = "running"
	SummaryCompleted = "completed"
	SummaryFailed    = "failed"
)

// Session is one live audio-to-transcript stream. Structural fields are
// guarded by mu; the window* fields are owned exclusively by the session's
// dispatcher worker, and queue/agg/quality carry their own synchronization.
type Session struct {
	ID            string
	InteractionID string
	UserID        string
	StoreID       string
	LanguageHint  string

	// pushMu serializes chunk admission so chunks enter the queue in the
	// same order their sequence numbers are assigned.
	pushMu sync.Mutex

	mu           sync.Mutex
	state        State
	startedAt    time.Time
	lastActivity time.Time
	endedAt      time.Time
	nextSeq      uint64
	final        *FinalResult

	workerStarted bool
	workerCancel  context.CancelFunc
	workerDone    chan struct{}

	endOnce sync.Once
	endDone chan struct{}

	queue   *chunkQueue
	agg     *aggregator
	quality *qualityAccumulator

	// Window accumulation state, worker-owned.
	windowID     int64
	windowAudio  []byte
	windowChunks int
	lastResult   *transcribe.Result
	consecFails  int
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now().UTC()
	s.mu.Unlock()
}

// snapshot builds a read-only copy of the session's status fields.
func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	state := s.state
	startedAt := s.startedAt
	lastActivity := s.lastActivity
	errMsg := ""
	if s.final != nil {
		errMsg = s.final.Error
	}
	s.mu.Unlock()

	return Snapshot{
		SessionID:            s.ID,
		InteractionID:        s.InteractionID,
		State:                state.String(),
		AudioQueueDepth:      s.queue.depth(),
		TranscriptChunkCount: s.agg.viewCount(),
		QualityMetrics:       s.quality.snapshot(),
		StartedAt:            startedAt,
		LastActivity:         lastActivity,
		Error:                errMsg,
	}
}

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) resetWindow() {
	s.windowID++
	s.windowAudio = nil
	s.windowChunks = 0
	s.lastResult = nil
}
