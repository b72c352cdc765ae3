package session

import (
	"context"
	"time"

	"github.com/voxwire/voxwire/internal/analysis"
	"github.com/voxwire/voxwire/internal/transcribe"
)

// State is the lifecycle state of a session.
type State int

const (
	StateCreated State = iota
	StateActive
	StateEnding
	StateEnded
	StateFailed
)

// String returns the wire representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

// AudioChunk is one fragment of inbound audio. It is owned by the session's
// queue from enqueue until the dispatcher consumes it.
type AudioChunk struct {
	SessionID  string
	Sequence   uint64
	Payload    []byte
	CapturedAt time.Time
}

// TranscriptChunk is one incremental transcript result for a window.
type TranscriptChunk struct {
	SessionID     string              `json:"session_id"`
	WindowID      int64               `json:"window_id"`
	Text          string              `json:"transcript"`
	Confidence    float64             `json:"confidence"`
	IsPartial     bool                `json:"is_partial"`
	Language      string              `json:"language,omitempty"`
	LowConfidence bool                `json:"low_confidence,omitempty"`
	Sentiment     *analysis.Sentiment `json:"sentiment,omitempty"`
	Keywords      []string            `json:"keywords,omitempty"`
	EmittedAt     time.Time           `json:"timestamp"`
}

// QualityMetrics are the rolling per-session aggregates, updated with
// incremental means so each observation costs O(1).
type QualityMetrics struct {
	AvgConfidence        float64 `json:"avg_confidence"`
	TotalChunksProcessed int64   `json:"total_chunks_processed"`
	AvgProcessingTimeMs  float64 `json:"avg_processing_time_ms"`
	TotalWords           int64   `json:"total_words"`
	FailedChunks         int64   `json:"failed_chunks"`
}

// Snapshot is a read-only copy of session status fields.
type Snapshot struct {
	SessionID            string         `json:"session_id"`
	InteractionID        string         `json:"interaction_id"`
	State                string         `json:"state"`
	AudioQueueDepth      int            `json:"audio_queue_depth"`
	TranscriptChunkCount int            `json:"transcript_chunk_count"`
	QualityMetrics       QualityMetrics `json:"quality_metrics"`
	StartedAt            time.Time      `json:"started_at"`
	LastActivity         time.Time      `json:"last_activity"`
	Error                string         `json:"error,omitempty"`
}

// FinalResult is the terminal output of a session: the aggregated transcript
// view plus the metrics snapshot. It is cached so repeated EndSession calls
// return identical results.
type FinalResult struct {
	SessionID       string            `json:"session_id"`
	InteractionID   string            `json:"interaction_id"`
	UserID          string            `json:"user_id"`
	StoreID         string            `json:"store_id"`
	LanguageHint    string            `json:"language_hint"`
	State           string            `json:"state"`
	StartedAt       time.Time         `json:"started_at"`
	EndedAt         time.Time         `json:"ended_at"`
	FinalTranscript string            `json:"final_transcript"`
	Windows         []TranscriptChunk `json:"windows"`
	QualityMetrics  QualityMetrics    `json:"quality_metrics"`
	EndReason       string            `json:"end_reason"`
	Error           string            `json:"error,omitempty"`
}

// End reasons recorded on FinalResult.
const (
	EndReasonClient      = "client_request"
	EndReasonIdleTimeout = "idle_timeout"
	EndReasonFatal       = "transcription_unavailable"
	EndReasonShutdown    = "shutdown"
)

// Transcriber converts window audio into text. Satisfied by the providers in
// internal/transcribe, usually wrapped in a transcribe.Retrier.
type Transcriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (transcribe.Result, error)
}

// EventSink receives push events destined for the session's client channel.
// CloseSession tears the channel down; the registry calls it after the final
// error and session_ended events of a failed session.
type EventSink interface {
	TranscriptUpdate(sessionID string, chunk TranscriptChunk)
	SessionEnded(sessionID string, result FinalResult)
	SessionError(sessionID, code, message string)
	SummaryReady(sessionID, summary, status string)
	CloseSession(sessionID string)
}

// Store persists finished sessions.
type Store interface {
	SaveFinal(result FinalResult) error
	UpdateSummary(sessionID, summary, status string) error
}

// Summarizer produces an end-of-session summary from the final transcript.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID, transcript string) (string, error)
}

// Publisher forwards finalized transcript windows and session lifecycle
// events to a broker.
type Publisher interface {
	PublishFinal(ctx context.Context, chunk TranscriptChunk) error
	PublishSessionEnded(ctx context.Context, result FinalResult) error
}

// Deps are the collaborators injected into the registry. Transcriber is
// required; the rest may be nil.
type Deps struct {
	Transcriber Transcriber
	Sink        EventSink
	Store       Store
	Summarizer  Summarizer
	Publisher   Publisher
}
