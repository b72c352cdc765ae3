package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxwire/voxwire/internal/logging"
	"github.com/voxwire/voxwire/internal/metrics"
)

// Options configure the registry's buffering and lifecycle policy.
type Options struct {
	MaxSessions     int
	BufferSize      int
	EnqueueWait     time.Duration
	IdleTimeout     time.Duration
	SweepInterval   time.Duration
	GracePeriod     time.Duration
	WindowMaxChunks int

	// ConfidenceThreshold flags transcript chunks below it as low
	// confidence. Zero disables flagging.
	ConfidenceThreshold float64
}

func (o *Options) applyDefaults() {
	if o.MaxSessions <= 0 {
		o.MaxSessions = 100
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 100
	}
	if o.EnqueueWait <= 0 {
		o.EnqueueWait = 2 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 5 * time.Second
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 5 * time.Second
	}
	if o.WindowMaxChunks <= 0 {
		o.WindowMaxChunks = 4
	}
}

// Registry owns every live session: creation, lookup, chunk admission,
// teardown, and the idle sweep. The registry map is the only globally shared
// mutable structure; per-session state is touched only by that session's
// gateway handler and dispatcher worker.
type Registry struct {
	opts Options
	deps Deps
	prom *metrics.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
	active   int

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRegistry builds a registry. Deps.Transcriber must be non-nil; the other
// collaborators may be nil and are skipped.
func NewRegistry(opts Options, deps Deps) *Registry {
	opts.applyDefaults()
	return &Registry{
		opts:     opts,
		deps:     deps,
		prom:     metrics.Default(),
		sessions: make(map[string]*Session),
		stop:     make(chan struct{}),
	}
}

// Start launches the periodic idle sweep.
func (r *Registry) Start() {
	go r.sweepLoop()
}

// Close stops the sweep and finalizes every non-terminal session.
func (r *Registry) Close(ctx context.Context) {
	r.stopOnce.Do(func() { close(r.stop) })

	r.mu.Lock()
	open := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if !s.currentState().Terminal() {
			open = append(open, s)
		}
	}
	r.mu.Unlock()

	for _, s := range open {
		r.finalize(ctx, s, EndReasonShutdown, nil)
	}
}

// CreateSession allocates a new session in the Created state, enforcing the
// concurrency ceiling over Created and Active sessions.
func (r *Registry) CreateSession(interactionID, userID, storeID, languageHint string) (string, error) {
	if languageHint == "" {
		languageHint = "auto"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active >= r.opts.MaxSessions {
		return "", fmt.Errorf("%w: limit %d", ErrCapacityExceeded, r.opts.MaxSessions)
	}

	now := time.Now().UTC()
	s := &Session{
		ID:            uuid.NewString(),
		InteractionID: interactionID,
		UserID:        userID,
		StoreID:       storeID,
		LanguageHint:  languageHint,
		state:         StateCreated,
		startedAt:     now,
		lastActivity:  now,
		workerDone:    make(chan struct{}),
		endDone:       make(chan struct{}),
		queue:         newChunkQueue(r.opts.BufferSize, r.opts.EnqueueWait),
		agg:           newAggregator(),
		quality:       &qualityAccumulator{},
	}

	r.sessions[s.ID] = s
	r.active++
	r.prom.SessionsCreated.Inc()
	r.prom.ActiveSessions.Inc()

	log := logging.WithSession("registry", s.ID)
	log.Info().
		Str("interactionId", interactionID).
		Str("storeId", storeID).
		Str("languageHint", languageHint).
		Msg("session created")

	return s.ID, nil
}

// GetStatus returns a read-only copy of the session's status fields.
func (r *Registry) GetStatus(sessionID string) (Snapshot, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(), nil
}

// Transcript returns the most recent limit chunks of the visible transcript
// view; a non-positive limit returns all of it.
func (r *Registry) Transcript(sessionID string, limit int) ([]TranscriptChunk, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	return s.agg.viewChunks(limit), nil
}

// PushChunk admits one audio chunk: it assigns the next sequence number,
// activates the session on its first chunk, and enqueues with bounded-wait
// backpressure. Admission is serialized per session so the queue order
// matches the assigned sequence even with concurrent senders. clientSeq,
// when supplied by the sender, must match the next expected sequence or the
// chunk is rejected with a gap signal.
func (r *Registry) PushChunk(sessionID string, payload []byte, capturedAt time.Time, clientSeq *uint64) error {
	s, err := r.get(sessionID)
	if err != nil {
		r.prom.ChunksRejected.WithLabelValues("not_found").Inc()
		return err
	}

	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	s.mu.Lock()
	if s.state != StateCreated && s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		r.prom.ChunksRejected.WithLabelValues("invalid_state").Inc()
		return fmt.Errorf("%w: session is %s", ErrInvalidSessionState, state)
	}
	if clientSeq != nil && *clientSeq != s.nextSeq {
		expected := s.nextSeq
		s.mu.Unlock()
		r.prom.ChunksRejected.WithLabelValues("sequence_gap").Inc()
		return fmt.Errorf("%w: got %d, expected %d", ErrSequenceGap, *clientSeq, expected)
	}

	sequence := s.nextSeq

	var workerCtx context.Context
	if s.state == StateCreated {
		s.state = StateActive
		s.workerStarted = true
		workerCtx, s.workerCancel = context.WithCancel(context.Background())
	}
	s.mu.Unlock()

	if workerCtx != nil {
		go r.runWorker(workerCtx, s)
	}

	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	if err := s.queue.push(AudioChunk{
		SessionID:  sessionID,
		Sequence:   sequence,
		Payload:    payload,
		CapturedAt: capturedAt,
	}); err != nil {
		r.prom.ChunksRejected.WithLabelValues("queue_full").Inc()
		return err
	}

	// The sequence number is consumed only on a successful enqueue, so a
	// sender hitting backpressure can retry the same chunk.
	s.mu.Lock()
	s.nextSeq++
	s.lastActivity = time.Now().UTC()
	s.mu.Unlock()

	r.prom.ChunksReceived.Inc()
	r.prom.QueueDepth.Set(float64(s.queue.depth()))
	return nil
}

// EndSession drains and finalizes the session, returning the aggregated
// transcript and metrics. Idempotent: repeat calls return the cached result.
func (r *Registry) EndSession(ctx context.Context, sessionID string) (FinalResult, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return FinalResult{}, err
	}
	return r.finalize(ctx, s, EndReasonClient, nil), nil
}

// Sweep finalizes sessions idle past the timeout and evicts terminal
// sessions whose results have aged out. Returns the number of sessions acted
// on.
func (r *Registry) Sweep() int {
	now := time.Now().UTC()

	r.mu.Lock()
	var stale []*Session
	var evict []string
	for id, s := range r.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastActivity) > r.opts.IdleTimeout
		terminal := s.state.Terminal()
		s.mu.Unlock()

		if !idle {
			continue
		}
		if terminal {
			evict = append(evict, id)
		} else {
			stale = append(stale, s)
		}
	}
	for _, id := range evict {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range stale {
		r.prom.SessionsSwept.Inc()
		log := logging.WithSession("registry", s.ID)
		log.Info().Msg("idle session swept")
		r.finalize(context.Background(), s, EndReasonIdleTimeout, nil)
	}

	return len(stale) + len(evict)
}

// ActiveCount returns the number of sessions in Created or Active state.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Registry) get(sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return s, nil
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stop:
			return
		}
	}
}

// finalize runs the end-of-session path exactly once per session: stop
// accepting chunks, drain within the grace period (forcing cancellation on
// expiry), cache the final result, then notify collaborators.
func (r *Registry) finalize(ctx context.Context, s *Session, reason string, failErr error) FinalResult {
	s.endOnce.Do(func() {
		defer close(s.endDone)

		s.mu.Lock()
		s.state = StateEnding
		started := s.workerStarted
		s.mu.Unlock()

		s.queue.close()

		if started {
			timer := time.NewTimer(r.opts.GracePeriod)
			select {
			case <-s.workerDone:
				timer.Stop()
			case <-timer.C:
				s.workerCancel()
				<-s.workerDone
			}
		}

		now := time.Now().UTC()
		state := StateEnded
		errMsg := ""
		if failErr != nil {
			state = StateFailed
			errMsg = failErr.Error()
		}

		s.mu.Lock()
		startedAt := s.startedAt
		s.mu.Unlock()

		result := FinalResult{
			SessionID:       s.ID,
			InteractionID:   s.InteractionID,
			UserID:          s.UserID,
			StoreID:         s.StoreID,
			LanguageHint:    s.LanguageHint,
			State:           state.String(),
			StartedAt:       startedAt,
			EndedAt:         now,
			FinalTranscript: s.agg.transcriptText(),
			Windows:         s.agg.viewChunks(0),
			QualityMetrics:  s.quality.snapshot(),
			EndReason:       reason,
			Error:           errMsg,
		}

		s.mu.Lock()
		s.state = state
		s.endedAt = now
		s.lastActivity = now
		s.final = &result
		s.mu.Unlock()

		r.mu.Lock()
		r.active--
		r.mu.Unlock()
		r.prom.ActiveSessions.Dec()
		if state == StateFailed {
			r.prom.SessionsFailed.Inc()
		} else {
			r.prom.SessionsEnded.Inc()
		}

		log := logging.WithSession("registry", s.ID)
		log.Info().
			Str("state", state.String()).
			Str("reason", reason).
			Int64("chunks", result.QualityMetrics.TotalChunksProcessed).
			Msg("session finalized")

		if r.deps.Store != nil {
			if err := r.deps.Store.SaveFinal(result); err != nil {
				log.Warn().Err(err).Msg("persist final result")
			}
		}
		if r.deps.Sink != nil {
			if failErr != nil {
				r.deps.Sink.SessionError(s.ID, "transcription_unavailable", errMsg)
			}
			r.deps.Sink.SessionEnded(s.ID, result)
			if failErr != nil {
				// A failed session gets no summary, so nothing else will
				// ever be pushed; tear the client channel down.
				r.deps.Sink.CloseSession(s.ID)
			}
		}
		if r.deps.Publisher != nil {
			if err := r.deps.Publisher.PublishSessionEnded(ctx, result); err != nil {
				log.Warn().Err(err).Msg("publish session ended")
			}
		}
		if r.deps.Summarizer != nil && state == StateEnded && result.FinalTranscript != "" {
			go r.generateSummary(s.ID, result.FinalTranscript)
		}
	})

	<-s.endDone

	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.final
}

func (r *Registry) generateSummary(sessionID, transcript string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	log := logging.WithSession("registry", sessionID)

	if r.deps.Store != nil {
		if err := r.deps.Store.UpdateSummary(sessionID, "", SummaryRunning); err != nil {
			log.Warn().Err(err).Msg("mark summary running")
		}
	}

	summaryText, err := r.deps.Summarizer.Summarize(ctx, sessionID, transcript)
	status := SummaryCompleted
	if err != nil {
		status = SummaryFailed
		summaryText = ""
		log.Warn().Err(err).Msg("summary generation failed")
	}

	if r.deps.Store != nil {
		if err := r.deps.Store.UpdateSummary(sessionID, summaryText, status); err != nil {
			log.Warn().Err(err).Msg("persist summary")
		}
	}
	if r.deps.Sink != nil {
		r.deps.Sink.SummaryReady(sessionID, summaryText, status)
	}
}
