package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxwire/voxwire/internal/analysis"
	"github.com/voxwire/voxwire/internal/logging"
	"github.com/voxwire/voxwire/internal/transcribe"
)

// fatalFailureLimit is the number of consecutive exhausted-retry failures
// after which the session is declared failed rather than limping on.
const fatalFailureLimit = 5

// runWorker is the transcription dispatcher for one session. Exactly one
// worker runs per session, so chunks are dispatched strictly in arrival
// order without per-chunk locking.
func (r *Registry) runWorker(ctx context.Context, s *Session) {
	defer close(s.workerDone)

	log := logging.WithSession("dispatcher", s.ID)
	log.Debug().Msg("dispatcher worker started")

	for {
		chunk, ok, err := s.queue.pop(ctx)
		if err != nil {
			// Grace period expired; the in-flight state is abandoned.
			log.Warn().Msg("dispatcher cancelled with chunks unprocessed")
			return
		}
		if !ok {
			r.closeOpenWindow(ctx, s)
			log.Debug().Msg("dispatcher worker drained")
			return
		}
		if !r.processChunk(ctx, s, chunk, log) {
			return
		}
	}
}

// processChunk feeds one audio chunk into the open window and invokes the
// transcriber with the window's accumulated audio. Returns false when the
// worker should stop.
func (r *Registry) processChunk(ctx context.Context, s *Session, chunk AudioChunk, log zerolog.Logger) bool {
	s.windowAudio = append(s.windowAudio, chunk.Payload...)
	s.windowChunks++

	start := time.Now()
	res, err := r.deps.Transcriber.Transcribe(ctx, transcribe.Request{
		SessionID:    s.ID,
		WindowID:     s.windowID,
		LanguageHint: s.LanguageHint,
		Audio:        s.windowAudio,
	})
	elapsed := time.Since(start)

	s.quality.observeLatency(float64(elapsed.Nanoseconds()) / 1e6)
	r.prom.TranscriptionDuration.Observe(elapsed.Seconds())
	s.touch()

	if err != nil {
		if ctx.Err() != nil {
			return false
		}

		s.quality.observeFailure()
		r.prom.TranscriptionFailures.Inc()
		s.consecFails++
		log.Warn().
			Err(err).
			Int64("windowId", s.windowID).
			Uint64("sequence", chunk.Sequence).
			Msg("chunk abandoned after exhausting retries")

		if s.consecFails >= fatalFailureLimit {
			// Session-wide fatal: finalize on a separate goroutine, since
			// finalization waits for this worker to exit.
			fatal := fmt.Errorf("%w: %v", ErrTranscriptionUnavailable, err)
			go r.finalize(context.Background(), s, EndReasonFatal, fatal)
			return false
		}

		// A stuck window must not block the session: close it without this
		// chunk's contribution once it hits the size threshold.
		if s.windowChunks >= r.opts.WindowMaxChunks {
			r.closeOpenWindow(ctx, s)
		}
		return true
	}
	s.consecFails = 0

	final := res.Final ||
		s.windowChunks >= r.opts.WindowMaxChunks ||
		s.queue.draining() && s.queue.depth() == 0

	r.emit(ctx, s, r.buildChunk(s, res, !final))
	s.lastResult = &res
	if final {
		s.resetWindow()
	}
	return true
}

// closeOpenWindow finalizes a window that still has partial results when the
// queue drains or the window fills on a failure. The most recent result is
// promoted to the window's final; a window with no successful result is
// dropped silently.
func (r *Registry) closeOpenWindow(ctx context.Context, s *Session) {
	if s.windowChunks == 0 {
		return
	}
	if s.lastResult != nil {
		r.emit(ctx, s, r.buildChunk(s, *s.lastResult, false))
	}
	s.resetWindow()
}

// emit routes one transcript chunk through the aggregator and, when
// accepted, to the metrics accumulator, the client channel, and the broker.
func (r *Registry) emit(ctx context.Context, s *Session, chunk TranscriptChunk) {
	if !s.agg.append(chunk) {
		return
	}

	s.quality.observeChunk(chunk.Confidence, analysis.WordCount(chunk.Text))
	s.touch()

	if chunk.IsPartial {
		r.prom.PartialsEmitted.Inc()
	} else {
		r.prom.FinalsEmitted.Inc()
	}

	if r.deps.Sink != nil {
		r.deps.Sink.TranscriptUpdate(s.ID, chunk)
	}
	if !chunk.IsPartial && r.deps.Publisher != nil {
		if err := r.deps.Publisher.PublishFinal(ctx, chunk); err != nil {
			log := logging.WithSession("dispatcher", s.ID)
			log.Warn().Err(err).Msg("publish final transcript")
		}
	}
}

func (r *Registry) buildChunk(s *Session, res transcribe.Result, partial bool) TranscriptChunk {
	chunk := TranscriptChunk{
		SessionID:     s.ID,
		WindowID:      s.windowID,
		Text:          res.Text,
		Confidence:    res.Confidence,
		IsPartial:     partial,
		Language:      res.Language,
		LowConfidence: r.opts.ConfidenceThreshold > 0 && res.Confidence < r.opts.ConfidenceThreshold,
		EmittedAt:     time.Now().UTC(),
	}
	if res.Text != "" {
		sentiment := analysis.AnalyzeSentiment(res.Text)
		chunk.Sentiment = &sentiment
		chunk.Keywords = analysis.ExtractKeywords(res.Text)
	}
	return chunk
}
