package session

import "errors"

var (
	// ErrNotFound is returned when no session exists for the given id.
	ErrNotFound = errors.New("session not found")

	// ErrCapacityExceeded is returned by CreateSession when the configured
	// concurrent session ceiling is reached.
	ErrCapacityExceeded = errors.New("maximum concurrent sessions reached")

	// ErrInvalidSessionState is returned when an operation targets a session
	// that is not in a state accepting it.
	ErrInvalidSessionState = errors.New("session not accepting this operation")

	// ErrQueueFull is the backpressure signal: the audio queue stayed full for
	// the whole bounded enqueue wait. Clients recover by slowing down.
	ErrQueueFull = errors.New("session audio queue full")

	// ErrSequenceGap is returned when a client-supplied sequence number does
	// not match the next expected sequence for the session.
	ErrSequenceGap = errors.New("audio chunk sequence gap")

	// ErrTranscriptionUnavailable records that the external transcription
	// capability failed after exhausting retries.
	ErrTranscriptionUnavailable = errors.New("transcription unavailable")
)
