// Package transcribe defines the contract with the external transcription
// service and the providers that implement it.
package transcribe

import (
	"context"
	"errors"
)

// Request carries the accumulated audio for the current window plus session
// context the provider may use for model selection.
type Request struct {
	SessionID    string
	WindowID     int64
	LanguageHint string
	Audio        []byte
}

// Result is one transcription response. Final is a provider hint that the
// window it transcribed should be closed; providers that cannot tell leave it
// false and the caller closes windows on its own policy.
type Result struct {
	Text       string
	Confidence float64
	Language   string
	Final      bool
}

// Transcriber converts window audio into text. Implementations must be safe
// for concurrent use by multiple session workers.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}

// ErrEmptyAudio is returned when a request carries no audio bytes.
var ErrEmptyAudio = errors.New("transcribe: empty audio payload")
