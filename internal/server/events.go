package server

import (
	"time"

	"github.com/voxwire/voxwire/internal/session"
)

// MessageVersion is bumped when the wire shape of push messages changes.
const MessageVersion = 1

// Envelope is the header shared by every server-to-client message.
type Envelope struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

// ConnectionMessage acknowledges a websocket attach.
type ConnectionMessage struct {
	Envelope
	SessionID string `json:"session_id"`
	Connected bool   `json:"connected"`
}

// TranscriptUpdateMessage pushes one partial or final transcript chunk.
type TranscriptUpdateMessage struct {
	Envelope
	Data session.TranscriptChunk `json:"data"`
}

// SessionEndedMessage carries the final result when a session finalizes.
type SessionEndedMessage struct {
	Envelope
	Data session.FinalResult `json:"data"`
}

// SummaryReadyMessage announces the async end-of-session summary.
type SummaryReadyMessage struct {
	Envelope
	SessionID string `json:"session_id"`
	Summary   string `json:"summary"`
	Status    string `json:"status"`
}

// ErrorMessage reports a chunk rejection or session failure to the client.
type ErrorMessage struct {
	Envelope
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMessage answers a client ping.
type PongMessage struct {
	Envelope
}

// clientMessage is the inbound wire shape on the duplex channel.
type clientMessage struct {
	Type      string  `json:"type"`
	Data      string  `json:"data,omitempty"` // base64 audio for audio_chunk
	Timestamp float64 `json:"timestamp,omitempty"`
	Seq       *uint64 `json:"seq,omitempty"`
}

func newEnvelope(messageType string, now time.Time) Envelope {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Envelope{
		Type:      messageType,
		Version:   MessageVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
