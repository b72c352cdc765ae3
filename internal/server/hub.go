package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/voxwire/voxwire/internal/logging"
	"github.com/voxwire/voxwire/internal/session"
)

// Hub fans session events out to the websocket connections attached to each
// session. It implements session.EventSink. Slow subscribers are skipped
// rather than blocking the dispatcher.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan []byte]struct{})}
}

// Subscribe attaches a new subscriber channel to a session's event stream.
func (h *Hub) Subscribe(sessionID string) chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan []byte]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe detaches and closes a subscriber channel. It is a no-op for a
// channel already detached, so it is safe after CloseSession.
func (h *Hub) Unsubscribe(sessionID string, ch chan []byte) {
	h.mu.Lock()
	conns, ok := h.subs[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, subscribed := conns[ch]; !subscribed {
		h.mu.Unlock()
		return
	}
	delete(conns, ch)
	if len(conns) == 0 {
		delete(h.subs, sessionID)
	}
	h.mu.Unlock()
	close(ch)
}

// CloseSession detaches and closes every subscriber channel of a session.
// Events already queued on the channels are still drained by their readers.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	conns := h.subs[sessionID]
	delete(h.subs, sessionID)
	h.mu.Unlock()

	for ch := range conns {
		close(ch)
	}
}

// Publish sends raw bytes to every subscriber of a session.
func (h *Hub) Publish(sessionID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[sessionID] {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) TranscriptUpdate(sessionID string, chunk session.TranscriptChunk) {
	h.publishEvent(sessionID, TranscriptUpdateMessage{
		Envelope: newEnvelope("transcript_update", chunk.EmittedAt),
		Data:     chunk,
	})
}

func (h *Hub) SessionEnded(sessionID string, result session.FinalResult) {
	h.publishEvent(sessionID, SessionEndedMessage{
		Envelope: newEnvelope("session_ended", result.EndedAt),
		Data:     result,
	})
}

func (h *Hub) SessionError(sessionID, code, message string) {
	h.publishEvent(sessionID, ErrorMessage{
		Envelope: newEnvelope("error", time.Now().UTC()),
		Code:     code,
		Message:  message,
	})
}

func (h *Hub) SummaryReady(sessionID, summary, status string) {
	h.publishEvent(sessionID, SummaryReadyMessage{
		Envelope:  newEnvelope("summary_ready", time.Now().UTC()),
		SessionID: sessionID,
		Summary:   summary,
		Status:    status,
	})
}

func (h *Hub) publishEvent(sessionID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log := logging.WithComponent("hub")
		log.Error().Err(err).Msg("event marshal failed")
		return
	}
	h.Publish(sessionID, payload)
}
