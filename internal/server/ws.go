package server

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voxwire/voxwire/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func registerWSRoute(mux *http.ServeMux, hub *Hub, manager SessionManager) {
	mux.HandleFunc("GET /v1/sessions/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		log := logging.WithSession("gateway", sessionID)

		if !validSessionID(sessionID) {
			http.Error(w, "invalid session id", http.StatusForbidden)
			return
		}
		if _, err := manager.GetStatus(sessionID); err != nil {
			writeError(w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("ws upgrade failed")
			return
		}
		defer func() { _ = conn.Close() }()

		out := hub.Subscribe(sessionID)
		defer hub.Unsubscribe(sessionID, out)

		ack, err := json.Marshal(ConnectionMessage{
			Envelope:  newEnvelope("connection", time.Now().UTC()),
			SessionID: sessionID,
			Connected: true,
		})
		if err == nil {
			_ = conn.WriteMessage(websocket.TextMessage, ack)
		}

		// Single socket writer: push events and read-loop replies both go
		// through out. The goroutine drains out until it is closed, either
		// by Unsubscribe here or by the hub when the session fails, then
		// closes the connection so the read loop unblocks.
		go func() {
			defer func() { _ = conn.Close() }()
			for msg := range out {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		readLoop(conn, out, sessionID, manager, log)
		// A dropped connection does not finalize the session; the idle sweep
		// handles abandonment so brief client reconnects are tolerated.
	})
}

func readLoop(conn *websocket.Conn, out chan []byte, sessionID string, manager SessionManager, log zerolog.Logger) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("ws read closed")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			reply(out, ErrorMessage{
				Envelope: newEnvelope("error", time.Now().UTC()),
				Code:     "invalid_message",
				Message:  "malformed JSON message",
			})
			continue
		}

		switch msg.Type {
		case "audio_chunk":
			payload, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				reply(out, ErrorMessage{
					Envelope: newEnvelope("error", time.Now().UTC()),
					Code:     "invalid_message",
					Message:  "audio data is not valid base64",
				})
				continue
			}
			if len(payload) == 0 {
				reply(out, ErrorMessage{
					Envelope: newEnvelope("error", time.Now().UTC()),
					Code:     "invalid_message",
					Message:  "empty audio payload",
				})
				continue
			}
			if err := manager.PushChunk(sessionID, payload, unixTime(msg.Timestamp), msg.Seq); err != nil {
				reply(out, ErrorMessage{
					Envelope: newEnvelope("error", time.Now().UTC()),
					Code:     errorCode(err),
					Message:  err.Error(),
				})
			}

		case "ping":
			reply(out, PongMessage{Envelope: newEnvelope("pong", time.Now().UTC())})

		default:
			reply(out, ErrorMessage{
				Envelope: newEnvelope("error", time.Now().UTC()),
				Code:     "invalid_message",
				Message:  "unknown message type " + msg.Type,
			})
		}
	}
}

// reply queues a message for the connection's writer, dropping it if the
// outbound buffer is full.
func reply(out chan []byte, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case out <- payload:
	default:
	}
}

func unixTime(ts float64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}
