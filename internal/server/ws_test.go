package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxwire/voxwire/internal/session"
)

func dialWS(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/sessions/" + sessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readWSEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ws read failed: %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal(raw, &event); err != nil {
		t.Fatalf("unmarshal ws event: %v", err)
	}
	return event
}

func TestWSConnectionAck(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(Handler(hub, &fakeManager{}))
	defer server.Close()

	conn := dialWS(t, server, "sess-1")

	ack := readWSEvent(t, conn)
	if ack["type"] != "connection" || ack["connected"] != true {
		t.Fatalf("unexpected ack %v", ack)
	}
	if ack["session_id"] != "sess-1" {
		t.Fatalf("unexpected session id %v", ack["session_id"])
	}
}

func TestWSRejectsUnknownSession(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(Handler(hub, &fakeManager{statusErr: session.ErrNotFound}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/sessions/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown session")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404 handshake response, got %+v", resp)
	}
}

func TestWSAudioChunkPush(t *testing.T) {
	hub := NewHub()
	manager := &fakeManager{}
	server := httptest.NewServer(Handler(hub, manager))
	defer server.Close()

	conn := dialWS(t, server, "sess-1")
	readWSEvent(t, conn) // ack

	audio := []byte{0x01, 0x02, 0x03}
	msg := map[string]any{
		"type":      "audio_chunk",
		"data":      base64.StdEncoding.EncodeToString(audio),
		"timestamp": 1756204800.5,
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write audio_chunk: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for manager.pushCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for chunk push")
		}
		time.Sleep(2 * time.Millisecond)
	}

	manager.mu.Lock()
	pushed := manager.pushes[0]
	manager.mu.Unlock()
	if string(pushed.payload) != string(audio) {
		t.Fatalf("payload corrupted: %v", pushed.payload)
	}
}

func TestWSAudioChunkErrors(t *testing.T) {
	tests := []struct {
		name     string
		manager  *fakeManager
		message  string
		wantCode string
	}{
		{"bad base64", &fakeManager{}, `{"type":"audio_chunk","data":"%%%"}`, "invalid_message"},
		{"empty payload", &fakeManager{}, `{"type":"audio_chunk","data":""}`, "invalid_message"},
		{"queue full", &fakeManager{pushErr: session.ErrQueueFull}, `{"type":"audio_chunk","data":"AQID"}`, "queue_full"},
		{"ended session", &fakeManager{pushErr: session.ErrInvalidSessionState}, `{"type":"audio_chunk","data":"AQID"}`, "invalid_session_state"},
		{"malformed json", &fakeManager{}, `{nope`, "invalid_message"},
		{"unknown type", &fakeManager{}, `{"type":"mystery"}`, "invalid_message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub()
			server := httptest.NewServer(Handler(hub, tt.manager))
			defer server.Close()

			conn := dialWS(t, server, "sess-1")
			readWSEvent(t, conn) // ack

			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.message)); err != nil {
				t.Fatalf("write message: %v", err)
			}

			event := readWSEvent(t, conn)
			if event["type"] != "error" {
				t.Fatalf("expected error event, got %v", event)
			}
			if event["code"] != tt.wantCode {
				t.Fatalf("expected code %q, got %v", tt.wantCode, event["code"])
			}
		})
	}
}

func TestWSPingPong(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(Handler(hub, &fakeManager{}))
	defer server.Close()

	conn := dialWS(t, server, "sess-1")
	readWSEvent(t, conn) // ack

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	pong := readWSEvent(t, conn)
	if pong["type"] != "pong" {
		t.Fatalf("expected pong, got %v", pong)
	}
}

func TestWSReceivesHubEvents(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(Handler(hub, &fakeManager{}))
	defer server.Close()

	conn := dialWS(t, server, "sess-1")
	readWSEvent(t, conn) // ack

	// The subscription is registered before the ack is sent, so a publish
	// after reading the ack is guaranteed to be delivered.
	hub.TranscriptUpdate("sess-1", session.TranscriptChunk{
		SessionID: "sess-1",
		Text:      "pushed through hub",
		IsPartial: true,
		EmittedAt: time.Now().UTC(),
	})

	event := readWSEvent(t, conn)
	if event["type"] != "transcript_update" {
		t.Fatalf("expected transcript_update, got %v", event)
	}
	data := event["data"].(map[string]any)
	if data["transcript"] != "pushed through hub" {
		t.Fatalf("unexpected payload %v", data)
	}
}

func TestUnixTime(t *testing.T) {
	if !unixTime(0).IsZero() {
		t.Fatal("expected zero time for 0")
	}
	got := unixTime(1756204800.5)
	if got.Unix() != 1756204800 {
		t.Fatalf("unexpected seconds %d", got.Unix())
	}
	if ns := got.Nanosecond(); ns < 400_000_000 || ns > 600_000_000 {
		t.Fatalf("unexpected fractional part %d", ns)
	}
}

func TestWSClosedAfterSessionFailure(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(Handler(hub, &fakeManager{}))
	defer server.Close()

	conn := dialWS(t, server, "sess-1")
	readWSEvent(t, conn) // ack

	hub.SessionError("sess-1", "transcription_unavailable", "stt down")
	hub.CloseSession("sess-1")

	event := readWSEvent(t, conn)
	if event["type"] != "error" || event["code"] != "transcription_unavailable" {
		t.Fatalf("expected final error event, got %v", event)
	}

	// The hub close propagates to the socket: the writer closes the
	// connection, so the next read fails instead of blocking.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected read to fail after the server closed the connection")
	}
	if strings.Contains(err.Error(), "timeout") {
		t.Fatalf("connection never closed by server: %v", err)
	}
}
