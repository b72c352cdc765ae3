package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxwire/voxwire/internal/session"
)

type pushedChunk struct {
	payload []byte
	seq     *uint64
}

type fakeManager struct {
	mu        sync.Mutex
	createErr error
	statusErr error
	pushErr   error
	endErr    error

	sessionID string
	snapshot  session.Snapshot
	chunks    []session.TranscriptChunk
	final     session.FinalResult
	pushes    []pushedChunk
	ended     []string
}

func (f *fakeManager) CreateSession(interactionID, userID, storeID, languageHint string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.sessionID, nil
}

func (f *fakeManager) GetStatus(sessionID string) (session.Snapshot, error) {
	if f.statusErr != nil {
		return session.Snapshot{}, f.statusErr
	}
	return f.snapshot, nil
}

func (f *fakeManager) Transcript(sessionID string, limit int) ([]session.TranscriptChunk, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if limit > 0 && len(f.chunks) > limit {
		return f.chunks[len(f.chunks)-limit:], nil
	}
	return f.chunks, nil
}

func (f *fakeManager) PushChunk(sessionID string, payload []byte, capturedAt time.Time, clientSeq *uint64) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, pushedChunk{payload: payload, seq: clientSeq})
	return nil
}

func (f *fakeManager) EndSession(_ context.Context, sessionID string) (session.FinalResult, error) {
	if f.endErr != nil {
		return session.FinalResult{}, f.endErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, sessionID)
	return f.final, nil
}

func (f *fakeManager) ActiveCount() int { return 7 }

func (f *fakeManager) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func newTestServer(t *testing.T, manager SessionManager) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(Handler(NewHub(), manager))
	t.Cleanup(server.Close)
	return server
}

func TestCreateSessionEndpoint(t *testing.T) {
	manager := &fakeManager{sessionID: "sess-1"}
	server := newTestServer(t, manager)

	resp, err := http.Post(server.URL+"/v1/sessions", "application/json",
		strings.NewReader(`{"interaction_id":"int-1","user_id":"u1","language_hint":"en"}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["session_id"] != "sess-1" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing interaction_id", `{"user_id":"u1"}`},
	}

	server := newTestServer(t, &fakeManager{sessionID: "sess-1"})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/v1/sessions", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST failed: %v", err)
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", session.ErrNotFound, http.StatusNotFound, "not_found"},
		{"capacity", session.ErrCapacityExceeded, http.StatusTooManyRequests, "capacity_exceeded"},
		{"queue full", session.ErrQueueFull, http.StatusServiceUnavailable, "queue_full"},
		{"sequence gap", session.ErrSequenceGap, http.StatusConflict, "invalid_session_state"},
		{"invalid state", session.ErrInvalidSessionState, http.StatusConflict, "invalid_session_state"},
		{"wrapped", fmt.Errorf("context: %w", session.ErrNotFound), http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.wantStatus {
				t.Errorf("statusForError = %d, want %d", got, tt.wantStatus)
			}
			if got := errorCode(tt.err); got != tt.wantCode {
				t.Errorf("errorCode = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	manager := &fakeManager{snapshot: session.Snapshot{
		SessionID:     "sess-1",
		InteractionID: "int-1",
		State:         "active",
	}}
	server := newTestServer(t, manager)

	resp, err := http.Get(server.URL + "/v1/sessions/sess-1/status")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if snap.State != "active" || snap.SessionID != "sess-1" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestStatusEndpointNotFound(t *testing.T) {
	manager := &fakeManager{statusErr: session.ErrNotFound}
	server := newTestServer(t, manager)

	resp, err := http.Get(server.URL + "/v1/sessions/nope/status")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error"] != "not_found" {
		t.Fatalf("unexpected error code %q", body["error"])
	}
}

func TestStatusEndpointRejectsBadID(t *testing.T) {
	server := newTestServer(t, &fakeManager{})

	resp, err := http.Get(server.URL + "/v1/sessions/bad%2Fid/status")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for invalid id, got %d", resp.StatusCode)
	}
}

func TestTranscriptEndpoint(t *testing.T) {
	manager := &fakeManager{chunks: []session.TranscriptChunk{
		{SessionID: "sess-1", WindowID: 0, Text: "hello", IsPartial: false},
		{SessionID: "sess-1", WindowID: 1, Text: "world", IsPartial: false},
		{SessionID: "sess-1", WindowID: 2, Text: "again", IsPartial: true},
	}}
	server := newTestServer(t, manager)

	resp, err := http.Get(server.URL + "/v1/sessions/sess-1/transcript?limit=2")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		SessionID  string                    `json:"session_id"`
		Transcript []session.TranscriptChunk `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Transcript) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(body.Transcript))
	}
	if body.Transcript[0].Text != "world" || body.Transcript[1].Text != "again" {
		t.Fatalf("expected transcript tail, got %+v", body.Transcript)
	}
}

func TestTranscriptEndpointEmpty(t *testing.T) {
	server := newTestServer(t, &fakeManager{})

	resp, err := http.Get(server.URL + "/v1/sessions/sess-1/transcript")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Transcript []session.TranscriptChunk `json:"transcript"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Transcript == nil {
		t.Fatal("expected empty array, not null")
	}
}

func TestEndSessionEndpoint(t *testing.T) {
	manager := &fakeManager{final: session.FinalResult{
		SessionID:       "sess-1",
		State:           "ended",
		FinalTranscript: "hello world",
		EndReason:       session.EndReasonClient,
	}}
	server := newTestServer(t, manager)

	resp, err := http.Post(server.URL+"/v1/sessions/sess-1/end", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result session.FinalResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.FinalTranscript != "hello world" || result.EndReason != session.EndReasonClient {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(manager.ended) != 1 || manager.ended[0] != "sess-1" {
		t.Fatalf("expected EndSession called once, got %v", manager.ended)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeManager{})

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Status         string `json:"status"`
		ActiveSessions int    `json:"active_sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "ok" || body.ActiveSessions != 7 {
		t.Fatalf("unexpected health body %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeManager{})

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestValidSessionID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"abc-123_XY", true},
		{"550e8400-e29b-41d4-a716-446655440000", true},
		{"", false},
		{"has space", false},
		{"../etc/passwd", false},
	}
	for _, tt := range tests {
		if got := validSessionID(tt.id); got != tt.want {
			t.Errorf("validSessionID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
