package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/voxwire/voxwire/internal/session"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// SessionManager is the registry surface the gateway drives.
type SessionManager interface {
	CreateSession(interactionID, userID, storeID, languageHint string) (string, error)
	GetStatus(sessionID string) (session.Snapshot, error)
	Transcript(sessionID string, limit int) ([]session.TranscriptChunk, error)
	PushChunk(sessionID string, payload []byte, capturedAt time.Time, clientSeq *uint64) error
	EndSession(ctx context.Context, sessionID string) (session.FinalResult, error)
	ActiveCount() int
}

type createSessionRequest struct {
	InteractionID string `json:"interaction_id"`
	UserID        string `json:"user_id"`
	StoreID       string `json:"store_id"`
	LanguageHint  string `json:"language_hint"`
}

func registerAPIRoutes(mux *http.ServeMux, manager SessionManager) {
	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
		if req.InteractionID == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "interaction_id is required")
			return
		}

		sessionID, err := manager.CreateSession(req.InteractionID, req.UserID, req.StoreID, req.LanguageHint)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID})
	})

	mux.HandleFunc("GET /v1/sessions/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid_request", "invalid session id")
			return
		}

		snapshot, err := manager.GetStatus(sessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	})

	mux.HandleFunc("GET /v1/sessions/{id}/transcript", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid_request", "invalid session id")
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		chunks, err := manager.Transcript(sessionID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		if chunks == nil {
			chunks = []session.TranscriptChunk{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": sessionID,
			"transcript": chunks,
		})
	})

	mux.HandleFunc("POST /v1/sessions/{id}/end", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid_request", "invalid session id")
			return
		}

		result, err := manager.EndSession(r.Context(), sessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":          "ok",
			"active_sessions": manager.ActiveCount(),
		})
	})
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// errorCode maps session errors to wire error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return "not_found"
	case errors.Is(err, session.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, session.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, session.ErrSequenceGap),
		errors.Is(err, session.ErrInvalidSessionState):
		return "invalid_session_state"
	case errors.Is(err, session.ErrTranscriptionUnavailable):
		return "transcription_unavailable"
	default:
		return "internal_error"
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrCapacityExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrSequenceGap),
		errors.Is(err, session.ErrInvalidSessionState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusForError(err), errorCode(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}
