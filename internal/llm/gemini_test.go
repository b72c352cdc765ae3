package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func geminiStub(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{"text": text}},
					"role":  "model",
				},
				"finishReason": "STOP",
			}},
		})
	}))
}

func TestGeminiComplete(t *testing.T) {
	server := geminiStub(t, " Caller asked about a refund. ")
	defer server.Close()

	client, err := newGeminiClient("test-key", "gemini-2.0-flash", &clientOptions{baseURL: server.URL})
	if err != nil {
		t.Fatalf("newGeminiClient: %v", err)
	}

	got, err := client.Complete(context.Background(), []Message{
		{Role: "system", Content: "summarize the call"},
		{Role: "user", Content: "hello, I would like a refund"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Caller asked about a refund." {
		t.Fatalf("expected trimmed text, got %q", got)
	}
}

func TestGeminiCompleteNoUserMessage(t *testing.T) {
	server := geminiStub(t, "unused")
	defer server.Close()

	client, err := newGeminiClient("test-key", "gemini-2.0-flash", &clientOptions{baseURL: server.URL})
	if err != nil {
		t.Fatalf("newGeminiClient: %v", err)
	}

	_, err = client.Complete(context.Background(), []Message{{Role: "system", Content: "summarize"}})
	if err == nil || !strings.Contains(err.Error(), "no user message") {
		t.Fatalf("expected no-user-message error, got %v", err)
	}
}

func TestGeminiCompleteEmptyText(t *testing.T) {
	server := geminiStub(t, "")
	defer server.Close()

	client, err := newGeminiClient("test-key", "gemini-2.0-flash", &clientOptions{baseURL: server.URL})
	if err != nil {
		t.Fatalf("newGeminiClient: %v", err)
	}

	_, err = client.Complete(context.Background(), []Message{{Role: "user", Content: "hello"}})
	if err == nil || !strings.Contains(err.Error(), "empty response") {
		t.Fatalf("expected empty-response error, got %v", err)
	}
}
