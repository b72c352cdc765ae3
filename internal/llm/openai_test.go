package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func openaiStub(t *testing.T, content string, check func(model string, roles []string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if check != nil {
			roles := make([]string, len(req.Messages))
			for i, m := range req.Messages {
				roles[i] = m.Role
			}
			check(req.Model, roles)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 123,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}))
}

func TestOpenAICompleteTrimsResponse(t *testing.T) {
	server := openaiStub(t, "  Caller asked about a refund.  ", func(model string, roles []string) {
		if model != "gpt-4o-mini" {
			t.Errorf("expected model gpt-4o-mini, got %q", model)
		}
		if len(roles) != 2 || roles[0] != "system" || roles[1] != "user" {
			t.Errorf("unexpected message roles %v", roles)
		}
	})
	defer server.Close()

	client, err := newOpenAIClient("test-key", "gpt-4o-mini", &clientOptions{baseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("newOpenAIClient: %v", err)
	}

	got, err := client.Complete(context.Background(), []Message{
		{Role: "system", Content: "summarize the call"},
		{Role: "user", Content: "hello, I would like a refund"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Caller asked about a refund." {
		t.Fatalf("expected trimmed summary, got %q", got)
	}
}

func TestOpenAICompleteEmptyResponses(t *testing.T) {
	t.Run("no choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "chatcmpl-1", "object": "chat.completion", "created": 123,
				"model": "gpt-4o-mini", "choices": []map[string]any{},
			})
		}))
		defer server.Close()

		client, err := newOpenAIClient("test-key", "gpt-4o-mini", &clientOptions{baseURL: server.URL + "/v1"})
		if err != nil {
			t.Fatalf("newOpenAIClient: %v", err)
		}
		_, err = client.Complete(context.Background(), []Message{{Role: "user", Content: "hello"}})
		if err == nil || !strings.Contains(err.Error(), "no choices") {
			t.Fatalf("expected no-choices error, got %v", err)
		}
	})

	t.Run("blank text", func(t *testing.T) {
		server := openaiStub(t, "   ", nil)
		defer server.Close()

		client, err := newOpenAIClient("test-key", "gpt-4o-mini", &clientOptions{baseURL: server.URL + "/v1"})
		if err != nil {
			t.Fatalf("newOpenAIClient: %v", err)
		}
		_, err = client.Complete(context.Background(), []Message{{Role: "user", Content: "hello"}})
		if err == nil || !strings.Contains(err.Error(), "empty completion") {
			t.Fatalf("expected empty-completion error, got %v", err)
		}
	})
}
