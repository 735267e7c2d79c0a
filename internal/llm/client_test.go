package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prosabot/prosa/internal/config"
	"github.com/prosabot/prosa/internal/store"
)

func TestCompleteNoAPIKeyFailsOpen(t *testing.T) {
	c := NewClient(config.CompletionConfig{BaseURL: "http://unused", Model: "m"})

	reply := c.Complete(context.Background(), "oi", nil, "")

	if !reply.Degraded {
		t.Error("expected Degraded reply without credential")
	}
	if reply.Text == "" || !strings.Contains(reply.Text, "Erro") {
		t.Errorf("Text = %q, want user-visible error string", reply.Text)
	}
}

func TestCompleteBuildsMessageList(t *testing.T) {
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer or-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "resposta"}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(config.CompletionConfig{APIKey: "or-key", BaseURL: srv.URL, Model: "test-model"})

	history := []store.Turn{
		{Role: store.RoleUser, Content: "primeira"},
		{Role: store.RoleAssistant, Content: "resposta antiga"},
	}
	reply := c.Complete(context.Background(), "atual", history, "fato relevante")

	if reply.Degraded {
		t.Fatalf("unexpected degraded reply: %q", reply.Text)
	}
	if reply.Text != "resposta" {
		t.Errorf("Text = %q", reply.Text)
	}

	if got.Model != "test-model" {
		t.Errorf("Model = %q", got.Model)
	}
	if len(got.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || !strings.Contains(got.Messages[0].Content, "fato relevante") {
		t.Errorf("system message missing RAG context: %+v", got.Messages[0])
	}
	if got.Messages[1].Content != "primeira" || got.Messages[2].Content != "resposta antiga" {
		t.Errorf("history out of order: %+v", got.Messages[1:3])
	}
	last := got.Messages[3]
	if last.Role != store.RoleUser || last.Content != "atual" {
		t.Errorf("final turn = %+v", last)
	}
}

func TestCompleteOmitsRAGBlockWhenAbsent(t *testing.T) {
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	c := NewClient(config.CompletionConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	c.Complete(context.Background(), "oi", nil, "")

	if strings.Contains(got.Messages[0].Content, "Contexto relevante") {
		t.Errorf("system prompt gained a context block with no RAG hits: %q", got.Messages[0].Content)
	}
}

func TestCompleteUpstreamErrorFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(config.CompletionConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	reply := c.Complete(context.Background(), "oi", nil, "")

	if !reply.Degraded {
		t.Error("expected Degraded reply on upstream error")
	}
	if !strings.Contains(reply.Text, "502") {
		t.Errorf("Text = %q, want status in message", reply.Text)
	}
}

func TestCompleteTransportErrorFailsOpen(t *testing.T) {
	c := NewClient(config.CompletionConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1", Model: "m"})
	reply := c.Complete(context.Background(), "oi", nil, "")

	if !reply.Degraded || reply.Text == "" {
		t.Errorf("reply = %+v, want degraded with text", reply)
	}
}

func TestCompleteEmptyChoicesFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := NewClient(config.CompletionConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	reply := c.Complete(context.Background(), "oi", nil, "")

	if !reply.Degraded {
		t.Error("expected Degraded reply on empty choices")
	}
}
