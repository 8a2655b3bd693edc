package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiGenerateText(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path

		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Contents) == 0 || !strings.Contains(req.Contents[0].Parts[0].Text, "ping") {
			t.Errorf("prompt not forwarded: %+v", req)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "pong"}}}},
			},
		})
	}))
	defer server.Close()

	g := newGemini("test-key", "test-model", server.URL, nil)
	got, err := g.GenerateText(context.Background(), "ping")
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}
	if got != "pong" {
		t.Errorf("got %q, want %q", got, "pong")
	}
	if !strings.Contains(gotPath, "test-model") {
		t.Errorf("path %q does not reference the model", gotPath)
	}
}

func TestGeminiErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	g := newGemini("test-key", "", server.URL, nil)
	if _, err := g.GenerateText(context.Background(), "ping"); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestOpenAIGenerateText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "pong"}},
			},
		})
	}))
	defer server.Close()

	o := newOpenAI("test-key", "", server.URL, nil)
	got, err := o.GenerateText(context.Background(), "ping")
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}
	if got != "pong" {
		t.Errorf("got %q, want %q", got, "pong")
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New("claude-desktop", "k", "", "", nil); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
