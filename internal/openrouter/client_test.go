package openrouter

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"julep/internal/llm"
	"julep/internal/state"
)

func TestChatSendsAuthAndParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var req llm.ChatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test/model" {
			t.Errorf("model = %q", req.Model)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", 5*time.Second, log.New(io.Discard, "", 0))
	resp, err := client.Chat(context.Background(), llm.ChatRequest{
		Model:    "test/model",
		Messages: []state.Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "hi" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestChatSurfacesAPIErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":"insufficient credits"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", 5*time.Second, log.New(io.Discard, "", 0))
	_, err := client.Chat(context.Background(), llm.ChatRequest{Model: "test/model"})
	if err == nil || !strings.Contains(err.Error(), "insufficient credits") {
		t.Fatalf("expected error body, got %v", err)
	}
}
