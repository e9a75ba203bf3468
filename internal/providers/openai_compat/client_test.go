package openai_compat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tubebrief/internal/providers"
)

func TestBuildPayloadStreamFlag(t *testing.T) {
	c := New(Config{BaseURL: "https://api.openai.com/v1", APIKey: "k"})

	body, endpoint, err := c.buildPayload(providers.ChatRequest{
		Model:        "gpt-4.1-mini",
		SystemPrompt: "You are concise",
		UserPrompt:   "hello",
		MaxTokens:    123,
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if endpoint != "https://api.openai.com/v1/chat/completions" {
		t.Fatalf("unexpected endpoint %q", endpoint)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["stream"] != true {
		t.Fatalf("expected stream=true, got %#v", payload["stream"])
	}
	if payload["model"] != "gpt-4.1-mini" {
		t.Fatalf("expected model gpt-4.1-mini, got %#v", payload["model"])
	}
}

func TestChatStreamAccumulatesDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
				"data: [DONE]\n\n",
		))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k"})
	var sb strings.Builder
	err := c.ChatStream(context.Background(), providers.ChatRequest{
		Model:      "gpt-4.1-mini",
		UserPrompt: "hi",
	}, func(chunk string) error {
		sb.WriteString(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("chat stream: %v", err)
	}
	if sb.String() != "Hello" {
		t.Fatalf("expected %q, got %q", "Hello", sb.String())
	}
}

func TestChatStreamNonRetryableStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"invalid request"}}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k", MaxRetries: 2})
	err := c.ChatStream(context.Background(), providers.ChatRequest{
		Model:      "gpt-4.1-mini",
		UserPrompt: "hi",
	}, func(string) error { return nil })
	if err == nil {
		t.Fatalf("expected error from 400 upstream")
	}
	if calls != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls)
	}
	if cls := providers.Classify(err); cls.Status != 400 {
		t.Fatalf("expected bad_request classification, got %+v", cls)
	}
}
