package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatClient_Complete(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer server.Close()

	c := &ChatClient{Provider: "test", BaseURL: server.URL + "/", APIKey: "test-key", JSONMode: true}
	out, err := c.Complete(context.Background(), Request{
		Model:  "m1",
		System: "be brief",
		Prompt: "hello",
		Images: []string{"https://example.com/a.jpg"},
		JSON:   true,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != `{"ok":true}` {
		t.Errorf("Complete() = %q", out)
	}

	if captured["model"] != "m1" {
		t.Errorf("model = %v, want m1", captured["model"])
	}
	rf, ok := captured["response_format"].(map[string]any)
	if !ok || rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", captured["response_format"])
	}
	messages := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	user := messages[1].(map[string]any)
	parts, ok := user["content"].([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("user content = %v, want text + image parts", user["content"])
	}
}

func TestChatClient_NoJSONModeOmitsResponseFormat(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"plain"}}]}`))
	}))
	defer server.Close()

	c := &ChatClient{Provider: "test", BaseURL: server.URL}
	if _, err := c.Complete(context.Background(), Request{Prompt: "hi", JSON: true}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if _, present := captured["response_format"]; present {
		t.Error("response_format sent to provider without JSON mode")
	}
	messages := captured["messages"].([]any)
	if content, ok := messages[0].(map[string]any)["content"].(string); !ok || content != "hi" {
		t.Errorf("text-only content = %v, want plain string", messages[0])
	}
}

func TestChatClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantAPI   bool
		wantEmpty bool
	}{
		{"server error", http.StatusInternalServerError, `boom`, true, false},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, true, false},
		{"error payload", http.StatusOK, `{"error":{"message":"bad model"}}`, true, false},
		{"no choices", http.StatusOK, `{"choices":[]}`, false, true},
		{"blank content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := &ChatClient{Provider: "test", BaseURL: server.URL}
			_, err := c.Complete(context.Background(), Request{Prompt: "x"})
			if err == nil {
				t.Fatal("Complete() error = nil")
			}

			var apiErr *APIError
			if got := errors.As(err, &apiErr); got != tt.wantAPI {
				t.Errorf("errors.As(APIError) = %v, want %v (err %v)", got, tt.wantAPI, err)
			}
			if got := errors.Is(err, ErrEmptyCompletion); got != tt.wantEmpty {
				t.Errorf("errors.Is(ErrEmptyCompletion) = %v, want %v", got, tt.wantEmpty)
			}
		})
	}
}

func TestChatClient_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &ChatClient{Provider: "test", BaseURL: server.URL}
	if _, err := c.Complete(ctx, Request{Prompt: "x"}); err == nil {
		t.Error("Complete() with canceled context succeeded")
	}
}
