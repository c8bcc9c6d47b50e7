package azure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	conduit "github.com/conduitframe/conduit"
)

func TestChatDeploymentEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/my-gpt4o/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("api-version"); got != "2024-06-01" {
			t.Errorf("api-version = %q", got)
		}
		if got := r.Header.Get("api-key"); got != "secret" {
			t.Errorf("api-key header = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`))
	}))
	defer srv.Close()

	p := NewProvider("secret", "my-gpt4o", srv.URL)
	resp, err := p.Chat(context.Background(), conduit.ChatRequest{
		Messages: []conduit.ChatMessage{conduit.UserMessage("hello")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hi" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestChatCustomAPIVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("api-version"); got != "2025-01-01" {
			t.Errorf("api-version = %q", got)
		}
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := NewProvider("k", "dep", srv.URL, WithAPIVersion("2025-01-01"))
	if _, err := p.Chat(context.Background(), conduit.ChatRequest{}); err != nil {
		t.Fatal(err)
	}
}

func TestProviderName(t *testing.T) {
	if got := NewProvider("k", "d", "http://x").Name(); got != "azure" {
		t.Errorf("Name() = %q", got)
	}
}
