// Package anthropic provides the Anthropic messages API wire dialect:
// /v1/messages with x-api-key authentication, input_schema tool
// definitions and tool_use/tool_result content blocks.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	conduit "github.com/conduitframe/conduit"
)

const (
	// DefaultBaseURL is the public API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// apiVersion is the anthropic-version header value. The API requires
	// it on every request.
	apiVersion = "2023-06-01"
)

// Provider implements conduit.Provider against the messages API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// ProviderOption configures a Provider instance.
type ProviderOption func(*Provider)

// WithBaseURL overrides the API endpoint, for proxies and tests.
func WithBaseURL(u string) ProviderOption {
	return func(p *Provider) { p.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.client = c }
}

// NewProvider creates an Anthropic chat provider.
func NewProvider(apiKey, model string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: DefaultBaseURL,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns "anthropic".
func (p *Provider) Name() string { return "anthropic" }

// Chat sends the conversation to /v1/messages and maps the response back
// to the provider-neutral shape.
func (p *Provider) Chat(ctx context.Context, req conduit.ChatRequest) (conduit.ChatResponse, error) {
	body := BuildBody(req.Messages, req.Tools, p.model, req.GenerationParams)

	payload, err := json.Marshal(body)
	if err != nil {
		return conduit.ChatResponse{}, &conduit.ErrProvider{Provider: "anthropic", Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return conduit.ChatResponse{}, &conduit.ErrProvider{Provider: "anthropic", Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return conduit.ChatResponse{}, &conduit.ErrProvider{Provider: "anthropic", Message: fmt.Sprintf("send request: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return conduit.ChatResponse{}, &conduit.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(b),
			RetryAfter: conduit.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var msgResp MessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return conduit.ChatResponse{}, &conduit.ErrProvider{Provider: "anthropic", Message: fmt.Sprintf("decode response: %v", err)}
	}

	return ParseResponse(msgResp)
}

// Compile-time interface check.
var _ conduit.Provider = (*Provider)(nil)
