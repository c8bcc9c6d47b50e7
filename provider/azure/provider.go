// Package azure provides the Azure OpenAI wire dialect. Azure speaks the
// same chat completions body format as OpenAI — this package reuses the
// openai package's body building and parsing — but addresses deployments
// through a different endpoint shape and authenticates with an api-key
// header instead of a bearer token.
package azure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	conduit "github.com/conduitframe/conduit"
	"github.com/conduitframe/conduit/provider/openai"
)

// DefaultAPIVersion is the api-version query parameter sent when none is
// configured.
const DefaultAPIVersion = "2024-06-01"

// Provider implements conduit.Provider for Azure OpenAI deployments.
type Provider struct {
	apiKey     string
	deployment string
	endpoint   string
	apiVersion string
	client     *http.Client
}

// ProviderOption configures a Provider instance.
type ProviderOption func(*Provider)

// WithAPIVersion overrides the api-version query parameter.
func WithAPIVersion(v string) ProviderOption {
	return func(p *Provider) { p.apiVersion = v }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.client = c }
}

// NewProvider creates an Azure OpenAI chat provider.
//
// endpoint is the resource base (e.g. "https://myresource.openai.azure.com");
// deployment is the model deployment name, addressed as
// /openai/deployments/{deployment}/chat/completions?api-version=...
func NewProvider(apiKey, deployment, endpoint string, opts ...ProviderOption) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		deployment: deployment,
		endpoint:   endpoint,
		apiVersion: DefaultAPIVersion,
		client:     &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns "azure".
func (p *Provider) Name() string { return "azure" }

// Chat sends a chat completions request to the deployment endpoint. The
// body is the OpenAI format with the model field omitted: Azure selects the
// model from the deployment path.
func (p *Provider) Chat(ctx context.Context, req conduit.ChatRequest) (conduit.ChatResponse, error) {
	body := openai.BuildBody(req.Messages, req.Tools, "", req.GenerationParams)

	payload, err := json.Marshal(body)
	if err != nil {
		return conduit.ChatResponse{}, &conduit.ErrProvider{Provider: "azure", Message: fmt.Sprintf("marshal request: %v", err)}
	}

	u := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		p.endpoint, url.PathEscape(p.deployment), url.QueryEscape(p.apiVersion))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return conduit.ChatResponse{}, &conduit.ErrProvider{Provider: "azure", Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return conduit.ChatResponse{}, &conduit.ErrProvider{Provider: "azure", Message: fmt.Sprintf("send request: %v", err)}
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

	var chatResp openai.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return conduit.ChatResponse{}, &conduit.ErrProvider{Provider: "azure", Message: fmt.Sprintf("decode response: %v", err)}
	}

	return openai.ParseResponse(chatResp)
}

// Compile-time interface check.
var _ conduit.Provider = (*Provider)(nil)
