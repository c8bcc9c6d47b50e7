// Package resolve maps a declarative provider configuration to a concrete
// conduit.Provider. Callers that take provider choice from config or from
// per-request fields go through here instead of importing each dialect
// package directly.
package resolve

import (
	"fmt"

	conduit "github.com/conduitframe/conduit"
	"github.com/conduitframe/conduit/provider/anthropic"
	"github.com/conduitframe/conduit/provider/azure"
	"github.com/conduitframe/conduit/provider/openai"
)

// Config selects and parameterizes a provider.
type Config struct {
	// Provider is "openai", "azure" or "anthropic".
	Provider string

	APIKey string
	Model  string

	// BaseURL overrides the dialect's default endpoint. Required for
	// azure, where it names the resource endpoint.
	BaseURL string

	// APIVersion is the azure api-version query parameter. Ignored by the
	// other dialects.
	APIVersion string
}

// Provider builds a conduit.Provider from cfg. Unknown provider names are
// an error rather than a silent default.
func Provider(cfg Config) (conduit.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewProvider(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case "azure":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("resolve: azure requires a base URL")
		}
		opts := []azure.ProviderOption{}
		if cfg.APIVersion != "" {
			opts = append(opts, azure.WithAPIVersion(cfg.APIVersion))
		}
		return azure.NewProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, opts...), nil
	case "anthropic":
		opts := []anthropic.ProviderOption{}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.NewProvider(cfg.APIKey, cfg.Model, opts...), nil
	case "":
		return nil, fmt.Errorf("resolve: provider not set")
	default:
		return nil, fmt.Errorf("resolve: unknown provider %q", cfg.Provider)
	}
}
