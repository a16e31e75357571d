// Package embed provides the pluggable embedding capability consumed by the
// sync execute stage.
package embed

import (
	"context"
	"fmt"
)

// Provider turns document texts into fixed-dimension vectors.
type Provider interface {
	Name() string
	Dimensions() int
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider   string // "local" or "http"
	Endpoint   string
	Model      string
	APIKey     string
	Dimensions int
}

// New builds the configured provider.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "local":
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = 256
		}
		return NewLocal(dims), nil
	case "http":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedding.endpoint is required for the http provider")
		}
		return NewHTTP(cfg.Endpoint, cfg.Model, cfg.APIKey, cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (want local or http)", cfg.Provider)
	}
}
