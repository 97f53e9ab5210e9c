// Package embedding turns text into vectors via an OpenAI-compatible API,
// with batching, bounded retry, and an optional Redis result cache.
package embedding

import (
	"context"
	"time"
)

// Provider generates vector embeddings from text. Output order always
// matches input order.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Endpoint     string        `json:"endpoint"`
	Model        string        `json:"model"`
	APIKey       string        `json:"api_key"`
	Dimension    int           `json:"dimension"`
	BatchSize    int           `json:"batch_size"`    // default 32
	MaxRetries   int           `json:"max_retries"`   // default 3
	RetryBackoff time.Duration `json:"retry_backoff"` // initial backoff, default 500ms
	Timeout      time.Duration `json:"timeout"`       // per-call, default 60s
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:        "nomic-embed-text",
		BatchSize:    32,
		MaxRetries:   3,
		RetryBackoff: 500 * time.Millisecond,
		Timeout:      60 * time.Second,
	}
}
