// Package llm wraps the text/vision model backend used for scene
// descriptions, dialogue, and memory importance scoring.
package llm

import (
	"context"
	"errors"
	"time"
)

// Backend is the capability contract the simulation core depends on.
// Implementations exist per model backend; tests use in-process doubles.
type Backend interface {
	GenerateText(ctx context.Context, prompt, system string) (string, error)
	GenerateWithVision(ctx context.Context, prompt string, imagePaths []string) (string, error)
	ScoreImportance(ctx context.Context, memoryText string, imagePaths []string) (int, error)
}

// ErrImageNotFound is returned before any backend call when a referenced
// image path does not exist on disk.
var ErrImageNotFound = errors.New("image path does not exist")

// Config holds model backend settings.
type Config struct {
	Endpoint string        `json:"endpoint"`
	Model    string        `json:"model"`
	Timeout  time.Duration `json:"timeout"`
}

// DefaultConfig targets a local Ollama instance.
func DefaultConfig() Config {
	return Config{
		Endpoint: "http://localhost:11434",
		Model:    "qwen3-vl:latest",
		Timeout:  60 * time.Second,
	}
}
