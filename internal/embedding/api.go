package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// APIProvider implements Provider using an OpenAI-compatible embeddings API.
// Requests are batched and each batch is retried with exponential backoff;
// call timeouts count as transient failures.
type APIProvider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	once    sync.Once
	dimOnce int
}

// NewAPIProvider creates a new APIProvider from the given Config.
func NewAPIProvider(cfg Config, logger *zap.Logger) *APIProvider {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &APIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type apiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type apiEmbeddingData struct {
	Embedding []float32 `json:"embedding"`
}

type apiResponse struct {
	Data []apiEmbeddingData `json:"data"`
}

// Embed sends texts in batches and returns embeddings in input order.
func (p *APIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	if len(vectors) > 0 && len(vectors[0]) > 0 {
		p.once.Do(func() {
			p.dimOnce = len(vectors[0])
		})
	}
	return vectors, nil
}

// embedWithRetry retries transient failures up to MaxRetries times with
// exponential backoff starting at RetryBackoff and doubling per attempt.
func (p *APIProvider) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.cfg.RetryBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	attempts := 0
	vectors, err := backoff.RetryWithData(func() ([][]float32, error) {
		attempts++
		vs, err := p.embedBatch(ctx, batch)
		if err != nil {
			p.logger.Warn("embedding batch failed",
				zap.String("model", p.cfg.Model),
				zap.Int("attempt", attempts),
				zap.Error(err))
		}
		return vs, err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.cfg.MaxRetries)), ctx))
	if err != nil {
		return nil, fmt.Errorf("embedding request failed after %d attempts for model %q: %w",
			attempts, p.cfg.Model, err)
	}
	return vectors, nil
}

func (p *APIProvider) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	body, err := json.Marshal(apiRequest{Model: p.cfg.Model, Input: batch})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// Timeouts and transport errors are transient.
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Data) != len(batch) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(result.Data), len(batch))
	}

	vectors := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// Dimension returns the embedding vector dimension: the cached value from
// the first successful result, or the configured default.
func (p *APIProvider) Dimension() int {
	if p.dimOnce > 0 {
		return p.dimOnce
	}
	return p.cfg.Dimension
}
