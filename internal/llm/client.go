package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// Client implements Backend against an Ollama-compatible generate API.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a client with per-call timeouts from cfg.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultConfig().Endpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	System string   `json:"system,omitempty"`
	Images []string `json:"images,omitempty"` // base64-encoded
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// GenerateText generates text from a prompt with an optional system
// instruction.
func (c *Client) GenerateText(ctx context.Context, prompt, system string) (string, error) {
	return c.generate(ctx, generateRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		System: system,
	})
}

// GenerateWithVision generates text from a prompt plus local images. Missing
// image paths fail immediately, before any backend call.
func (c *Client) GenerateWithVision(ctx context.Context, prompt string, imagePaths []string) (string, error) {
	images, err := encodeImages(imagePaths)
	if err != nil {
		return "", err
	}
	return c.generate(ctx, generateRequest{
		Model:  c.cfg.Model,
		Prompt: prompt,
		Images: images,
	})
}

// ScoreImportance rates a memory's emotional/cognitive importance on a 1-10
// integer scale. The model is asked for JSON; when it ignores the format the
// raw text is scanned for digits before giving up.
func (c *Client) ScoreImportance(ctx context.Context, memoryText string, imagePaths []string) (int, error) {
	prompt := "Rate the emotional/cognitive importance of the memory from 1 to 10. " +
		"Return only JSON with key 'score'.\nMemory: " + memoryText

	var raw string
	var err error
	if len(imagePaths) > 0 {
		raw, err = c.GenerateWithVision(ctx, prompt, imagePaths)
	} else {
		raw, err = c.GenerateText(ctx, prompt, "")
	}
	if err != nil {
		return 0, err
	}

	score, err := parseScore(raw)
	if err != nil {
		return 0, err
	}
	return clamp(score, 1, 10), nil
}

func (c *Client) generate(ctx context.Context, req generateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.Endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("model %s generate: %w", c.cfg.Model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("model %s API error %d: %s", c.cfg.Model, resp.StatusCode, string(respBody))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("generation complete",
		zap.String("model", c.cfg.Model),
		zap.Int("images", len(req.Images)),
		zap.Duration("duration", time.Since(start)))
	return strings.TrimSpace(result.Response), nil
}

func encodeImages(paths []string) ([]string, error) {
	images := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrImageNotFound, p)
			}
			return nil, fmt.Errorf("read image %s: %w", p, err)
		}
		images = append(images, base64.StdEncoding.EncodeToString(data))
	}
	return images, nil
}

type scorePayload struct {
	Score *int `json:"score"`
}

func parseScore(raw string) (int, error) {
	cleaned := strings.TrimSpace(raw)

	var payload scorePayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err == nil && payload.Score != nil {
		return *payload.Score, nil
	}

	// Fallback for models that ignore formatting constraints.
	var digits strings.Builder
	for _, r := range cleaned {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if digits.Len() > 0 {
		var n int
		fmt.Sscanf(digits.String(), "%d", &n)
		return n, nil
	}
	return 0, fmt.Errorf("could not parse importance score from model output: %q", raw)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
