// Package perception captures agent viewports and produces textual scene
// descriptions, gating expensive vision calls behind a change-detection
// cache.
package perception

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/smallville/internal/memory"
	"github.com/nidhogg/smallville/internal/world"
)

// VisionBackend describes scenes from rendered viewport images.
type VisionBackend interface {
	GenerateWithVision(ctx context.Context, prompt string, imagePaths []string) (string, error)
}

// CacheState is the per-agent record used for change detection and glance
// scheduling. It is created lazily on an agent's first capture and mutated
// only by the service.
type CacheState struct {
	ImageHash           string
	LastDescription     string
	TicksSinceInference int
}

// Config controls perception caching behavior.
type Config struct {
	ImageBaseDir        string
	GlanceIntervalTicks int     // forced refresh cadence, default 5
	ChangeThreshold     float64 // fraction of hash chars that must differ, default 0.10
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ImageBaseDir:        filepath.Join("data", "images"),
		GlanceIntervalTicks: 5,
		ChangeThreshold:     0.10,
	}
}

const scenePrompt = "Describe this scene for an autonomous social simulation agent. " +
	"Include salient entities, likely activities, and changes from routine context " +
	"in concise plain text."

// Service renders viewports and returns scene descriptions, re-running
// vision inference only when the scene appears to have changed or the glance
// interval expires. This is a heuristic cache: missed real changes and
// forced refreshes on unchanged scenes are accepted trade-offs that bound
// call volume to the vision backend.
type Service struct {
	backend  VisionBackend
	renderer *world.Renderer
	cfg      Config
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string]*CacheState
}

// NewService creates a perception service.
func NewService(backend VisionBackend, renderer *world.Renderer, cfg Config, logger *zap.Logger) *Service {
	if cfg.GlanceIntervalTicks <= 0 {
		cfg.GlanceIntervalTicks = DefaultConfig().GlanceIntervalTicks
	}
	if cfg.ChangeThreshold <= 0 {
		cfg.ChangeThreshold = DefaultConfig().ChangeThreshold
	}
	if cfg.ImageBaseDir == "" {
		cfg.ImageBaseDir = DefaultConfig().ImageBaseDir
	}
	if renderer == nil {
		renderer = world.NewRenderer()
	}
	return &Service{
		backend:  backend,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
		cache:    make(map[string]*CacheState),
	}
}

// CaptureAndDescribe captures the agent's viewport and returns the image
// path plus a scene description, reusing the cached description when the
// scene is unchanged.
func (s *Service) CaptureAndDescribe(ctx context.Context, w *world.State, agentID string, radius int) (string, string, error) {
	imagePath, err := s.captureViewport(w, agentID, radius)
	if err != nil {
		return "", "", err
	}

	currentHash, err := fileSHA256(imagePath)
	if err != nil {
		return "", "", fmt.Errorf("hash viewport image: %w", err)
	}

	s.mu.Lock()
	state, ok := s.cache[agentID]
	if !ok {
		state = &CacheState{}
		s.cache[agentID] = state
	}
	s.mu.Unlock()

	similarity := hashSimilarity(state.ImageHash, currentHash)
	state.TicksSinceInference++

	needInference := state.LastDescription == "" ||
		similarity < 1.0-s.cfg.ChangeThreshold ||
		state.TicksSinceInference >= s.cfg.GlanceIntervalTicks

	if !needInference {
		return imagePath, state.LastDescription, nil
	}

	description, err := s.backend.GenerateWithVision(ctx, scenePrompt, []string{imagePath})
	if err != nil {
		return "", "", fmt.Errorf("describe scene for agent %s: %w", agentID, err)
	}
	state.LastDescription = description
	state.ImageHash = currentHash
	state.TicksSinceInference = 0

	s.logger.Debug("scene inference ran",
		zap.String("agent", agentID),
		zap.Float64("similarity", similarity))
	return imagePath, description, nil
}

// UpdateVisualContext captures the agent's surroundings and attaches them to
// the memory's visual context.
func (s *Service) UpdateVisualContext(ctx context.Context, m *memory.Memory, w *world.State, agentID string, radius int) error {
	imagePath, description, err := s.CaptureAndDescribe(ctx, w, agentID, radius)
	if err != nil {
		return err
	}
	m.Visual = &memory.VisualContext{
		SceneDescription: description,
		ImageRef:         imagePath,
	}
	return nil
}

// captureViewport stores the rendered viewport under
// <base>/<agent_id>/<timestamp>.png.
func (s *Service) captureViewport(w *world.State, agentID string, radius int) (string, error) {
	name := time.Now().UTC().Format("20060102T150405.000000000Z") + ".png"
	outPath := filepath.Join(s.cfg.ImageBaseDir, agentID, name)
	if err := s.renderer.CaptureViewport(w, agentID, radius, outPath); err != nil {
		return "", fmt.Errorf("capture viewport: %w", err)
	}
	return outPath, nil
}

func fileSHA256(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// hashSimilarity is the fraction of hex characters matching position for
// position. A missing previous hash or a length mismatch yields 0, which
// forces inference.
func hashSimilarity(previous, current string) float64 {
	if previous == "" || len(previous) != len(current) {
		return 0
	}
	equal := 0
	for i := range current {
		if previous[i] == current[i] {
			equal++
		}
	}
	return float64(equal) / float64(len(current))
}
