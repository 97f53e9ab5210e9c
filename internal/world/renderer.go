package world

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sort"
)

// Renderer rasterizes an agent-centered viewport of the world grid to a PNG
// file. The perception pipeline hashes the produced bytes for change
// detection, so rendering must be deterministic for identical world state.
type Renderer struct {
	TileSize int
}

// NewRenderer creates a renderer with the default tile size.
func NewRenderer() *Renderer {
	return &Renderer{TileSize: 16}
}

var (
	colorGround   = color.RGBA{235, 235, 235, 255}
	colorLocation = color.RGBA{210, 225, 240, 255}
	colorObject   = color.RGBA{200, 200, 200, 255}
	colorAgent    = color.RGBA{100, 149, 237, 255}
	colorSelf     = color.RGBA{220, 90, 90, 255}
)

// CaptureViewport renders the tiles within radius of the agent and writes
// them to outPath, creating parent directories as needed.
func (r *Renderer) CaptureViewport(s *State, agentID string, radius int, outPath string) error {
	self, ok := s.Agent(agentID)
	if !ok {
		return fmt.Errorf("unknown agent %q", agentID)
	}

	minX, minY := self.Position.X-radius, self.Position.Y-radius
	maxX, maxY := self.Position.X+radius, self.Position.Y+radius
	side := (2*radius + 1) * r.TileSize

	img := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorGround), image.Point{}, draw.Src)

	s.mu.RLock()
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			p := Position{X: x, Y: y}
			for _, l := range s.locations {
				if l.Contains(p) {
					r.fillTile(img, x-minX, y-minY, colorLocation)
					break
				}
			}
		}
	}
	// Draw in sorted ID order so identical world state always produces
	// identical bytes; the perception hash depends on it.
	for _, id := range sortedKeys(s.objects) {
		o := s.objects[id]
		if inBounds(o.Position, minX, minY, maxX, maxY) {
			r.fillTile(img, o.Position.X-minX, o.Position.Y-minY, colorObject)
		}
	}
	for _, id := range sortedKeys(s.agents) {
		a := s.agents[id]
		if !inBounds(a.Position, minX, minY, maxX, maxY) || a.ID == agentID {
			continue
		}
		r.fillTile(img, a.Position.X-minX, a.Position.Y-minY, colorAgent)
	}
	r.fillTile(img, self.Position.X-minX, self.Position.Y-minY, colorSelf)
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create image file: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode viewport png: %w", err)
	}
	return nil
}

func (r *Renderer) fillTile(img *image.RGBA, tx, ty int, c color.RGBA) {
	rect := image.Rect(tx*r.TileSize, ty*r.TileSize, (tx+1)*r.TileSize, (ty+1)*r.TileSize)
	draw.Draw(img, rect.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

func inBounds(p Position, minX, minY, maxX, maxY int) bool {
	return p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
