package perception

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/smallville/internal/world"
)

// countingBackend tracks vision inference calls and returns a distinct
// description per call.
type countingBackend struct {
	calls int
	err   error
}

func (b *countingBackend) GenerateWithVision(ctx context.Context, prompt string, imagePaths []string) (string, error) {
	b.calls++
	if b.err != nil {
		return "", b.err
	}
	return fmt.Sprintf("scene description %d", b.calls), nil
}

func testWorld() *world.State {
	w := world.NewState(16, 16)
	w.AddAgent(&world.AgentState{ID: "watcher", Name: "Watcher", Position: world.Position{X: 8, Y: 8}})
	w.AddAgent(&world.AgentState{ID: "wanderer", Name: "Wanderer", Position: world.Position{X: 1, Y: 1}})
	w.AddObject(&world.Object{ID: "bench", Name: "Bench", Position: world.Position{X: 7, Y: 8}})
	return w
}

func newTestService(t *testing.T, backend VisionBackend, glanceTicks int) *Service {
	t.Helper()
	return NewService(backend, world.NewRenderer(), Config{
		ImageBaseDir:        t.TempDir(),
		GlanceIntervalTicks: glanceTicks,
		ChangeThreshold:     0.10,
	}, zap.NewNop())
}

func TestCaptureAndDescribeCachesUnchangedScenes(t *testing.T) {
	backend := &countingBackend{}
	svc := newTestService(t, backend, 3)
	w := testWorld()
	ctx := context.Background()

	// First capture always infers.
	_, desc1, err := svc.CaptureAndDescribe(ctx, w, "watcher", 3)
	if err != nil {
		t.Fatalf("capture 1: %v", err)
	}
	if backend.calls != 1 {
		t.Fatalf("got %d backend calls after first capture, want 1", backend.calls)
	}

	// Unchanged scene within the glance interval reuses the cache.
	_, desc2, err := svc.CaptureAndDescribe(ctx, w, "watcher", 3)
	if err != nil {
		t.Fatalf("capture 2: %v", err)
	}
	if backend.calls != 1 {
		t.Errorf("got %d backend calls after cached capture, want 1", backend.calls)
	}
	if desc2 != desc1 {
		t.Errorf("cached description %q differs from %q", desc2, desc1)
	}

	if _, _, err := svc.CaptureAndDescribe(ctx, w, "watcher", 3); err != nil {
		t.Fatalf("capture 3: %v", err)
	}
	if backend.calls != 1 {
		t.Errorf("got %d backend calls before glance expiry, want 1", backend.calls)
	}

	// Fourth capture hits the glance interval and re-infers despite no change.
	_, desc4, err := svc.CaptureAndDescribe(ctx, w, "watcher", 3)
	if err != nil {
		t.Fatalf("capture 4: %v", err)
	}
	if backend.calls != 2 {
		t.Errorf("got %d backend calls after glance expiry, want 2", backend.calls)
	}
	if desc4 == desc1 {
		t.Error("glance refresh returned stale description")
	}
}

func TestCaptureAndDescribeDetectsSceneChange(t *testing.T) {
	backend := &countingBackend{}
	svc := newTestService(t, backend, 100)
	w := testWorld()
	ctx := context.Background()

	if _, _, err := svc.CaptureAndDescribe(ctx, w, "watcher", 3); err != nil {
		t.Fatalf("capture 1: %v", err)
	}

	// Another agent walks into the viewport, changing the rendered bytes.
	if err := w.MoveAgent("wanderer", world.Position{X: 8, Y: 7}); err != nil {
		t.Fatalf("move agent: %v", err)
	}
	if _, _, err := svc.CaptureAndDescribe(ctx, w, "watcher", 3); err != nil {
		t.Fatalf("capture 2: %v", err)
	}
	if backend.calls != 2 {
		t.Errorf("got %d backend calls after scene change, want 2", backend.calls)
	}
}

func TestCaptureAndDescribePerAgentCache(t *testing.T) {
	backend := &countingBackend{}
	svc := newTestService(t, backend, 100)
	w := testWorld()
	ctx := context.Background()

	if _, _, err := svc.CaptureAndDescribe(ctx, w, "watcher", 3); err != nil {
		t.Fatalf("watcher capture: %v", err)
	}
	// A different agent's first capture infers independently.
	if _, _, err := svc.CaptureAndDescribe(ctx, w, "wanderer", 3); err != nil {
		t.Fatalf("wanderer capture: %v", err)
	}
	if backend.calls != 2 {
		t.Errorf("got %d backend calls, want one per agent", backend.calls)
	}
}

func TestCaptureAndDescribeBackendError(t *testing.T) {
	wantErr := errors.New("vision model offline")
	svc := newTestService(t, &countingBackend{err: wantErr}, 3)

	_, _, err := svc.CaptureAndDescribe(context.Background(), testWorld(), "watcher", 3)
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want backend error", err)
	}
}

func TestCaptureAndDescribeUnknownAgent(t *testing.T) {
	svc := newTestService(t, &countingBackend{}, 3)
	if _, _, err := svc.CaptureAndDescribe(context.Background(), testWorld(), "ghost", 3); err == nil {
		t.Error("unknown agent accepted")
	}
}

func TestHashSimilarity(t *testing.T) {
	if got := hashSimilarity("", "abcd"); got != 0 {
		t.Errorf("missing previous: got %v, want 0", got)
	}
	if got := hashSimilarity("abc", "abcd"); got != 0 {
		t.Errorf("length mismatch: got %v, want 0", got)
	}
	if got := hashSimilarity("abcd", "abcd"); got != 1 {
		t.Errorf("identical: got %v, want 1", got)
	}
	if got := hashSimilarity("abcd", "abce"); got != 0.75 {
		t.Errorf("three of four: got %v, want 0.75", got)
	}
}
