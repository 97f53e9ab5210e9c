package sim

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/smallville/internal/agent"
)

// stubAgent is a minimal TickAgent whose behavior tests can script.
type stubAgent struct {
	id    string
	fail  func(tickIndex int) error
	ticks atomic.Int64
}

func (a *stubAgent) ID() string { return a.id }

func (a *stubAgent) Tick(ctx context.Context, tickIndex int) (*agent.TickResult, error) {
	a.ticks.Add(1)
	if a.fail != nil {
		if err := a.fail(tickIndex); err != nil {
			return nil, err
		}
	}
	return &agent.TickResult{
		TickIndex: tickIndex,
		Action:    fmt.Sprintf("%s acts at tick %d", a.id, tickIndex),
		Timestamp: time.Now().UTC(),
	}, nil
}

func stubAgents(n int) []TickAgent {
	out := make([]TickAgent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &stubAgent{id: fmt.Sprintf("agent-%d", i+1)})
	}
	return out
}

func TestNewSchedulerPopulationBounds(t *testing.T) {
	cfg := Config{MaxConcurrency: 2}

	for _, n := range []int{0, MinPopulation - 1, MaxPopulation + 1} {
		if _, err := NewScheduler(stubAgents(n), cfg, nil, zap.NewNop()); err == nil {
			t.Errorf("population %d accepted", n)
		}
	}
	for _, n := range []int{MinPopulation, MaxPopulation} {
		if _, err := NewScheduler(stubAgents(n), cfg, nil, zap.NewNop()); err != nil {
			t.Errorf("population %d rejected: %v", n, err)
		}
	}
}

func TestNewSchedulerConcurrencyValidation(t *testing.T) {
	if _, err := NewScheduler(stubAgents(5), Config{MaxConcurrency: 0}, nil, zap.NewNop()); err == nil {
		t.Error("zero concurrency accepted")
	}
	if _, err := NewScheduler(stubAgents(5), Config{MaxConcurrency: -3}, nil, zap.NewNop()); err == nil {
		t.Error("negative concurrency accepted")
	}
	// Oversized concurrency is capped, not rejected.
	if _, err := NewScheduler(stubAgents(5), Config{MaxConcurrency: 100}, nil, zap.NewNop()); err != nil {
		t.Errorf("capped concurrency rejected: %v", err)
	}
}

func TestRunProducesOrderedSnapshots(t *testing.T) {
	const population, totalTicks = 5, 3

	var persists atomic.Int64
	var inPersist atomic.Bool
	var overlapped atomic.Bool
	persist := func(ctx context.Context, agentID string, tickIndex int, result *agent.TickResult) error {
		if !inPersist.CompareAndSwap(false, true) {
			overlapped.Store(true)
		}
		persists.Add(1)
		inPersist.Store(false)
		return nil
	}

	s, err := NewScheduler(stubAgents(population), Config{MaxConcurrency: population}, persist, zap.NewNop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	history, err := s.Run(context.Background(), totalTicks)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(history) != totalTicks {
		t.Fatalf("got %d snapshots, want %d", len(history), totalTicks)
	}
	for i, snap := range history {
		if snap.TickIndex != i {
			t.Errorf("snapshot %d has tick index %d", i, snap.TickIndex)
		}
		if len(snap.AgentOutputs) != population {
			t.Errorf("snapshot %d has %d outputs, want %d", i, len(snap.AgentOutputs), population)
		}
		for id, result := range snap.AgentOutputs {
			if result.TickIndex != i {
				t.Errorf("snapshot %d: agent %s result has tick index %d", i, id, result.TickIndex)
			}
		}
	}

	if got := persists.Load(); got != int64(population*totalTicks) {
		t.Errorf("got %d persist calls, want %d", got, population*totalTicks)
	}
	if overlapped.Load() {
		t.Error("persist calls overlapped")
	}

	if latest := s.Latest(); latest == nil || latest.TickIndex != totalTicks-1 {
		t.Errorf("latest snapshot = %+v, want tick %d", latest, totalTicks-1)
	}
}

func TestRunZeroTicks(t *testing.T) {
	s, err := NewScheduler(stubAgents(5), Config{MaxConcurrency: 1}, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	history, err := s.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if history != nil {
		t.Errorf("got %d snapshots for zero ticks", len(history))
	}
	if s.Latest() != nil {
		t.Error("latest snapshot set without any rounds")
	}
}

func TestRunAbortsOnAgentError(t *testing.T) {
	wantErr := errors.New("cognitive failure")
	agents := stubAgents(4)
	agents = append(agents, &stubAgent{
		id: "agent-5",
		fail: func(tickIndex int) error {
			if tickIndex == 1 {
				return wantErr
			}
			return nil
		},
	})

	s, err := NewScheduler(agents, Config{MaxConcurrency: 2}, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	history, err := s.Run(context.Background(), 5)
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want agent error", err)
	}
	// The failing round produces no snapshot; the previous round stands.
	if len(history) != 1 {
		t.Errorf("got %d snapshots, want 1", len(history))
	}
}

func TestRunAbortsOnPersistError(t *testing.T) {
	wantErr := errors.New("disk full")
	persist := func(ctx context.Context, agentID string, tickIndex int, result *agent.TickResult) error {
		return wantErr
	}

	s, err := NewScheduler(stubAgents(5), Config{MaxConcurrency: 1}, persist, zap.NewNop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	if _, err := s.Run(context.Background(), 2); !errors.Is(err, wantErr) {
		t.Errorf("got %v, want persist error", err)
	}
}

func TestStopAtRoundBoundary(t *testing.T) {
	var s *Scheduler
	persist := func(ctx context.Context, agentID string, tickIndex int, result *agent.TickResult) error {
		s.Stop()
		return nil
	}

	s, err := NewScheduler(stubAgents(5), Config{MaxConcurrency: 5}, persist, zap.NewNop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	// Stop lands mid-round; that round must still complete before exit.
	history, err := s.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("got %d snapshots, want 1", len(history))
	}
	if len(history[0].AgentOutputs) != 5 {
		t.Errorf("interrupted round incomplete: %d outputs", len(history[0].AgentOutputs))
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := NewScheduler(stubAgents(5), Config{MaxConcurrency: 1}, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if _, err := s.Run(ctx, 3); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
