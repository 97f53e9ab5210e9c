// Package sim drives a fixed population of cognitive agents through
// synchronized rounds with bounded concurrency and serialized persistence.
package sim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nidhogg/smallville/internal/agent"
)

// Population bounds: enough agents for emergent interaction, bounded for
// resource control. These are hard construction preconditions.
const (
	MinPopulation = 5
	MaxPopulation = 25
)

// TickAgent is the capability the scheduler needs from an agent.
type TickAgent interface {
	ID() string
	Tick(ctx context.Context, tickIndex int) (*agent.TickResult, error)
}

// PersistFunc receives each completed tick result. The scheduler invokes it
// under a single process-wide write lock, so implementations never see
// interleaved writes.
type PersistFunc func(ctx context.Context, agentID string, tickIndex int, result *agent.TickResult) error

// Snapshot captures one completed round across all agents.
type Snapshot struct {
	TickIndex    int                          `json:"tick_index"`
	Timestamp    time.Time                    `json:"timestamp"`
	AgentOutputs map[string]*agent.TickResult `json:"agent_outputs"`
}

// Config controls scheduler pacing and concurrency.
type Config struct {
	TickInterval   time.Duration // sleep between rounds, skipped after the last
	MaxConcurrency int           // concurrent agent ticks, capped at population size
}

// Scheduler runs rounds of agent ticks. Round order is strict: round k+1
// never starts before round k's ticks and snapshot assembly complete.
// Within a round, tick order is unspecified.
type Scheduler struct {
	agents  []TickAgent
	cfg     Config
	persist PersistFunc
	logger  *zap.Logger

	sem     *semaphore.Weighted
	writeMu sync.Mutex // serializes all persistence writes
	running atomic.Bool
	snapMu  sync.RWMutex
	latest  *Snapshot
}

// NewScheduler validates the population envelope and concurrency, rejecting
// anything outside [5, 25] agents or non-positive concurrency.
func NewScheduler(agents []TickAgent, cfg Config, persist PersistFunc, logger *zap.Logger) (*Scheduler, error) {
	if len(agents) < MinPopulation || len(agents) > MaxPopulation {
		return nil, fmt.Errorf("scheduler requires between %d and %d agents, got %d",
			MinPopulation, MaxPopulation, len(agents))
	}
	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("max concurrency must be positive, got %d", cfg.MaxConcurrency)
	}
	if cfg.MaxConcurrency > len(agents) {
		cfg.MaxConcurrency = len(agents)
	}
	return &Scheduler{
		agents:  agents,
		cfg:     cfg,
		persist: persist,
		logger:  logger,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
	}, nil
}

// Run executes totalTicks rounds and returns one snapshot per completed
// round. Any agent tick or persistence failure aborts the run: a single
// agent's error is deliberately not isolated, surfacing problems early
// rather than degrading silently.
func (s *Scheduler) Run(ctx context.Context, totalTicks int) ([]*Snapshot, error) {
	if totalTicks <= 0 {
		return nil, nil
	}

	s.running.Store(true)
	defer s.running.Store(false)

	history := make([]*Snapshot, 0, totalTicks)

	for tick := 0; tick < totalTicks; tick++ {
		// Stop is advisory and round-granular: an in-flight round always
		// runs to completion.
		if !s.running.Load() {
			break
		}
		if err := ctx.Err(); err != nil {
			return history, err
		}

		snapshot, err := s.runRound(ctx, tick)
		if err != nil {
			return history, fmt.Errorf("round %d: %w", tick, err)
		}
		history = append(history, snapshot)

		s.snapMu.Lock()
		s.latest = snapshot
		s.snapMu.Unlock()

		s.logger.Info("round complete",
			zap.Int("tick", tick),
			zap.Int("agents", len(s.agents)))

		if tick < totalTicks-1 && s.cfg.TickInterval > 0 {
			select {
			case <-ctx.Done():
				return history, ctx.Err()
			case <-time.After(s.cfg.TickInterval):
			}
		}
	}
	return history, nil
}

func (s *Scheduler) runRound(ctx context.Context, tick int) (*Snapshot, error) {
	outputs := make(map[string]*agent.TickResult, len(s.agents))
	var outMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range s.agents {
		a := a
		g.Go(func() error {
			if err := s.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer s.sem.Release(1)

			result, err := a.Tick(gctx, tick)
			if err != nil {
				return fmt.Errorf("agent %s tick: %w", a.ID(), err)
			}

			if s.persist != nil {
				s.writeMu.Lock()
				err = s.persist(gctx, a.ID(), tick, result)
				s.writeMu.Unlock()
				if err != nil {
					return fmt.Errorf("persist agent %s tick: %w", a.ID(), err)
				}
			}

			outMu.Lock()
			outputs[a.ID()] = result
			outMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Snapshot{
		TickIndex:    tick,
		Timestamp:    time.Now().UTC(),
		AgentOutputs: outputs,
	}, nil
}

// Stop requests the run loop to exit at the next round boundary.
func (s *Scheduler) Stop() {
	s.running.Store(false)
}

// Latest returns the most recent completed snapshot, or nil before the
// first round finishes.
func (s *Scheduler) Latest() *Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.latest
}
