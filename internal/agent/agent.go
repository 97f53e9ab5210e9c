// Package agent composes retrieval, reflection, planning, and action
// selection into the per-tick cognitive cycle of one simulated agent.
package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/smallville/internal/memory"
	"github.com/nidhogg/smallville/internal/planning"
	"github.com/nidhogg/smallville/internal/reflection"
)

// Sentinel action strings returned when no plan or no actions exist.
// Action selection never fails.
const (
	NoPlanAction = "No plan available."
	NoStepAction = "No action available."
)

// TickResult is the structured output of one cognitive tick.
type TickResult struct {
	TickIndex int                       `json:"tick_index"`
	Retrieved []*memory.RetrievedMemory `json:"retrieved"`
	Insights  []reflection.Insight      `json:"insights,omitempty"`
	Plan      planning.DailyAgenda      `json:"plan"`
	Action    string                    `json:"action"`
	Timestamp time.Time                 `json:"timestamp"`
}

// RelevanceFunc supplies per-memory relevance scores (keyed by embedding
// ref) for a tick, typically backed by a vector index query.
type RelevanceFunc func(ctx context.Context, agentID string, tickIndex int) (map[string]float64, error)

// CognitiveAgent runs the retrieve -> reflect -> plan -> act cycle over its
// own memory store. The store and all derived state belong to this agent
// only; the scheduler never shares them across agents.
type CognitiveAgent struct {
	id        string
	store     *memory.Store
	relevance RelevanceFunc
	topK      int
	logger    *zap.Logger

	insights    []reflection.Insight
	currentPlan *planning.DailyAgenda
}

// Option configures a CognitiveAgent.
type Option func(*CognitiveAgent)

// WithTopK overrides the retrieval batch size.
func WithTopK(k int) Option {
	return func(a *CognitiveAgent) { a.topK = k }
}

// WithRelevance sets the per-tick relevance source. Without one, all
// relevance scores default to zero.
func WithRelevance(fn RelevanceFunc) Option {
	return func(a *CognitiveAgent) { a.relevance = fn }
}

// New creates a cognitive agent over the given memory store.
func New(id string, store *memory.Store, logger *zap.Logger, opts ...Option) *CognitiveAgent {
	a := &CognitiveAgent{
		id:     id,
		store:  store,
		topK:   memory.DefaultTopK,
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the agent identifier.
func (a *CognitiveAgent) ID() string {
	return a.id
}

// Store returns the agent's memory store.
func (a *CognitiveAgent) Store() *memory.Store {
	return a.store
}

// Tick runs one cognitive cycle: retrieve top-k memories, mark them
// accessed at tick start, reflect when warranted, regenerate the plan, and
// select the next action.
func (a *CognitiveAgent) Tick(ctx context.Context, tickIndex int) (*TickResult, error) {
	now := time.Now().UTC()

	var relevance map[string]float64
	if a.relevance != nil {
		var err error
		relevance, err = a.relevance(ctx, a.id, tickIndex)
		if err != nil {
			return nil, err
		}
	}

	retrieved := a.store.RetrieveTop(relevance, a.topK, now)

	recent := make([]*memory.Memory, 0, len(retrieved))
	for _, rm := range retrieved {
		rm.Memory.MarkAccessed(now)
		recent = append(recent, rm.Memory)
	}

	var insights []reflection.Insight
	if reflection.ShouldTrigger(recent) {
		insights = reflection.Synthesize(recent, reflection.DefaultMaxInsights)
		a.insights = insights
	}

	plan := planning.GeneratePlan(retrieved, a.insights, "today")
	a.currentPlan = &plan

	action := a.SelectAction()

	a.logger.Debug("cognitive tick complete",
		zap.String("agent", a.id),
		zap.Int("tick", tickIndex),
		zap.Int("retrieved", len(retrieved)),
		zap.Int("insights", len(insights)),
		zap.String("action", action))

	return &TickResult{
		TickIndex: tickIndex,
		Retrieved: retrieved,
		Insights:  insights,
		Plan:      plan,
		Action:    action,
		Timestamp: now,
	}, nil
}

// SelectAction picks the first action of the first hourly block that has
// any, falling back to sentinel strings rather than failing.
func (a *CognitiveAgent) SelectAction() string {
	if a.currentPlan == nil {
		return NoPlanAction
	}
	for _, hour := range a.currentPlan.Hours {
		if len(hour.Actions) > 0 {
			return hour.Actions[0].Title
		}
	}
	return NoStepAction
}
