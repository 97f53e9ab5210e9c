package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/smallville/internal/memory"
	"github.com/nidhogg/smallville/internal/planning"
)

func seededStore(t *testing.T, importances []float64) *memory.Store {
	t.Helper()
	s := memory.NewStore()
	for i, imp := range importances {
		m, err := memory.New(fmt.Sprintf("memory with importance %v", imp), imp,
			memory.TypeEpisodic, fmt.Sprintf("vec-%d", i))
		if err != nil {
			t.Fatalf("seed memory: %v", err)
		}
		s.Add(m)
	}
	return s
}

func TestTickFullCycle(t *testing.T) {
	// Importances sum to 240 across the top five, so reflection fires.
	store := seededStore(t, []float64{20, 200, 10, 5, 5})
	a := New("agent-1", store, zap.NewNop())

	result, err := a.Tick(context.Background(), 0)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}

	if result.TickIndex != 0 {
		t.Errorf("got tick index %d, want 0", result.TickIndex)
	}
	if len(result.Retrieved) != memory.DefaultTopK {
		t.Fatalf("got %d retrieved, want %d", len(result.Retrieved), memory.DefaultTopK)
	}
	// Highest importance wins with all else equal.
	if got := result.Retrieved[0].Memory.ImportanceScore; got != 200 {
		t.Errorf("got top importance %v, want 200", got)
	}
	if len(result.Insights) == 0 {
		t.Error("expected reflection to trigger")
	}

	// The top three retrieved memories become the plan's hour blocks.
	if len(result.Plan.Hours) != 3 {
		t.Fatalf("got %d hour blocks, want 3", len(result.Plan.Hours))
	}
	wantObjectives := []string{
		"Advance: memory with importance 200",
		"Advance: memory with importance 20",
		"Advance: memory with importance 10",
	}
	for i, want := range wantObjectives {
		if result.Plan.Hours[i].Objective != want {
			t.Errorf("hour %d: got objective %q, want %q", i+1, result.Plan.Hours[i].Objective, want)
		}
	}

	if result.Action != "Review context for episodic memory" {
		t.Errorf("got action %q", result.Action)
	}
}

func TestTickNoReflectionBelowThreshold(t *testing.T) {
	store := seededStore(t, []float64{10, 10, 10})
	a := New("agent-2", store, zap.NewNop())

	result, err := a.Tick(context.Background(), 3)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(result.Insights) != 0 {
		t.Errorf("got %d insights, want none below threshold", len(result.Insights))
	}
	if len(result.Plan.Hours) == 0 {
		t.Error("plan must never be empty")
	}
}

func TestTickMarksRetrievedAccessed(t *testing.T) {
	store := seededStore(t, []float64{10, 20})
	before := store.All()[0].LastAccessed

	a := New("agent-3", store, zap.NewNop())
	if _, err := a.Tick(context.Background(), 0); err != nil {
		t.Fatalf("tick: %v", err)
	}

	for _, m := range store.All() {
		if m.LastAccessed.Before(before) {
			t.Errorf("memory %q not marked accessed", m.Description)
		}
	}
}

func TestTickRelevanceErrorPropagates(t *testing.T) {
	wantErr := errors.New("vector index down")
	a := New("agent-4", seededStore(t, []float64{10}), zap.NewNop(),
		WithRelevance(func(ctx context.Context, agentID string, tickIndex int) (map[string]float64, error) {
			return nil, wantErr
		}))

	if _, err := a.Tick(context.Background(), 0); !errors.Is(err, wantErr) {
		t.Errorf("got %v, want relevance error", err)
	}
}

func TestTickUsesRelevanceScores(t *testing.T) {
	store := seededStore(t, []float64{5, 5})
	a := New("agent-5", store, zap.NewNop(),
		WithTopK(1),
		WithRelevance(func(ctx context.Context, agentID string, tickIndex int) (map[string]float64, error) {
			return map[string]float64{"vec-1": 50}, nil
		}))

	result, err := a.Tick(context.Background(), 0)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(result.Retrieved) != 1 {
		t.Fatalf("got %d retrieved, want 1", len(result.Retrieved))
	}
	if result.Retrieved[0].Memory.EmbeddingRef != "vec-1" {
		t.Errorf("relevance did not promote vec-1, got %q", result.Retrieved[0].Memory.EmbeddingRef)
	}
}

func TestSelectActionSentinels(t *testing.T) {
	a := New("agent-6", memory.NewStore(), zap.NewNop())
	if got := a.SelectAction(); got != NoPlanAction {
		t.Errorf("no plan: got %q, want %q", got, NoPlanAction)
	}

	a.currentPlan = &planning.DailyAgenda{
		Hours: []planning.HourlyPlan{{HourLabel: "Hour 1"}},
	}
	if got := a.SelectAction(); got != NoStepAction {
		t.Errorf("empty hours: got %q, want %q", got, NoStepAction)
	}

	a.currentPlan = &planning.DailyAgenda{
		Hours: []planning.HourlyPlan{
			{HourLabel: "Hour 1"},
			{HourLabel: "Hour 2", Actions: []planning.ActionStep{{Title: "do the thing", DurationMinutes: 5}}},
		},
	}
	if got := a.SelectAction(); got != "do the thing" {
		t.Errorf("got %q, want first available action", got)
	}
}
