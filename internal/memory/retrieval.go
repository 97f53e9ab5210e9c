package memory

import (
	"math"
	"sort"
	"time"
)

// DefaultTopK bounds retrieval output when the caller does not ask for a
// specific count.
const DefaultTopK = 5

// recencyDecayPerHour is the per-hour retention factor for the recency
// component: a memory untouched for an hour keeps 99.5% of its recency.
const recencyDecayPerHour = 0.995

// RecencyScore computes exponential decay by hours elapsed since the memory
// was last accessed. The result is always in (0, 1], and exactly 1 at zero
// elapsed time. A zero now means the current instant; injecting now makes
// scoring deterministic in tests.
func RecencyScore(lastAccessed, now time.Time) float64 {
	if now.IsZero() {
		now = time.Now()
	}
	elapsedHours := now.UTC().Sub(lastAccessed.UTC()).Hours()
	if elapsedHours < 0 {
		elapsedHours = 0
	}
	return math.Pow(recencyDecayPerHour, elapsedHours)
}

// ScoreMemory generates all score components for a single memory. The final
// score is the unweighted sum of recency, importance, and relevance: the
// three signals are deliberately treated as equal additive contributions.
func ScoreMemory(m *Memory, relevance float64, now time.Time) *RetrievedMemory {
	recency := RecencyScore(m.LastAccessed, now)
	importance := m.ImportanceScore
	return &RetrievedMemory{
		Memory:     m,
		Recency:    recency,
		Importance: importance,
		Relevance:  relevance,
		FinalScore: recency + importance + relevance,
	}
}

// RetrieveTop ranks memories by final score and returns at most topK results.
// Relevance is looked up by embedding ref and defaults to 0 when absent. The
// sort is stable: memories with equal final score retain their input order,
// so identical inputs always produce identical output.
func RetrieveTop(memories []*Memory, relevanceByRef map[string]float64, topK int, now time.Time) []*RetrievedMemory {
	if topK <= 0 {
		topK = DefaultTopK
	}
	scored := make([]*RetrievedMemory, 0, len(memories))
	for _, m := range memories {
		scored = append(scored, ScoreMemory(m, relevanceByRef[m.EmbeddingRef], now))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].FinalScore > scored[j].FinalScore
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
