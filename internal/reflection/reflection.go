// Package reflection decides when an agent's recent memories warrant
// synthesis and produces compact high-level insights from them.
package reflection

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/nidhogg/smallville/internal/memory"
)

// TriggerThreshold is the cumulative importance above which reflection fires.
const TriggerThreshold = 150.0

// DefaultMaxInsights bounds how many insights one synthesis pass produces.
const DefaultMaxInsights = 3

// Insight is a high-level synthesis created from recent memories.
type Insight struct {
	Summary            string         `json:"summary"`
	SupportingMemories []string       `json:"supporting_memories,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// ShouldTrigger reports whether the given memories carry enough cumulative
// importance to justify a synthesis pass. The decision is recomputed from
// scratch every call; the set passed in is the most recently retrieved
// window, not the full history. Sums exactly at the threshold do not fire.
func ShouldTrigger(memories []*memory.Memory) bool {
	var total float64
	for _, m := range memories {
		total += m.ImportanceScore
	}
	return total > TriggerThreshold
}

// Synthesize generates up to maxInsights thematic insights from recent
// memories. Callers must pass memories in the order retrieval produced them
// (descending final score): the temporal-shift insight reads the first
// element as latest and the last as oldest.
func Synthesize(recent []*memory.Memory, maxInsights int) []Insight {
	if len(recent) == 0 {
		return nil
	}
	if maxInsights <= 0 {
		maxInsights = DefaultMaxInsights
	}

	avgImportance := meanImportance(recent)

	insights := []Insight{
		{
			Summary:            fmt.Sprintf("Recent activity concentrates in %s.", typeDistribution(recent)),
			SupportingMemories: descriptions(recent, 5),
			Metadata:           map[string]any{"average_importance": round3(avgImportance)},
		},
	}

	if avgImportance >= 50 {
		insights = append(insights, Insight{
			Summary:            "Current memory stream indicates high-priority context that may require proactive planning.",
			SupportingMemories: descriptions(topByImportance(recent, 3), 3),
			Metadata:           map[string]any{"signal": "high_importance"},
		})
	}

	if len(recent) >= 4 {
		latest := recent[0]
		oldest := recent[len(recent)-1]
		insights = append(insights, Insight{
			Summary:            fmt.Sprintf("Context appears to evolve from '%s' toward '%s'.", oldest.Description, latest.Description),
			SupportingMemories: []string{oldest.Description, latest.Description},
			Metadata:           map[string]any{"signal": "temporal_shift"},
		})
	}

	if len(insights) > maxInsights {
		insights = insights[:maxInsights]
	}
	return insights
}

func meanImportance(memories []*memory.Memory) float64 {
	var total float64
	for _, m := range memories {
		total += m.ImportanceScore
	}
	return total / float64(len(memories))
}

// typeDistribution renders memory type counts in most-common order, e.g.
// "episodic (3), semantic (1)". Ties keep first-seen order.
func typeDistribution(memories []*memory.Memory) string {
	counts := make(map[memory.Type]int)
	var order []memory.Type
	for _, m := range memories {
		if counts[m.Type] == 0 {
			order = append(order, m.Type)
		}
		counts[m.Type]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	parts := make([]string, 0, len(order))
	for _, t := range order {
		parts = append(parts, fmt.Sprintf("%s (%d)", t, counts[t]))
	}
	return strings.Join(parts, ", ")
}

func descriptions(memories []*memory.Memory, limit int) []string {
	if len(memories) > limit {
		memories = memories[:limit]
	}
	out := make([]string, 0, len(memories))
	for _, m := range memories {
		out = append(out, m.Description)
	}
	return out
}

func topByImportance(memories []*memory.Memory, limit int) []*memory.Memory {
	sorted := make([]*memory.Memory, len(memories))
	copy(sorted, memories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ImportanceScore > sorted[j].ImportanceScore
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
