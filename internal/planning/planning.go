// Package planning converts retrieved memories and reflection insights into
// a three-level plan: daily agenda, hourly blocks, and short action steps.
package planning

import (
	"fmt"

	"github.com/nidhogg/smallville/internal/memory"
	"github.com/nidhogg/smallville/internal/reflection"
)

// Action step durations are bounded to keep agent actions small units of time.
const (
	MinStepMinutes = 5
	MaxStepMinutes = 15
)

// ActionStep is a concrete 5-15 minute action.
type ActionStep struct {
	Title           string `json:"title"`
	DurationMinutes int    `json:"duration_minutes"`
}

// NewActionStep validates the duration bound at construction.
func NewActionStep(title string, durationMinutes int) (ActionStep, error) {
	if durationMinutes < MinStepMinutes || durationMinutes > MaxStepMinutes {
		return ActionStep{}, fmt.Errorf("action step duration %d minutes out of range [%d, %d]",
			durationMinutes, MinStepMinutes, MaxStepMinutes)
	}
	return ActionStep{Title: title, DurationMinutes: durationMinutes}, nil
}

// HourlyPlan is one hour block containing several action steps.
type HourlyPlan struct {
	HourLabel string       `json:"hour_label"`
	Objective string       `json:"objective"`
	Actions   []ActionStep `json:"actions"`
}

// DailyAgenda is the top-level day plan composed of hourly blocks.
type DailyAgenda struct {
	DateLabel string       `json:"date_label"`
	Goals     []string     `json:"goals"`
	Hours     []HourlyPlan `json:"hourly_plan"`
}

// GeneratePlan builds a daily agenda from retrieval and reflection output.
// Goals come from up to 3 insight summaries, with a fallback goal when none
// exist. Each of the top 3 retrieved memories gets one hour block with a
// fixed review/execute/capture step template; when nothing was retrieved a
// single generic block is emitted. The returned plan is never empty.
func GeneratePlan(retrieved []*memory.RetrievedMemory, insights []reflection.Insight, dateLabel string) DailyAgenda {
	if dateLabel == "" {
		dateLabel = "today"
	}

	var goals []string
	for _, insight := range insights {
		goals = append(goals, insight.Summary)
		if len(goals) == 3 {
			break
		}
	}
	if len(goals) == 0 {
		goals = []string{"Maintain progress on current priorities."}
	}

	var hours []HourlyPlan
	for i, rm := range retrieved {
		if i == 3 {
			break
		}
		m := rm.Memory
		hours = append(hours, HourlyPlan{
			HourLabel: fmt.Sprintf("Hour %d", i+1),
			Objective: fmt.Sprintf("Advance: %s", m.Description),
			Actions: []ActionStep{
				{Title: fmt.Sprintf("Review context for %s memory", m.Type), DurationMinutes: 10},
				{Title: fmt.Sprintf("Execute next step tied to '%s'", m.Description), DurationMinutes: 15},
				{Title: "Capture concise outcome note", DurationMinutes: 5},
			},
		})
	}

	if len(hours) == 0 {
		hours = append(hours, HourlyPlan{
			HourLabel: "Hour 1",
			Objective: "Stabilize baseline operations",
			Actions: []ActionStep{
				{Title: "Review pending tasks", DurationMinutes: 10},
				{Title: "Complete a highest-impact task", DurationMinutes: 15},
				{Title: "Log lessons learned", DurationMinutes: 5},
			},
		})
	}

	return DailyAgenda{DateLabel: dateLabel, Goals: goals, Hours: hours}
}
