package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nidhogg/smallville/internal/agent"
	"github.com/nidhogg/smallville/internal/dialogue"
	"github.com/nidhogg/smallville/internal/planning"
	"github.com/nidhogg/smallville/internal/reflection"
)

// AddReflection appends a reflection insight for an agent and returns its id.
func (s *Store) AddReflection(ctx context.Context, agentID string, insight reflection.Insight) (string, error) {
	reflectionID := uuid.New().String()

	supporting, err := json.Marshal(insight.SupportingMemories)
	if err != nil {
		return "", fmt.Errorf("marshal supporting memories: %w", err)
	}
	metadata, err := json.Marshal(insight.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal insight metadata: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO reflections (reflection_id, agent_id, summary, supporting_memories, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		reflectionID, agentID, insight.Summary, supporting, metadata, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert reflection: %w", err)
	}
	return reflectionID, nil
}

// UpsertPlan writes a daily agenda by id. An empty planID allocates one.
func (s *Store) UpsertPlan(ctx context.Context, planID, agentID string, plan planning.DailyAgenda) (string, error) {
	if planID == "" {
		planID = uuid.New().String()
	}

	goals, err := json.Marshal(plan.Goals)
	if err != nil {
		return "", fmt.Errorf("marshal plan goals: %w", err)
	}
	hours, err := json.Marshal(plan.Hours)
	if err != nil {
		return "", fmt.Errorf("marshal hourly plan: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(ctx, `
		INSERT INTO plans (plan_id, agent_id, date_label, goals, hourly_plan, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (plan_id) DO UPDATE SET
			goals = EXCLUDED.goals,
			hourly_plan = EXCLUDED.hourly_plan,
			updated_at = EXCLUDED.updated_at`,
		planID, agentID, plan.DateLabel, goals, hours, now)
	if err != nil {
		return "", fmt.Errorf("upsert plan %s: %w", planID, err)
	}
	return planID, nil
}

// AddDialogueTurn appends one conversation turn. Implements dialogue.TurnSink.
func (s *Store) AddDialogueTurn(ctx context.Context, turn *dialogue.Turn) error {
	var shared []byte
	if turn.Shared != nil {
		var err error
		shared, err = json.Marshal(turn.Shared)
		if err != nil {
			return fmt.Errorf("marshal shared context: %w", err)
		}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO dialogue_turns (turn_id, conversation_id, speaker_id, listener_id, utterance, shared_visual_context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), turn.ConversationID, turn.SpeakerID, turn.ListenerID,
		turn.Utterance, shared, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert dialogue turn: %w", err)
	}
	return nil
}

// GetLatestDialogueTurns returns a conversation's most recent turns, newest
// first.
func (s *Store) GetLatestDialogueTurns(ctx context.Context, conversationID string, limit int) ([]*dialogue.Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT conversation_id, speaker_id, listener_id, utterance, shared_visual_context
		FROM dialogue_turns
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query dialogue turns: %w", err)
	}
	defer rows.Close()

	var turns []*dialogue.Turn
	for rows.Next() {
		var (
			turn   dialogue.Turn
			shared []byte
		)
		if err := rows.Scan(&turn.ConversationID, &turn.SpeakerID, &turn.ListenerID,
			&turn.Utterance, &shared); err != nil {
			return nil, fmt.Errorf("scan dialogue turn: %w", err)
		}
		if len(shared) > 0 {
			var sc dialogue.SharedContext
			if err := json.Unmarshal(shared, &sc); err != nil {
				return nil, fmt.Errorf("unmarshal shared context: %w", err)
			}
			turn.Shared = &sc
		}
		turns = append(turns, &turn)
	}
	return turns, rows.Err()
}

// PersistTick writes one agent's tick output: the regenerated plan (upserted
// under a stable per-agent id) and any fresh reflections. It satisfies
// sim.PersistFunc, so the scheduler's write lock already serializes calls.
func (s *Store) PersistTick(ctx context.Context, agentID string, tickIndex int, result *agent.TickResult) error {
	planID := uuid.NewSHA1(uuid.NameSpaceOID, []byte("plan:"+agentID)).String()
	if _, err := s.UpsertPlan(ctx, planID, agentID, result.Plan); err != nil {
		return err
	}
	for _, insight := range result.Insights {
		if _, err := s.AddReflection(ctx, agentID, insight); err != nil {
			return err
		}
	}
	return nil
}
