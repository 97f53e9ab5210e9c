package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/smallville/internal/memory"
)

// MemoryRecord is a persisted memory row plus its evidence pointers.
type MemoryRecord struct {
	MemoryID string
	AgentID  string
	Memory   *memory.Memory
}

// UpsertMemory writes a memory by id, replacing evidence pointers on update.
// An empty memoryID allocates a new one. The operation is idempotent for a
// given id and content.
func (s *Store) UpsertMemory(ctx context.Context, memoryID, agentID string, m *memory.Memory) (string, error) {
	if memoryID == "" {
		memoryID = uuid.New().String()
	}

	var visual []byte
	if m.Visual != nil {
		var err error
		visual, err = json.Marshal(m.Visual)
		if err != nil {
			return "", fmt.Errorf("marshal visual context: %w", err)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin upsert memory: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO memories (
			memory_id, agent_id, description, created_at, last_accessed,
			importance_score, memory_type, embedding_vector_ref, visual_context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (memory_id) DO UPDATE SET
			description = EXCLUDED.description,
			last_accessed = EXCLUDED.last_accessed,
			importance_score = EXCLUDED.importance_score,
			memory_type = EXCLUDED.memory_type,
			embedding_vector_ref = EXCLUDED.embedding_vector_ref,
			visual_context = EXCLUDED.visual_context`,
		memoryID, agentID, m.Description, m.CreatedAt, m.LastAccessed,
		m.ImportanceScore, string(m.Type), m.EmbeddingRef, visual)
	if err != nil {
		return "", fmt.Errorf("upsert memory %s: %w", memoryID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM evidence_pointers WHERE memory_id = $1`, memoryID); err != nil {
		return "", fmt.Errorf("clear evidence pointers: %w", err)
	}
	for _, pointer := range m.Evidence {
		_, err := tx.Exec(ctx, `
			INSERT INTO evidence_pointers (memory_id, pointer, created_at)
			VALUES ($1, $2, $3)`,
			memoryID, pointer, time.Now().UTC())
		if err != nil {
			return "", fmt.Errorf("insert evidence pointer: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit upsert memory: %w", err)
	}
	return memoryID, nil
}

// GetAgentMemories returns an agent's most recent memories, newest first,
// with their evidence pointers in insertion order.
func (s *Store) GetAgentMemories(ctx context.Context, agentID string, limit int) ([]*MemoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT memory_id, description, created_at, last_accessed,
		       importance_score, memory_type, embedding_vector_ref, visual_context
		FROM memories
		WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query memories for %s: %w", agentID, err)
	}
	defer rows.Close()

	var records []*MemoryRecord
	for rows.Next() {
		var (
			rec     = &MemoryRecord{AgentID: agentID, Memory: &memory.Memory{}}
			memType string
			visual  []byte
		)
		if err := rows.Scan(&rec.MemoryID, &rec.Memory.Description, &rec.Memory.CreatedAt,
			&rec.Memory.LastAccessed, &rec.Memory.ImportanceScore, &memType,
			&rec.Memory.EmbeddingRef, &visual); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		rec.Memory.ID = rec.MemoryID
		rec.Memory.Type = memory.Type(memType)
		rec.Memory.CreatedAt = rec.Memory.CreatedAt.UTC()
		rec.Memory.LastAccessed = rec.Memory.LastAccessed.UTC()
		if len(visual) > 0 {
			var vc memory.VisualContext
			if err := json.Unmarshal(visual, &vc); err != nil {
				return nil, fmt.Errorf("unmarshal visual context: %w", err)
			}
			rec.Memory.Visual = &vc
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}

	for _, rec := range records {
		pointers, err := s.evidencePointers(ctx, rec.MemoryID)
		if err != nil {
			return nil, err
		}
		rec.Memory.Evidence = pointers
	}

	s.logger.Debug("loaded agent memories",
		zap.String("agent", agentID),
		zap.Int("count", len(records)))
	return records, nil
}

func (s *Store) evidencePointers(ctx context.Context, memoryID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT pointer FROM evidence_pointers WHERE memory_id = $1 ORDER BY id ASC`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("query evidence pointers: %w", err)
	}
	defer rows.Close()

	var pointers []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan evidence pointer: %w", err)
		}
		pointers = append(pointers, p)
	}
	return pointers, rows.Err()
}
