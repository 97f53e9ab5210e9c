package memory

import (
	"errors"
	"fmt"
	"time"
)

// Type categorizes a memory.
type Type string

const (
	TypeEpisodic   Type = "episodic"
	TypeSemantic   Type = "semantic"
	TypeProcedural Type = "procedural"
	TypeReflective Type = "reflective"
)

// Valid reports whether t is a known memory type.
func (t Type) Valid() bool {
	switch t {
	case TypeEpisodic, TypeSemantic, TypeProcedural, TypeReflective:
		return true
	}
	return false
}

// VisualContext holds optional visual metadata tied to a memory.
type VisualContext struct {
	SceneDescription string   `json:"scene_description,omitempty"`
	ImageRef         string   `json:"image_ref,omitempty"`
	Entities         []string `json:"extracted_entities,omitempty"`
}

// Memory is the canonical memory record used across retrieval, reflection,
// and planning. A memory is owned by the agent that created it and is never
// shared across agents.
type Memory struct {
	ID              string         `json:"id"`
	Description     string         `json:"description"`
	CreatedAt       time.Time      `json:"created_at"`
	LastAccessed    time.Time      `json:"last_accessed"`
	ImportanceScore float64        `json:"importance_score"`
	Type            Type           `json:"memory_type"`
	EmbeddingRef    string         `json:"embedding_vector_ref"`
	Evidence        []string       `json:"pointers_to_evidence,omitempty"`
	Visual          *VisualContext `json:"visual_context,omitempty"`
}

var (
	ErrEmptyDescription   = errors.New("memory description must not be empty")
	ErrNegativeImportance = errors.New("memory importance score must be non-negative")
)

// New builds a validated memory with timestamps normalized to UTC.
// CreatedAt and LastAccessed default to the current instant.
func New(description string, importance float64, memType Type, embeddingRef string) (*Memory, error) {
	if description == "" {
		return nil, ErrEmptyDescription
	}
	if importance < 0 {
		return nil, ErrNegativeImportance
	}
	if !memType.Valid() {
		return nil, fmt.Errorf("unknown memory type %q", memType)
	}
	now := time.Now().UTC()
	return &Memory{
		Description:     description,
		CreatedAt:       now,
		LastAccessed:    now,
		ImportanceScore: importance,
		Type:            memType,
		EmbeddingRef:    embeddingRef,
	}, nil
}

// MarkAccessed updates the last access time in place.
// A zero when means "now".
func (m *Memory) MarkAccessed(when time.Time) {
	if when.IsZero() {
		when = time.Now()
	}
	m.LastAccessed = when.UTC()
}

// RetrievedMemory is an immutable snapshot pairing a memory with its
// retrieval score components. Produced fresh on every retrieval pass; the
// underlying Memory remains the source of truth.
type RetrievedMemory struct {
	Memory     *Memory `json:"memory"`
	Recency    float64 `json:"recency"`
	Importance float64 `json:"importance"`
	Relevance  float64 `json:"relevance"`
	FinalScore float64 `json:"final_score"`
}
