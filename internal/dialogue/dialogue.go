// Package dialogue orchestrates conversations between co-located agents,
// grounded in the visual context the pair shares.
package dialogue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/smallville/internal/world"
)

// Speaker is the capability a dialogue participant must provide.
type Speaker interface {
	ID() string
	Name() string
	Speak(ctx context.Context, prompt string, sharedContext *SharedContext) (string, error)
}

// TurnSink persists dialogue turns as they are produced.
type TurnSink interface {
	AddDialogueTurn(ctx context.Context, turn *Turn) error
}

// Turn is a single utterance within a conversation.
type Turn struct {
	ConversationID string         `json:"conversation_id"`
	SpeakerID      string         `json:"speaker_id"`
	ListenerID     string         `json:"listener_id"`
	Utterance      string         `json:"utterance"`
	Shared         *SharedContext `json:"shared_visual_context,omitempty"`
}

// SharedContext summarizes what two co-located agents can both see.
type SharedContext struct {
	Tile           world.Position `json:"tile"`
	LocationNames  []string       `json:"location_names,omitempty"`
	VisibleObjects []string       `json:"visible_objects,omitempty"`
	VisibleAgents  []string       `json:"visible_agents,omitempty"`
	Summary        string         `json:"summary"`
}

// CoLocated returns the unique agent pairs occupying the same tile.
func CoLocated(w *world.State) [][2]*world.AgentState {
	agents := w.Agents()
	var pairs [][2]*world.AgentState
	for i, first := range agents {
		for _, second := range agents[i+1:] {
			if first.Position == second.Position {
				pairs = append(pairs, [2]*world.AgentState{first, second})
			}
		}
	}
	return pairs
}

// BuildSharedContext assembles the visual context around a co-located pair.
func BuildSharedContext(w *world.State, first, second *world.AgentState, radius int) *SharedContext {
	minX := min(first.Position.X, second.Position.X) - radius
	minY := min(first.Position.Y, second.Position.Y) - radius
	maxX := max(first.Position.X, second.Position.X) + radius
	maxY := max(first.Position.Y, second.Position.Y) + radius

	objects := w.ObjectsInBounds(minX, minY, maxX, maxY)
	agents := w.AgentsInBounds(minX, minY, maxX, maxY)

	objectNames := make([]string, 0, len(objects))
	for _, o := range objects {
		objectNames = append(objectNames, o.Name)
	}
	agentNames := make([]string, 0, len(agents))
	for _, a := range agents {
		agentNames = append(agentNames, a.Name)
	}

	return &SharedContext{
		Tile:           first.Position,
		LocationNames:  w.LocationsAt(first.Position),
		VisibleObjects: objectNames,
		VisibleAgents:  agentNames,
		Summary: fmt.Sprintf("%s and %s are co-located at (%d, %d) with %d nearby objects and %d nearby agents.",
			first.Name, second.Name, first.Position.X, first.Position.Y, len(objects), len(agents)),
	}
}

// Runner generates alternating dialogue turns between co-located agents.
type Runner struct {
	sink   TurnSink
	logger *zap.Logger
}

// NewRunner creates a dialogue runner. The sink may be nil when transcripts
// should not be persisted.
func NewRunner(sink TurnSink, logger *zap.Logger) *Runner {
	return &Runner{sink: sink, logger: logger}
}

// Run produces up to turns alternating utterances between the pair,
// persisting each as it is spoken. Agents that are not co-located produce
// an empty transcript.
func (r *Runner) Run(ctx context.Context, first, second Speaker, firstState, secondState *world.AgentState, w *world.State, turns int) ([]*Turn, error) {
	if firstState.Position != secondState.Position {
		return nil, nil
	}

	convoID := uuid.New().String()
	shared := BuildSharedContext(w, firstState, secondState, 2)

	speaker, listener := first, second
	transcript := make([]*Turn, 0, turns)

	for i := 0; i < turns; i++ {
		prompt := fmt.Sprintf("Turn %d: discuss immediate goals with %s. Use shared context: %s",
			i+1, listener.Name(), shared.Summary)

		utterance, err := speaker.Speak(ctx, prompt, shared)
		if err != nil {
			return transcript, fmt.Errorf("dialogue turn %d (%s): %w", i+1, speaker.ID(), err)
		}

		turn := &Turn{
			ConversationID: convoID,
			SpeakerID:      speaker.ID(),
			ListenerID:     listener.ID(),
			Utterance:      utterance,
			Shared:         shared,
		}
		transcript = append(transcript, turn)

		if r.sink != nil {
			if err := r.sink.AddDialogueTurn(ctx, turn); err != nil {
				return transcript, fmt.Errorf("persist dialogue turn: %w", err)
			}
		}

		speaker, listener = listener, speaker
	}

	r.logger.Debug("dialogue complete",
		zap.String("conversation", convoID),
		zap.Int("turns", len(transcript)))
	return transcript, nil
}
