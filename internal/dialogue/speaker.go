package dialogue

import (
	"context"
	"fmt"
)

// TextGenerator is the slice of the model backend dialogue needs.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt, system string) (string, error)
}

// LLMSpeaker voices an agent through the text backend.
type LLMSpeaker struct {
	AgentID   string
	AgentName string
	Generator TextGenerator
}

func (s *LLMSpeaker) ID() string   { return s.AgentID }
func (s *LLMSpeaker) Name() string { return s.AgentName }

// Speak generates one utterance grounded in the shared visual context.
func (s *LLMSpeaker) Speak(ctx context.Context, prompt string, shared *SharedContext) (string, error) {
	system := fmt.Sprintf("You are %s, a resident of a small simulated town. "+
		"Reply with one or two short conversational sentences.", s.AgentName)
	return s.Generator.GenerateText(ctx, prompt, system)
}
