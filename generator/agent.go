package generator

import (
	"context"
	"errors"
)

// Agent produces a specialist's next reply from its system prompt and the
// full conversation history.
type Agent struct {
	llm LLMClient
}

func NewAgent(llm LLMClient) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	return &Agent{llm: llm}, nil
}

// Reply makes exactly one completion call.
func (a *Agent) Reply(ctx context.Context, system string, history []Message) (string, error) {
	raw, err := a.llm.Complete(ctx, BuildSpecialistPrompt(system, history))
	if err != nil {
		return "", err
	}
	return CleanReply(raw)
}

// ReplyStream is the streaming variant of Reply. Clients without streaming
// support report the whole reply as a single delta.
func (a *Agent) ReplyStream(ctx context.Context, system string, history []Message, onDelta func(string)) (string, error) {
	raw, err := streamOrComplete(ctx, a.llm, BuildSpecialistPrompt(system, history), onDelta)
	if err != nil {
		return "", err
	}
	return CleanReply(raw)
}
