package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// MockLLM answers locally without calling a model.
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	// echo the last user message, prefixed by the first line of the system prompt
	var last string
	for _, h := range prompt.History {
		if h.Role == RoleUser {
			last = h.Content
		}
	}
	persona := firstLine(prompt.System)
	var sb strings.Builder
	if persona != "" {
		sb.WriteString("(")
		sb.WriteString(persona)
		sb.WriteString(")\n\n")
	}
	if last == "" {
		sb.WriteString("Hello! Tell me a little about the book you want to write.")
	} else {
		sb.WriteString(fmt.Sprintf("Thanks, I noted: %q. Could you tell me a bit more?", last))
	}
	return sb.String(), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// ErrScriptExhausted is returned by ScriptedLLM when no replies are left and
// no fallback reply is configured.
var ErrScriptExhausted = errors.New("scripted llm: no replies left")

// ScriptedLLM replays canned replies in order and records every prompt it
// receives. It is safe for concurrent use.
type ScriptedLLM struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	fallback string
	prompts  []Prompt
}

// NewScriptedLLM returns a client that answers with replies in order and then
// repeats fallback (or fails with ErrScriptExhausted when fallback is empty).
func NewScriptedLLM(fallback string, replies ...string) *ScriptedLLM {
	return &ScriptedLLM{replies: replies, fallback: fallback}
}

// FailNext makes the next call return err instead of a reply.
func (s *ScriptedLLM) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *ScriptedLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	if len(s.replies) > 0 {
		reply := s.replies[0]
		s.replies = s.replies[1:]
		return reply, nil
	}
	if s.fallback == "" {
		return "", ErrScriptExhausted
	}
	return s.fallback, nil
}

// Stream splits the scripted reply on spaces and reports each word as a delta.
func (s *ScriptedLLM) Stream(ctx context.Context, prompt Prompt, onDelta func(string)) (string, error) {
	reply, err := s.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if onDelta != nil {
		words := strings.SplitAfter(reply, " ")
		for _, w := range words {
			if w != "" {
				onDelta(w)
			}
		}
	}
	return reply, nil
}

// Calls returns how many completions were requested.
func (s *ScriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Prompts returns a copy of the recorded prompts.
func (s *ScriptedLLM) Prompts() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Prompt, len(s.prompts))
	copy(out, s.prompts)
	return out
}
