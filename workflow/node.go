package workflow

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"book_ghostwriter/generator"
	"book_ghostwriter/prompts"
)

// Action is what a node asks the engine to do next.
type Action int

const (
	WaitForUser Action = iota
	Advance
)

func (a Action) String() string {
	if a == Advance {
		return "advance"
	}
	return "wait_for_user"
}

// NodeResult is the outcome of running one stage node.
type NodeResult struct {
	Action Action
	// Next is the stage the state now sits in.
	Next  Stage
	State State
	// Messages are the assistant messages this node appended.
	Messages  []Message
	Artifacts []Artifact
	// ModelCalls is 0 for hand-offs and terminal no-ops, 1 otherwise.
	ModelCalls int
}

// Replier produces the specialist's next reply from its system prompt and
// the full history. *generator.Agent implements it.
type Replier interface {
	Reply(ctx context.Context, system string, history []generator.Message) (string, error)
	ReplyStream(ctx context.Context, system string, history []generator.Message, onDelta func(string)) (string, error)
}

// PromptResolver returns the system prompt for a specialist key. It never
// fails; *prompts.Resolver implements it.
type PromptResolver interface {
	Resolve(ctx context.Context, name string) prompts.Specialist
}

// Runner executes any stage from the Transitions table. Per-stage behaviour
// comes from the table row and the stage's Extractor.
type Runner struct {
	agent      Replier
	prompts    PromptResolver
	extractors map[Stage]Extractor
	logger     *zap.Logger
}

type RunnerOption func(*Runner)

// WithExtractor replaces the heuristic used for stage.
func WithExtractor(stage Stage, ex Extractor) RunnerOption {
	return func(r *Runner) { r.extractors[stage] = ex }
}

func WithRunnerLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewRunner(agent Replier, resolver PromptResolver, opts ...RunnerOption) (*Runner, error) {
	if agent == nil {
		return nil, errors.New("workflow: replier is required")
	}
	if resolver == nil {
		return nil, errors.New("workflow: prompt resolver is required")
	}
	r := &Runner{
		agent:      agent,
		prompts:    resolver,
		extractors: DefaultExtractors(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes the node selected by Route(st). st is not modified. When emit
// is non-nil the model reply is streamed as delta events.
func (r *Runner) Run(ctx context.Context, st State, emit EventSink) (NodeResult, error) {
	stage := Route(st)
	t, ok := Transitions[stage]
	if !ok {
		// terminal: nothing left to do
		return NodeResult{Action: WaitForUser, Next: stage, State: st.Clone()}, nil
	}

	s := st.Clone()
	s.Stage = stage
	ex := r.extractors[stage]

	if p, ok := ex.(Prefiller); ok {
		p.Prefill(s).ApplyTo(&s)
	}
	if t.IsComplete(s) {
		return r.handoff(stage, t, s), nil
	}

	if err := ctx.Err(); err != nil {
		return NodeResult{}, err
	}
	sp := r.prompts.Resolve(ctx, t.Specialist.Key)
	history := toHistory(s.Messages)

	var (
		reply string
		err   error
	)
	if emit != nil {
		agent := t.Specialist.Agent
		reply, err = r.agent.ReplyStream(ctx, sp.Prompt, history, func(chunk string) {
			emit.emit(Event{Type: EventDelta, Role: RoleAssistant, Content: chunk, Agent: agent})
		})
	} else {
		reply, err = r.agent.Reply(ctx, sp.Prompt, history)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return NodeResult{}, ctxErr
		}
		return NodeResult{}, &CompletionError{Agent: t.Specialist.Agent, Err: err}
	}

	var u Update
	if text, fresh := s.FreshUserReply(); fresh && ex != nil {
		u = ex.Extract(s, text)
	}

	msg := Message{Role: RoleAssistant, Content: reply, Agent: t.Specialist.Agent}
	s.Messages = append(s.Messages, msg)
	u.ApplyTo(&s)
	s.ActiveAgent = t.Specialist.Agent

	r.logger.Debug("stage node replied",
		zap.String("stage", string(stage)),
		zap.String("agent", t.Specialist.Agent),
		zap.Bool("updated", !u.Empty()),
	)
	return NodeResult{
		Action:     WaitForUser,
		Next:       stage,
		State:      s,
		Messages:   []Message{msg},
		Artifacts:  u.Artifacts,
		ModelCalls: 1,
	}, nil
}

func (r *Runner) handoff(from Stage, t Transition, s State) NodeResult {
	next := SpecialistFor(t.Next)
	msg := Message{Role: RoleAssistant, Content: t.Handoff(s), Agent: next.Agent}
	s.Messages = append(s.Messages, msg)
	s.Stage = t.Next
	s.ActiveAgent = next.Agent
	r.logger.Info("stage complete",
		zap.String("from", string(from)),
		zap.String("to", string(t.Next)),
		zap.String("agent", next.Agent),
	)
	return NodeResult{
		Action:    Advance,
		Next:      t.Next,
		State:     s,
		Messages:  []Message{msg},
		Artifacts: handoffArtifacts(from, s),
	}
}

func toHistory(msgs []Message) []generator.Message {
	out := make([]generator.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, generator.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
