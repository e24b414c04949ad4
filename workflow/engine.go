package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxNodesPerTurn bounds a turn to the active node plus one successor.
const maxNodesPerTurn = 2

// Engine runs turns: resume, route, execute, persist.
type Engine struct {
	runner         *Runner
	store          Checkpointer
	locks          *Locker
	sink           ArtifactSink
	logger         *zap.Logger
	chainSuccessor bool
	newID          func() string
}

type EngineOption func(*Engine)

// WithArtifactSink sets where finished artifacts go after a turn persists.
func WithArtifactSink(sink ArtifactSink) EngineOption {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithChainSuccessor lets the successor node run once in the same turn
// after a hand-off, so a turn may make up to two model calls.
func WithChainSuccessor(on bool) EngineOption {
	return func(e *Engine) { e.chainSuccessor = on }
}

// WithIDGenerator overrides how ids are minted for new conversations.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

func NewEngine(runner *Runner, store Checkpointer, opts ...EngineOption) (*Engine, error) {
	if runner == nil {
		return nil, errors.New("workflow: runner is required")
	}
	if store == nil {
		return nil, errors.New("workflow: checkpointer is required")
	}
	e := &Engine{
		runner: runner,
		store:  store,
		locks:  NewLocker(),
		sink:   discardSink{},
		logger: zap.NewNop(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Resume returns the stored state for id, or a fresh state if there is none.
func (e *Engine) Resume(ctx context.Context, id string) (State, error) {
	st, _, err := e.resume(ctx, id)
	return st, err
}

// Load returns the stored state for id without falling back to a fresh one.
func (e *Engine) Load(ctx context.Context, id string) (State, error) {
	return e.store.Load(ctx, id)
}

func (e *Engine) resume(ctx context.Context, id string) (State, bool, error) {
	st, err := e.store.Load(ctx, id)
	if errors.Is(err, ErrCheckpointNotFound) {
		return NewState(), true, nil
	}
	if err != nil {
		return State{}, false, err
	}
	return st, false, nil
}

// Turn executes one conversational turn. Events are delivered to events in
// order; a nil sink runs the turn without streaming. Nothing is persisted
// when the turn fails or ctx is cancelled.
func (e *Engine) Turn(ctx context.Context, req TurnRequest, events EventSink) (TurnResult, error) {
	res, err := e.turn(ctx, req, events)
	if err != nil {
		events.emit(Event{Type: EventError, ConversationID: res.ConversationID, Message: err.Error()})
		return res, err
	}
	events.emit(Event{Type: EventDone, ConversationID: res.ConversationID})
	return res, nil
}

func (e *Engine) turn(ctx context.Context, req TurnRequest, events EventSink) (TurnResult, error) {
	if err := req.Validate(); err != nil {
		return TurnResult{ConversationID: req.ConversationID}, err
	}
	id := req.ConversationID
	if id == "" {
		id = e.newID()
	}
	res := TurnResult{ConversationID: id, Messages: []Message{}}
	log := e.logger.With(zap.String("conversation_id", id))
	events = events.forConversation(id)

	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return res, err
	}
	defer unlock()

	st, fresh, err := e.resume(ctx, id)
	if err != nil {
		log.Warn("resume failed", zap.Error(err))
		return res, err
	}
	st.Messages = append(st.Messages, req.inbound(fresh)...)

	var artifacts []Artifact
	prevAgent := st.ActiveAgent
	for step := 0; step < maxNodesPerTurn; step++ {
		out, err := e.runner.Run(ctx, st, events)
		if err != nil {
			log.Warn("turn aborted", zap.String("stage", string(Route(st))), zap.Error(err))
			return res, err
		}
		if out.State.ActiveAgent != prevAgent {
			events.emit(transitionEvent(prevAgent, out.State.ActiveAgent))
			prevAgent = out.State.ActiveAgent
		}
		for _, m := range out.Messages {
			events.emit(messageEvent(m))
		}
		st = out.State
		res.Messages = append(res.Messages, out.Messages...)
		res.ModelCalls += out.ModelCalls
		artifacts = append(artifacts, out.Artifacts...)

		if out.Action != Advance || !e.chainSuccessor || out.Next == StageComplete {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := e.store.Save(ctx, id, st); err != nil {
		log.Error("persist state failed", zap.Error(err))
		return res, fmt.Errorf("workflow: persist state: %w", err)
	}
	res.Stage = st.Stage
	res.ActiveAgent = st.ActiveAgent

	for _, a := range artifacts {
		a.ProjectID = id
		e.sink.Publish(a)
	}
	log.Info("turn complete",
		zap.String("stage", string(st.Stage)),
		zap.String("agent", st.ActiveAgent),
		zap.Int("new_messages", len(res.Messages)),
		zap.Int("model_calls", res.ModelCalls),
	)
	return res, nil
}
