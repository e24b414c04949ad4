package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Checkpointer persists conversation state keyed by conversation id.
// Load returns ErrCheckpointNotFound for unknown ids and a
// *StateCorruptionError for stored bytes that cannot be decoded.
type Checkpointer interface {
	Load(ctx context.Context, id string) (State, error)
	Save(ctx context.Context, id string, st State) error
}

// EncodeState serializes st in the checkpoint wire format.
func EncodeState(st State) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("workflow: encode state: %w", err)
	}
	return data, nil
}

// DecodeState parses checkpoint bytes stored for id.
func DecodeState(id string, data []byte) (State, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return State{}, &StateCorruptionError{ConversationID: id, Err: errors.New("empty checkpoint")}
	}
	var st State
	if err := json.Unmarshal(trimmed, &st); err != nil {
		return State{}, &StateCorruptionError{ConversationID: id, Err: err}
	}
	if st.Stage != "" && !st.Stage.Valid() {
		return State{}, &StateCorruptionError{ConversationID: id, Err: fmt.Errorf("unknown stage %q", st.Stage)}
	}
	return st, nil
}
