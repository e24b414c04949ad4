package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a malformed inbound request.
	ErrInvalidInput = errors.New("workflow: invalid input")
	// ErrCheckpointNotFound is returned by a Checkpointer that holds no
	// state for the conversation.
	ErrCheckpointNotFound = errors.New("workflow: checkpoint not found")
)

// StateCorruptionError reports a stored state that cannot be decoded. It is
// surfaced to the caller rather than silently replaced by a fresh state.
type StateCorruptionError struct {
	ConversationID string
	Err            error
}

func (e *StateCorruptionError) Error() string {
	return fmt.Sprintf("workflow: state of conversation %q is corrupted: %v", e.ConversationID, e.Err)
}

func (e *StateCorruptionError) Unwrap() error { return e.Err }

// CompletionError wraps an upstream model failure.
type CompletionError struct {
	Agent string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("workflow: %s completion failed: %v", e.Agent, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
