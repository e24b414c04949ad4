package workflow

import "strings"

// TurnRequest is the inbound payload of one turn: the client's ordered chat
// history and an optional conversation id.
type TurnRequest struct {
	ConversationID string    `json:"thread_id,omitempty"`
	Messages       []Message `json:"messages"`
}

// TurnResult carries the assistant messages created during the turn.
type TurnResult struct {
	ConversationID string    `json:"thread_id"`
	Messages       []Message `json:"messages"`
	Stage          Stage     `json:"stage"`
	ActiveAgent    string    `json:"active_agent"`
	// ModelCalls counts completion calls made during the turn.
	ModelCalls int `json:"-"`
}

// Validate rejects payloads before any node runs.
func (r TurnRequest) Validate() error {
	if r.Messages == nil {
		return invalidInput("messages is required")
	}
	if len(r.ConversationID) > 128 {
		return invalidInput("thread_id is too long")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleUser, RoleAssistant:
		default:
			return invalidInput("messages[%d]: unknown role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return invalidInput("messages[%d]: content is empty", i)
		}
	}
	return nil
}

// inbound returns the messages of r that are new to st. A conversation
// without stored state takes the whole history; otherwise only the user
// messages after the client's last assistant message are new.
func (r TurnRequest) inbound(fresh bool) []Message {
	if fresh {
		out := make([]Message, len(r.Messages))
		copy(out, r.Messages)
		return out
	}
	start := 0
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleAssistant {
			start = i + 1
			break
		}
	}
	out := make([]Message, 0, len(r.Messages)-start)
	for _, m := range r.Messages[start:] {
		out = append(out, Message{Role: RoleUser, Content: m.Content})
	}
	return out
}
