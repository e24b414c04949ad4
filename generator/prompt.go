package generator

import "strings"

// Role of a chat message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Prompt is what one completion call sends: a system instruction and the
// conversation so far.
type Prompt struct {
	System  string
	History []Message
}

// Message is one entry of the conversation history sent to the model.
type Message struct {
	Role    string
	Content string
}

// BuildSpecialistPrompt pairs a specialist instruction with the full history.
// Blank messages are dropped and unknown roles are sent as user turns.
func BuildSpecialistPrompt(system string, history []Message) Prompt {
	msgs := make([]Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := m.Role
		if role != RoleAssistant {
			role = RoleUser
		}
		msgs = append(msgs, Message{Role: role, Content: m.Content})
	}
	return Prompt{
		System:  strings.TrimSpace(system),
		History: msgs,
	}
}
