package workflow

// EventType tags a streaming event.
type EventType string

const (
	EventTransition EventType = "transition"
	EventMessage    EventType = "message"
	// EventDelta carries a chunk of a reply while the model is still
	// generating it.
	EventDelta EventType = "delta"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one item of the turn's event stream, delivered in FIFO order.
// The JSON form is what streaming clients receive.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"thread_id,omitempty"`
	From           string    `json:"from_agent,omitempty"`
	To             string    `json:"to_agent,omitempty"`
	Role           Role      `json:"role,omitempty"`
	Content        string    `json:"content,omitempty"`
	Agent          string    `json:"agent,omitempty"`
	// Message is the failure description of an error event.
	Message string `json:"error,omitempty"`
}

// EventSink receives events synchronously on the turn's goroutine.
type EventSink func(Event)

func (s EventSink) emit(ev Event) {
	if s != nil {
		s(ev)
	}
}

// forConversation stamps id on every event. A nil sink stays nil.
func (s EventSink) forConversation(id string) EventSink {
	if s == nil {
		return nil
	}
	return func(ev Event) {
		ev.ConversationID = id
		s(ev)
	}
}

func transitionEvent(from, to string) Event {
	if from == "" {
		from = "none"
	}
	return Event{Type: EventTransition, From: from, To: to}
}

func messageEvent(m Message) Event {
	return Event{Type: EventMessage, Role: m.Role, Content: m.Content, Agent: m.Agent}
}
