// Package workflow is the stage-transition state machine that moves a book
// project through profiling, audience, title, planning and writing.
//
// One ConversationState is threaded through every turn. The Engine resumes it
// from a Checkpointer, routes it to the node for its stage, runs that node
// (and at most one successor after a hand-off) and persists the result.
package workflow

import (
	"slices"
	"strings"
)

// Stage is a position in the pipeline.
type Stage string

const (
	StageProfiling Stage = "profiling"
	StageAudience  Stage = "audience"
	StageTitle     Stage = "title"
	StagePlanning  Stage = "planning"
	StageWriting   Stage = "writing"
	StageComplete  Stage = "complete"
)

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	return slices.Contains(Pipeline(), s)
}

// Role tags a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation log. Agent names the specialist
// that produced an assistant message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Agent   string `json:"agent,omitempty"`
}

// State is the conversation state persisted between turns. Collected fields
// are write-once: an Update never overwrites a non-empty value.
type State struct {
	ActiveAgent string `json:"active_agent"`
	Stage       Stage  `json:"stage"`

	BookName   string `json:"book_name,omitempty"`
	AuthorName string `json:"author_name,omitempty"`
	AuthorBio  string `json:"author_bio,omitempty"`
	BookTheme  string `json:"book_theme,omitempty"`

	AudienceProfile        string `json:"audience_profile,omitempty"`
	AudienceQuestionsAsked int    `json:"audience_questions_asked"`

	// nil means the author has not answered yet.
	WantsTitleSuggestions *bool  `json:"wants_title_suggestions,omitempty"`
	FinalTitle            string `json:"final_title,omitempty"`

	BookPlan string `json:"book_plan,omitempty"`

	CurrentChapter     int  `json:"current_chapter,omitempty"`
	ManuscriptComplete bool `json:"manuscript_complete,omitempty"`

	Messages []Message `json:"messages"`
}

// NewState returns the state of a conversation nobody has spoken in yet.
func NewState() State {
	return State{
		ActiveAgent: SpecialistFor(StageProfiling).Agent,
		Stage:       StageProfiling,
		Messages:    []Message{},
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		copy(out.Messages, s.Messages)
	}
	if s.WantsTitleSuggestions != nil {
		v := *s.WantsTitleSuggestions
		out.WantsTitleSuggestions = &v
	}
	return out
}

// Chapter returns the chapter the Writer is working on, starting at 1.
func (s State) Chapter() int {
	if s.CurrentChapter < 1 {
		return 1
	}
	return s.CurrentChapter
}

// LastUserMessage returns the content of the most recent user message.
func (s State) LastUserMessage() (string, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content, true
		}
	}
	return "", false
}

// FreshUserReply returns the latest user message only when the user has
// spoken since the last assistant message. Extraction runs on fresh replies
// only, so a turn without new user text cannot fill a field twice.
func (s State) FreshUserReply() (string, bool) {
	if len(s.Messages) == 0 {
		return "", false
	}
	last := s.Messages[len(s.Messages)-1]
	if last.Role != RoleUser || strings.TrimSpace(last.Content) == "" {
		return "", false
	}
	return last.Content, true
}

// LastAssistantLongerThan returns the most recent assistant message whose
// content exceeds n characters.
func (s State) LastAssistantLongerThan(n int) (string, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == RoleAssistant && len([]rune(m.Content)) > n {
			return m.Content, true
		}
	}
	return "", false
}
