package workflow

import (
	"fmt"
	"strings"

	"book_ghostwriter/prompts"
)

// Specialist identifies the persona that owns a stage.
type Specialist struct {
	// Key looks up the system prompt in a prompts.Source.
	Key string
	// Agent is the display name attached to messages and events.
	Agent string
}

// Transition is one row of the stage table.
type Transition struct {
	Specialist Specialist
	Next       Stage
	// IsComplete reports whether the stage has collected everything it needs.
	IsComplete func(State) bool
	// Handoff builds the message the successor introduces itself with.
	Handoff func(State) string
}

var (
	biographer     = Specialist{Key: prompts.Biographer, Agent: "Biographer"}
	empath         = Specialist{Key: prompts.Empath, Agent: "Empath"}
	titleGenerator = Specialist{Key: prompts.TitleGenerator, Agent: "Title Generator"}
	planner        = Specialist{Key: prompts.Planner, Agent: "Planner"}
	writer         = Specialist{Key: prompts.Writer, Agent: "Writer"}
)

// Transitions is the fixed pipeline. The complete stage has no row.
var Transitions = map[Stage]Transition{
	StageProfiling: {
		Specialist: biographer,
		Next:       StageAudience,
		IsComplete: func(s State) bool {
			return s.BookName != "" && s.AuthorName != "" && s.AuthorBio != "" && s.BookTheme != ""
		},
		Handoff: func(s State) string {
			return fmt.Sprintf("Perfect! Here's what I have:\n"+
				"- Book: **%s**\n- Author: **%s**\n- Bio: %s\n- Theme: %s\n\n"+
				"Let me connect you with our **Empath**, who will help define your target audience.",
				s.BookName, s.AuthorName, s.AuthorBio, s.BookTheme)
		},
	},
	StageAudience: {
		Specialist: empath,
		Next:       StageTitle,
		IsComplete: func(s State) bool { return s.AudienceProfile != "" },
		Handoff: func(s State) string {
			return fmt.Sprintf("Here's your audience profile:\n\n%s\n\n"+
				"Let me bring in our **Title Generator** to settle on your title.", s.AudienceProfile)
		},
	},
	StageTitle: {
		Specialist: titleGenerator,
		Next:       StagePlanning,
		IsComplete: func(s State) bool { return s.FinalTitle != "" },
		Handoff: func(s State) string {
			return fmt.Sprintf("Your book title: **%s**\n\n"+
				"Let me bring in our **Planner** to structure your book's content.", s.FinalTitle)
		},
	},
	StagePlanning: {
		Specialist: planner,
		Next:       StageWriting,
		IsComplete: func(s State) bool { return s.BookPlan != "" },
		Handoff: func(State) string {
			return "Your book plan is finalized.\n\n" +
				"Let me bring in our **Writer** to start creating content for your chapters."
		},
	},
	StageWriting: {
		Specialist: writer,
		Next:       StageComplete,
		IsComplete: func(s State) bool { return s.ManuscriptComplete },
		Handoff: func(s State) string {
			title := s.FinalTitle
			if title == "" {
				title = s.BookName
			}
			return fmt.Sprintf("Congratulations, **%s** is complete!", title)
		},
	},
}

// SpecialistFor returns the persona that owns stage. The terminal stage
// keeps the Writer.
func SpecialistFor(stage Stage) Specialist {
	if t, ok := Transitions[stage]; ok {
		return t.Specialist
	}
	if stage == StageComplete {
		return writer
	}
	return biographer
}

// Pipeline lists the stages in order.
func Pipeline() []Stage {
	return []Stage{StageProfiling, StageAudience, StageTitle, StagePlanning, StageWriting, StageComplete}
}

// ParseStage accepts a stage id in any case.
func ParseStage(v string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("workflow: unknown stage %q", v)
	}
	return s, nil
}
