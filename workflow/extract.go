package workflow

import (
	"strings"
	"unicode"
)

// Update is the partial result of an extractor. Nil fields are untouched.
type Update struct {
	BookName   *string
	AuthorName *string
	AuthorBio  *string
	BookTheme  *string

	AudienceProfile        *string
	AudienceQuestionsAsked *int

	WantsTitleSuggestions *bool
	FinalTitle            *string

	BookPlan *string

	CurrentChapter     *int
	ManuscriptComplete *bool

	// Artifacts carries side products that do not change the state.
	Artifacts []Artifact
}

// Empty reports whether u changes nothing.
func (u Update) Empty() bool {
	return u.BookName == nil && u.AuthorName == nil && u.AuthorBio == nil && u.BookTheme == nil &&
		u.AudienceProfile == nil && u.AudienceQuestionsAsked == nil &&
		u.WantsTitleSuggestions == nil && u.FinalTitle == nil && u.BookPlan == nil &&
		u.CurrentChapter == nil && u.ManuscriptComplete == nil && len(u.Artifacts) == 0
}

// ApplyTo merges u into s. Non-empty string fields, an answered title
// question and a finished manuscript are never overwritten; counters only
// move forward.
func (u Update) ApplyTo(s *State) {
	setOnce(&s.BookName, u.BookName)
	setOnce(&s.AuthorName, u.AuthorName)
	setOnce(&s.AuthorBio, u.AuthorBio)
	setOnce(&s.BookTheme, u.BookTheme)
	setOnce(&s.AudienceProfile, u.AudienceProfile)
	setOnce(&s.FinalTitle, u.FinalTitle)
	setOnce(&s.BookPlan, u.BookPlan)

	if u.AudienceQuestionsAsked != nil && *u.AudienceQuestionsAsked > s.AudienceQuestionsAsked {
		s.AudienceQuestionsAsked = *u.AudienceQuestionsAsked
	}
	if u.WantsTitleSuggestions != nil && s.WantsTitleSuggestions == nil {
		v := *u.WantsTitleSuggestions
		s.WantsTitleSuggestions = &v
	}
	if u.CurrentChapter != nil && *u.CurrentChapter > s.Chapter() {
		s.CurrentChapter = *u.CurrentChapter
	}
	if u.ManuscriptComplete != nil && *u.ManuscriptComplete {
		s.ManuscriptComplete = true
	}
}

func setOnce(dst *string, v *string) {
	if v == nil || *dst != "" {
		return
	}
	if t := strings.TrimSpace(*v); t != "" {
		*dst = t
	}
}

// Extractor derives field updates from the author's latest reply. It sees
// the state before the specialist answered.
type Extractor interface {
	Extract(s State, reply string) Update
}

// Prefiller derives fields that need no model call. It runs before the
// completion check.
type Prefiller interface {
	Prefill(s State) Update
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(s State, reply string) Update

func (f ExtractorFunc) Extract(s State, reply string) Update { return f(s, reply) }

// DefaultExtractors returns the built-in heuristics per stage.
func DefaultExtractors() map[Stage]Extractor {
	return map[Stage]Extractor{
		StageProfiling: ProfilingExtractor{BioMinWords: 5, ThemeMinWords: 3},
		StageAudience:  AudienceExtractor{MaxQuestions: 3, MinWords: 5, Window: 6},
		StageTitle:     TitleExtractor{},
		StagePlanning:  PlanningExtractor{MinPlanLength: 100},
		StageWriting:   WritingExtractor{TranscriptMinWords: 150, MinDraftLength: 100},
	}
}

// ProfilingExtractor fills profile fields in order: working title, author
// name, bio, theme. A reply is absorbed by the first unset field only, and
// only when it passes that field's threshold.
type ProfilingExtractor struct {
	// BioMinWords and ThemeMinWords are exclusive lower bounds.
	BioMinWords   int
	ThemeMinWords int
}

func (e ProfilingExtractor) Extract(s State, reply string) Update {
	text := strings.TrimSpace(reply)
	if text == "" {
		return Update{}
	}
	words := wordCount(text)
	switch {
	case s.BookName == "":
		return Update{BookName: &text}
	case s.AuthorName == "":
		return Update{AuthorName: &text}
	case s.AuthorBio == "":
		if words > e.BioMinWords {
			return Update{AuthorBio: &text}
		}
	case s.BookTheme == "":
		if words > e.ThemeMinWords {
			return Update{BookTheme: &text}
		}
	}
	return Update{}
}

// AudienceExtractor counts substantive replies. Once MaxQuestions are
// answered it joins the recent user messages into the audience profile.
type AudienceExtractor struct {
	MaxQuestions int
	// MinWords is an exclusive lower bound for a reply to count.
	MinWords int
	// Window is how many trailing messages feed the profile.
	Window int
}

func (e AudienceExtractor) Extract(s State, reply string) Update {
	if s.AudienceProfile != "" {
		return Update{}
	}
	var u Update
	asked := s.AudienceQuestionsAsked
	if asked < e.MaxQuestions && wordCount(reply) > e.MinWords {
		asked++
		u.AudienceQuestionsAsked = &asked
	}
	if asked >= e.MaxQuestions {
		profile := e.profile(s.Messages)
		if profile != "" {
			u.AudienceProfile = &profile
		}
	}
	return u
}

func (e AudienceExtractor) profile(msgs []Message) string {
	start := len(msgs) - e.Window
	if start < 0 || e.Window <= 0 {
		start = 0
	}
	var parts []string
	for _, m := range msgs[start:] {
		if m.Role != RoleUser {
			continue
		}
		if t := strings.TrimSpace(m.Content); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " | ")
}

var (
	declineWords   = []string{"no", "nope", "nah"}
	declinePhrases = []string{"no thanks"}
	acceptWords    = []string{"yes", "yeah", "yep", "sure", "ok", "okay"}
	acceptPhrases  = []string{"please", "suggest", "ideas", "options", "help"}
	selectPhrases  = []string{"option", "choose", "select", "pick", "like", "go with", "prefer"}
)

// keepPhrases decline only when the reply carries no accept vocabulary.
var keepPhrases = []string{"keep", "happy with", "stick with"}

// TitleExtractor settles the final title. It records whether the author
// wants suggestions; after a yes, a reply naming a choice becomes the final
// title verbatim. One field is set per reply.
type TitleExtractor struct{}

// Prefill keeps the working title when the author declined suggestions.
func (TitleExtractor) Prefill(s State) Update {
	if s.FinalTitle == "" && s.WantsTitleSuggestions != nil && !*s.WantsTitleSuggestions && s.BookName != "" {
		title := s.BookName
		return Update{FinalTitle: &title}
	}
	return Update{}
}

func (TitleExtractor) Extract(s State, reply string) Update {
	text := strings.TrimSpace(reply)
	if text == "" || s.FinalTitle != "" {
		return Update{}
	}
	lower := strings.ToLower(text)
	if s.WantsTitleSuggestions == nil {
		words := tokens(lower)
		accepts := hasAnyWord(words, acceptWords) || containsAny(lower, acceptPhrases)
		switch {
		case hasAnyWord(words, declineWords) || containsAny(lower, declinePhrases),
			!accepts && containsAny(lower, keepPhrases):
			no := false
			return Update{WantsTitleSuggestions: &no}
		case accepts:
			yes := true
			return Update{WantsTitleSuggestions: &yes}
		}
		return Update{}
	}
	if *s.WantsTitleSuggestions && (containsAny(lower, selectPhrases) || hasDigit(text)) {
		return Update{FinalTitle: &text}
	}
	return Update{}
}

// PlanningExtractor stores the latest substantial assistant message as the
// plan once the author approves it.
type PlanningExtractor struct {
	// MinPlanLength is an exclusive lower bound in characters.
	MinPlanLength int
}

var approvePlanPhrases = []string{"approve", "looks good", "yes"}

func (e PlanningExtractor) Extract(s State, reply string) Update {
	if s.BookPlan != "" || !containsAny(strings.ToLower(reply), approvePlanPhrases) {
		return Update{}
	}
	plan, ok := s.LastAssistantLongerThan(e.MinPlanLength)
	if !ok {
		return Update{}
	}
	return Update{BookPlan: &plan}
}

var (
	finishedPhrases    = []string{"complete", "finished"}
	nextChapterPhrases = []string{"next chapter"}
	approveDraftWords  = []string{"approve", "looks good", "save"}
)

// WritingExtractor recognizes a finished manuscript, chapter navigation,
// draft approval and pasted interview transcripts.
type WritingExtractor struct {
	TranscriptMinWords int
	// MinDraftLength is an exclusive lower bound in characters.
	MinDraftLength int
}

// Prefill marks the manuscript finished when the author says so, which ends
// the pipeline without another model call.
func (WritingExtractor) Prefill(s State) Update {
	reply, ok := s.FreshUserReply()
	if !ok || s.ManuscriptComplete || !containsAny(strings.ToLower(reply), finishedPhrases) {
		return Update{}
	}
	done := true
	return Update{ManuscriptComplete: &done}
}

func (e WritingExtractor) Extract(s State, reply string) Update {
	text := strings.TrimSpace(reply)
	lower := strings.ToLower(text)
	chapter := s.Chapter()
	switch {
	case containsAny(lower, nextChapterPhrases):
		next := chapter + 1
		return Update{CurrentChapter: &next}
	case containsAny(lower, approveDraftWords):
		draft, ok := s.LastAssistantLongerThan(e.MinDraftLength)
		if !ok {
			return Update{}
		}
		return Update{Artifacts: []Artifact{{
			Kind:    ArtifactChapterDraft,
			Stage:   StageWriting,
			Chapter: chapter,
			Content: draft,
		}}}
	case e.TranscriptMinWords > 0 && wordCount(text) >= e.TranscriptMinWords:
		return Update{Artifacts: []Artifact{{
			Kind:    ArtifactChapterTranscript,
			Stage:   StageWriting,
			Chapter: chapter,
			Content: text,
		}}}
	}
	return Update{}
}

func wordCount(s string) int { return len(strings.Fields(s)) }

func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func hasAnyWord(words []string, vocab []string) bool {
	for _, w := range words {
		for _, v := range vocab {
			if w == v {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
