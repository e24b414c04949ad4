package workflow

import "strconv"

// ArtifactKind names a finished product handed to the artifact sink.
type ArtifactKind string

const (
	ArtifactAuthorProfile     ArtifactKind = "author_profile"
	ArtifactAudiencePersona   ArtifactKind = "audience_persona"
	ArtifactBookTitle         ArtifactKind = "book_title"
	ArtifactBookPlan          ArtifactKind = "book_plan"
	ArtifactChapterTranscript ArtifactKind = "chapter_transcript"
	ArtifactChapterDraft      ArtifactKind = "chapter_draft"
	ArtifactProjectStage      ArtifactKind = "project_stage"
)

// Artifact is keyed by ProjectID, which is the conversation id.
type Artifact struct {
	Kind      ArtifactKind      `json:"kind"`
	ProjectID string            `json:"project_id"`
	Stage     Stage             `json:"stage,omitempty"`
	Chapter   int               `json:"chapter,omitempty"`
	Title     string            `json:"title,omitempty"`
	Content   string            `json:"content,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// ArtifactSink receives artifacts after a turn is persisted. Publish must
// not block the turn and its failures never roll the turn back.
type ArtifactSink interface {
	Publish(a Artifact)
}

type discardSink struct{}

func (discardSink) Publish(Artifact) {}

// handoffArtifacts lists what a stage produced once it is left. s is the
// state after the hand-off.
func handoffArtifacts(from Stage, s State) []Artifact {
	var out []Artifact
	switch from {
	case StageProfiling:
		out = append(out, Artifact{
			Kind:  ArtifactAuthorProfile,
			Stage: from,
			Title: s.BookName,
			Fields: map[string]string{
				"book_name":   s.BookName,
				"author_name": s.AuthorName,
				"author_bio":  s.AuthorBio,
				"book_theme":  s.BookTheme,
			},
		})
	case StageAudience:
		out = append(out, Artifact{
			Kind:    ArtifactAudiencePersona,
			Stage:   from,
			Content: s.AudienceProfile,
			Fields:  map[string]string{"questions_asked": strconv.Itoa(s.AudienceQuestionsAsked)},
		})
	case StageTitle:
		out = append(out, Artifact{Kind: ArtifactBookTitle, Stage: from, Title: s.FinalTitle})
	case StagePlanning:
		out = append(out, Artifact{Kind: ArtifactBookPlan, Stage: from, Title: projectTitle(s), Content: s.BookPlan})
	}
	return append(out, Artifact{Kind: ArtifactProjectStage, Stage: s.Stage, Title: projectTitle(s)})
}

func projectTitle(s State) string {
	if s.FinalTitle != "" {
		return s.FinalTitle
	}
	return s.BookName
}
