package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"book_ghostwriter/checkpoint"
	"book_ghostwriter/generator"
	"book_ghostwriter/prompts"
	"book_ghostwriter/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type recordingSink struct {
	mu        sync.Mutex
	artifacts []workflow.Artifact
}

func (r *recordingSink) Publish(a workflow.Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = append(r.artifacts, a)
}

func (r *recordingSink) kinds() []workflow.ArtifactKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]workflow.ArtifactKind, 0, len(r.artifacts))
	for _, a := range r.artifacts {
		out = append(out, a.Kind)
	}
	return out
}

type harness struct {
	engine *workflow.Engine
	store  *checkpoint.MemoryStore
	llm    *generator.ScriptedLLM
	sink   *recordingSink
}

func newHarness(t *testing.T, opts ...workflow.EngineOption) *harness {
	t.Helper()
	return newScriptedHarness(t, generator.NewScriptedLLM("Tell me more."), nil, opts...)
}

func newScriptedHarness(t *testing.T, llm *generator.ScriptedLLM, runnerOpts []workflow.RunnerOption,
	opts ...workflow.EngineOption) *harness {
	t.Helper()
	agent, err := generator.NewAgent(llm)
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	runnerOpts = append([]workflow.RunnerOption{workflow.WithRunnerLogger(logger)}, runnerOpts...)
	runner, err := workflow.NewRunner(agent, prompts.NewResolver(prompts.NewMapStore(), logger), runnerOpts...)
	require.NoError(t, err)

	h := &harness{store: checkpoint.NewMemoryStore(), llm: llm, sink: &recordingSink{}}
	opts = append([]workflow.EngineOption{
		workflow.WithArtifactSink(h.sink),
		workflow.WithLogger(logger),
	}, opts...)
	h.engine, err = workflow.NewEngine(runner, h.store, opts...)
	require.NoError(t, err)
	return h
}

func (h *harness) say(t *testing.T, id, text string) workflow.TurnResult {
	t.Helper()
	res, err := h.engine.Turn(context.Background(), workflow.TurnRequest{
		ConversationID: id,
		Messages:       []workflow.Message{{Role: workflow.RoleUser, Content: text}},
	}, nil)
	require.NoError(t, err)
	return res
}

func (h *harness) seed(t *testing.T, id string, st workflow.State) {
	t.Helper()
	require.NoError(t, h.store.Save(context.Background(), id, st))
}

func (h *harness) state(t *testing.T, id string) workflow.State {
	t.Helper()
	st, err := h.store.Load(context.Background(), id)
	require.NoError(t, err)
	return st
}

func profiledState() workflow.State {
	st := workflow.NewState()
	st.BookName = "Draft One"
	st.AuthorName = "Ada"
	st.AuthorBio = "Ada has written software for forty years"
	st.BookTheme = "software is a craft"
	st.Messages = []workflow.Message{
		{Role: workflow.RoleUser, Content: "software is a craft"},
		{Role: workflow.RoleAssistant, Content: "Wonderful.", Agent: "Biographer"},
	}
	return st
}

func TestFirstMessageBecomesWorkingTitle(t *testing.T) {
	h := newHarness(t)
	res := h.say(t, "c1", "My book is called Draft One")

	st := h.state(t, "c1")
	assert.Equal(t, "My book is called Draft One", st.BookName)
	assert.Equal(t, workflow.StageProfiling, st.Stage)
	assert.Equal(t, "Biographer", st.ActiveAgent)

	require.Len(t, res.Messages, 1)
	assert.Equal(t, "Biographer", res.Messages[0].Agent)
	assert.Equal(t, "Tell me more.", res.Messages[0].Content)
	assert.Equal(t, 1, h.llm.Calls())
}

func TestFiveProfilingAnswersReachAudience(t *testing.T) {
	h := newHarness(t)
	answers := []string{
		"Draft One",
		"Ada Lovelace",
		"I have been writing software for forty years now",
		"the quiet craft of building software",
	}
	for _, a := range answers {
		h.say(t, "c", a)
	}
	st := h.state(t, "c")
	assert.Equal(t, answers[0], st.BookName)
	assert.Equal(t, answers[1], st.AuthorName)
	assert.Equal(t, answers[2], st.AuthorBio)
	assert.Equal(t, answers[3], st.BookTheme)
	assert.Equal(t, workflow.StageProfiling, st.Stage)
	assert.Equal(t, 4, h.llm.Calls())

	res := h.say(t, "c", "ready when you are")
	st = h.state(t, "c")
	assert.Equal(t, workflow.StageAudience, st.Stage)
	assert.Equal(t, "Empath", st.ActiveAgent)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "Empath", res.Messages[0].Agent)
	assert.Contains(t, res.Messages[0].Content, "Draft One")
	assert.Equal(t, 4, h.llm.Calls(), "hand-off makes no model call")

	assert.Equal(t, []workflow.ArtifactKind{workflow.ArtifactAuthorProfile, workflow.ArtifactProjectStage}, h.sink.kinds())
}

func TestCompleteProfileWithoutNewTextHandsOff(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "c", profiledState())

	res, err := h.engine.Turn(context.Background(), workflow.TurnRequest{
		ConversationID: "c",
		Messages:       []workflow.Message{},
	}, nil)
	require.NoError(t, err)

	st := h.state(t, "c")
	assert.Equal(t, workflow.StageAudience, st.Stage)
	assert.Equal(t, "Empath", st.ActiveAgent)
	require.Len(t, res.Messages, 1)
	assert.Len(t, st.Messages, 3)
	assert.Zero(t, h.llm.Calls())
	assert.Equal(t, "Draft One", st.BookName)
}

func TestStreamingHandOffOrder(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "c", profiledState())

	var events []workflow.Event
	_, err := h.engine.Turn(context.Background(), workflow.TurnRequest{
		ConversationID: "c",
		Messages:       []workflow.Message{{Role: workflow.RoleUser, Content: "go on"}},
	}, func(ev workflow.Event) { events = append(events, ev) })
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, workflow.EventTransition, events[0].Type)
	assert.Equal(t, "Biographer", events[0].From)
	assert.Equal(t, "Empath", events[0].To)
	assert.Equal(t, workflow.EventMessage, events[1].Type)
	assert.Equal(t, "Empath", events[1].Agent)
	assert.Equal(t, workflow.EventDone, events[2].Type)
	assert.Equal(t, "c", events[2].ConversationID)
}

func TestChainSuccessorRunsSuccessorOnce(t *testing.T) {
	h := newHarness(t, workflow.WithChainSuccessor(true))
	h.seed(t, "c", profiledState())

	var events []workflow.Event
	res, err := h.engine.Turn(context.Background(), workflow.TurnRequest{
		ConversationID: "c",
		Messages:       []workflow.Message{{Role: workflow.RoleUser, Content: "go on"}},
	}, func(ev workflow.Event) { events = append(events, ev) })
	require.NoError(t, err)

	require.Len(t, res.Messages, 2)
	assert.Equal(t, "Empath", res.Messages[0].Agent)
	assert.Equal(t, "Empath", res.Messages[1].Agent)
	assert.Equal(t, "Tell me more.", res.Messages[1].Content)
	assert.Equal(t, 1, h.llm.Calls())

	st := h.state(t, "c")
	assert.Zero(t, st.AudienceQuestionsAsked, "successor does not re-read the previous reply")

	var types []workflow.EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []workflow.EventType{
		workflow.EventTransition,
		workflow.EventMessage,
		workflow.EventDelta,
		workflow.EventDelta,
		workflow.EventDelta,
		workflow.EventMessage,
		workflow.EventDone,
	}, types)
}

func TestDeclinedTitleSuggestionsKeepWorkingTitle(t *testing.T) {
	h := newHarness(t)
	st := profiledState()
	st.Stage = workflow.StageTitle
	st.ActiveAgent = "Title Generator"
	st.BookName = "T"
	st.AudienceProfile = "engineers"
	st.AudienceQuestionsAsked = 3
	h.seed(t, "c", st)

	h.say(t, "c", "No, I'll keep my title")
	st = h.state(t, "c")
	require.NotNil(t, st.WantsTitleSuggestions)
	assert.False(t, *st.WantsTitleSuggestions)
	assert.Equal(t, workflow.StageTitle, st.Stage)
	calls := h.llm.Calls()

	res := h.say(t, "c", "ok")
	st = h.state(t, "c")
	assert.Equal(t, "T", st.FinalTitle)
	assert.Equal(t, workflow.StagePlanning, st.Stage)
	assert.Equal(t, "Planner", st.ActiveAgent)
	assert.Equal(t, calls, h.llm.Calls())
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "Planner", res.Messages[0].Agent)
}

func TestTitleSelectionAndPlanApprovalReachWriting(t *testing.T) {
	const plan = "## Chapter 1: Origins\n- Childhood in a small town\n\n" +
		"## Chapter 2: Work\n- Three startups and what each one taught me about people"
	llm := generator.NewScriptedLLM("Tell me more.",
		"Here are three ideas: 1. Draft One 2. Forty Years of Code 3. The Quiet Craft",
		"Great choice.",
		plan,
	)
	h := newScriptedHarness(t, llm, nil)
	st := profiledState()
	st.Stage = workflow.StageTitle
	st.ActiveAgent = "Title Generator"
	st.AudienceProfile = "engineers"
	st.AudienceQuestionsAsked = 3
	h.seed(t, "c", st)

	h.say(t, "c", "Yes please, suggest some titles")
	st = h.state(t, "c")
	require.NotNil(t, st.WantsTitleSuggestions)
	assert.True(t, *st.WantsTitleSuggestions)
	assert.Empty(t, st.FinalTitle)

	h.say(t, "c", "I like option 2: Forty Years of Code")
	st = h.state(t, "c")
	assert.Equal(t, "I like option 2: Forty Years of Code", st.FinalTitle)
	assert.Equal(t, workflow.StageTitle, st.Stage)

	calls := h.llm.Calls()
	res := h.say(t, "c", "great")
	assert.Equal(t, workflow.StagePlanning, res.Stage)
	assert.Equal(t, "Planner", res.ActiveAgent)
	assert.Equal(t, calls, h.llm.Calls())

	res = h.say(t, "c", "Please outline the chapters")
	require.Len(t, res.Messages, 1)
	assert.Equal(t, plan, res.Messages[0].Content)
	assert.Empty(t, h.state(t, "c").BookPlan)

	h.say(t, "c", "Looks good, I approve")
	st = h.state(t, "c")
	assert.Equal(t, plan, st.BookPlan)
	assert.Equal(t, workflow.StagePlanning, st.Stage)

	res = h.say(t, "c", "let's start writing")
	assert.Equal(t, workflow.StageWriting, res.Stage)
	assert.Equal(t, "Writer", res.ActiveAgent)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "Writer", res.Messages[0].Agent)

	assert.Equal(t, []workflow.ArtifactKind{
		workflow.ArtifactBookTitle, workflow.ArtifactProjectStage,
		workflow.ArtifactBookPlan, workflow.ArtifactProjectStage,
	}, h.sink.kinds())
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	assert.Equal(t, "I like option 2: Forty Years of Code", h.sink.artifacts[0].Title)
	assert.Equal(t, workflow.StagePlanning, h.sink.artifacts[1].Stage)
	assert.Equal(t, plan, h.sink.artifacts[2].Content)
	assert.Equal(t, workflow.StageWriting, h.sink.artifacts[3].Stage)
	for _, a := range h.sink.artifacts {
		assert.Equal(t, "c", a.ProjectID)
	}
}

func TestCustomExtractorDrivesStage(t *testing.T) {
	var seen []string
	audience := workflow.ExtractorFunc(func(s workflow.State, reply string) workflow.Update {
		seen = append(seen, reply)
		if !strings.HasPrefix(reply, "readers:") {
			return workflow.Update{}
		}
		profile := strings.TrimSpace(strings.TrimPrefix(reply, "readers:"))
		return workflow.Update{AudienceProfile: &profile}
	})
	h := newScriptedHarness(t, generator.NewScriptedLLM("Tell me more."),
		[]workflow.RunnerOption{workflow.WithExtractor(workflow.StageAudience, audience)})
	st := profiledState()
	st.Stage = workflow.StageAudience
	st.ActiveAgent = "Empath"
	h.seed(t, "c", st)

	h.say(t, "c", "hm")
	assert.Empty(t, h.state(t, "c").AudienceProfile)

	h.say(t, "c", "readers: first-time founders")
	st = h.state(t, "c")
	assert.Equal(t, "first-time founders", st.AudienceProfile)
	assert.Zero(t, st.AudienceQuestionsAsked, "built-in counting is replaced")

	res := h.say(t, "c", "what next?")
	assert.Equal(t, workflow.StageTitle, res.Stage)
	assert.Equal(t, []string{"hm", "readers: first-time founders"}, seen)
}

func TestAudienceNeverExceedsThreeQuestions(t *testing.T) {
	h := newHarness(t)
	st := profiledState()
	st.Stage = workflow.StageAudience
	st.ActiveAgent = "Empath"
	h.seed(t, "c", st)

	long := "my readers are engineers who want to write books"
	for i := 0; i < 3; i++ {
		h.say(t, "c", fmt.Sprintf("%s %d", long, i))
		st = h.state(t, "c")
		assert.LessOrEqual(t, st.AudienceQuestionsAsked, 3)
		assert.Equal(t, st.AudienceQuestionsAsked == 3, st.AudienceProfile != "")
	}
	assert.Equal(t, 3, st.AudienceQuestionsAsked)

	h.say(t, "c", long)
	st = h.state(t, "c")
	assert.Equal(t, workflow.StageTitle, st.Stage)
	assert.Equal(t, 3, st.AudienceQuestionsAsked)
}

func TestCompleteStageIsTerminal(t *testing.T) {
	h := newHarness(t)
	st := profiledState()
	st.Stage = workflow.StageWriting
	st.ActiveAgent = "Writer"
	h.seed(t, "c", st)

	res := h.say(t, "c", "The manuscript is finished")
	st = h.state(t, "c")
	assert.Equal(t, workflow.StageComplete, st.Stage)
	assert.Equal(t, "Writer", st.ActiveAgent)
	assert.True(t, st.ManuscriptComplete)
	require.Len(t, res.Messages, 1)
	assert.Zero(t, h.llm.Calls())

	for i := 0; i < 2; i++ {
		res = h.say(t, "c", "anything else?")
		assert.Empty(t, res.Messages)
		assert.Equal(t, workflow.StageComplete, h.state(t, "c").Stage)
	}
	assert.Zero(t, h.llm.Calls())
}

func TestCompletionFailureDoesNotPersist(t *testing.T) {
	h := newHarness(t)
	h.say(t, "c", "Draft One")
	before, ok := h.store.Raw("c")
	require.True(t, ok)

	h.llm.FailNext(errors.New("upstream 503"))
	var events []workflow.Event
	_, err := h.engine.Turn(context.Background(), workflow.TurnRequest{
		ConversationID: "c",
		Messages:       []workflow.Message{{Role: workflow.RoleUser, Content: "Ada"}},
	}, func(ev workflow.Event) { events = append(events, ev) })

	var cerr *workflow.CompletionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "Biographer", cerr.Agent)
	require.NotEmpty(t, events)
	assert.Equal(t, workflow.EventError, events[len(events)-1].Type)

	after, _ := h.store.Raw("c")
	assert.Equal(t, string(before), string(after))

	h.say(t, "c", "Ada")
	assert.Equal(t, "Ada", h.state(t, "c").AuthorName)
}

func TestCorruptedStateIsReported(t *testing.T) {
	h := newHarness(t)
	h.store.PutRaw("c", []byte("{broken"))

	_, err := h.engine.Turn(context.Background(), workflow.TurnRequest{
		ConversationID: "c",
		Messages:       []workflow.Message{{Role: workflow.RoleUser, Content: "hi"}},
	}, nil)
	var corrupt *workflow.StateCorruptionError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, "c", corrupt.ConversationID)
	assert.Zero(t, h.llm.Calls())

	raw, _ := h.store.Raw("c")
	assert.Equal(t, "{broken", string(raw))
}

func TestInvalidInputIsRejected(t *testing.T) {
	h := newHarness(t)
	cases := map[string]workflow.TurnRequest{
		"missing messages": {ConversationID: "c"},
		"unknown role":     {Messages: []workflow.Message{{Role: "system", Content: "x"}}},
		"empty content":    {Messages: []workflow.Message{{Role: workflow.RoleUser, Content: "  "}}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.engine.Turn(context.Background(), req, nil)
			assert.ErrorIs(t, err, workflow.ErrInvalidInput)
		})
	}
	assert.Zero(t, h.llm.Calls())
	assert.Empty(t, h.store.IDs())
}

func TestPersistThenResumeIsByteIdentical(t *testing.T) {
	h := newHarness(t)
	h.say(t, "c", "Draft One")
	h.say(t, "c", "Ada")

	raw, ok := h.store.Raw("c")
	require.True(t, ok)
	st, err := h.engine.Resume(context.Background(), "c")
	require.NoError(t, err)
	again, err := workflow.EncodeState(st)
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(again))
}

func TestResumeUnknownIsFresh(t *testing.T) {
	h := newHarness(t)
	st, err := h.engine.Resume(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, workflow.StageProfiling, st.Stage)
	assert.Equal(t, "Biographer", st.ActiveAgent)

	_, err = h.engine.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, workflow.ErrCheckpointNotFound)
}

func TestInboundHistoryIsMerged(t *testing.T) {
	h := newHarness(t)
	first := h.say(t, "c", "Draft One")

	// the client echoes the whole history plus its new message
	_, err := h.engine.Turn(context.Background(), workflow.TurnRequest{
		ConversationID: "c",
		Messages: []workflow.Message{
			{Role: workflow.RoleUser, Content: "Draft One"},
			first.Messages[0],
			{Role: workflow.RoleUser, Content: "Ada"},
		},
	}, nil)
	require.NoError(t, err)

	st := h.state(t, "c")
	require.Len(t, st.Messages, 4)
	assert.Equal(t, "Ada", st.Messages[2].Content)
	assert.Equal(t, "Ada", st.AuthorName)
}

func TestNewConversationGetsID(t *testing.T) {
	h := newHarness(t)
	res, err := h.engine.Turn(context.Background(), workflow.TurnRequest{
		Messages: []workflow.Message{{Role: workflow.RoleUser, Content: "Draft One"}},
	}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.ConversationID)
	assert.Equal(t, "Draft One", h.state(t, res.ConversationID).BookName)
}

func TestCancelledTurnDoesNotPersist(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.Turn(ctx, workflow.TurnRequest{
		ConversationID: "c",
		Messages:       []workflow.Message{{Role: workflow.RoleUser, Content: "Draft One"}},
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	_, ok := h.store.Raw("c")
	assert.False(t, ok)
}

func TestTurnsOnOneConversationAreSerialized(t *testing.T) {
	h := newHarness(t)
	const n = 6
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.engine.Turn(context.Background(), workflow.TurnRequest{
				ConversationID: "shared",
				Messages:       []workflow.Message{{Role: workflow.RoleUser, Content: fmt.Sprintf("answer %d", i)}},
			}, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st := h.state(t, "shared")
	assert.Len(t, st.Messages, 2*n)
	assert.Equal(t, n, h.llm.Calls())
}

func TestDistinctConversationsRunIndependently(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.engine.Turn(context.Background(), workflow.TurnRequest{
				ConversationID: fmt.Sprintf("c%d", i),
				Messages:       []workflow.Message{{Role: workflow.RoleUser, Content: "Draft One"}},
			}, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Len(t, h.store.IDs(), 4)
}

func TestWritingArtifacts(t *testing.T) {
	h := newHarness(t)
	st := profiledState()
	st.Stage = workflow.StageWriting
	st.ActiveAgent = "Writer"
	st.Messages = append(st.Messages, workflow.Message{
		Role:    workflow.RoleAssistant,
		Agent:   "Writer",
		Content: "Chapter one opens on a rainy morning in a town that never had a bookshop, and it stays there for a while.",
	})
	h.seed(t, "c", st)

	h.say(t, "c", "Looks good, save it")
	h.say(t, "c", "on to the next chapter")

	assert.Equal(t, 2, h.state(t, "c").Chapter())
	assert.Equal(t, []workflow.ArtifactKind{workflow.ArtifactChapterDraft}, h.sink.kinds())
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	assert.Equal(t, "c", h.sink.artifacts[0].ProjectID)
	assert.Equal(t, 1, h.sink.artifacts[0].Chapter)
}
