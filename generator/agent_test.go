package generator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentReplySendsSystemAndFullHistory(t *testing.T) {
	llm := NewScriptedLLM("", "  What is your name?  ")
	agent, err := NewAgent(llm)
	require.NoError(t, err)

	history := []Message{
		{Role: RoleUser, Content: "My book is called Draft One"},
		{Role: RoleAssistant, Content: "Lovely title."},
		{Role: RoleUser, Content: "   "},
		{Role: "system", Content: "odd role"},
	}
	reply, err := agent.Reply(context.Background(), " You are the Biographer. ", history)
	require.NoError(t, err)
	assert.Equal(t, "What is your name?", reply)

	prompts := llm.Prompts()
	require.Len(t, prompts, 1)
	assert.Equal(t, "You are the Biographer.", prompts[0].System)
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "My book is called Draft One"},
		{Role: RoleAssistant, Content: "Lovely title."},
		{Role: RoleUser, Content: "odd role"},
	}, prompts[0].History)
}

func TestAgentReplyRejectsEmptyOutput(t *testing.T) {
	agent, err := NewAgent(NewScriptedLLM("", " \n "))
	require.NoError(t, err)

	_, err = agent.Reply(context.Background(), "sys", nil)
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestAgentReplyPropagatesClientError(t *testing.T) {
	llm := NewScriptedLLM("ok")
	boom := errors.New("upstream unavailable")
	llm.FailNext(boom)
	agent, err := NewAgent(llm)
	require.NoError(t, err)

	_, err = agent.Reply(context.Background(), "sys", nil)
	assert.ErrorIs(t, err, boom)

	reply, err := agent.Reply(context.Background(), "sys", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}

func TestAgentReplyStreamCollectsDeltas(t *testing.T) {
	agent, err := NewAgent(NewScriptedLLM("", "one two three"))
	require.NoError(t, err)

	var deltas []string
	reply, err := agent.ReplyStream(context.Background(), "sys", nil, func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	assert.Equal(t, "one two three", reply)
	assert.Equal(t, "one two three", strings.Join(deltas, ""))
	assert.Len(t, deltas, 3)
}

func TestAgentReplyStreamWithoutStreamer(t *testing.T) {
	agent, err := NewAgent(MockLLM{})
	require.NoError(t, err)

	var deltas []string
	reply, err := agent.ReplyStream(context.Background(), "Persona line\nmore", []Message{{Role: RoleUser, Content: "hi"}}, func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	require.Len(t, deltas, 1)
	assert.Equal(t, reply, deltas[0])
	assert.Contains(t, reply, "(Persona line)")
	assert.Contains(t, reply, `"hi"`)
}

func TestNewAgentRequiresClient(t *testing.T) {
	_, err := NewAgent(nil)
	assert.Error(t, err)
}

func TestLazyBuildsOnceUnderConcurrency(t *testing.T) {
	var builds atomic.Int32
	lazy, err := NewLazy(func(context.Context) (LLMClient, error) {
		builds.Add(1)
		return NewScriptedLLM("hello"), nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := lazy.Complete(context.Background(), Prompt{System: "s"})
			assert.NoError(t, err)
			assert.Equal(t, "hello", reply)
		}()
	}
	wg.Wait()

	// singleflight collapses concurrent builds; the cached client serves the rest.
	assert.Equal(t, int32(1), builds.Load())
}

func TestLazyRetriesFailedBuild(t *testing.T) {
	var attempts int
	lazy, err := NewLazy(func(context.Context) (LLMClient, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("no key yet")
		}
		return NewScriptedLLM("ready"), nil
	})
	require.NoError(t, err)

	_, err = lazy.Complete(context.Background(), Prompt{})
	require.Error(t, err)

	reply, err := lazy.Complete(context.Background(), Prompt{})
	require.NoError(t, err)
	assert.Equal(t, "ready", reply)
	assert.Equal(t, 2, attempts)
}

func TestScriptedLLMExhaustion(t *testing.T) {
	llm := NewScriptedLLM("", "only")
	_, err := llm.Complete(context.Background(), Prompt{})
	require.NoError(t, err)
	_, err = llm.Complete(context.Background(), Prompt{})
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Equal(t, 2, llm.Calls())
}

func TestScriptedLLMHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScriptedLLM("x").Complete(ctx, Prompt{})
	assert.ErrorIs(t, err, context.Canceled)
}
