package generator

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Lazy defers construction of the underlying client until the first call.
// Concurrent first callers share one build; a failed build is not cached so a
// later turn can retry.
type Lazy struct {
	build func(ctx context.Context) (LLMClient, error)

	mu     sync.RWMutex
	client LLMClient
	group  singleflight.Group
}

func NewLazy(build func(ctx context.Context) (LLMClient, error)) (*Lazy, error) {
	if build == nil {
		return nil, errors.New("llm builder is required")
	}
	return &Lazy{build: build}, nil
}

func (l *Lazy) get(ctx context.Context) (LLMClient, error) {
	l.mu.RLock()
	c := l.client
	l.mu.RUnlock()
	if c != nil {
		return c, nil
	}
	v, err, _ := l.group.Do("client", func() (any, error) {
		l.mu.RLock()
		existing := l.client
		l.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}
		built, err := l.build(ctx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.client == nil {
			l.client = built
		}
		return l.client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(LLMClient), nil
}

func (l *Lazy) Complete(ctx context.Context, prompt Prompt) (string, error) {
	c, err := l.get(ctx)
	if err != nil {
		return "", err
	}
	return c.Complete(ctx, prompt)
}

func (l *Lazy) Stream(ctx context.Context, prompt Prompt, onDelta func(string)) (string, error) {
	c, err := l.get(ctx)
	if err != nil {
		return "", err
	}
	return streamOrComplete(ctx, c, prompt, onDelta)
}

func streamOrComplete(ctx context.Context, c LLMClient, prompt Prompt, onDelta func(string)) (string, error) {
	if s, ok := c.(Streamer); ok {
		return s.Stream(ctx, prompt, onDelta)
	}
	reply, err := c.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if onDelta != nil && reply != "" {
		onDelta(reply)
	}
	return reply, nil
}
