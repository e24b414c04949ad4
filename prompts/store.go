// Package prompts holds the specialist prompt store: named system
// instructions for each specialist, replaceable while the process runs.
package prompts

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// Specialist keys, shared by every Source.
const (
	Biographer     = "biographer"
	Empath         = "empath"
	TitleGenerator = "title_generator"
	Planner        = "planner"
	Writer         = "writer"
)

// ErrNotFound is returned by a Source that has no entry for a specialist.
var ErrNotFound = errors.New("prompts: specialist not found")

// Specialist is the prompt configuration of one specialist.
type Specialist struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Prompt      string `yaml:"prompt" json:"prompt"`
	Version     int    `yaml:"version,omitempty" json:"version,omitempty"`
}

// Source looks up a specialist prompt by key.
type Source interface {
	Get(ctx context.Context, name string) (Specialist, error)
}

// Key normalizes a specialist name for lookups.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// MapStore is an in-memory Source. Set and Replace take effect for the next
// lookup, which is how hot updates reach the running state machine.
type MapStore struct {
	mu    sync.RWMutex
	items map[string]Specialist
}

func NewMapStore(items ...Specialist) *MapStore {
	s := &MapStore{items: make(map[string]Specialist, len(items))}
	for _, it := range items {
		s.items[Key(it.Name)] = it
	}
	return s
}

func (s *MapStore) Get(_ context.Context, name string) (Specialist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.items[Key(name)]
	if !ok {
		return Specialist{}, ErrNotFound
	}
	return sp, nil
}

// Set adds or replaces one specialist.
func (s *MapStore) Set(sp Specialist) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp.Name = Key(sp.Name)
	s.items[sp.Name] = sp
}

// Replace swaps the whole content atomically.
func (s *MapStore) Replace(items []Specialist) {
	next := make(map[string]Specialist, len(items))
	for _, it := range items {
		it.Name = Key(it.Name)
		next[it.Name] = it
	}
	s.mu.Lock()
	s.items = next
	s.mu.Unlock()
}

// List returns all entries sorted by name.
func (s *MapStore) List() []Specialist {
	s.mu.RLock()
	out := make([]Specialist, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Chain queries sources in order and returns the first entry found.
func Chain(sources ...Source) Source {
	return chain(sources)
}

type chain []Source

func (c chain) Get(ctx context.Context, name string) (Specialist, error) {
	var firstErr error
	for _, src := range c {
		if src == nil {
			continue
		}
		sp, err := src.Get(ctx, name)
		if err == nil && strings.TrimSpace(sp.Prompt) != "" {
			return sp, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return Specialist{}, firstErr
	}
	return Specialist{}, ErrNotFound
}
