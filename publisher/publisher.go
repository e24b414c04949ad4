// Package publisher writes finished workflow artifacts to the project
// repository in the background.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"book_ghostwriter/generator"
	"book_ghostwriter/storage"
	"book_ghostwriter/workflow"
)

// Repository is the subset of storage.ArtifactRepository the publisher
// writes to.
type Repository interface {
	EnsureProject(ctx context.Context, id, title string) error
	UpdateStage(ctx context.Context, id, stage, title string) error
	SaveAuthorProfile(ctx context.Context, projectID, title string, fields map[string]string) error
	SaveAudiencePersona(ctx context.Context, projectID, persona string, questions int) error
	SavePlannedChapters(ctx context.Context, projectID string, chapters []storage.Chapter) error
	Chapter(ctx context.Context, projectID string, number int) (storage.Chapter, error)
	SaveTranscript(ctx context.Context, projectID string, number int, transcript, gapReport string) error
	SaveDraft(ctx context.Context, projectID string, number int, title, markdown, html string) error
}

// Publisher stores artifacts asynchronously. Publish only enqueues; workers
// write to the repository.
// It implements workflow.ArtifactSink.
type Publisher struct {
	repo    Repository
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	queues  []chan workflow.Artifact
	pending sync.WaitGroup
	workers *errgroup.Group
}

type Option func(*Publisher)

func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTimeout bounds the handling of one artifact.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// New starts workers, each draining its own queue of size buffer. All
// artifacts of one project go to the same worker, so they are handled in
// publish order.
func New(repo Repository, workers, buffer int, opts ...Option) (*Publisher, error) {
	if repo == nil {
		return nil, errors.New("publisher: repository is required")
	}
	if workers <= 0 {
		workers = 2
	}
	if buffer <= 0 {
		buffer = 64
	}
	p := &Publisher{
		repo:    repo,
		logger:  zap.NewNop(),
		timeout: 30 * time.Second,
		queues:  make([]chan workflow.Artifact, workers),
		workers: &errgroup.Group{},
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := range p.queues {
		q := make(chan workflow.Artifact, buffer)
		p.queues[i] = q
		p.workers.Go(func() error { return p.work(q) })
	}
	return p, nil
}

// Publish enqueues a for background handling. It never blocks: when the
// queue is full or the publisher is closed the artifact is dropped and
// logged.
func (p *Publisher) Publish(a workflow.Artifact) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("publisher closed, artifact dropped", zap.String("kind", string(a.Kind)), zap.String("project_id", a.ProjectID))
		return
	}
	p.pending.Add(1)
	select {
	case p.queueFor(a.ProjectID) <- a:
	default:
		p.pending.Done()
		p.logger.Warn("publish queue full, artifact dropped", zap.String("kind", string(a.Kind)), zap.String("project_id", a.ProjectID))
	}
}

// Wait blocks until every enqueued artifact has been handled.
func (p *Publisher) Wait() {
	p.pending.Wait()
}

// Close stops accepting artifacts, drains the queue and stops the workers.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()
	return p.workers.Wait()
}

func (p *Publisher) queueFor(projectID string) chan workflow.Artifact {
	h := fnv.New32a()
	_, _ = h.Write([]byte(projectID))
	return p.queues[h.Sum32()%uint32(len(p.queues))]
}

func (p *Publisher) work(queue <-chan workflow.Artifact) error {
	for a := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.Handle(ctx, a); err != nil {
			p.logger.Error("publish artifact failed",
				zap.String("kind", string(a.Kind)),
				zap.String("project_id", a.ProjectID),
				zap.Error(err))
		}
		cancel()
		p.pending.Done()
	}
	return nil
}

// Handle writes a synchronously.
func (p *Publisher) Handle(ctx context.Context, a workflow.Artifact) error {
	if a.ProjectID == "" {
		return errors.New("publisher: artifact without project id")
	}
	log := p.logger.With(zap.String("kind", string(a.Kind)), zap.String("project_id", a.ProjectID))

	switch a.Kind {
	case workflow.ArtifactAuthorProfile:
		return p.repo.SaveAuthorProfile(ctx, a.ProjectID, a.Title, a.Fields)

	case workflow.ArtifactAudiencePersona:
		questions, _ := strconv.Atoi(a.Fields["questions_asked"])
		return p.repo.SaveAudiencePersona(ctx, a.ProjectID, a.Content, questions)

	case workflow.ArtifactBookTitle:
		return p.repo.EnsureProject(ctx, a.ProjectID, a.Title)

	case workflow.ArtifactBookPlan:
		chapters, err := ParseChapterPlan(a.Content)
		if err != nil {
			return err
		}
		if len(chapters) == 0 {
			log.Warn("book plan has no recognizable chapters")
			return nil
		}
		log.Info("chapters planned", zap.Int("chapters", len(chapters)))
		return p.repo.SavePlannedChapters(ctx, a.ProjectID, chapters)

	case workflow.ArtifactChapterTranscript:
		var topics []string
		ch, err := p.repo.Chapter(ctx, a.ProjectID, a.Chapter)
		switch {
		case err == nil:
			topics = ch.KeyTopics
		case errors.Is(err, storage.ErrNotFound):
		default:
			return err
		}
		report := AnalyzeGaps(topics, a.Content)
		data, err := json.Marshal(report)
		if err != nil {
			return err
		}
		log.Info("transcript analyzed", zap.Int("chapter", a.Chapter), zap.Strings("missing_topics", report.MissingTopics))
		return p.repo.SaveTranscript(ctx, a.ProjectID, a.Chapter, a.Content, string(data))

	case workflow.ArtifactChapterDraft:
		html, err := RenderHTML(a.Content)
		if err != nil {
			return err
		}
		title := generator.ExtractTitle(a.Content)
		log.Info("chapter drafted", zap.Int("chapter", a.Chapter), zap.String("title", title),
			zap.String("digest", generator.Digest(a.Content, 80)))
		return p.repo.SaveDraft(ctx, a.ProjectID, a.Chapter, title, a.Content, html)

	case workflow.ArtifactProjectStage:
		return p.repo.UpdateStage(ctx, a.ProjectID, string(a.Stage), a.Title)
	}
	return fmt.Errorf("publisher: unknown artifact kind %q", a.Kind)
}
