package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"book_ghostwriter/checkpoint"
	"book_ghostwriter/config"
	"book_ghostwriter/generator"
	"book_ghostwriter/prompts"
	"book_ghostwriter/publisher"
	"book_ghostwriter/storage"
	"book_ghostwriter/workflow"
)

// app holds everything built at the composition root.
type app struct {
	db          *storage.DB
	checkpoints workflow.Checkpointer
	promptRepo  *storage.PromptRepository
	artifacts   *storage.ArtifactRepository
	promptFile  *prompts.FileStore
	publisher   *publisher.Publisher
	engine      *workflow.Engine
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.promptRepo = storage.NewPromptRepository(db)
	a.artifacts = storage.NewArtifactRepository(db)
	if n, err := a.promptRepo.Seed(ctx, prompts.Defaults()); err != nil {
		a.Close()
		return nil, err
	} else if n > 0 {
		logger.Info("seeded default prompts", zap.Int("count", n))
	}

	if a.checkpoints, err = buildCheckpointer(cfg, db); err != nil {
		a.Close()
		return nil, err
	}

	var source prompts.Source = a.promptRepo
	if cfg.PromptsFile != "" {
		fs, err := prompts.NewFileStore(cfg.PromptsFile, logger.Named("prompts"))
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := fs.Start(ctx); err != nil {
			logger.Warn("prompt file watch disabled", zap.String("path", cfg.PromptsFile), zap.Error(err))
		}
		a.promptFile = fs
		source = prompts.Chain(fs, a.promptRepo)
	}

	llm, err := generator.NewLazy(func(ctx context.Context) (generator.LLMClient, error) {
		return buildLLM(ctx, cfg.LLM)
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	agent, err := generator.NewAgent(llm)
	if err != nil {
		a.Close()
		return nil, err
	}

	runner, err := workflow.NewRunner(agent, prompts.NewResolver(source, logger.Named("prompts")),
		workflow.WithRunnerLogger(logger.Named("runner")))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.publisher, err = publisher.New(a.artifacts, cfg.Publisher.Workers, cfg.Publisher.Buffer,
		publisher.WithLogger(logger.Named("publisher")))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine, err = workflow.NewEngine(runner, a.checkpoints,
		workflow.WithArtifactSink(a.publisher),
		workflow.WithChainSuccessor(cfg.ChainSuccessor),
		workflow.WithLogger(logger.Named("engine")),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func buildCheckpointer(cfg *config.Config, db *storage.DB) (workflow.Checkpointer, error) {
	switch cfg.Checkpoint.Backend {
	case config.BackendSQLite:
		return storage.NewCheckpointStore(db), nil
	case config.BackendFile:
		return checkpoint.NewFileStore(cfg.Checkpoint.Dir)
	case config.BackendMemory:
		return checkpoint.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("checkpoint backend %s not supported", cfg.Checkpoint.Backend)
}

// Close flushes pending artifacts and releases resources.
func (a *app) Close() {
	if a.promptFile != nil {
		a.promptFile.Stop()
	}
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func buildLLM(ctx context.Context, lc config.LLMConfig) (generator.LLMClient, error) {
	if lc.Provider == "" {
		return nil, errors.New("llm config missing; please set llm.provider/model/api_key in config")
	}
	settings := &generator.LLMSettings{
		Provider:  lc.Provider,
		Model:     lc.Model,
		APIKey:    lc.APIKey,
		BaseURL:   lc.BaseURL,
		MaxTokens: lc.MaxTokens,
	}
	switch lc.Provider {
	case "openai":
		return generator.NewOpenAILLMFromConfig(settings)
	case "deepseek":
		// DeepSeek speaks the OpenAI protocol; base_url points at its endpoint or a gateway.
		if lc.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "gemini":
		return generator.NewGenAILLMFromConfig(ctx, settings)
	case "mock":
		return generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", lc.Provider)
	}
}
