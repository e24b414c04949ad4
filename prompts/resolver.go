package prompts

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Resolver returns the prompt a specialist should use for the current turn.
// It never fails: a missing entry or an unavailable Source falls back to the
// built-in default for that specialist.
type Resolver struct {
	source Source
	logger *zap.Logger
}

func NewResolver(source Source, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{source: source, logger: logger}
}

func (r *Resolver) Resolve(ctx context.Context, name string) Specialist {
	if r != nil && r.source != nil {
		sp, err := r.source.Get(ctx, name)
		switch {
		case err == nil && strings.TrimSpace(sp.Prompt) != "":
			return sp
		case err == nil, errors.Is(err, ErrNotFound):
			r.logger.Debug("specialist prompt not configured, using default", zap.String("agent", name))
		default:
			r.logger.Warn("prompt store unavailable, using default", zap.String("agent", name), zap.Error(err))
		}
	}
	return Default(name)
}
