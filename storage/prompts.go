package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"book_ghostwriter/prompts"
)

// PromptRepository keeps versioned specialist prompts. Exactly one version
// per agent is active; it implements prompts.Source.
type PromptRepository struct {
	db *DB
}

func NewPromptRepository(db *DB) *PromptRepository {
	return &PromptRepository{db: db}
}

// Get returns the active prompt for name, or prompts.ErrNotFound.
func (r *PromptRepository) Get(ctx context.Context, name string) (prompts.Specialist, error) {
	var sp prompts.Specialist
	err := r.db.QueryRowContext(ctx, `
		SELECT agent_name, description, prompt_content, prompt_version FROM agent_prompts
		WHERE agent_name = ? AND is_active = 1
		ORDER BY prompt_version DESC LIMIT 1`, prompts.Key(name)).
		Scan(&sp.Name, &sp.Description, &sp.Prompt, &sp.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return prompts.Specialist{}, prompts.ErrNotFound
	}
	if err != nil {
		return prompts.Specialist{}, fmt.Errorf("storage: prompt %s: %w", name, err)
	}
	return sp, nil
}

// Publish stores sp as a new active version and returns its version number.
func (r *PromptRepository) Publish(ctx context.Context, sp prompts.Specialist) (int, error) {
	name := prompts.Key(sp.Name)
	if name == "" {
		return 0, errors.New("storage: prompt name is required")
	}
	if strings.TrimSpace(sp.Prompt) == "" {
		return 0, errors.New("storage: prompt content is required")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(prompt_version), 0) + 1 FROM agent_prompts WHERE agent_name = ?`, name).
		Scan(&version); err != nil {
		return 0, fmt.Errorf("storage: next prompt version: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE agent_prompts SET is_active = 0 WHERE agent_name = ?`, name); err != nil {
		return 0, fmt.Errorf("storage: deactivate prompts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agent_prompts (agent_name, description, prompt_version, prompt_content, is_active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)`,
		name, sp.Description, version, sp.Prompt, now()); err != nil {
		return 0, fmt.Errorf("storage: insert prompt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return version, nil
}

// Seed publishes items for agents that have no prompt yet and returns how
// many were written.
func (r *PromptRepository) Seed(ctx context.Context, items []prompts.Specialist) (int, error) {
	n := 0
	for _, sp := range items {
		_, err := r.Get(ctx, sp.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, prompts.ErrNotFound) {
			return n, err
		}
		if _, err := r.Publish(ctx, sp); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// List returns the active prompt of every agent ordered by name.
func (r *PromptRepository) List(ctx context.Context) ([]prompts.Specialist, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT agent_name, description, prompt_content, prompt_version FROM agent_prompts
		WHERE is_active = 1 ORDER BY agent_name`)
	if err != nil {
		return nil, fmt.Errorf("storage: list prompts: %w", err)
	}
	defer rows.Close()
	out := []prompts.Specialist{}
	for rows.Next() {
		var sp prompts.Specialist
		if err := rows.Scan(&sp.Name, &sp.Description, &sp.Prompt, &sp.Version); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// PromptVersion is one stored revision of an agent prompt.
type PromptVersion struct {
	prompts.Specialist
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// History returns every version of name, newest first.
func (r *PromptRepository) History(ctx context.Context, name string) ([]PromptVersion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT agent_name, description, prompt_content, prompt_version, is_active, created_at
		FROM agent_prompts WHERE agent_name = ? ORDER BY prompt_version DESC`, prompts.Key(name))
	if err != nil {
		return nil, fmt.Errorf("storage: prompt history: %w", err)
	}
	defer rows.Close()
	var out []PromptVersion
	for rows.Next() {
		var (
			v       PromptVersion
			created string
		)
		if err := rows.Scan(&v.Name, &v.Description, &v.Prompt, &v.Version, &v.Active, &created); err != nil {
			return nil, err
		}
		v.CreatedAt = parseTime(created)
		out = append(out, v)
	}
	return out, rows.Err()
}
