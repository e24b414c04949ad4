package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"book_ghostwriter/workflow"
)

// CheckpointStore implements workflow.Checkpointer on the checkpoints table.
// Each Save is a single upsert, so readers never see a partial state.
type CheckpointStore struct {
	db *DB
}

func NewCheckpointStore(db *DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

func (s *CheckpointStore) Load(ctx context.Context, id string) (workflow.State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE conversation_id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.State{}, workflow.ErrCheckpointNotFound
	}
	if err != nil {
		return workflow.State{}, fmt.Errorf("storage: load checkpoint %s: %w", id, err)
	}
	return workflow.DecodeState(id, []byte(raw))
}

func (s *CheckpointStore) Save(ctx context.Context, id string, st workflow.State) error {
	data, err := workflow.EncodeState(st)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (conversation_id, stage, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			stage = excluded.stage,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		id, string(workflow.Route(st)), string(data), now())
	if err != nil {
		return fmt.Errorf("storage: save checkpoint %s: %w", id, err)
	}
	return nil
}

// ConversationSummary is a row of the conversation listing.
type ConversationSummary struct {
	ID        string         `json:"id"`
	Stage     workflow.Stage `json:"stage"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// List returns conversations, most recently updated first. A non-empty stage
// keeps only conversations currently in it.
func (s *CheckpointStore) List(ctx context.Context, stage workflow.Stage, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, stage, updated_at FROM checkpoints
		WHERE ? = '' OR stage = ?
		ORDER BY updated_at DESC LIMIT ?`, string(stage), string(stage), limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var (
			c       ConversationSummary
			stage   string
			updated string
		)
		if err := rows.Scan(&c.ID, &stage, &updated); err != nil {
			return nil, err
		}
		c.Stage = workflow.Stage(stage)
		c.UpdatedAt = parseTime(updated)
		out = append(out, c)
	}
	return out, rows.Err()
}
