package checkpoint

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"book_ghostwriter/workflow"
)

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// FileStore writes one JSON file per conversation under Dir. Writes go
// through a temp file and a rename, so a reader sees either the old or the
// new state.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("checkpoint: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Dir() string { return f.dir }

func (f *FileStore) path(id string) string {
	name := id
	if !safeID.MatchString(id) {
		// "~" is outside the safe alphabet, so escaped names never collide
		// with ids stored verbatim.
		name = "~" + hex.EncodeToString([]byte(id))
	}
	return filepath.Join(f.dir, name+".json")
}

func (f *FileStore) Load(ctx context.Context, id string) (workflow.State, error) {
	if err := ctx.Err(); err != nil {
		return workflow.State{}, err
	}
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return workflow.State{}, workflow.ErrCheckpointNotFound
		}
		return workflow.State{}, fmt.Errorf("checkpoint: read %s: %w", id, err)
	}
	return workflow.DecodeState(id, data)
}

func (f *FileStore) Save(ctx context.Context, id string, st workflow.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := workflow.EncodeState(st)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("checkpoint: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("checkpoint: write %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("checkpoint: close %s: %w", id, err)
	}
	if err := os.Rename(tmpName, f.path(id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("checkpoint: rename %s: %w", id, err)
	}
	return nil
}
