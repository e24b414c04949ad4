package prompts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type fileFormat struct {
	Specialists []Specialist `yaml:"specialists"`
}

// FileStore serves specialists from a YAML file and reloads it when the file
// changes on disk. A reload that fails to parse keeps the previous content.
type FileStore struct {
	*MapStore

	path     string
	logger   *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewFileStore loads path once. A missing file yields an empty store so the
// built-in defaults apply until the file appears.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("prompts: file path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("prompts: resolve %s: %w", path, err)
	}
	f := &FileStore{
		MapStore: NewMapStore(),
		path:     abs,
		logger:   logger,
		debounce: 200 * time.Millisecond,
	}
	if err := f.Reload(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return f, nil
}

// Path returns the absolute path of the watched file.
func (f *FileStore) Path() string { return f.path }

// Reload re-reads the file and replaces the store content.
func (f *FileStore) Reload() error {
	items, err := ReadFile(f.path)
	if err != nil {
		return err
	}
	f.Replace(items)
	f.logger.Info("specialist prompts loaded", zap.String("path", f.path), zap.Int("count", len(items)))
	return nil
}

// Start watches the file's directory; editors often replace files by rename,
// so watching the file itself would lose track of it.
func (f *FileStore) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("prompts: create watcher: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = w.Close()
		return fmt.Errorf("prompts: ensure dir: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("prompts: watch %s: %w", dir, err)
	}
	f.watcher = w
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	f.running = true
	go f.run(ctx, w, f.stopCh, f.doneCh)
	f.logger.Debug("watching specialist prompts", zap.String("path", f.path))
	return nil
}

// Stop ends the watcher and waits for its goroutine.
func (f *FileStore) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	stopCh, doneCh, w := f.stopCh, f.doneCh, f.watcher
	f.mu.Unlock()

	close(stopCh)
	<-doneCh
	if err := w.Close(); err != nil {
		f.logger.Warn("closing prompt watcher", zap.Error(err))
	}
}

func (f *FileStore) run(ctx context.Context, w *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(f.debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.logger.Warn("prompt watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			if err := f.Reload(); err != nil {
				f.logger.Warn("prompt reload failed, keeping previous prompts", zap.String("path", f.path), zap.Error(err))
			}
		}
	}
}

// ReadFile parses a prompts YAML file.
func ReadFile(path string) ([]Specialist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("prompts: parse %s: %w", path, err)
	}
	out := make([]Specialist, 0, len(ff.Specialists))
	for i, sp := range ff.Specialists {
		if Key(sp.Name) == "" {
			return nil, fmt.Errorf("prompts: entry %d in %s has no name", i, path)
		}
		sp.Name = Key(sp.Name)
		out = append(out, sp)
	}
	return out, nil
}

// WriteFile stores specialists as YAML, replacing path atomically.
func WriteFile(path string, items []Specialist) error {
	data, err := yaml.Marshal(fileFormat{Specialists: items})
	if err != nil {
		return fmt.Errorf("prompts: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
