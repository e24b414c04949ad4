package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"book_ghostwriter/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func sampleState() workflow.State {
	no := false
	st := workflow.NewState()
	st.Stage = workflow.StageTitle
	st.ActiveAgent = "Title Generator"
	st.BookName = "Draft One"
	st.AuthorName = "Ada"
	st.AuthorBio = "Ada has written code for forty years and now writes books"
	st.BookTheme = "software as a craft"
	st.AudienceProfile = "engineers | managers"
	st.AudienceQuestionsAsked = 3
	st.WantsTitleSuggestions = &no
	st.Messages = []workflow.Message{
		{Role: workflow.RoleUser, Content: "hello"},
		{Role: workflow.RoleAssistant, Content: "Welcome!", Agent: "Biographer"},
	}
	return st
}

type store interface {
	workflow.Checkpointer
}

func stores(t *testing.T) map[string]store {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]store{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func TestRoundTripIsIdentical(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			want := sampleState()
			require.NoError(t, s.Save(ctx, "conv-1", want))

			got, err := s.Load(ctx, "conv-1")
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("state mismatch (-want +got):\n%s", diff)
			}

			first, err := workflow.EncodeState(want)
			require.NoError(t, err)
			second, err := workflow.EncodeState(got)
			require.NoError(t, err)
			assert.Equal(t, string(first), string(second))
		})
	}
}

func TestMissingCheckpoint(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(context.Background(), "nobody")
			assert.ErrorIs(t, err, workflow.ErrCheckpointNotFound)
		})
	}
}

func TestSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			st := sampleState()
			require.NoError(t, s.Save(ctx, "c", st))
			st.FinalTitle = "Draft One"
			require.NoError(t, s.Save(ctx, "c", st))

			got, err := s.Load(ctx, "c")
			require.NoError(t, err)
			assert.Equal(t, "Draft One", got.FinalTitle)
		})
	}
}

func TestCorruptedMemoryCheckpoint(t *testing.T) {
	m := NewMemoryStore()
	m.PutRaw("bad", []byte(`{"stage":`))

	_, err := m.Load(context.Background(), "bad")
	var corrupt *workflow.StateCorruptionError
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, "bad", corrupt.ConversationID)
	assert.False(t, errors.Is(err, workflow.ErrCheckpointNotFound))
}

func TestCorruptedFileCheckpoint(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("not json"), 0o644))

	_, err = fs.Load(context.Background(), "broken")
	var corrupt *workflow.StateCorruptionError
	assert.True(t, errors.As(err, &corrupt))
}

func TestFileStoreEscapesUnsafeIDs(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, fs.Save(context.Background(), "../escape", sampleState()))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "~2e2e2f657363617065.json", entries[0].Name())

	_, err = fs.Load(context.Background(), "../escape")
	assert.NoError(t, err)
}

func TestFileStoreEscapedIDsDoNotCollide(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	st := sampleState()
	st.BookName = "belongs to a b"
	require.NoError(t, fs.Save(ctx, "a b", st))

	// hex of "a b" behind the old escape prefix
	_, err = fs.Load(ctx, "x612062")
	assert.ErrorIs(t, err, workflow.ErrCheckpointNotFound)

	other := sampleState()
	other.BookName = "belongs to x612062"
	require.NoError(t, fs.Save(ctx, "x612062", other))

	got, err := fs.Load(ctx, "a b")
	require.NoError(t, err)
	assert.Equal(t, "belongs to a b", got.BookName)
	got, err = fs.Load(ctx, "x612062")
	require.NoError(t, err)
	assert.Equal(t, "belongs to x612062", got.BookName)
}

func TestConcurrentSavesLeaveReadableState(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					assert.NoError(t, s.Save(ctx, "shared", sampleState()))
				}()
			}
			wg.Wait()
			_, err := s.Load(ctx, "shared")
			assert.NoError(t, err)
		})
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemoryStore()
	assert.ErrorIs(t, m.Save(ctx, "c", sampleState()), context.Canceled)
	_, ok := m.Raw("c")
	assert.False(t, ok)
}
