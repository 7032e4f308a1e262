package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/config"
	"vigil/internal/events"
)

func newTestSource(t *testing.T, root config.WatchRoot) *Source {
	t.Helper()
	s, err := New([]config.WatchRoot{root})
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

// collect drains events until the timeout elapses without a new one.
func collect(s *Source, quiet time.Duration) []RawEvent {
	var got []RawEvent
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-time.After(quiet):
			return got
		}
	}
}

func TestWatchDetectsCreateAndWrite(t *testing.T) {
	dir := t.TempDir()
	s := newTestSource(t, config.WatchRoot{Dir: dir, Extensions: []string{".js"}})

	path := filepath.Join(dir, "app.js")
	require.NoError(t, os.WriteFile(path, []byte("let a = 1\n"), 0o644))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("let a = 2\n"), 0o644))

	got := collect(s, 300*time.Millisecond)
	require.NotEmpty(t, got)
	assert.Equal(t, RawCreate, got[0].Kind)
	assert.Equal(t, path, got[0].Path)

	var sawWrite bool
	for _, ev := range got[1:] {
		if ev.Kind == RawWrite && ev.Path == path {
			sawWrite = true
		}
	}
	assert.True(t, sawWrite, "expected a write event after the create")
}

func TestWatchIgnoresDisallowedExtension(t *testing.T) {
	dir := t.TempDir()
	s := newTestSource(t, config.WatchRoot{Dir: dir, Extensions: []string{".js"}})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	got := collect(s, 300*time.Millisecond)
	assert.Empty(t, got)
}

func TestWatchDenyGlobBeatsExtension(t *testing.T) {
	dir := t.TempDir()
	denied := filepath.Join(dir, "node_modules")
	require.NoError(t, os.MkdirAll(denied, 0o755))

	s := newTestSource(t, config.WatchRoot{
		Dir:        dir,
		Extensions: []string{".js"},
		DenyGlobs:  []string{"node_modules"},
	})

	require.NoError(t, os.WriteFile(filepath.Join(denied, "dep.js"), []byte("x"), 0o644))

	got := collect(s, 300*time.Millisecond)
	assert.Empty(t, got)
}

func TestWatchDetectsRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.js")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	s := newTestSource(t, config.WatchRoot{Dir: dir, Extensions: []string{".js"}})
	require.NoError(t, os.Remove(path))

	got := collect(s, 300*time.Millisecond)
	require.NotEmpty(t, got)
	assert.Equal(t, RawRemove, got[len(got)-1].Kind)
}

func TestWatchDetectsRenameAsLogicalRename(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.js")
	newPath := filepath.Join(dir, "new.js")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))

	s := newTestSource(t, config.WatchRoot{Dir: dir, Extensions: []string{".js"}})
	require.NoError(t, os.Rename(oldPath, newPath))

	got := collect(s, 400*time.Millisecond)
	require.NotEmpty(t, got)

	var rename *RawEvent
	for i := range got {
		if got[i].Kind == RawRename {
			rename = &got[i]
		}
	}
	require.NotNil(t, rename, "expected a logical rename event, got %v", got)
	assert.Equal(t, newPath, rename.Path)
	assert.Equal(t, oldPath, rename.OldPath)
}

func TestWatchPicksUpNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	s := newTestSource(t, config.WatchRoot{Dir: dir, Extensions: []string{".js"}})

	sub := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// Give the watcher a beat to register the new directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "inner.js"), []byte("x"), 0o644))

	got := collect(s, 400*time.Millisecond)
	var found bool
	for _, ev := range got {
		if ev.Path == filepath.Join(sub, "inner.js") {
			found = true
		}
	}
	assert.True(t, found, "expected event from new subdirectory, got %v", got)
}

func TestRewatchKeepsExistingRootsWorking(t *testing.T) {
	dir := t.TempDir()
	s := newTestSource(t, config.WatchRoot{Dir: dir, Extensions: []string{".js"}})

	require.NoError(t, s.Rewatch())
	require.NoError(t, s.Rewatch(), "rewatch must be idempotent")

	path := filepath.Join(dir, "app.js")
	require.NoError(t, os.WriteFile(path, []byte("let a = 1\n"), 0o644))

	got := collect(s, 300*time.Millisecond)
	require.NotEmpty(t, got, "events still flow after rewatch")
	assert.Equal(t, path, got[0].Path)
}

func TestRawKindToChangeKind(t *testing.T) {
	assert.Equal(t, events.ChangeCreated, RawCreate.ToChangeKind())
	assert.Equal(t, events.ChangeModified, RawWrite.ToChangeKind())
	assert.Equal(t, events.ChangeDeleted, RawRemove.ToChangeKind())
	assert.Equal(t, events.ChangeRenamed, RawRename.ToChangeKind())
}
