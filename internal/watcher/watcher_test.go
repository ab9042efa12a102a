package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func startWatcher(t *testing.T, dir string, rec *recorder) *Watcher {
	t.Helper()
	w := NewWatcher(dir, []string{"png"}, rec.add, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_DebouncedAdd(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := startWatcher(t, dir, rec)
	assert.Equal(t, []string{filepath.Clean(dir)}, w.Directories())

	path := filepath.Join(dir, "alpha.png")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("two"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	require.Eventually(t, func() bool { return len(rec.snapshot()) >= 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{path}, rec.snapshot())
}

func TestWatcher_IgnoresSubdirectoriesAndRemovals(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0755))
	existing := filepath.Join(dir, "beta.png")
	require.NoError(t, os.WriteFile(existing, []byte("b"), 0644))

	rec := &recorder{}
	startWatcher(t, dir, rec)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "deep.png"), []byte("d"), 0644))
	require.NoError(t, os.Remove(existing))
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "created")
	w := NewWatcher(dir, nil, nil)
	require.NoError(t, w.Start(context.Background()))
	_, err := os.Stat(dir)
	require.NoError(t, err)
	w.Stop()
	w.Stop()
	assert.Empty(t, w.Directories())
}
