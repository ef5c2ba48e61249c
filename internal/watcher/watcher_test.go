package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestWatcherDebouncesBurstIntoOneBuild(t *testing.T) {
	dir := t.TempDir()
	indexDir := filepath.Join(dir, ".codrag")
	require.NoError(t, os.MkdirAll(indexDir, 0755))

	var triggerCount int32
	var building int32

	w, err := New(Config{
		RepoRoot:        dir,
		IndexDir:        indexDir,
		IncludeGlobs:    []string{"**/*.go"},
		DebounceMs:      40,
		MinRebuildGapMs: 20,
		PollInterval:    10 * time.Millisecond,
		IsBuilding:      func() bool { return atomic.LoadInt32(&building) == 1 },
		Trigger: func() bool {
			atomic.AddInt32(&triggerCount, 1)
			atomic.StoreInt32(&building, 1)
			go func() {
				time.Sleep(20 * time.Millisecond)
				atomic.StoreInt32(&building, 0)
			}()
			return true
		},
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	target := filepath.Join(dir, "a.go")
	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(target, []byte("package a // "+time.Now().String()), 0644))
		time.Sleep(2 * time.Millisecond)
	}

	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&triggerCount) >= 1 })

	status := w.Status()
	require.True(t, status.Stale)

	waitFor(t, 2*time.Second, func() bool { return w.Status().State == StateIdle })
	status = w.Status()
	require.False(t, status.Stale)
	require.Empty(t, status.PendingPaths)
	require.EqualValues(t, 1, atomic.LoadInt32(&triggerCount))
}

func TestWatcherIgnoresExcludedPaths(t *testing.T) {
	dir := t.TempDir()
	indexDir := filepath.Join(dir, ".codrag")
	require.NoError(t, os.MkdirAll(indexDir, 0755))

	var triggerCount int32
	w, err := New(Config{
		RepoRoot:        dir,
		IndexDir:        indexDir,
		IncludeGlobs:    []string{"**/*.go"},
		DebounceMs:      20,
		MinRebuildGapMs: 10,
		Trigger: func() bool {
			atomic.AddInt32(&triggerCount, 1)
			return true
		},
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(indexDir, "manifest.json"), []byte("{}"), 0644))
	time.Sleep(150 * time.Millisecond)

	require.EqualValues(t, 0, atomic.LoadInt32(&triggerCount))
	require.False(t, w.Status().Stale)
}

func TestWatcherStopIsIdempotentAndDisables(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{RepoRoot: dir, IndexDir: filepath.Join(dir, ".codrag")})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.Equal(t, StateIdle, w.Status().State)

	w.Stop()
	require.Equal(t, StateDisabled, w.Status().State)
	w.Stop() // idempotent
}
