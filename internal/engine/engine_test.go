package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EricBintner/codrag/internal/embedcap"
	"github.com/EricBintner/codrag/internal/embedindex"
	"github.com/EricBintner/codrag/internal/registry"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dataDir := t.TempDir()
	reg, err := registry.Open(filepath.Join(dataDir, "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	provider := embedcap.NewFakeProvider("fake-embed", 16)
	return New(reg, dataDir, provider), dataDir
}

func writeRepo(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# demo\n\nSome words about widgets and gadgets.\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.py"), []byte("def widget():\n    return 1\n"), 0644))
}

func TestAddListGetRemoveProject(t *testing.T) {
	e, _ := newTestEngine(t)
	root := t.TempDir()

	p, err := e.AddProject(root, "demo", registry.ModeEmbedded, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	got, err := e.GetProject(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	list, err := e.ListProjects()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, e.RemoveProject(p.ID, false))

	_, err = e.GetProject(p.ID)
	assert.Error(t, err)
}

func TestAddProjectRejectsDuplicatePath(t *testing.T) {
	e, _ := newTestEngine(t)
	root := t.TempDir()

	_, err := e.AddProject(root, "demo", registry.ModeEmbedded, nil)
	require.NoError(t, err)

	_, err = e.AddProject(root, "demo-again", registry.ModeEmbedded, nil)
	require.Error(t, err)
}

func TestStatusBeforeAnyBuildReportsNotLoaded(t *testing.T) {
	e, _ := newTestEngine(t)
	root := t.TempDir()
	writeRepo(t, root)

	p, err := e.AddProject(root, "demo", registry.ModeEmbedded, nil)
	require.NoError(t, err)

	st, err := e.Status(p.ID)
	require.NoError(t, err)
	assert.False(t, st.Building)
	assert.Equal(t, 0, st.Embedding.TotalDocuments)
}

func TestStartBuildThenSearchSucceeds(t *testing.T) {
	e, _ := newTestEngine(t)
	root := t.TempDir()
	writeRepo(t, root)

	p, err := e.AddProject(root, "demo", registry.ModeEmbedded, nil)
	require.NoError(t, err)

	require.NoError(t, e.StartBuild(p.ID))

	require.Eventually(t, func() bool {
		st, err := e.Status(p.ID)
		return err == nil && !st.Building && st.LastBuildError == "" && st.Embedding.TotalDocuments > 0
	}, 5*time.Second, 10*time.Millisecond)

	ctx := context.Background()
	results, err := e.Search(ctx, p.ID, "widget", embedindex.SearchOptions{K: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestStartBuildRejectsConcurrentBuildForSameProject(t *testing.T) {
	e, _ := newTestEngine(t)
	root := t.TempDir()
	writeRepo(t, root)

	p, err := e.AddProject(root, "demo", registry.ModeEmbedded, nil)
	require.NoError(t, err)

	require.NoError(t, e.StartBuild(p.ID))
	err = e.StartBuild(p.ID)
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		st, err := e.Status(p.ID)
		return err == nil && !st.Building
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBuildsForDifferentProjectsRunConcurrently(t *testing.T) {
	e, _ := newTestEngine(t)

	rootA := t.TempDir()
	rootB := t.TempDir()
	writeRepo(t, rootA)
	writeRepo(t, rootB)

	pa, err := e.AddProject(rootA, "a", registry.ModeEmbedded, nil)
	require.NoError(t, err)
	pb, err := e.AddProject(rootB, "b", registry.ModeEmbedded, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	errs := make([]error, 2)
	go func() { defer wg.Done(); errs[0] = e.StartBuild(pa.ID) }()
	go func() { defer wg.Done(); errs[1] = e.StartBuild(pb.ID) }()
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])

	require.Eventually(t, func() bool {
		sa, errA := e.Status(pa.ID)
		sb, errB := e.Status(pb.ID)
		return errA == nil && errB == nil && !sa.Building && !sb.Building
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTraceBuildThenSearchAndNeighbors(t *testing.T) {
	e, _ := newTestEngine(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.py"), []byte("def widget():\n    return 1\n"), 0644))

	p, err := e.AddProject(root, "demo", registry.ModeEmbedded, nil)
	require.NoError(t, err)

	require.NoError(t, e.StartTraceBuild(p.ID))

	require.Eventually(t, func() bool {
		st, err := e.Status(p.ID)
		return err == nil && !st.TraceBuilding && st.LastTraceError == ""
	}, 5*time.Second, 10*time.Millisecond)

	hits, err := e.TraceSearch(p.ID, "widget", "", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestWatchStartStopStatus(t *testing.T) {
	e, _ := newTestEngine(t)
	root := t.TempDir()
	writeRepo(t, root)

	p, err := e.AddProject(root, "demo", registry.ModeEmbedded, nil)
	require.NoError(t, err)

	st, err := e.WatchStatus(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "disabled", string(st.State))

	require.NoError(t, e.WatchStart(p.ID))
	st, err = e.WatchStatus(p.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "disabled", string(st.State))

	require.NoError(t, e.WatchStop(p.ID))
}

func TestSearchBeforeBuildReturnsNotReady(t *testing.T) {
	e, _ := newTestEngine(t)
	root := t.TempDir()
	writeRepo(t, root)

	p, err := e.AddProject(root, "demo", registry.ModeEmbedded, nil)
	require.NoError(t, err)

	_, err = e.Search(context.Background(), p.ID, "widget", embedindex.SearchOptions{K: 5})
	assert.Error(t, err)
}
