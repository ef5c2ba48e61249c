// Package engine is the per-process facade owning every project's live
// structures: its embedding index handle, its trace index handle, its
// watcher, and the bookkeeping around an in-flight build (spec.md §4.9).
// It is the only component that mutates those structures, and it does so
// under a per-project lock; a short-lived global lock protects only the
// handle map itself during add/remove.
//
// Grounded on original_source/src/codrag/mcp_direct.py's DirectMCPServer
// (single in-memory CodeIndex/TraceIndex pair, a build lock, a
// "_building" flag, lazy initialization) generalized from one repo to a
// project-id-keyed map of the same shape, one handle per project. The
// teacher contributes the Go concurrency idiom for a mutex-guarded state
// struct (internal/watcher/file_watcher.go's pattern, reused here at one
// level up: a map of per-project structs instead of one struct).
package engine

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/EricBintner/codrag/internal/codraerr"
	"github.com/EricBintner/codrag/internal/config"
	"github.com/EricBintner/codrag/internal/embedcap"
	"github.com/EricBintner/codrag/internal/embedindex"
	"github.com/EricBintner/codrag/internal/registry"
	"github.com/EricBintner/codrag/internal/repopolicy"
	"github.com/EricBintner/codrag/internal/trace"
	"github.com/EricBintner/codrag/internal/watcher"
)

var log = logrus.WithField("component", "engine")

// handle is the live, in-memory state for one registered project.
// Everything here is guarded by mu; the engine never exposes a handle
// directly, only the values its accessor methods copy out.
type handle struct {
	mu sync.Mutex

	project registry.Project

	index      *embedindex.Index
	traceIndex *trace.Index
	watcherObj *watcher.Watcher

	building       bool
	traceBuilding  bool
	lastBuild      *embedindex.Manifest
	lastBuildErr   error
	lastTraceBuild *trace.Manifest
	lastTraceErr   error
}

// Engine owns every registered project's handle, keyed by project id.
type Engine struct {
	reg      *registry.Registry
	dataDir  string
	provider embedcap.Provider

	mu      sync.Mutex
	handles map[string]*handle
}

// New constructs an Engine bound to a registry, a data directory for
// standalone-mode project storage, and the embedding capability every
// project's index builds against.
func New(reg *registry.Registry, dataDir string, provider embedcap.Provider) *Engine {
	return &Engine{reg: reg, dataDir: dataDir, provider: provider, handles: map[string]*handle{}}
}

// Status is the aggregated per-project status spec.md §4.9 describes:
// "index existence + counts + model + timestamps + building flag +
// trace status + watch status".
type Status struct {
	Project        registry.Project
	Embedding      embedindex.Stats
	Building       bool
	LastBuildError string
	Trace          trace.Manifest
	TraceBuilding  bool
	LastTraceError string
	Watch          *watcher.Status
}

// AddProject registers a new project and returns its record. path is
// resolved to an absolute path before uniqueness is checked (spec.md
// §4.7 "uniqueness constraint on absolute root path").
func (e *Engine) AddProject(path, name string, mode registry.Mode, cfg map[string]interface{}) (registry.Project, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return registry.Project{}, codraerr.Wrap(codraerr.Validation, "resolving project path", err)
	}
	p, err := e.reg.Add(absPath, name, mode, cfg)
	if err != nil {
		if err == registry.ErrAlreadyExists {
			return registry.Project{}, codraerr.Wrap(codraerr.Conflict, "project already registered", err)
		}
		return registry.Project{}, codraerr.Wrap(codraerr.Internal, "adding project", err)
	}
	return p, nil
}

// RemoveProject detaches and deletes a project's handle (stopping its
// watcher first, if running) and removes its registry row, optionally
// purging its index directory.
func (e *Engine) RemoveProject(id string, purge bool) error {
	e.mu.Lock()
	h := e.handles[id]
	delete(e.handles, id)
	e.mu.Unlock()

	if h != nil {
		h.mu.Lock()
		if h.watcherObj != nil {
			h.watcherObj.Stop()
		}
		h.mu.Unlock()
	}

	if err := e.reg.Remove(id, purge, e.dataDir); err != nil {
		if err == registry.ErrNotFound {
			return codraerr.Wrap(codraerr.Validation, "project not found", err)
		}
		if err == registry.ErrPurgeRefused {
			return codraerr.Wrap(codraerr.PurgeSafety, "refusing to purge index directory", err)
		}
		return codraerr.Wrap(codraerr.Internal, "removing project", err)
	}
	return nil
}

// ListProjects returns every registered project, most recently updated
// first (spec.md §4.7).
func (e *Engine) ListProjects() ([]registry.Project, error) {
	projects, err := e.reg.List()
	if err != nil {
		return nil, codraerr.Wrap(codraerr.Internal, "listing projects", err)
	}
	return projects, nil
}

// GetProject returns one project's registry record.
func (e *Engine) GetProject(id string) (registry.Project, error) {
	p, err := e.reg.Get(id)
	if err != nil {
		if err == registry.ErrNotFound {
			return registry.Project{}, codraerr.Wrap(codraerr.Validation, "project not found", err)
		}
		return registry.Project{}, codraerr.Wrap(codraerr.Internal, "getting project", err)
	}
	return p, nil
}

// getOrCreateHandle returns the live handle for a project, constructing
// and loading its embedding/trace index handles from disk on first
// access. The global lock is held only long enough to insert into the
// map; index/trace loading happens outside it so a slow load for one
// project never blocks lookups for another.
func (e *Engine) getOrCreateHandle(id string) (*handle, error) {
	e.mu.Lock()
	if h, ok := e.handles[id]; ok {
		e.mu.Unlock()
		return h, nil
	}
	e.mu.Unlock()

	p, err := e.GetProject(id)
	if err != nil {
		return nil, err
	}

	indexDir := registry.IndexDir(p, e.dataDir)
	idx := embedindex.New(indexDir, e.provider)
	traceIdx, err := trace.LoadIndex(indexDir)
	if err != nil {
		return nil, codraerr.Wrap(codraerr.Corruption, "loading trace index", err)
	}

	h := &handle{project: p, index: idx, traceIndex: traceIdx}

	e.mu.Lock()
	if existing, ok := e.handles[id]; ok {
		e.mu.Unlock()
		return existing, nil
	}
	e.handles[id] = h
	e.mu.Unlock()

	return h, nil
}

// projectConfig merges a project's registry config JSON onto
// config.Default(), so unset fields behave exactly as if the project
// had never specified them.
func projectConfig(p registry.Project) *config.Config {
	cfg := config.Default()
	if v, ok := p.Config["include_globs"].([]interface{}); ok {
		cfg.IncludeGlobs = toStringSlice(v)
	}
	if v, ok := p.Config["exclude_globs"].([]interface{}); ok {
		cfg.ExcludeGlobs = toStringSlice(v)
	}
	if v, ok := p.Config["max_file_bytes"].(float64); ok && v > 0 {
		cfg.MaxFileBytes = int64(v)
	}
	if v, ok := p.Config["trace"].(map[string]interface{}); ok {
		if enabled, ok := v["enabled"].(bool); ok {
			cfg.Trace.Enabled = enabled
		}
	}
	if v, ok := p.Config["watcher"].(map[string]interface{}); ok {
		if enabled, ok := v["enabled"].(bool); ok {
			cfg.Watcher.Enabled = enabled
		}
	}
	return cfg
}

func toStringSlice(v []interface{}) []string {
	out := make([]string, 0, len(v))
	for _, item := range v {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// primerFor translates a project's config.PrimerConfig into the shape
// embedindex's context assembly consumes.
func primerFor(cfg *config.Config) *repopolicy.PrimerConfig {
	return &repopolicy.PrimerConfig{
		Enabled:        cfg.Primer.Enabled,
		Filenames:      cfg.Primer.Filenames,
		ScoreBoost:     cfg.Primer.ScoreBoost,
		AlwaysInclude:  cfg.Primer.AlwaysInclude,
		MaxPrimerChars: cfg.Primer.MaxPrimerChars,
	}
}

// Status returns the aggregated status view for one project (spec.md
// §4.9). It never blocks on a running build: index stats come from the
// last committed in-memory snapshot.
func (e *Engine) Status(id string) (Status, error) {
	h, err := e.getOrCreateHandle(id)
	if err != nil {
		return Status{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	st := Status{
		Project:       h.project,
		Embedding:     h.index.Stats(),
		Building:      h.building,
		TraceBuilding: h.traceBuilding,
		Trace:         h.traceIndex.Manifest(),
	}
	if h.lastBuildErr != nil {
		st.LastBuildError = h.lastBuildErr.Error()
	}
	if h.lastTraceErr != nil {
		st.LastTraceError = h.lastTraceErr.Error()
	}
	if h.watcherObj != nil {
		s := h.watcherObj.Status()
		st.Watch = &s
	}
	return st, nil
}

func buildInputFromConfig(repoRoot string, cfg *config.Config) embedindex.BuildInput {
	return embedindex.BuildInput{
		RepoRoot:     repoRoot,
		IncludeGlobs: cfg.IncludeGlobs,
		ExcludeGlobs: cfg.ExcludeGlobs,
		MaxFileBytes: cfg.MaxFileBytes,
	}
}

func traceInputFromConfig(repoRoot string, cfg *config.Config) trace.BuildInput {
	return trace.BuildInput{
		RepoRoot:     repoRoot,
		IncludeGlobs: cfg.IncludeGlobs,
		ExcludeGlobs: cfg.ExcludeGlobs,
		MaxFileBytes: cfg.Trace.MaxFileBytes,
		MaxFiles:     cfg.Trace.MaxFiles,
		MaxNodes:     cfg.Trace.MaxNodes,
		MaxEdges:     cfg.Trace.MaxEdges,
		MaxFailures:  cfg.Trace.MaxFailures,
	}
}

// StartBuild starts an embedding-index rebuild for a project in the
// background, rejecting the call outright if one is already running
// (spec.md §4.9 "start_build rejects if a build is already running for
// that project"). Builds for different projects proceed independently.
func (e *Engine) StartBuild(id string) error {
	return e.StartBuildWithProgress(id, nil)
}

// StartBuildWithProgress is StartBuild with an optional per-file progress
// callback, surfaced so an interactive front-end (cmd/codragd's build
// command) can drive a terminal progress bar off real build-loop
// progress rather than a synthetic spinner.
func (e *Engine) StartBuildWithProgress(id string, progress func(done, total int, path string)) error {
	h, err := e.getOrCreateHandle(id)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.building {
		h.mu.Unlock()
		return codraerr.New(codraerr.Conflict, "a build is already running for this project")
	}
	h.building = true
	h.mu.Unlock()

	go e.runBuild(id, h, progress)
	return nil
}

func (e *Engine) runBuild(id string, h *handle, progress func(done, total int, path string)) {
	cfg := projectConfig(h.project)
	in := buildInputFromConfig(h.project.Path, cfg)
	in.Progress = progress

	manifest, err := h.index.Build(context.Background(), in)

	h.mu.Lock()
	h.building = false
	if err != nil {
		h.lastBuildErr = err
		h.lastBuild = nil
	} else {
		h.lastBuild = &manifest
		h.lastBuildErr = nil
	}
	h.mu.Unlock()

	if err != nil {
		log.WithField("project_id", id).WithError(err).Warn("embedding build failed")
	}
}

// StartTraceBuild starts a trace-graph rebuild for a project in the
// background under the same single-build-per-project rule as
// StartBuild, tracked independently of the embedding build.
func (e *Engine) StartTraceBuild(id string) error {
	h, err := e.getOrCreateHandle(id)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.traceBuilding {
		h.mu.Unlock()
		return codraerr.New(codraerr.Conflict, "a trace build is already running for this project")
	}
	h.traceBuilding = true
	h.mu.Unlock()

	go e.runTraceBuild(id, h)
	return nil
}

func (e *Engine) runTraceBuild(id string, h *handle) {
	cfg := projectConfig(h.project)
	indexDir := registry.IndexDir(h.project, e.dataDir)
	in := traceInputFromConfig(h.project.Path, cfg)

	manifest, _, _, err := trace.BuildAndPersist(indexDir, in)

	var reloaded *trace.Index
	if err == nil {
		reloaded, err = trace.LoadIndex(indexDir)
	}

	h.mu.Lock()
	h.traceBuilding = false
	if err != nil {
		h.lastTraceErr = err
	} else {
		h.lastTraceErr = nil
		h.lastTraceBuild = &manifest
		h.traceIndex = reloaded
	}
	h.mu.Unlock()

	if err != nil {
		log.WithField("project_id", id).WithError(err).Warn("trace build failed")
	}
}

// Search runs a hybrid search against a project's currently loaded
// embedding index. It never waits for a running build (spec.md §4.9
// "searches ... use the currently loaded in-memory snapshot and never
// wait for a running build").
func (e *Engine) Search(ctx context.Context, id, query string, opts embedindex.SearchOptions) ([]embedindex.SearchResult, error) {
	h, err := e.getOrCreateHandle(id)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	idx := h.index
	h.mu.Unlock()

	if !idx.IsLoaded() {
		return nil, codraerr.New(codraerr.NotReady, "index not built yet")
	}
	results, err := idx.Search(ctx, query, opts)
	if err != nil {
		return nil, codraerr.Wrap(codraerr.TransientExternal, "search failed", err)
	}
	return results, nil
}

// Context assembles retrieval context for a project, optionally
// expanding results via the project's trace index.
func (e *Engine) Context(ctx context.Context, id, query string, opts embedindex.ContextOptions) (embedindex.StructuredContext, error) {
	h, err := e.getOrCreateHandle(id)
	if err != nil {
		return embedindex.StructuredContext{}, err
	}
	h.mu.Lock()
	idx := h.index
	traceIdx := h.traceIndex
	h.mu.Unlock()

	if !idx.IsLoaded() {
		return embedindex.StructuredContext{}, codraerr.New(codraerr.NotReady, "index not built yet")
	}
	if opts.TraceExpand == nil && traceIdx != nil {
		opts.TraceExpand = traceIdx
	}

	result, err := idx.GetContextStructured(ctx, query, opts)
	if err != nil {
		return embedindex.StructuredContext{}, codraerr.Wrap(codraerr.TransientExternal, "context assembly failed", err)
	}
	return result, nil
}

// TraceSearch runs a name search against a project's trace index.
func (e *Engine) TraceSearch(id, query, kind string, limit int) ([]trace.SearchHit, error) {
	h, err := e.getOrCreateHandle(id)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	traceIdx := h.traceIndex
	h.mu.Unlock()
	return traceIdx.SearchNodes(query, kind, limit), nil
}

// TraceNode looks up a single trace node by id.
func (e *Engine) TraceNode(id, nodeID string) (trace.Node, bool, error) {
	h, err := e.getOrCreateHandle(id)
	if err != nil {
		return trace.Node{}, false, err
	}
	h.mu.Lock()
	traceIdx := h.traceIndex
	h.mu.Unlock()
	n, ok := traceIdx.GetNode(nodeID)
	return n, ok, nil
}

// TraceNeighbors returns a trace node's neighbors in the requested
// direction, optionally filtered by edge kind.
func (e *Engine) TraceNeighbors(id, nodeID string, direction trace.Direction, edgeKinds []string, maxNodes int) ([]trace.Neighbor, error) {
	h, err := e.getOrCreateHandle(id)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	traceIdx := h.traceIndex
	h.mu.Unlock()
	return traceIdx.GetNeighbors(nodeID, direction, edgeKinds, maxNodes), nil
}

// WatchStart enables the filesystem watcher for a project, constructing
// it lazily from the project's config on first use.
func (e *Engine) WatchStart(id string) error {
	h, err := e.getOrCreateHandle(id)
	if err != nil {
		return err
	}

	cfg := projectConfig(h.project)
	if !cfg.Watcher.Enabled {
		return codraerr.New(codraerr.Validation, "watcher is disabled for this project")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.watcherObj == nil {
		indexDir := registry.IndexDir(h.project, e.dataDir)
		w, err := watcher.New(watcher.Config{
			RepoRoot:        h.project.Path,
			IndexDir:        indexDir,
			IncludeGlobs:    cfg.IncludeGlobs,
			ExcludeGlobs:    cfg.ExcludeGlobs,
			DebounceMs:      cfg.Watcher.DebounceMs,
			MinRebuildGapMs: cfg.Watcher.MinRebuildGapMs,
			IsBuilding:      func() bool { h.mu.Lock(); defer h.mu.Unlock(); return h.building },
			Trigger:         func() bool { return e.StartBuild(id) == nil },
		})
		if err != nil {
			return codraerr.Wrap(codraerr.Internal, "constructing watcher", err)
		}
		h.watcherObj = w
	}
	return h.watcherObj.Start()
}

// WatchStop disables a project's watcher, if running.
func (e *Engine) WatchStop(id string) error {
	h, err := e.getOrCreateHandle(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	w := h.watcherObj
	h.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	return nil
}

// WatchStatus returns a project's current watcher status, or a disabled
// status if no watcher has ever been started.
func (e *Engine) WatchStatus(id string) (watcher.Status, error) {
	h, err := e.getOrCreateHandle(id)
	if err != nil {
		return watcher.Status{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watcherObj == nil {
		return watcher.Status{State: watcher.StateDisabled}, nil
	}
	return h.watcherObj.Status(), nil
}

// Close stops every project's watcher and the registry connection,
// used on daemon shutdown.
func (e *Engine) Close() error {
	e.mu.Lock()
	handles := make([]*handle, 0, len(e.handles))
	for _, h := range e.handles {
		handles = append(handles, h)
	}
	e.mu.Unlock()

	for _, h := range handles {
		h.mu.Lock()
		if h.watcherObj != nil {
			h.watcherObj.Stop()
		}
		h.mu.Unlock()
	}
	return e.reg.Close()
}
