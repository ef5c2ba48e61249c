package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/EricBintner/codrag/internal/pathmatch"
)

// BuildTrigger is invoked when the debounce/throttle period has elapsed
// and the watcher wants to start a build. It returns true iff a build was
// actually started; false asks the watcher to reschedule (spec.md §4.6:
// "if the callback reports started, move to building; otherwise
// reschedule debouncing and re-pend the paths").
type BuildTrigger func() bool

// IsBuilding reports whether a build is currently running for the
// project this watcher is attached to — consulted both before invoking
// BuildTrigger and by the building-state poller.
type IsBuilding func() bool

// Config configures one Watcher instance (spec.md §4.6).
type Config struct {
	RepoRoot        string
	IndexDir        string
	IncludeGlobs    []string
	ExcludeGlobs    []string
	DebounceMs      int
	MinRebuildGapMs int
	PollInterval    time.Duration
	IsBuilding      IsBuilding
	Trigger         BuildTrigger
}

// Watcher implements spec.md §4.6's debounced/throttled state machine
// over a github.com/fsnotify/fsnotify subscription.
type Watcher struct {
	cfg     Config
	matcher *pathmatch.Matcher
	log     *logrus.Entry

	mu            sync.Mutex
	state         State
	pending       map[string]bool
	stale         bool
	staleSince    string
	lastEventAt   string
	lastRebuildAt string
	nextRebuildAt string
	lastTrigger   time.Time

	fsw      *fsnotify.Watcher
	timer    *time.Timer
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New constructs a Watcher in the disabled state. Call Start to activate
// it.
func New(cfg Config) (*Watcher, error) {
	if cfg.DebounceMs <= 0 {
		cfg.DebounceMs = DefaultDebounceMs
	}
	if cfg.MinRebuildGapMs <= 0 {
		cfg.MinRebuildGapMs = DefaultMinRebuildGapMs
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	excludeGlobs := append([]string(nil), cfg.ExcludeGlobs...)
	if rel, err := filepath.Rel(cfg.RepoRoot, cfg.IndexDir); err == nil && !strings.HasPrefix(rel, "..") {
		excludeGlobs = append(excludeGlobs, filepath.ToSlash(rel)+"/**")
	}
	matcher, err := pathmatch.Compile(cfg.IncludeGlobs, excludeGlobs)
	if err != nil {
		return nil, err
	}

	return &Watcher{
		cfg:     cfg,
		matcher: matcher,
		log:     logrus.WithField("component", "watcher"),
		state:   StateDisabled,
		pending: map[string]bool{},
	}, nil
}

// Start transitions disabled -> idle: constructs the fsnotify
// subscription, recursively registers repo directories (skipping the
// index directory and dot-directories), and begins the event loop.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.state != StateDisabled {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := addRecursive(fsw, w.cfg.RepoRoot, w.cfg.IndexDir); err != nil {
		fsw.Close()
		return err
	}

	w.mu.Lock()
	w.fsw = fsw
	w.state = StateIdle
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.stopOnce = sync.Once{}
	stopCh := w.stopCh
	doneCh := w.doneCh
	w.mu.Unlock()

	go w.loop(stopCh, doneCh)
	go w.pollBuilding(stopCh)
	return nil
}

// Stop transitions to disabled: cancels the debounce timer, detaches the
// fsnotify subscription, and clears pending state.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.state == StateDisabled {
		w.mu.Unlock()
		return
	}
	stopCh := w.stopCh
	fsw := w.fsw
	w.mu.Unlock()

	w.stopOnce.Do(func() {
		close(stopCh)
	})
	if fsw != nil {
		fsw.Close()
	}
	if w.doneCh != nil {
		<-w.doneCh
	}

	w.mu.Lock()
	w.stopTimerLocked()
	w.state = StateDisabled
	w.pending = map[string]bool{}
	w.stale = false
	w.staleSince = ""
	w.mu.Unlock()
}

// Status returns a snapshot of the current watcher state (spec.md §3).
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	return Status{
		Enabled:       w.state != StateDisabled,
		State:         w.state,
		PendingPaths:  paths,
		Stale:         w.stale,
		StaleSince:    w.staleSince,
		LastEventAt:   w.lastEventAt,
		LastRebuildAt: w.lastRebuildAt,
		NextRebuildAt: w.nextRebuildAt,
	}
}

func (w *Watcher) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watcher event source error")
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addRecursive(w.fsw, ev.Name, w.cfg.IndexDir); err != nil {
				w.log.WithError(err).Warn("failed to watch new directory")
			}
			return // directory events are ignored (spec.md §4.6)
		}
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	rel, err := pathmatch.ToRelPosix(w.cfg.RepoRoot, ev.Name)
	if err != nil {
		return
	}
	if !w.matcher.Relevant(rel) {
		return
	}

	w.mu.Lock()
	w.pending[rel] = true
	w.stale = true
	now := utcNowISO()
	w.lastEventAt = now
	if w.staleSince == "" {
		w.staleSince = now
	}

	switch w.state {
	case StateIdle:
		w.state = StateDebouncing
		w.armTimerLocked(time.Duration(w.cfg.DebounceMs) * time.Millisecond)
	case StateDebouncing:
		w.armTimerLocked(time.Duration(w.cfg.DebounceMs) * time.Millisecond)
	case StateThrottled, StateBuilding:
		// keep accumulating; the existing timer or poller will pick it up
	}
	w.mu.Unlock()
}

// armTimerLocked must be called with w.mu held.
func (w *Watcher) armTimerLocked(d time.Duration) {
	w.stopTimerLocked()
	w.nextRebuildAt = time.Now().UTC().Add(d).Format(time.RFC3339Nano)
	w.timer = time.AfterFunc(d, w.onTimerFire)
}

func (w *Watcher) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// onTimerFire runs when a debounce or throttle timer expires (spec.md
// §4.6). It is invoked off the event loop goroutine by time.AfterFunc.
func (w *Watcher) onTimerFire() {
	w.mu.Lock()
	if w.state != StateDebouncing && w.state != StateThrottled {
		w.mu.Unlock()
		return
	}

	if w.cfg.IsBuilding != nil && w.cfg.IsBuilding() {
		w.state = StateBuilding
		w.mu.Unlock()
		return
	}

	gap := time.Duration(w.cfg.MinRebuildGapMs) * time.Millisecond
	elapsed := time.Since(w.lastTrigger)
	if !w.lastTrigger.IsZero() && elapsed < gap {
		remaining := gap - elapsed
		w.state = StateThrottled
		w.armTimerLocked(remaining)
		w.mu.Unlock()
		return
	}
	triggered := w.pending
	w.pending = map[string]bool{}
	w.mu.Unlock()

	started := false
	if w.cfg.Trigger != nil {
		started = w.cfg.Trigger()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if started {
		w.lastTrigger = time.Now()
		w.state = StateBuilding
	} else {
		for p := range triggered {
			w.pending[p] = true
		}
		w.state = StateDebouncing
		w.armTimerLocked(time.Duration(w.cfg.DebounceMs) * time.Millisecond)
	}
}

// pollBuilding watches for the building state's completion, per spec.md
// §4.6's "background poller observes is_building() transitioning to
// false". It runs for the lifetime of the watcher, only acting while in
// StateBuilding.
func (w *Watcher) pollBuilding(stopCh chan struct{}) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			w.checkBuildCompletion()
		}
	}
}

func (w *Watcher) checkBuildCompletion() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateBuilding {
		return
	}
	if w.cfg.IsBuilding != nil && w.cfg.IsBuilding() {
		return
	}

	w.lastRebuildAt = utcNowISO()
	if len(w.pending) > 0 {
		w.state = StateDebouncing
		w.armTimerLocked(time.Duration(w.cfg.DebounceMs) * time.Millisecond)
		return
	}
	w.state = StateIdle
	w.stale = false
	w.staleSince = ""
	w.pending = map[string]bool{}
}

// addRecursive adds root and all its subdirectories to fsw, skipping the
// index directory and any dot-directory, mirroring the teacher's
// addDirectoriesRecursively.
func addRecursive(fsw *fsnotify.Watcher, root, indexDir string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		name := info.Name()
		if strings.HasPrefix(name, ".") && path != root {
			return filepath.SkipDir
		}
		if indexDir != "" && samePath(path, indexDir) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return nil
		}
		return nil
	})
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}
