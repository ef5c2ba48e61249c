// Package buildpipeline implements the stage-then-swap atomic pipeline
// spec.md §4.4 requires every index mutation to go through: stage in a
// sibling directory, fsync every file, rename the existing index aside as
// a backup, rename staging into place, remove the backup — with recovery
// and stale-directory cleanup at startup. Grounded on spec.md §4.4's
// literal algorithm, core/trace.py's _write_atomic/_write_manifest
// per-file write discipline (temp file, flush, fsync, close, rename,
// unlink-on-exception), and the teacher's internal/indexer/writer.go for
// the Go temp-dir/rename struct shape, generalized here to whole-directory
// staging since the teacher's writer only renamed individual files.
package buildpipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
)

const staleAfter = time.Hour

// Staging represents an in-progress build's sibling staging directory.
// Callers write their output files into Dir, then call Commit to perform
// the atomic swap, or Abort to discard on failure.
type Staging struct {
	targetDir string
	Dir       string
	lock      *flock.Flock
}

// Begin creates a sibling staging directory next to targetDir, named
// `.index_build_<timestamp>`, and takes an advisory file lock guarding the
// swap against other processes touching the same target.
func Begin(targetDir string) (*Staging, error) {
	parent := filepath.Dir(targetDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return nil, fmt.Errorf("create parent dir: %w", err)
	}

	ts := time.Now().UTC().UnixNano()
	stagingDir := filepath.Join(parent, fmt.Sprintf(".index_build_%d", ts))
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	lockPath := targetDir + ".lock"
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		os.RemoveAll(stagingDir)
		return nil, fmt.Errorf("acquire build lock: %w", err)
	}
	if !locked {
		os.RemoveAll(stagingDir)
		return nil, fmt.Errorf("build already in progress for %s", targetDir)
	}

	return &Staging{targetDir: targetDir, Dir: stagingDir, lock: lock}, nil
}

// BeginMerge is like Begin, but if targetDir already exists its current
// files are copied into the new staging directory first, so a build that
// only produces a subset of an index directory's files (e.g. the trace
// builder writing trace_*.json(l) alongside an existing embedding index)
// does not clobber the files it didn't touch on commit.
func BeginMerge(targetDir string) (*Staging, error) {
	st, err := Begin(targetDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(targetDir)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		st.Abort()
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, readErr := os.ReadFile(filepath.Join(targetDir, e.Name()))
		if readErr != nil {
			continue
		}
		if writeErr := st.WriteFile(e.Name(), data); writeErr != nil {
			st.Abort()
			return nil, writeErr
		}
	}
	return st, nil
}

// WriteFile writes data to name under the staging directory with the
// write -> flush -> fsync -> close discipline spec.md §4.4 step 2 and
// core/trace.py's _write_atomic both require, so a crash mid-write never
// leaves a file the next stat/read call would see as complete-but-wrong.
func (s *Staging) WriteFile(name string, data []byte) error {
	path := filepath.Join(s.Dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Commit performs steps 3-5 of spec.md §4.4: rename any existing target
// aside as a timestamped backup, rename staging into place, then remove
// the backup. On any error it attempts to restore the backup to target so
// the live index is never left missing.
func (s *Staging) Commit() (err error) {
	defer s.lock.Unlock()

	backupDir := ""
	if _, statErr := os.Stat(s.targetDir); statErr == nil {
		backupDir = filepath.Join(filepath.Dir(s.targetDir), fmt.Sprintf(".index_backup_%d", time.Now().UTC().UnixNano()))
		if renameErr := os.Rename(s.targetDir, backupDir); renameErr != nil {
			os.RemoveAll(s.Dir)
			return fmt.Errorf("rename target to backup: %w", renameErr)
		}
	}

	if renameErr := os.Rename(s.Dir, s.targetDir); renameErr != nil {
		if backupDir != "" {
			os.Rename(backupDir, s.targetDir)
		}
		return fmt.Errorf("rename staging to target: %w", renameErr)
	}

	if backupDir != "" {
		os.RemoveAll(backupDir)
	}
	return nil
}

// Abort discards the staging directory without touching the target,
// releasing the build lock.
func (s *Staging) Abort() error {
	defer s.lock.Unlock()
	return os.RemoveAll(s.Dir)
}

// Recover promotes a lone, recent backup directory back to target if
// target is missing — the crash window between steps 3 and 4 of spec.md
// §4.4. Call at component startup before reading the index.
func Recover(targetDir string) error {
	if _, err := os.Stat(targetDir); err == nil {
		return nil // target present, nothing to recover
	}

	parent := filepath.Dir(targetDir)
	base := filepath.Base(targetDir)
	entries, err := os.ReadDir(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var candidates []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if matchesBackupOf(name, base) {
			info, statErr := e.Info()
			if statErr != nil {
				continue
			}
			if time.Since(info.ModTime()) < staleAfter {
				candidates = append(candidates, name)
			}
		}
	}

	if len(candidates) != 1 {
		return nil
	}

	return os.Rename(filepath.Join(parent, candidates[0]), targetDir)
}

// CleanStale removes sibling `.index_build_*` and `.index_backup_*`
// directories whose mtime is older than one hour, per spec.md §4.4 step 7.
func CleanStale(targetDir string) error {
	parent := filepath.Dir(targetDir)
	base := filepath.Base(targetDir)

	entries, err := os.ReadDir(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var stale []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if !matchesBuildOf(name, base) && !matchesBackupOf(name, base) {
			continue
		}
		info, statErr := e.Info()
		if statErr != nil {
			continue
		}
		if time.Since(info.ModTime()) >= staleAfter {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)
	for _, name := range stale {
		if err := os.RemoveAll(filepath.Join(parent, name)); err != nil {
			return err
		}
	}
	return nil
}

func matchesBuildOf(name, base string) bool {
	prefix := ".index_build_"
	return hasPrefixFor(name, base, prefix)
}

func matchesBackupOf(name, base string) bool {
	prefix := ".index_backup_"
	return hasPrefixFor(name, base, prefix)
}

// hasPrefixFor checks name against `<prefix><digits>` without binding it
// to base, since staging/backup dirs are siblings of the target, not
// prefixed by the target's own name.
func hasPrefixFor(name, base, prefix string) bool {
	_ = base
	if len(name) <= len(prefix) {
		return false
	}
	if name[:len(prefix)] != prefix {
		return false
	}
	for _, c := range name[len(prefix):] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
