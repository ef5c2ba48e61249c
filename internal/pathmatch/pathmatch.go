// Package pathmatch centralizes glob include/exclude matching so the
// chunker's file enumeration, the watcher's relevance filter, and the trace
// builder all agree byte-for-byte on which paths are in scope. The repo
// profiler does not use it; it prunes directories by a fixed set of names.
package pathmatch

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher holds compiled include and exclude glob sets over POSIX relative
// paths. An empty include set matches everything (subject to exclude).
type Matcher struct {
	include []glob.Glob
	exclude []glob.Glob
}

// Compile compiles the given include/exclude glob pattern strings. Patterns
// use '/' as the path separator regardless of host OS.
func Compile(includeGlobs, excludeGlobs []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range includeGlobs {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		m.include = append(m.include, g)
	}
	for _, p := range excludeGlobs {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		m.exclude = append(m.exclude, g)
	}
	return m, nil
}

// ToRelPosix normalizes an absolute or root-relative OS path into a POSIX
// relative path suitable for matching, given the repo root.
func ToRelPosix(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Relevant reports whether relPosix should be considered in scope: exclude
// globs take priority (including the directory-suffix "/**" trick: relPosix
// with "/**" appended is also tested, so a directory's own path is excluded
// by a "dir/**" pattern), then include globs must match unless the include
// set is empty.
func (m *Matcher) Relevant(relPosix string) bool {
	if m.matchesAny(m.exclude, relPosix) {
		return false
	}
	if m.matchesAny(m.exclude, strings.TrimSuffix(relPosix, "/")+"/**") {
		return false
	}
	if len(m.include) == 0 {
		return true
	}
	return m.matchesAny(m.include, relPosix)
}

func (m *Matcher) matchesAny(patterns []glob.Glob, path string) bool {
	for _, p := range patterns {
		if p.Match(path) {
			return true
		}
	}
	return false
}
