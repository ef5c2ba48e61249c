package repoprofile

import (
	"path"
	"strings"

	"github.com/EricBintner/codrag/internal/chunk"
)

// ClassifyRelPath assigns a role to a repo-relative path: tests if any path
// segment is a test-directory name; else docs if its extension is a doc
// extension or any segment is a docs-directory name; else code similarly;
// else other. Per spec.md §4.8, ported from classify_rel_path.
func ClassifyRelPath(relPath string) chunk.Role {
	p := strings.ToLower(strings.ReplaceAll(relPath, "\\", "/"))
	parts := nonEmptyParts(p)

	for _, part := range parts {
		if testDirNames[part] {
			return chunk.RoleTests
		}
	}

	ext := path.Ext(p)
	if docExts[ext] {
		return chunk.RoleDocs
	}
	for _, part := range parts {
		if docDirNames[part] {
			return chunk.RoleDocs
		}
	}

	if codeExts[ext] {
		return chunk.RoleCode
	}
	for _, part := range parts {
		if codeDirNames[part] {
			return chunk.RoleCode
		}
	}

	return chunk.RoleOther
}

// ClassifyDirName classifies a top-level directory name on its own,
// returning a role and confidence. Per spec.md §4.8, ported from
// classify_dir_name.
func ClassifyDirName(name string) (chunk.Role, float64) {
	n := strings.ToLower(strings.Trim(name, "/"))
	switch {
	case docDirNames[n]:
		return chunk.RoleDocs, 0.9
	case testDirNames[n]:
		return chunk.RoleTests, 0.9
	case codeDirNames[n]:
		return chunk.RoleCode, 0.9
	default:
		return chunk.RoleOther, 0.5
	}
}

func nonEmptyParts(p string) []string {
	raw := strings.Split(p, "/")
	out := raw[:0]
	for _, r := range raw {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}
