// Package repoprofile deterministically inspects a repository root and
// recommends include/exclude globs, per-path role labels, and default role
// weights (spec.md §4.8). Vocabularies are ported from
// core/repo_profile.py since spec.md specifies the algorithm shape but not
// every vocabulary entry.
package repoprofile

import "github.com/EricBintner/codrag/internal/chunk"

var defaultExcludeDirNames = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true, ".venv": true,
	"venv": true, "dist": true, "build": true, "target": true,
	".next": true, ".cache": true, ".mypy_cache": true, ".ruff_cache": true,
}

var docDirNames = map[string]bool{
	"docs": true, "doc": true, "documentation": true, "design": true,
	"spec": true, "specs": true, "architecture": true, "arch": true,
	"adr": true, "adrs": true, "decisions": true, "decision": true,
	"rfc": true, "rfcs": true,
}

var testDirNames = map[string]bool{
	"test": true, "tests": true, "__tests__": true, "testing": true,
}

var codeDirNames = map[string]bool{
	"src": true, "lib": true, "app": true, "apps": true, "packages": true,
	"pkg": true, "server": true, "client": true, "ui": true,
	"frontend": true, "backend": true, "cmd": true,
}

// DefaultRoleWeights are the profiler's recommended per-role multipliers,
// also the defaults used by embedindex search when a project has no
// explicit override.
var DefaultRoleWeights = map[chunk.Role]float64{
	chunk.RoleCode:  1.00,
	chunk.RoleDocs:  0.95,
	chunk.RoleTests: 0.98,
	chunk.RoleOther: 0.90,
}

var markerFiles = []string{
	"pyproject.toml", "requirements.txt", "setup.py", "package.json",
	"pnpm-lock.yaml", "yarn.lock", "go.mod", "Cargo.toml", "pom.xml",
	"build.gradle", "Makefile",
}

var codeExts = map[string]bool{
	".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".go": true, ".rs": true, ".java": true, ".kt": true, ".kts": true,
	".c": true, ".h": true, ".cc": true, ".cpp": true, ".hpp": true, ".cs": true,
}

var docExts = map[string]bool{
	".md": true, ".markdown": true, ".rst": true, ".txt": true,
}
