// Package trace builds and queries the language-structural trace graph:
// file/symbol/external_module nodes and contains/imports edges extracted
// from source files, persisted as sorted JSONL with a manifest. Grounded
// on core/trace.py's TraceBuilder/PythonAnalyzer/TraceIndex, with Python
// AST traversal replaced by github.com/tree-sitter/go-tree-sitter +
// github.com/tree-sitter/tree-sitter-python (the teacher's
// internal/indexer/parsers/python.go shows the same parser/grammar pair
// used against the same stable node fields: name, parameters,
// return_type, body).
package trace

// Node is one trace graph node (spec.md §3 Trace node).
type Node struct {
	ID       string                 `json:"id"`
	Kind     string                 `json:"kind"` // file | symbol | external_module
	Name     string                 `json:"name"`
	FilePath string                 `json:"file_path"`
	Span     *Span                  `json:"span"`
	Language string                 `json:"language,omitempty"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Span is a 1-based inclusive line range.
type Span struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// Edge is one trace graph edge (spec.md §3 Trace edge).
type Edge struct {
	ID       string                 `json:"id"`
	Kind     string                 `json:"kind"` // contains | imports | calls | implements | documented_by
	Source   string                 `json:"source"`
	Target   string                 `json:"target"`
	Metadata map[string]interface{} `json:"metadata"`
}

// FileError is one entry of the manifest's capped file_errors list.
type FileError struct {
	FilePath  string `json:"file_path"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// Counts is the manifest's counts object.
type Counts struct {
	Nodes       int `json:"nodes"`
	Edges       int `json:"edges"`
	FilesParsed int `json:"files_parsed"`
	FilesFailed int `json:"files_failed"`
}

// ManifestConfig is the manifest's config snapshot.
type ManifestConfig struct {
	IncludeGlobs []string `json:"include_globs"`
	ExcludeGlobs []string `json:"exclude_globs"`
	MaxFileBytes int64    `json:"max_file_bytes"`
}

// Manifest is the persisted trace manifest (spec.md §3).
type Manifest struct {
	Version    string         `json:"version"`
	BuiltAt    string         `json:"built_at"`
	RepoRoot   string         `json:"repo_root"`
	Config     ManifestConfig `json:"config"`
	Counts     Counts         `json:"counts"`
	FileErrors []FileError    `json:"file_errors"`
	LastError  *string        `json:"last_error"`
}

const ManifestVersion = "1.0"

var supportedExtensions = map[string]string{
	".py":  "python",
	".ts":  "typescript",
	".tsx": "typescript",
	".js":  "javascript",
	".jsx": "javascript",
	".go":  "go",
	".rs":  "rust",
}

// detectLanguage maps a file extension to a trace language tag, or ""
// when unrecognized (spec.md §4.5 step 2).
func detectLanguage(ext string) string {
	return supportedExtensions[ext]
}
