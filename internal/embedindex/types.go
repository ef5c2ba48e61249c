// Package embedindex implements the per-project hybrid semantic+keyword
// index: chunk documents, their embedding vectors, an FTS5 keyword index,
// and the build/search/context operations over them. Grounded on
// core/index.py's CodeIndex, with the incremental reuse gate, role/intent
// reweighting, and primer handling added per spec.md §4.2/§4.3 (not
// present in core/index.py's reference build/search, which embeds every
// file every time and has no role or primer concept).
package embedindex

import "github.com/EricBintner/codrag/internal/chunk"

// Document is the persisted record for one chunk (spec.md §3 Chunk),
// plus the file_hash needed to decide incremental reuse.
type Document struct {
	ID         string     `json:"id"`
	SourcePath string     `json:"source_path"`
	FileHash   string     `json:"file_hash"`
	Role       chunk.Role `json:"role"`
	Section    string     `json:"section"`
	Span       chunk.Span `json:"span"`
	Content    string     `json:"content"`
}

// BuildStats is the embedded "build" object of the manifest (spec.md §3).
type BuildStats struct {
	Mode           string `json:"mode"`
	FilesTotal     int    `json:"files_total"`
	FilesReused    int    `json:"files_reused"`
	FilesEmbedded  int    `json:"files_embedded"`
	ChunksTotal    int    `json:"chunks_total"`
	ChunksReused   int    `json:"chunks_reused"`
	ChunksEmbedded int    `json:"chunks_embedded"`
}

// Config is the manifest's config snapshot (spec.md §3).
type Config struct {
	IncludeGlobs []string           `json:"include_globs"`
	ExcludeGlobs []string           `json:"exclude_globs"`
	MaxFileBytes int64              `json:"max_file_bytes"`
	RoleWeights  map[string]float64 `json:"role_weights"`
}

// Manifest is the persisted embedding-index manifest (spec.md §3).
type Manifest struct {
	Version      string     `json:"version"`
	BuiltAt      string     `json:"built_at"`
	Model        string     `json:"model"`
	Roots        []string   `json:"roots"`
	Count        int        `json:"count"`
	EmbeddingDim int        `json:"embedding_dim"`
	Build        BuildStats `json:"build"`
	Config       Config     `json:"config"`
}

// SearchResult is one ranked chunk returned by Search.
type SearchResult struct {
	Document Document
	Score    float64
}

// BuildInput carries everything Build needs beyond the previously loaded
// index (spec.md §4.2 inputs).
type BuildInput struct {
	RepoRoot      string
	IncludeGlobs  []string
	ExcludeGlobs  []string
	SelectedRoots []string
	MaxFileBytes  int64
	RoleWeights   map[string]float64

	// Progress, when set, is called after each candidate file is either
	// reused or (re)chunked and embedded, with the file's repo-relative
	// path and the total candidate count. Optional; callers that don't
	// care about progress (tests, the engine's non-interactive paths)
	// leave it nil.
	Progress func(done, total int, path string)
}
