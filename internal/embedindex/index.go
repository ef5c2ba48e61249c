package embedindex

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/EricBintner/codrag/internal/embedcap"
	"github.com/EricBintner/codrag/internal/ids"
	"github.com/EricBintner/codrag/internal/repopolicy"
)

// Index is the in-memory handle for one project's on-disk embedding
// index: documents, the flattened N×D vector matrix, and the manifest.
// Reads never block a concurrent Build — Build persists to a staging
// directory and swaps the in-memory snapshot only after a successful
// commit (spec.md §4.4/§5).
type Index struct {
	IndexDir string
	Provider embedcap.Provider

	mu        sync.RWMutex
	documents []Document
	vectors   []float32 // flattened row-major N x dim
	dim       int
	manifest  Manifest
	loaded    bool
}

// New constructs an Index bound to indexDir and provider, loading any
// existing committed index from disk.
func New(indexDir string, provider embedcap.Provider) *Index {
	idx := &Index{IndexDir: indexDir, Provider: provider}
	idx.load()
	return idx
}

func (idx *Index) documentsPath() string  { return filepath.Join(idx.IndexDir, "documents.json") }
func (idx *Index) embeddingsPath() string { return filepath.Join(idx.IndexDir, "embeddings.npy") }
func (idx *Index) manifestPath() string   { return filepath.Join(idx.IndexDir, "manifest.json") }
func (idx *Index) ftsPath() string        { return filepath.Join(idx.IndexDir, "fts.sqlite3") }

// load reads documents.json and embeddings.npy from disk. Any failure to
// parse, a missing file, or a row-count mismatch between the two is
// treated as "index not loaded" (spec.md §7 Corruption) rather than an
// error — the next build regenerates cleanly.
func (idx *Index) load() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.documents = nil
	idx.vectors = nil
	idx.dim = 0
	idx.manifest = Manifest{}
	idx.loaded = false

	docsData, err := os.ReadFile(idx.documentsPath())
	if err != nil {
		return
	}
	var docs []Document
	if err := json.Unmarshal(docsData, &docs); err != nil {
		return
	}

	npyData, err := os.ReadFile(idx.embeddingsPath())
	if err != nil {
		return
	}
	flat, rows, cols, err := DecodeNpy(npyData)
	if err != nil {
		return
	}
	if rows != len(docs) {
		return
	}

	m, _ := ReadManifest(idx.manifestPath())

	idx.documents = docs
	idx.vectors = flat
	idx.dim = cols
	idx.manifest = m
	idx.loaded = true
}

// Reload re-reads the committed on-disk files, picking up a build
// committed by another process sharing this index directory.
func (idx *Index) Reload() { idx.load() }

// IsLoaded reports whether a usable committed index is present in memory.
func (idx *Index) IsLoaded() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.loaded
}

// Stats is the status snapshot core/index.py's stats() returns, extended
// with the fields spec.md §4.9's engine facade aggregates.
type Stats struct {
	Loaded         bool   `json:"loaded"`
	IndexDir       string `json:"index_dir"`
	Model          string `json:"model,omitempty"`
	BuiltAt        string `json:"built_at,omitempty"`
	TotalDocuments int    `json:"total_documents"`
	EmbeddingDim   int    `json:"embedding_dim"`
}

func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if !idx.loaded {
		return Stats{Loaded: false, IndexDir: idx.IndexDir}
	}
	return Stats{
		Loaded:         true,
		IndexDir:       idx.IndexDir,
		Model:          idx.manifest.Model,
		BuiltAt:        idx.manifest.BuiltAt,
		TotalDocuments: len(idx.documents),
		EmbeddingDim:   idx.dim,
	}
}

// GetChunk returns the document with the given chunk id, if loaded.
func (idx *Index) GetChunk(chunkID string) (Document, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, d := range idx.documents {
		if d.ID == chunkID {
			return d, true
		}
	}
	return Document{}, false
}

func fileHashOf(content string) string {
	return ids.StableFileHash(content)
}

func marshalDocuments(docs []Document) ([]byte, error) {
	return json.Marshal(docs)
}

func marshalManifest(m Manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ensurePolicyFor loads or regenerates the repo policy for indexDir/repoRoot
// without forcing regeneration, per spec.md §4.2 step 1.
func ensurePolicyFor(indexDir, repoRoot string) (*repopolicy.Policy, error) {
	return repopolicy.Ensure(indexDir, repoRoot, false)
}
