package embedindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/EricBintner/codrag/internal/buildpipeline"
	"github.com/EricBintner/codrag/internal/chunk"
	"github.com/EricBintner/codrag/internal/embedcap"
	"github.com/EricBintner/codrag/internal/pathmatch"
	"github.com/EricBintner/codrag/internal/repoprofile"
)

const DefaultMaxFileBytes int64 = 500_000

var markdownExts = map[string]bool{".md": true, ".markdown": true}

// enumerateFiles walks repoRoot (or the selected subtrees within it),
// returning sorted repo-relative POSIX paths for regular, non-symlink
// files under maxFileBytes that the matcher accepts. Mirrors the
// discipline spec.md §4.2 step 2 and §4.5 step 1 share.
func enumerateFiles(repoRoot string, selectedRoots []string, matcher *pathmatch.Matcher, maxFileBytes int64) ([]string, error) {
	roots := selectedRoots
	if len(roots) == 0 {
		roots = []string{"."}
	}

	seen := map[string]bool{}
	var out []string

	for _, sub := range roots {
		walkRoot := filepath.Join(repoRoot, sub)
		err := filepath.Walk(walkRoot, func(path string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				return nil
			}
			if info.IsDir() {
				return nil
			}
			if info.Mode()&os.ModeSymlink != 0 {
				return nil
			}
			rel, relErr := pathmatch.ToRelPosix(repoRoot, path)
			if relErr != nil {
				return nil
			}
			if seen[rel] {
				return nil
			}
			if !matcher.Relevant(rel) {
				return nil
			}
			if info.Size() > maxFileBytes {
				return nil
			}
			seen[rel] = true
			out = append(out, rel)
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	sort.Strings(out)
	return out, nil
}

// previousChunkSet groups a loaded index's documents and vectors by
// source_path, preserving per-file ordinal order, so Build's reuse gate
// can copy them wholesale when a file's content hash is unchanged.
type previousChunkSet struct {
	docs    []Document
	vectors [][]float32
}

func groupBySourcePath(docs []Document, vectors [][]float32) map[string]previousChunkSet {
	out := map[string]previousChunkSet{}
	for i, d := range docs {
		s := out[d.SourcePath]
		s.docs = append(s.docs, d)
		s.vectors = append(s.vectors, vectors[i])
		out[d.SourcePath] = s
	}
	return out
}

func chunkTemplate(sourcePath, section, fileHash, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Path: %s\n", sourcePath)
	if section != "" {
		fmt.Fprintf(&b, "Section: %s\n", section)
	}
	fmt.Fprintf(&b, "Hash: %s\n\n%s", fileHash, content)
	return b.String()
}

// Build performs spec.md §4.2's full build algorithm: ensures a repo
// policy, enumerates candidate files, reuses unchanged files' chunks and
// vectors from the previously loaded index, re-chunks and re-embeds the
// rest, and persists the result atomically via internal/buildpipeline.
// On success it swaps the in-memory snapshot to the documents, vectors
// and manifest it just committed.
func (idx *Index) Build(ctx context.Context, in BuildInput) (Manifest, error) {
	absRoot, err := filepath.Abs(in.RepoRoot)
	if err != nil {
		return Manifest{}, err
	}

	policy, err := ensurePolicyFor(idx.IndexDir, absRoot)
	if err != nil {
		return Manifest{}, fmt.Errorf("ensure repo policy: %w", err)
	}

	includeGlobs := in.IncludeGlobs
	if len(includeGlobs) == 0 {
		includeGlobs = policy.IncludeGlobs
	}
	excludeGlobs := in.ExcludeGlobs
	if len(excludeGlobs) == 0 {
		excludeGlobs = policy.ExcludeGlobs
	}
	roleWeights := in.RoleWeights
	if len(roleWeights) == 0 {
		roleWeights = policy.RoleWeights
	}
	maxFileBytes := in.MaxFileBytes
	if maxFileBytes <= 0 {
		maxFileBytes = DefaultMaxFileBytes
	}

	matcher, err := pathmatch.Compile(includeGlobs, excludeGlobs)
	if err != nil {
		return Manifest{}, err
	}

	relFiles, err := enumerateFiles(absRoot, in.SelectedRoots, matcher, maxFileBytes)
	if err != nil {
		return Manifest{}, err
	}

	idx.mu.RLock()
	prevDocs := append([]Document(nil), idx.documents...)
	prevVectors := idx.vectorRows()
	prevModel := idx.manifest.Model
	idx.mu.RUnlock()

	reuseEligible := len(prevDocs) > 0 && prevModel == idx.Provider.ModelTag()
	prevByPath := map[string]previousChunkSet{}
	if reuseEligible {
		prevByPath = groupBySourcePath(prevDocs, prevVectors)
	}

	var docs []Document
	var vectors [][]float32
	stats := BuildStats{}
	stats.FilesTotal = len(relFiles)

	total := len(relFiles)
	for fileIdx, rel := range relFiles {
		absPath := filepath.Join(absRoot, rel)
		content, readErr := os.ReadFile(absPath)
		if readErr != nil {
			continue
		}
		fileHash := fileHashOf(string(content))

		if reuseEligible {
			if prev, ok := prevByPath[rel]; ok && len(prev.docs) > 0 && prev.docs[0].FileHash == fileHash {
				docs = append(docs, prev.docs...)
				vectors = append(vectors, prev.vectors...)
				stats.FilesReused++
				stats.ChunksReused += len(prev.docs)
				stats.ChunksTotal += len(prev.docs)
				if in.Progress != nil {
					in.Progress(fileIdx+1, total, rel)
				}
				continue
			}
		}

		role := repoprofile.ClassifyRelPath(rel)
		var chunks []chunk.Chunk
		ext := strings.ToLower(filepath.Ext(rel))
		if markdownExts[ext] {
			chunks = chunk.ChunkMarkdown(string(content), rel, fileHash, chunk.DefaultMaxChars, chunk.DefaultMinChars)
		} else {
			chunks = chunk.ChunkCode(string(content), rel, fileHash, chunk.DefaultCodeMaxChars, chunk.DefaultCodeOverlapChars)
		}

		if len(chunks) == 0 {
			continue
		}

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = chunkTemplate(c.SourcePath, c.Section, c.FileHash, c.Content)
		}

		results, embedErr := idx.Provider.EmbedBatch(ctx, texts)
		if embedErr != nil {
			return Manifest{}, fmt.Errorf("embed %s: %w", rel, embedErr)
		}

		for i, c := range chunks {
			c.Role = role
			docs = append(docs, Document{
				ID:         c.ChunkID,
				SourcePath: c.SourcePath,
				FileHash:   c.FileHash,
				Role:       c.Role,
				Section:    c.Section,
				Span:       c.Span,
				Content:    c.Content,
			})
			vectors = append(vectors, results[i].Vector)
		}
		stats.FilesEmbedded++
		stats.ChunksEmbedded += len(chunks)
		stats.ChunksTotal += len(chunks)

		if in.Progress != nil {
			in.Progress(fileIdx+1, total, rel)
		}
	}

	if len(docs) == 0 {
		return Manifest{}, fmt.Errorf("no chunks produced for %s", absRoot)
	}

	dim := idx.Provider.Dimensions()
	if dim == 0 && len(vectors) > 0 {
		dim = len(vectors[0])
	}
	flat := make([]float32, 0, len(vectors)*dim)
	for _, v := range vectors {
		flat = append(flat, v...)
	}

	mode := "full"
	if stats.FilesReused > 0 {
		mode = "incremental"
	}
	stats.Mode = mode

	roleWeightsOut := make(map[string]float64, len(roleWeights))
	for k, v := range roleWeights {
		roleWeightsOut[k] = v
	}

	manifest := Manifest{
		Version:      ManifestVersion,
		BuiltAt:      utcNowISO(),
		Model:        idx.Provider.ModelTag(),
		Roots:        append([]string(nil), in.SelectedRoots...),
		Count:        len(docs),
		EmbeddingDim: dim,
		Build:        stats,
		Config: Config{
			IncludeGlobs: includeGlobs,
			ExcludeGlobs: excludeGlobs,
			MaxFileBytes: maxFileBytes,
			RoleWeights:  roleWeightsOut,
		},
	}

	if err := idx.persist(docs, flat, dim, manifest); err != nil {
		return Manifest{}, err
	}

	idx.mu.Lock()
	idx.documents = docs
	idx.vectors = flat
	idx.dim = dim
	idx.manifest = manifest
	idx.mu.Unlock()

	return manifest, nil
}

func (idx *Index) persist(docs []Document, flat []float32, dim int, manifest Manifest) error {
	staging, err := buildpipeline.Begin(idx.IndexDir)
	if err != nil {
		return err
	}

	docsJSON, err := marshalDocuments(docs)
	if err != nil {
		staging.Abort()
		return err
	}
	if err := staging.WriteFile("documents.json", docsJSON); err != nil {
		staging.Abort()
		return err
	}

	rows := 0
	if dim > 0 {
		rows = len(flat) / dim
	}
	npyData, err := EncodeNpy(flat, rows, dim)
	if err != nil {
		staging.Abort()
		return err
	}
	if err := staging.WriteFile("embeddings.npy", npyData); err != nil {
		staging.Abort()
		return err
	}

	manifestJSON, err := marshalManifest(manifest)
	if err != nil {
		staging.Abort()
		return err
	}
	if err := staging.WriteFile("manifest.json", manifestJSON); err != nil {
		staging.Abort()
		return err
	}

	ftsPath := filepath.Join(staging.Dir, "fts.sqlite3")
	if err := rebuildFTS(ftsPath, docs); err != nil {
		// Keyword index is a best-effort boost source; continue without it.
		os.Remove(ftsPath)
	}

	return staging.Commit()
}

func (idx *Index) vectorRows() [][]float32 {
	if idx.dim == 0 || len(idx.vectors) == 0 {
		return nil
	}
	n := len(idx.vectors) / idx.dim
	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		out[i] = idx.vectors[i*idx.dim : (i+1)*idx.dim]
	}
	return out
}
