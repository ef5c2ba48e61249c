package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/EricBintner/codrag/internal/buildpipeline"
	"github.com/EricBintner/codrag/internal/ids"
	"github.com/EricBintner/codrag/internal/pathmatch"
)

var traceLog = logrus.WithField("component", "trace")

const (
	DefaultMaxFileBytes = int64(500_000)
	DefaultMaxFiles     = 20000
	DefaultMaxNodes     = 200000
	DefaultMaxEdges     = 400000
	DefaultMaxFailures  = 100
)

// BuildInput carries spec.md §4.5's inputs to Build.
type BuildInput struct {
	RepoRoot     string
	IncludeGlobs []string
	ExcludeGlobs []string
	MaxFileBytes int64
	MaxFiles     int
	MaxNodes     int
	MaxEdges     int
	MaxFailures  int
}

func (in *BuildInput) applyDefaults() {
	if in.MaxFileBytes <= 0 {
		in.MaxFileBytes = DefaultMaxFileBytes
	}
	if in.MaxFiles <= 0 {
		in.MaxFiles = DefaultMaxFiles
	}
	if in.MaxNodes <= 0 {
		in.MaxNodes = DefaultMaxNodes
	}
	if in.MaxEdges <= 0 {
		in.MaxEdges = DefaultMaxEdges
	}
	if in.MaxFailures <= 0 {
		in.MaxFailures = DefaultMaxFailures
	}
}

// enumerateFiles walks repoRoot for matcher-relevant, non-symlink regular
// files under maxFileBytes, sorted lexicographically — the same
// discipline embedindex's enumeration uses (spec.md §4.5 step 1).
func enumerateFiles(repoRoot string, matcher *pathmatch.Matcher, maxFileBytes int64, maxFiles int) ([]string, error) {
	var out []string
	err := filepath.Walk(repoRoot, func(path string, info os.FileInfo, walkErr error) error {
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
		if !matcher.Relevant(rel) {
			return nil
		}
		if info.Size() > maxFileBytes {
			return nil
		}
		out = append(out, rel)
		if len(out) >= maxFiles {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Build performs spec.md §4.5's full trace extraction algorithm without
// persisting anything, returning the manifest alone — used by tests and
// by callers that only want a dry run. BuildAndPersist is the normal
// entry point.
func Build(in BuildInput) (Manifest, error) {
	in.applyDefaults()
	absRoot, err := filepath.Abs(in.RepoRoot)
	if err != nil {
		return Manifest{}, err
	}
	matcher, err := pathmatch.Compile(in.IncludeGlobs, in.ExcludeGlobs)
	if err != nil {
		return Manifest{}, err
	}
	relFiles, err := enumerateFiles(absRoot, matcher, in.MaxFileBytes, in.MaxFiles)
	if err != nil {
		return Manifest{}, err
	}
	manifest, _, _, err := buildGraph(absRoot, relFiles, in)
	if err != nil {
		return manifest, fmt.Errorf("trace validation failed: %w", err)
	}
	return manifest, nil
}

// BuildAndPersist runs Build and, on success, writes nodes/edges/manifest
// to indexDir through the atomic pipeline (spec.md §4.4/§4.5 step 6). On
// validation failure it still persists a manifest carrying last_error,
// but never touches an existing nodes/edges file.
func BuildAndPersist(indexDir string, in BuildInput) (Manifest, []Node, []Edge, error) {
	in.applyDefaults()
	absRoot, err := filepath.Abs(in.RepoRoot)
	if err != nil {
		return Manifest{}, nil, nil, err
	}

	matcher, err := pathmatch.Compile(in.IncludeGlobs, in.ExcludeGlobs)
	if err != nil {
		return Manifest{}, nil, nil, err
	}
	relFiles, err := enumerateFiles(absRoot, matcher, in.MaxFileBytes, in.MaxFiles)
	if err != nil {
		return Manifest{}, nil, nil, err
	}

	manifest, nodes, edges, buildErr := buildGraph(absRoot, relFiles, in)
	if buildErr != nil {
		// Validation failure: write a manifest with last_error but leave
		// any existing nodes/edges files untouched (spec.md §4.5 step 5).
		staging, stErr := buildpipeline.BeginMerge(indexDir)
		if stErr == nil {
			if data, mErr := json.MarshalIndent(manifest, "", "  "); mErr == nil {
				staging.WriteFile("trace_manifest.json", data)
			}
			staging.Commit()
		}
		return manifest, nil, nil, buildErr
	}

	staging, err := buildpipeline.BeginMerge(indexDir)
	if err != nil {
		return Manifest{}, nil, nil, err
	}

	nodesData, err := serializeJSONL(nodes)
	if err != nil {
		staging.Abort()
		return Manifest{}, nil, nil, err
	}
	if err := staging.WriteFile("trace_nodes.jsonl", nodesData); err != nil {
		staging.Abort()
		return Manifest{}, nil, nil, err
	}

	edgesData, err := serializeJSONL(edges)
	if err != nil {
		staging.Abort()
		return Manifest{}, nil, nil, err
	}
	if err := staging.WriteFile("trace_edges.jsonl", edgesData); err != nil {
		staging.Abort()
		return Manifest{}, nil, nil, err
	}

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		staging.Abort()
		return Manifest{}, nil, nil, err
	}
	if err := staging.WriteFile("trace_manifest.json", manifestData); err != nil {
		staging.Abort()
		return Manifest{}, nil, nil, err
	}

	if err := staging.Commit(); err != nil {
		return Manifest{}, nil, nil, err
	}

	return manifest, nodes, edges, nil
}

// buildGraph is Build's core, factored out so BuildAndPersist can retain
// the in-memory nodes/edges slices without re-reading them from disk.
func buildGraph(absRoot string, relFiles []string, in BuildInput) (Manifest, []Node, []Edge, error) {
	b := &builder{maxNodes: in.MaxNodes, maxEdges: in.MaxEdges, maxFailures: in.MaxFailures}
	b.nodes = map[string]Node{}
	b.externalModules = map[string]bool{}

	filesParsed := 0
	for _, rel := range relFiles {
		if b.atCap() {
			traceLog.WithField("repo_root", absRoot).Warn("trace build hit node/edge cap, stopping scan")
			break
		}
		ext := strings.ToLower(filepath.Ext(rel))
		lang := detectLanguage(ext)

		fileNodeID := ids.StableFileNodeID(rel)
		b.addNode(Node{ID: fileNodeID, Kind: "file", Name: filepath.Base(rel), FilePath: rel, Language: lang, Metadata: map[string]interface{}{}})

		if lang != "python" {
			filesParsed++
			continue
		}

		absPath := filepath.Join(absRoot, rel)
		content, readErr := os.ReadFile(absPath)
		if readErr != nil {
			b.recordFailure(rel, "read_error", readErr.Error())
			continue
		}

		symbols, imports, parseErr := parsePython(content)
		if parseErr != nil {
			b.recordFailure(rel, "parse_error", parseErr.Error())
			continue
		}

		for _, sym := range symbols {
			symID := ids.StableSymbolNodeID(sym.qualname, rel, sym.startLine)
			meta := map[string]interface{}{
				"qualname":   sym.qualname,
				"public":     !strings.HasPrefix(sym.name, "_"),
				"decorators": sym.decorators,
				"docstring":  sym.docstring,
			}
			b.addNode(Node{
				ID: symID, Kind: "symbol", Name: sym.name, FilePath: rel,
				Span:     &Span{StartLine: sym.startLine, EndLine: sym.endLine},
				Language: lang, Metadata: mergeKind(meta, sym.kind),
			})
			b.addEdge(Edge{
				ID:       ids.StableEdgeID("contains", fileNodeID, symID, ""),
				Kind:     "contains",
				Source:   fileNodeID,
				Target:   symID,
				Metadata: map[string]interface{}{"confidence": 1.0},
			})
		}

		for _, imp := range imports {
			resolvedRel, ok := resolveImport(absRoot, rel, imp)
			disambiguator := imp.module + ":" + strconv.Itoa(imp.line)
			if ok {
				targetID := ids.StableFileNodeID(resolvedRel)
				if _, exists := b.nodes[targetID]; !exists {
					b.addNode(Node{ID: targetID, Kind: "file", Name: filepath.Base(resolvedRel), FilePath: resolvedRel, Metadata: map[string]interface{}{}})
				}
				b.addEdge(Edge{
					ID:       ids.StableEdgeID("imports", fileNodeID, targetID, disambiguator),
					Kind:     "imports",
					Source:   fileNodeID,
					Target:   targetID,
					Metadata: map[string]interface{}{"confidence": 1.0, "line": imp.line},
				})
				continue
			}

			extID := ids.StableExternalModuleID(imp.module)
			if !b.externalModules[extID] {
				b.addNode(Node{ID: extID, Kind: "external_module", Name: imp.module, Metadata: map[string]interface{}{}})
				b.externalModules[extID] = true
			}
			b.addEdge(Edge{
				ID:       ids.StableEdgeID("imports", fileNodeID, extID, disambiguator),
				Kind:     "imports",
				Source:   fileNodeID,
				Target:   extID,
				Metadata: map[string]interface{}{"confidence": 0.5, "external": true, "line": imp.line},
			})
		}
		filesParsed++
	}

	nodes := b.sortedNodes()
	edges := b.sortedEdges()

	manifest := Manifest{
		Version:  ManifestVersion,
		BuiltAt:  time.Now().UTC().Format(time.RFC3339),
		RepoRoot: absRoot,
		Config: ManifestConfig{
			IncludeGlobs: in.IncludeGlobs,
			ExcludeGlobs: in.ExcludeGlobs,
			MaxFileBytes: in.MaxFileBytes,
		},
		Counts: Counts{
			Nodes:       len(nodes),
			Edges:       len(edges),
			FilesParsed: filesParsed,
			FilesFailed: len(b.failures),
		},
		FileErrors: b.failures,
	}

	if err := validate(nodes, edges); err != nil {
		msg := err.Error()
		manifest.Counts = Counts{}
		manifest.LastError = &msg
		return manifest, nil, nil, err
	}

	return manifest, nodes, edges, nil
}

func mergeKind(meta map[string]interface{}, kind string) map[string]interface{} {
	meta["symbol_kind"] = kind
	return meta
}

type builder struct {
	nodes           map[string]Node
	edges           []Edge
	edgeIDs         map[string]bool
	externalModules map[string]bool
	failures        []FileError
	maxNodes        int
	maxEdges        int
	maxFailures     int
}

func (b *builder) addNode(n Node) {
	if len(b.nodes) >= b.maxNodes {
		return
	}
	if _, exists := b.nodes[n.ID]; exists {
		return
	}
	b.nodes[n.ID] = n
}

func (b *builder) addEdge(e Edge) {
	if b.edgeIDs == nil {
		b.edgeIDs = map[string]bool{}
	}
	if len(b.edges) >= b.maxEdges {
		return
	}
	if b.edgeIDs[e.ID] {
		return
	}
	b.edgeIDs[e.ID] = true
	b.edges = append(b.edges, e)
}

func (b *builder) recordFailure(path, errType, msg string) {
	if len(b.failures) >= b.maxFailures {
		return
	}
	b.failures = append(b.failures, FileError{FilePath: path, ErrorType: errType, Message: msg})
}

func (b *builder) atCap() bool {
	return len(b.nodes) >= b.maxNodes || len(b.edges) >= b.maxEdges
}

var kindOrder = map[string]int{"file": 0, "symbol": 1, "external_module": 2}

// sortedNodes orders nodes by (kind-order, file_path, start_line, name)
// per spec.md §4.5 step 6.
func (b *builder) sortedNodes() []Node {
	out := make([]Node, 0, len(b.nodes))
	for _, n := range b.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		a, c := out[i], out[j]
		if kindOrder[a.Kind] != kindOrder[c.Kind] {
			return kindOrder[a.Kind] < kindOrder[c.Kind]
		}
		if a.FilePath != c.FilePath {
			return a.FilePath < c.FilePath
		}
		aLine, cLine := 0, 0
		if a.Span != nil {
			aLine = a.Span.StartLine
		}
		if c.Span != nil {
			cLine = c.Span.StartLine
		}
		if aLine != cLine {
			return aLine < cLine
		}
		return a.Name < c.Name
	})
	return out
}

// sortedEdges orders edges by (kind, source, target, id) per spec.md §4.5
// step 6.
func (b *builder) sortedEdges() []Edge {
	out := append([]Edge(nil), b.edges...)
	sort.Slice(out, func(i, j int) bool {
		a, c := out[i], out[j]
		if a.Kind != c.Kind {
			return a.Kind < c.Kind
		}
		if a.Source != c.Source {
			return a.Source < c.Source
		}
		if a.Target != c.Target {
			return a.Target < c.Target
		}
		return a.ID < c.ID
	})
	return out
}

// resolveImport resolves a Python import to a repo-relative file path per
// spec.md §4.5 step 3: absolute imports try "<parts>.py" then
// "<parts>/__init__.py" under repoRoot; relative imports start from the
// importing file's directory after walking level-1 parents.
func resolveImport(repoRoot, importingFile string, imp pyImport) (string, bool) {
	parts := strings.Split(imp.module, ".")
	if imp.module == "" {
		parts = nil
	}

	var baseDir string
	if imp.relative {
		dir := filepath.Dir(importingFile)
		for i := 0; i < imp.level-1; i++ {
			dir = filepath.Dir(dir)
		}
		baseDir = dir
	} else {
		baseDir = "."
	}

	if len(parts) == 0 {
		// "from . import x" with no module name — resolves to the
		// base directory's package __init__.py.
		candidate := filepath.ToSlash(filepath.Join(baseDir, "__init__.py"))
		if fileExists(repoRoot, candidate) {
			return candidate, true
		}
		return "", false
	}

	relPath := filepath.Join(parts...)
	candidateFile := filepath.ToSlash(filepath.Join(baseDir, relPath+".py"))
	if fileExists(repoRoot, candidateFile) {
		return candidateFile, true
	}
	candidateInit := filepath.ToSlash(filepath.Join(baseDir, relPath, "__init__.py"))
	if fileExists(repoRoot, candidateInit) {
		return candidateInit, true
	}
	return "", false
}

func fileExists(repoRoot, relPath string) bool {
	info, err := os.Stat(filepath.Join(repoRoot, filepath.FromSlash(relPath)))
	return err == nil && !info.IsDir()
}

// validate enforces spec.md §4.5 step 5: no duplicate node ids, no
// duplicate edge ids, every edge endpoint a known node id, no absolute or
// backslash-bearing file_paths.
func validate(nodes []Node, edges []Edge) error {
	seenNodes := map[string]bool{}
	for _, n := range nodes {
		if seenNodes[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seenNodes[n.ID] = true
		if n.FilePath != "" {
			if filepath.IsAbs(n.FilePath) || strings.Contains(n.FilePath, "\\") {
				return fmt.Errorf("invalid file_path on node %q: %q", n.ID, n.FilePath)
			}
		}
	}
	seenEdges := map[string]bool{}
	for _, e := range edges {
		if seenEdges[e.ID] {
			return fmt.Errorf("duplicate edge id %q", e.ID)
		}
		seenEdges[e.ID] = true
		if !seenNodes[e.Source] {
			return fmt.Errorf("edge %q source %q is not a known node", e.ID, e.Source)
		}
		if !seenNodes[e.Target] {
			return fmt.Errorf("edge %q target %q is not a known node", e.ID, e.Target)
		}
	}
	return nil
}

// serializeJSONL writes one JSON object per line, with object keys in a
// stable order, per spec.md §4.5 step 6's reproducibility requirement.
func serializeJSONL[T any](items []T) ([]byte, error) {
	var b strings.Builder
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		b.Write(data)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}
