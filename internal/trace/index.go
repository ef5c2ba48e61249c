package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Direction selects which edge index get_neighbors consults.
type Direction string

const (
	DirIn   Direction = "in"
	DirOut  Direction = "out"
	DirBoth Direction = "both"
)

// MaxNeighbors is the hard ceiling on max_nodes for GetNeighbors, mirroring
// search_nodes' hard ceiling of 100 (spec.md §4.5).
const MaxNeighbors = 100

// MaxSearchLimit is search_nodes' hard ceiling regardless of the caller's
// requested limit (spec.md §4.5).
const MaxSearchLimit = 100

// SearchHit is one scored search_nodes result.
type SearchHit struct {
	Node  Node
	Score float64
}

// Neighbor pairs a resolved node with the edge that connects it to the
// queried node, per get_neighbors' contract of returning both (spec.md §4.5).
type Neighbor struct {
	Edge Edge
	Node Node
}

// Index is the in-memory, read-only view over a committed trace build:
// node-by-id lookup, incoming/outgoing edge indexes, and a file-path index
// from file_path to the node ids declared in that file. Grounded on
// core/trace.py's TraceIndex, which loads the same three files into
// equivalent dict/list structures at process start.
type Index struct {
	mu sync.RWMutex

	manifest Manifest
	nodes    map[string]Node
	byFile   map[string][]string // file_path -> node ids declared in that file
	outEdges map[string][]Edge   // source node id -> outgoing edges
	inEdges  map[string][]Edge   // target node id -> incoming edges
}

// LoadIndex reads trace_manifest.json, trace_nodes.jsonl, and
// trace_edges.jsonl from indexDir and builds the in-memory lookup
// structures. A missing trace_nodes.jsonl or trace_edges.jsonl (no trace
// build has ever succeeded) yields an empty, queryable Index rather than
// an error.
func LoadIndex(indexDir string) (*Index, error) {
	idx := &Index{
		nodes:    map[string]Node{},
		byFile:   map[string][]string{},
		outEdges: map[string][]Edge{},
		inEdges:  map[string][]Edge{},
	}

	if data, err := os.ReadFile(filepath.Join(indexDir, "trace_manifest.json")); err == nil {
		if err := json.Unmarshal(data, &idx.manifest); err != nil {
			return nil, fmt.Errorf("parsing trace_manifest.json: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	nodes, err := readNodesJSONL(filepath.Join(indexDir, "trace_nodes.jsonl"))
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		idx.nodes[n.ID] = n
		if n.FilePath != "" {
			idx.byFile[n.FilePath] = append(idx.byFile[n.FilePath], n.ID)
		}
	}

	edges, err := readEdgesJSONL(filepath.Join(indexDir, "trace_edges.jsonl"))
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		idx.outEdges[e.Source] = append(idx.outEdges[e.Source], e)
		idx.inEdges[e.Target] = append(idx.inEdges[e.Target], e)
	}

	return idx, nil
}

func readNodesJSONL(path string) ([]Node, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Node
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var n Node
		if err := json.Unmarshal([]byte(line), &n); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		out = append(out, n)
	}
	return out, scanner.Err()
}

func readEdgesJSONL(path string) ([]Edge, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Edge
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Edge
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		out = append(out, e)
	}
	return out, scanner.Err()
}

// Manifest returns the loaded trace manifest.
func (idx *Index) Manifest() Manifest {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.manifest
}

// NodeCount reports how many nodes are loaded.
func (idx *Index) NodeCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

// GetNode is a direct id lookup (spec.md §4.5 "get_node(id) is a map
// lookup").
func (idx *Index) GetNode(id string) (Node, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n, ok := idx.nodes[id]
	return n, ok
}

// SearchNodes ranks candidates by exact name match (1.0), name prefix
// (0.8), name contains (0.6), qualname contains (0.4); ties break by
// (file_path, name); results are capped at limit, hard-ceilinged at
// MaxSearchLimit (spec.md §4.5).
func (idx *Index) SearchNodes(query string, kind string, limit int) []SearchHit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if limit <= 0 || limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var hits []SearchHit
	for _, n := range idx.nodes {
		if kind != "" && n.Kind != kind {
			continue
		}
		name := strings.ToLower(n.Name)
		var score float64
		switch {
		case name == q:
			score = 1.0
		case strings.HasPrefix(name, q):
			score = 0.8
		case strings.Contains(name, q):
			score = 0.6
		default:
			if qualname, ok := n.Metadata["qualname"].(string); ok && strings.Contains(strings.ToLower(qualname), q) {
				score = 0.4
			} else {
				continue
			}
		}
		hits = append(hits, SearchHit{Node: n, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Node.FilePath != b.Node.FilePath {
			return a.Node.FilePath < b.Node.FilePath
		}
		return a.Node.Name < b.Node.Name
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// GetNeighbors consults the incoming and/or outgoing edge indexes for id,
// optionally filtered by edge kind, truncated per direction to maxNodes
// (hard-ceilinged at MaxNeighbors), and returns both the edges and their
// resolved node records (spec.md §4.5).
func (idx *Index) GetNeighbors(id string, direction Direction, edgeKinds []string, maxNodes int) []Neighbor {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if maxNodes <= 0 || maxNodes > MaxNeighbors {
		maxNodes = MaxNeighbors
	}

	var kindSet map[string]bool
	if len(edgeKinds) > 0 {
		kindSet = make(map[string]bool, len(edgeKinds))
		for _, k := range edgeKinds {
			kindSet[k] = true
		}
	}

	var out []Neighbor
	appendSide := func(edges []Edge, otherID func(Edge) string) {
		taken := 0
		for _, e := range edges {
			if taken >= maxNodes {
				return
			}
			if kindSet != nil && !kindSet[e.Kind] {
				continue
			}
			otherNode, ok := idx.nodes[otherID(e)]
			if !ok {
				continue
			}
			out = append(out, Neighbor{Edge: e, Node: otherNode})
			taken++
		}
	}

	if direction == DirOut || direction == DirBoth {
		appendSide(idx.outEdges[id], func(e Edge) string { return e.Target })
	}
	if direction == DirIn || direction == DirBoth {
		appendSide(idx.inEdges[id], func(e Edge) string { return e.Source })
	}
	return out
}

// RelatedFiles satisfies embedindex.TraceExpander: given a chunk's source
// path, it returns the repo-relative paths of files connected to that
// path's file node by one hop of any edge kind, used to pull in
// import/containment neighbors when assembling retrieval context.
func (idx *Index) RelatedFiles(sourcePath string, nodeCap int) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	fileNodeID := "file:" + sourcePath
	if _, ok := idx.nodes[fileNodeID]; !ok {
		return nil
	}
	if nodeCap <= 0 || nodeCap > MaxNeighbors {
		nodeCap = MaxNeighbors
	}

	seen := map[string]bool{sourcePath: true}
	var out []string
	collect := func(edges []Edge, otherID func(Edge) string) {
		for _, e := range edges {
			if len(out) >= nodeCap {
				return
			}
			other, ok := idx.nodes[otherID(e)]
			if !ok || other.FilePath == "" || seen[other.FilePath] {
				continue
			}
			seen[other.FilePath] = true
			out = append(out, other.FilePath)
		}
	}
	collect(idx.outEdges[fileNodeID], func(e Edge) string { return e.Target })
	if len(out) < nodeCap {
		collect(idx.inEdges[fileNodeID], func(e Edge) string { return e.Source })
	}
	sort.Strings(out)
	return out
}
