package trace

import (
	"path/filepath"
	"testing"
)

func buildAndLoad(t *testing.T, root string, files map[string]string) *Index {
	t.Helper()
	writeFiles(t, root, files)
	indexDir := filepath.Join(root, ".codrag")
	if _, _, _, err := BuildAndPersist(indexDir, BuildInput{RepoRoot: root, IncludeGlobs: []string{"**/*.py"}}); err != nil {
		t.Fatal(err)
	}
	idx, err := LoadIndex(indexDir)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestSearchNodesRanksByMatchTier(t *testing.T) {
	root := t.TempDir()
	idx := buildAndLoad(t, root, map[string]string{
		"a.py": "" +
			"def fetch():\n    pass\n" +
			"\n" +
			"def fetch_all():\n    pass\n" +
			"\n" +
			"def prefetch_data():\n    pass\n",
	})

	hits := idx.SearchNodes("fetch", "symbol", 10)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d: %+v", len(hits), hits)
	}
	if hits[0].Node.Name != "fetch" || hits[0].Score != 1.0 {
		t.Fatalf("expected exact match first, got %+v", hits[0])
	}
	if hits[1].Node.Name != "fetch_all" || hits[1].Score != 0.8 {
		t.Fatalf("expected prefix match second, got %+v", hits[1])
	}
	if hits[2].Node.Name != "prefetch_data" || hits[2].Score != 0.6 {
		t.Fatalf("expected contains match third, got %+v", hits[2])
	}
}

func TestSearchNodesNestedMethodRanksByBareNameNotQualname(t *testing.T) {
	root := t.TempDir()
	idx := buildAndLoad(t, root, map[string]string{
		"a.py": "" +
			"class Foo:\n" +
			"    def bar(self):\n        pass\n",
	})

	// The bare method name ("bar") must match exactly (score 1.0): the
	// node's Name field holds the bare name, not the qualname "Foo.bar".
	hits := idx.SearchNodes("bar", "symbol", 10)
	if len(hits) != 1 || hits[0].Score != 1.0 || hits[0].Node.Name != "bar" {
		t.Fatalf("expected exact bare-name match on %q, got %+v", "bar", hits)
	}
	if qn, _ := hits[0].Node.Metadata["qualname"].(string); qn != "Foo.bar" {
		t.Fatalf("expected metadata qualname %q, got %q", "Foo.bar", qn)
	}

	// A qualname-only substring match ("Foo.bar" as a whole, or "Foo")
	// must fall into the dedicated 0.4 tier, unreachable when Name and
	// qualname collapse into the same string.
	qualHits := idx.SearchNodes("foo.bar", "symbol", 10)
	if len(qualHits) != 1 || qualHits[0].Score != 0.4 {
		t.Fatalf("expected qualname-contains match at score 0.4, got %+v", qualHits)
	}
}

func TestSearchNodesCapsAtHardCeiling(t *testing.T) {
	root := t.TempDir()
	idx := buildAndLoad(t, root, map[string]string{"a.py": "def widget():\n    pass\n"})
	hits := idx.SearchNodes("widget", "", 1000)
	if len(hits) > MaxSearchLimit {
		t.Fatalf("expected at most %d hits, got %d", MaxSearchLimit, len(hits))
	}
}

func TestGetNodeIsDirectLookup(t *testing.T) {
	root := t.TempDir()
	idx := buildAndLoad(t, root, map[string]string{"a.py": "def widget():\n    pass\n"})
	hits := idx.SearchNodes("widget", "symbol", 1)
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	n, ok := idx.GetNode(hits[0].Node.ID)
	if !ok || n.Name != "widget" {
		t.Fatalf("expected to find widget node by id, got %+v ok=%v", n, ok)
	}
	if _, ok := idx.GetNode("does-not-exist"); ok {
		t.Fatal("expected lookup miss for unknown id")
	}
}

func TestGetNeighborsFiltersByDirectionAndKind(t *testing.T) {
	root := t.TempDir()
	idx := buildAndLoad(t, root, map[string]string{
		"pkg/util.py": "def helper():\n    return 1\n",
		"pkg/main.py": "from pkg.util import helper\n\ndef run():\n    return helper()\n",
	})

	out := idx.GetNeighbors("file:pkg/main.py", DirOut, []string{"imports"}, 10)
	if len(out) == 0 {
		t.Fatal("expected at least one outgoing imports neighbor")
	}
	for _, nb := range out {
		if nb.Edge.Kind != "imports" {
			t.Fatalf("expected only imports edges, got %s", nb.Edge.Kind)
		}
	}

	in := idx.GetNeighbors("file:pkg/util.py", DirIn, nil, 10)
	var sawMain bool
	for _, nb := range in {
		if nb.Node.FilePath == "pkg/main.py" {
			sawMain = true
		}
	}
	if !sawMain {
		t.Fatalf("expected pkg/main.py among incoming neighbors of pkg/util.py, got %+v", in)
	}

	containsOnly := idx.GetNeighbors("file:pkg/main.py", DirOut, []string{"contains"}, 10)
	if len(containsOnly) != 1 || containsOnly[0].Edge.Kind != "contains" || containsOnly[0].Node.Name != "run" {
		t.Fatalf("expected exactly the run symbol via a contains edge out of the file node, got %+v", containsOnly)
	}
}

func TestRelatedFilesFollowsOneHop(t *testing.T) {
	root := t.TempDir()
	idx := buildAndLoad(t, root, map[string]string{
		"pkg/util.py": "def helper():\n    return 1\n",
		"pkg/main.py": "from pkg.util import helper\n\ndef run():\n    return helper()\n",
	})

	related := idx.RelatedFiles("pkg/main.py", 10)
	var sawUtil bool
	for _, r := range related {
		if r == "pkg/util.py" {
			sawUtil = true
		}
	}
	if !sawUtil {
		t.Fatalf("expected pkg/util.py among related files of pkg/main.py, got %v", related)
	}

	if got := idx.RelatedFiles("does/not/exist.py", 10); got != nil {
		t.Fatalf("expected nil for an unknown source path, got %v", got)
	}
}

func TestLoadIndexOnMissingTraceFilesIsEmptyNotError(t *testing.T) {
	indexDir := t.TempDir()
	idx, err := LoadIndex(indexDir)
	if err != nil {
		t.Fatal(err)
	}
	if idx.NodeCount() != 0 {
		t.Fatalf("expected empty index, got %d nodes", idx.NodeCount())
	}
	if hits := idx.SearchNodes("anything", "", 10); len(hits) != 0 {
		t.Fatalf("expected no hits on empty index, got %+v", hits)
	}
}
