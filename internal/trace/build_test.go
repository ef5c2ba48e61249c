package trace

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBuildExtractsSymbolsAndContainsEdges(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"pkg/mod.py": "" +
			"class Greeter:\n" +
			"    def hello(self, name):\n" +
			"        return \"hi \" + name\n" +
			"\n" +
			"def standalone():\n" +
			"    pass\n",
	})

	manifest, err := Build(BuildInput{RepoRoot: root, IncludeGlobs: []string{"**/*.py"}})
	if err != nil {
		t.Fatal(err)
	}
	if manifest.Counts.FilesParsed != 1 {
		t.Fatalf("expected 1 file parsed, got %d", manifest.Counts.FilesParsed)
	}
	if manifest.Counts.Nodes == 0 || manifest.Counts.Edges == 0 {
		t.Fatalf("expected nodes and edges, got %+v", manifest.Counts)
	}
}

func TestBuildResolvesLocalImports(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"pkg/__init__.py": "",
		"pkg/util.py":     "def helper():\n    return 1\n",
		"pkg/main.py":     "from pkg.util import helper\n\ndef run():\n    return helper()\n",
	})

	_, nodes, edges, err := BuildAndPersist(filepath.Join(root, ".codrag"), BuildInput{
		RepoRoot:     root,
		IncludeGlobs: []string{"**/*.py"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var sawImportEdge bool
	for _, e := range edges {
		if e.Kind == "imports" && e.Source == "file:pkg/main.py" && e.Target == "file:pkg/util.py" {
			sawImportEdge = true
		}
	}
	if !sawImportEdge {
		t.Fatalf("expected an imports edge from pkg/main.py to pkg/util.py, got edges: %+v", edges)
	}

	var sawUtilNode bool
	for _, n := range nodes {
		if n.ID == "file:pkg/util.py" {
			sawUtilNode = true
		}
	}
	if !sawUtilNode {
		t.Fatal("expected a file node for pkg/util.py")
	}
}

func TestBuildExternalImportBecomesExternalModuleNode(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"main.py": "import requests\n\ndef fetch():\n    return requests.get(\"x\")\n",
	})

	_, nodes, edges, err := BuildAndPersist(filepath.Join(root, ".codrag"), BuildInput{
		RepoRoot:     root,
		IncludeGlobs: []string{"**/*.py"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var sawExternalNode bool
	for _, n := range nodes {
		if n.ID == "ext:requests" && n.Kind == "external_module" {
			sawExternalNode = true
		}
	}
	if !sawExternalNode {
		t.Fatalf("expected an external_module node for requests, got nodes: %+v", nodes)
	}

	var sawExternalEdge bool
	for _, e := range edges {
		if e.Kind == "imports" && e.Target == "ext:requests" {
			sawExternalEdge = true
		}
	}
	if !sawExternalEdge {
		t.Fatal("expected an imports edge to ext:requests")
	}
}

func TestBuildAndPersistWritesSortedDeterministicOutput(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.py": "def a():\n    pass\n",
		"b.py": "def b():\n    pass\n",
	})
	indexDir := filepath.Join(root, ".codrag")

	m1, nodes1, edges1, err := BuildAndPersist(indexDir, BuildInput{RepoRoot: root, IncludeGlobs: []string{"**/*.py"}})
	if err != nil {
		t.Fatal(err)
	}
	m2, nodes2, edges2, err := BuildAndPersist(indexDir, BuildInput{RepoRoot: root, IncludeGlobs: []string{"**/*.py"}})
	if err != nil {
		t.Fatal(err)
	}

	if m1.Counts != m2.Counts {
		t.Fatalf("expected identical counts across rebuilds, got %+v vs %+v", m1.Counts, m2.Counts)
	}
	if len(nodes1) != len(nodes2) || len(edges1) != len(edges2) {
		t.Fatal("expected identical node/edge counts across rebuilds")
	}
	for i := range nodes1 {
		if nodes1[i].ID != nodes2[i].ID {
			t.Fatalf("expected identical node order at index %d: %s vs %s", i, nodes1[i].ID, nodes2[i].ID)
		}
	}

	for _, name := range []string{"trace_nodes.jsonl", "trace_edges.jsonl", "trace_manifest.json"} {
		if _, err := os.Stat(filepath.Join(indexDir, name)); err != nil {
			t.Fatalf("expected %s on disk: %v", name, err)
		}
	}
}

func TestBuildToleratesMalformedSource(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"broken.py": "def broken(:\n    pass\n",
		"ok.py":     "def ok():\n    pass\n",
	})

	manifest, err := Build(BuildInput{RepoRoot: root, IncludeGlobs: []string{"**/*.py"}})
	if err != nil {
		t.Fatal(err)
	}
	if manifest.Counts.FilesParsed+manifest.Counts.FilesFailed != 2 {
		t.Fatalf("expected both files accounted for, got %+v", manifest.Counts)
	}
}
