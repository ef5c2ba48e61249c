package embedindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/EricBintner/codrag/internal/embedcap"
)

func writeRepo(t *testing.T, root string, files map[string]string) {
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

func TestBuildProducesDocumentsAndVectors(t *testing.T) {
	repoRoot := t.TempDir()
	writeRepo(t, repoRoot, map[string]string{
		"main.py":   "def main():\n    return \"hello world\"\n",
		"utils.py":  "def add(a, b):\n    return a + b\n",
		"README.md": "# Title\n\nShort readme.\n",
	})
	indexDir := t.TempDir()

	provider := embedcap.NewFakeProvider("fake-embed", 16)
	idx := New(indexDir, provider)

	manifest, err := idx.Build(context.Background(), BuildInput{
		RepoRoot:     repoRoot,
		IncludeGlobs: []string{"**/*.py", "**/*.md"},
		ExcludeGlobs: []string{"**/.git/**"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if manifest.Count < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", manifest.Count)
	}
	if manifest.Build.Mode != "full" {
		t.Fatalf("expected full build mode, got %s", manifest.Build.Mode)
	}
	if !idx.IsLoaded() {
		t.Fatal("expected index loaded after build")
	}

	for _, name := range []string{"documents.json", "embeddings.npy", "manifest.json"} {
		if _, err := os.Stat(filepath.Join(indexDir, name)); err != nil {
			t.Fatalf("expected %s on disk: %v", name, err)
		}
	}
}

func TestIncrementalBuildReusesUnchangedFiles(t *testing.T) {
	repoRoot := t.TempDir()
	writeRepo(t, repoRoot, map[string]string{
		"main.py":  "def main():\n    return \"hello world\"\n",
		"utils.py": "def add(a, b):\n    return a + b\n",
	})
	indexDir := t.TempDir()
	provider := embedcap.NewFakeProvider("fake-embed", 16)
	idx := New(indexDir, provider)

	in := BuildInput{RepoRoot: repoRoot, IncludeGlobs: []string{"**/*.py"}, ExcludeGlobs: []string{"**/.git/**"}}
	if _, err := idx.Build(context.Background(), in); err != nil {
		t.Fatal(err)
	}

	writeRepo(t, repoRoot, map[string]string{
		"utils.py": "def add(a, b):\n    return a + b\n\n\ndef multiply(a, b):\n    return a * b\n",
	})

	manifest, err := idx.Build(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if manifest.Build.Mode != "incremental" {
		t.Fatalf("expected incremental mode, got %s", manifest.Build.Mode)
	}
	if manifest.Build.FilesReused != 1 {
		t.Fatalf("expected exactly 1 file reused, got %d", manifest.Build.FilesReused)
	}
	if manifest.Build.FilesEmbedded != 1 {
		t.Fatalf("expected exactly 1 file re-embedded, got %d", manifest.Build.FilesEmbedded)
	}
}

func TestBuildFailsWithNoMatchingFiles(t *testing.T) {
	repoRoot := t.TempDir()
	indexDir := t.TempDir()
	provider := embedcap.NewFakeProvider("fake-embed", 16)
	idx := New(indexDir, provider)

	_, err := idx.Build(context.Background(), BuildInput{RepoRoot: repoRoot, IncludeGlobs: []string{"**/*.py"}})
	if err == nil {
		t.Fatal("expected error when no chunks are produced")
	}
}
