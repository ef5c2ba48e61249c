package embedindex

import (
	"context"
	"os"
	"testing"

	"github.com/EricBintner/codrag/internal/embedcap"
)

func TestHybridRankingPrefersKeywordAndFTSMatch(t *testing.T) {
	repoRoot := t.TempDir()
	writeRepo(t, repoRoot, map[string]string{
		"src/cache.rs":  "cache eviction policy LRU in the storage engine\n",
		"docs/notes.md": "# Notes\n\nunrelated text about birds\n",
	})
	indexDir := t.TempDir()
	provider := embedcap.NewFakeProvider("fake-embed", 16)
	idx := New(indexDir, provider)

	_, err := idx.Build(context.Background(), BuildInput{
		RepoRoot:     repoRoot,
		IncludeGlobs: []string{"**/*.rs", "**/*.md"},
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := idx.Search(context.Background(), "cache policy", SearchOptions{K: 5, MinScore: 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Document.SourcePath != "src/cache.rs" {
		t.Fatalf("expected src/cache.rs to rank first, got %s", results[0].Document.SourcePath)
	}
}

func TestSearchKeywordBoostSurvivesWithoutFTSFile(t *testing.T) {
	repoRoot := t.TempDir()
	writeRepo(t, repoRoot, map[string]string{
		"src/cache.rs":  "cache eviction policy LRU in the storage engine\n",
		"docs/notes.md": "# Notes\n\nunrelated text about birds\n",
	})
	indexDir := t.TempDir()
	provider := embedcap.NewFakeProvider("fake-embed", 16)
	idx := New(indexDir, provider)

	if _, err := idx.Build(context.Background(), BuildInput{RepoRoot: repoRoot, IncludeGlobs: []string{"**/*.rs", "**/*.md"}}); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(idx.ftsPath()); err != nil {
		t.Fatal(err)
	}

	results, err := idx.Search(context.Background(), "cache policy", SearchOptions{K: 5, MinScore: 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 || results[0].Document.SourcePath != "src/cache.rs" {
		t.Fatalf("expected src/cache.rs to still rank first via keyword boost alone")
	}
}

func TestSearchReturnsEmptyWhenNotLoaded(t *testing.T) {
	indexDir := t.TempDir()
	provider := embedcap.NewFakeProvider("fake-embed", 16)
	idx := New(indexDir, provider)

	results, err := idx.Search(context.Background(), "anything", SearchOptions{K: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results for unloaded index, got %d", len(results))
	}
}
