package embedindex

import (
	"context"
	"strings"
	"testing"

	"github.com/EricBintner/codrag/internal/embedcap"
	"github.com/EricBintner/codrag/internal/repopolicy"
)

// fakeTraceExpander returns a fixed list of related files per source
// path, for exercising GetContextStructured's trace-expansion dedup logic.
type fakeTraceExpander struct {
	related map[string][]string
}

func (f fakeTraceExpander) RelatedFiles(sourcePath string, nodeCap int) []string {
	return f.related[sourcePath]
}

func TestGetContextStructuredNonEmpty(t *testing.T) {
	repoRoot := t.TempDir()
	writeRepo(t, repoRoot, map[string]string{
		"main.py":  "def main():\n    return \"hello world\"\n",
		"utils.py": "def add(a, b):\n    return a + b\n",
	})
	indexDir := t.TempDir()
	provider := embedcap.NewFakeProvider("fake-embed", 16)
	idx := New(indexDir, provider)

	if _, err := idx.Build(context.Background(), BuildInput{RepoRoot: repoRoot, IncludeGlobs: []string{"**/*.py"}}); err != nil {
		t.Fatal(err)
	}

	sc, err := idx.GetContextStructured(context.Background(), "multiply numbers", ContextOptions{K: 3, MaxChars: 6000, MinScore: 0.0})
	if err != nil {
		t.Fatal(err)
	}
	if sc.Context == "" {
		t.Fatal("expected non-empty context string")
	}
	if !strings.Contains(sc.Context, "@utils.py") && !strings.Contains(sc.Context, "@main.py") {
		t.Fatalf("expected a source header in context, got %q", sc.Context)
	}
	if sc.EstimatedTokens != sc.TotalChars/4 {
		t.Fatalf("estimated_tokens mismatch")
	}
}

func TestGetContextStructuredTruncatesOnBudget(t *testing.T) {
	repoRoot := t.TempDir()
	writeRepo(t, repoRoot, map[string]string{
		"big.py": strings.Repeat("x = 1\n", 1000),
	})
	indexDir := t.TempDir()
	provider := embedcap.NewFakeProvider("fake-embed", 16)
	idx := New(indexDir, provider)

	if _, err := idx.Build(context.Background(), BuildInput{RepoRoot: repoRoot, IncludeGlobs: []string{"**/*.py"}}); err != nil {
		t.Fatal(err)
	}

	sc, err := idx.GetContextStructured(context.Background(), "x", ContextOptions{K: 5, MaxChars: 500, MinScore: 0.0})
	if err != nil {
		t.Fatal(err)
	}
	if sc.TotalChars > 500+50 {
		t.Fatalf("expected total chars roughly bounded by max_chars, got %d", sc.TotalChars)
	}
}

func TestPrimerBlocksCoverEverySection(t *testing.T) {
	repoRoot := t.TempDir()
	section1 := strings.Repeat("alpha bravo charlie delta echo foxtrot. ", 15) // > min_chars (350), < max_chars
	section2 := strings.Repeat("golf hotel india juliet kilo lima mike. ", 15) // second, distinct section
	writeRepo(t, repoRoot, map[string]string{
		"AGENTS.md": "# Primer\n\n" + section1 + "\n\n## Section Two\n\n" + section2,
	})
	indexDir := t.TempDir()
	provider := embedcap.NewFakeProvider("fake-embed", 16)
	idx := New(indexDir, provider)

	if _, err := idx.Build(context.Background(), BuildInput{RepoRoot: repoRoot, IncludeGlobs: []string{"**/*.md"}}); err != nil {
		t.Fatal(err)
	}

	primer := repopolicy.DefaultPrimerConfig()
	primer.AlwaysInclude = true
	primer.MaxPrimerChars = 10000

	sc, err := idx.GetContextStructured(context.Background(), "anything", ContextOptions{K: 3, MaxChars: 20000, MinScore: 0.0, Primer: &primer})
	if err != nil {
		t.Fatal(err)
	}

	primerBlockCount := 0
	for _, b := range sc.Chunks {
		if b.SourcePath == "AGENTS.md" {
			primerBlockCount++
		}
	}
	if primerBlockCount < 2 {
		t.Fatalf("expected every AGENTS.md section to get its own primer block, got %d blocks: %+v", primerBlockCount, sc.Chunks)
	}
}

func TestTraceExpansionSkipsPrimerAlwaysIncludedPath(t *testing.T) {
	repoRoot := t.TempDir()
	writeRepo(t, repoRoot, map[string]string{
		"AGENTS.md": "# Primer\n\nRead this before anything else.\n",
		"main.py":   "def main():\n    return \"hello world\"\n",
	})
	indexDir := t.TempDir()
	provider := embedcap.NewFakeProvider("fake-embed", 16)
	idx := New(indexDir, provider)

	if _, err := idx.Build(context.Background(), BuildInput{RepoRoot: repoRoot, IncludeGlobs: []string{"**/*.md", "**/*.py"}}); err != nil {
		t.Fatal(err)
	}

	primer := repopolicy.DefaultPrimerConfig()
	primer.AlwaysInclude = true

	expander := fakeTraceExpander{related: map[string][]string{"main.py": {"AGENTS.md"}}}

	sc, err := idx.GetContextStructured(context.Background(), "hello world", ContextOptions{
		K: 3, MaxChars: 20000, MinScore: 0.0, Primer: &primer, TraceExpand: expander,
	})
	if err != nil {
		t.Fatal(err)
	}

	count := 0
	for _, b := range sc.Chunks {
		if b.SourcePath == "AGENTS.md" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected AGENTS.md to appear exactly once (primer, not duplicated by trace expansion), got %d: %+v", count, sc.Chunks)
	}
}
