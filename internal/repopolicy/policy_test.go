package repopolicy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureGeneratesThenReuses(t *testing.T) {
	repoRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(repoRoot, "go.mod"), []byte("module x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	indexDir := t.TempDir()

	p1, err := Ensure(indexDir, repoRoot, false)
	if err != nil {
		t.Fatal(err)
	}
	if !p1.Primer.Enabled {
		t.Fatalf("expected primer enabled by default")
	}

	p2, err := Ensure(indexDir, repoRoot, false)
	if err != nil {
		t.Fatal(err)
	}
	if p1.CreatedAt != p2.CreatedAt {
		t.Fatalf("expected second Ensure to reuse existing policy, got different created_at")
	}
}

func TestEnsureForceRegenerates(t *testing.T) {
	repoRoot := t.TempDir()
	indexDir := t.TempDir()

	p1, err := Ensure(indexDir, repoRoot, false)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := Ensure(indexDir, repoRoot, true)
	if err != nil {
		t.Fatal(err)
	}
	if p1 == p2 {
		t.Fatalf("expected distinct policy objects after force regenerate")
	}
}

func TestPrimerConfigClamping(t *testing.T) {
	cfg := normalizePrimerConfig(PrimerConfig{ScoreBoost: 5.0, MaxPrimerChars: 10})
	if cfg.ScoreBoost != 1.0 {
		t.Fatalf("expected score_boost clamped to 1.0, got %f", cfg.ScoreBoost)
	}
	if cfg.MaxPrimerChars != 100 {
		t.Fatalf("expected max_primer_chars clamped to 100, got %d", cfg.MaxPrimerChars)
	}
}
