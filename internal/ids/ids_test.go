package ids

import "testing"

func TestStableFileHashDeterministic(t *testing.T) {
	a := StableFileHash("package main\n")
	b := StableFileHash("package main\n")
	if a != b {
		t.Fatalf("expected deterministic hash, got %s != %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %d", len(a))
	}
}

func TestStableMarkdownChunkIDVariesByOrdinal(t *testing.T) {
	a := StableMarkdownChunkID("README.md", "Intro", 0)
	b := StableMarkdownChunkID("README.md", "Intro", 1)
	if a == b {
		t.Fatalf("expected different ids for different ordinals")
	}
}

func TestStableEdgeIDDisambiguator(t *testing.T) {
	plain := StableEdgeID("imports", "file:a.py", "file:b.py", "")
	withDis := StableEdgeID("imports", "file:a.py", "file:b.py", "b:1")
	if plain == withDis {
		t.Fatalf("expected disambiguator to change the id")
	}
	if withDis != "edge:imports:file:a.py:file:b.py:b:1" {
		t.Fatalf("unexpected edge id: %s", withDis)
	}
}

func TestStableSymbolNodeID(t *testing.T) {
	id := StableSymbolNodeID("B", "b.py", 1)
	if id != "sym:B@b.py:1" {
		t.Fatalf("unexpected symbol node id: %s", id)
	}
}
