package buildpipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCommitSwapsStagingIntoPlace(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "index")

	st, err := Begin(target)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.WriteFile("manifest.json", []byte(`{"v":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := st.Commit(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(target, "manifest.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"v":1}` {
		t.Fatalf("unexpected content: %s", data)
	}
}

func TestCommitPreservesPreviousOnSecondBuild(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "index")

	st1, _ := Begin(target)
	st1.WriteFile("manifest.json", []byte("v1"))
	if err := st1.Commit(); err != nil {
		t.Fatal(err)
	}

	st2, _ := Begin(target)
	st2.WriteFile("manifest.json", []byte("v2"))
	if err := st2.Commit(); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(filepath.Join(target, "manifest.json"))
	if string(data) != "v2" {
		t.Fatalf("expected v2, got %s", data)
	}

	entries, _ := os.ReadDir(root)
	for _, e := range entries {
		if e.Name() != "index" && e.Name() != "index.lock" {
			t.Fatalf("expected no leftover backup/staging dirs, found %s", e.Name())
		}
	}
}

func TestAbortLeavesTargetUntouched(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "index")
	os.MkdirAll(target, 0755)
	os.WriteFile(filepath.Join(target, "manifest.json"), []byte("orig"), 0644)

	st, err := Begin(target)
	if err != nil {
		t.Fatal(err)
	}
	st.WriteFile("manifest.json", []byte("new"))
	if err := st.Abort(); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(filepath.Join(target, "manifest.json"))
	if string(data) != "orig" {
		t.Fatalf("expected target unchanged after abort, got %s", data)
	}
}

func TestRecoverPromotesLoneRecentBackup(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "index")
	backup := filepath.Join(root, ".index_backup_123")
	os.MkdirAll(backup, 0755)
	os.WriteFile(filepath.Join(backup, "manifest.json"), []byte("recovered"), 0644)

	if err := Recover(target); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(target, "manifest.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "recovered" {
		t.Fatalf("expected recovered content, got %s", data)
	}
}

func TestCleanStaleRemovesOldDirsOnly(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "index")
	oldDir := filepath.Join(root, ".index_build_1")
	os.MkdirAll(oldDir, 0755)
	oldTime := time.Now().Add(-2 * time.Hour)
	os.Chtimes(oldDir, oldTime, oldTime)

	recentDir := filepath.Join(root, ".index_build_2")
	os.MkdirAll(recentDir, 0755)

	if err := CleanStale(target); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Fatalf("expected old staging dir removed")
	}
	if _, err := os.Stat(recentDir); err != nil {
		t.Fatalf("expected recent staging dir kept: %v", err)
	}
}
