package janitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweep_RemovesPartFiles(t *testing.T) {
	dir := t.TempDir()
	part := filepath.Join(dir, ".upload-123.part")
	keep := filepath.Join(dir, "kept.txt")
	for _, p := range []string{part, keep} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	Sweep([]string{dir}, 0)

	if _, err := os.Stat(part); !os.IsNotExist(err) {
		t.Fatalf("part file should be removed, err=%v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatalf("regular file should survive: %v", err)
	}
}

func TestSweep_RemovesAgedFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.bin")
	fresh := filepath.Join(dir, "fresh.bin")
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	Sweep([]string{dir}, time.Hour)

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("aged file should be removed, err=%v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file should survive: %v", err)
	}
}

func TestSweep_MissingDirIsNonFatal(t *testing.T) {
	Sweep([]string{"/does/not/exist"}, time.Hour)
}
