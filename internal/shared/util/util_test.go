package util

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "metrics.prom")
	if err := EnsureParentDir(path); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(filepath.Dir(path)); err != nil || !info.IsDir() {
		t.Fatalf("parent not created: %v", err)
	}
	if err := EnsureParentDir("relative.toml"); err != nil {
		t.Fatalf("a bare file name needs no directory: %v", err)
	}
}

func TestWriteFileWithDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "modweave.toml")

	t.Run("creates parents", func(t *testing.T) {
		if err := WriteFileWithDirs(path, []byte("version = 1\n"), 0o644, true); err != nil {
			t.Fatal(err)
		}
		data, err := os.ReadFile(path)
		if err != nil || string(data) != "version = 1\n" {
			t.Fatalf("unexpected content %q: %v", data, err)
		}
	})

	t.Run("exclusive keeps existing", func(t *testing.T) {
		err := WriteFileWithDirs(path, []byte("x"), 0o644, true)
		if !errors.Is(err, fs.ErrExist) {
			t.Fatalf("expected fs.ErrExist, got %v", err)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		if err := WriteFileWithDirs(path, []byte("x"), 0o644, false); err != nil {
			t.Fatal(err)
		}
		if data, _ := os.ReadFile(path); string(data) != "x" {
			t.Fatalf("expected overwrite, got %q", data)
		}
	})
}
