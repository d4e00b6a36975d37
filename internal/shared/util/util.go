package util

import (
	"io/fs"
	"os"
	"path/filepath"
)

// EnsureParentDir creates the directory holding path (0755) when missing.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// WriteFileWithDirs creates parent directories and writes the file with perm.
// With exclusive set an existing file is reported as fs.ErrExist.
func WriteFileWithDirs(path string, data []byte, perm fs.FileMode, exclusive bool) error {
	if err := EnsureParentDir(path); err != nil {
		return err
	}
	if !exclusive {
		return os.WriteFile(path, data, perm)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
