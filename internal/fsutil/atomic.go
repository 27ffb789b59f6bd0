// Package fsutil holds the crash-safe file writes used for crawl state.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// TempSuffix names the side file written before a rename.
const TempSuffix = ".temp"

// WriteAtomic writes data to a side file and renames it over path, so path
// is never observed half written.
func WriteAtomic(fsys afero.Fs, path string, data []byte, perm os.FileMode) error {
	if err := EnsureDir(fsys, path); err != nil {
		return err
	}
	tmp := path + TempSuffix
	if err := writeSynced(fsys, tmp, data, perm); err != nil {
		return err
	}
	if err := fsys.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// WriteRotating is WriteAtomic with the previous contents of path kept at
// backup. Any prior backup is discarded. A failure at any step leaves either
// path or the side file holding a complete copy.
func WriteRotating(fsys afero.Fs, path, backup string, data []byte, perm os.FileMode) error {
	if err := EnsureDir(fsys, path); err != nil {
		return err
	}
	tmp := path + TempSuffix
	if err := writeSynced(fsys, tmp, data, perm); err != nil {
		return err
	}
	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if exists {
		if err := fsys.Remove(backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove backup %s: %w", backup, err)
		}
		if err := fsys.Rename(path, backup); err != nil {
			return fmt.Errorf("rotate %s: %w", path, err)
		}
	}
	if err := fsys.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// EnsureDir creates the parent directory of path.
func EnsureDir(fsys afero.Fs, path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

func writeSynced(fsys afero.Fs, path string, data []byte, perm os.FileMode) error {
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
