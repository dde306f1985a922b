package contextwatch

import (
	"os"
	"path/filepath"
)

// walkDirs calls fn for root and every subdirectory beneath it, skipping
// unreadable entries silently.
func walkDirs(root string, fn func(dir string) error) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return fn(path)
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
