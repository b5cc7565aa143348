package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// MkdirP создает путь рекурсивно с правами 0755 (как `mkdir -p`).
// Не генерирует ошибку, если директория уже существует.
func MkdirP(path string) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	return os.MkdirAll(path, 0o755)
}

// IsDir сообщает, существует ли path и является ли он директорией.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// DirSize returns the total size of regular files under root. Entries for
// which skip returns true are not counted (directories are pruned).
func DirSize(root string, skip func(rel string, isDir bool) bool) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if skip != nil && skip(filepath.ToSlash(rel), d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
