package disk

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Space holds information about free and total bytes.
// On Linux, Statfs uses fragment size in Bsize.
type Space struct {
	Free  uint64
	Total uint64
}

// FreeBytes returns available (for unprivileged user) and total bytes on filesystem containing path.
func FreeBytes(path string) (Space, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Space{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	return Space{Free: uint64(st.Bavail) * bsize, Total: uint64(st.Blocks) * bsize}, nil
}

// EnsureSpace checks that the filesystem that will hold path has at least
// need bytes free. path may not exist yet; its nearest existing ancestor is
// measured instead.
func EnsureSpace(path string, need uint64) error {
	dir, err := existingAncestor(path)
	if err != nil {
		return err
	}
	sp, err := FreeBytes(dir)
	if err != nil {
		return err
	}
	if sp.Free < need {
		return fmt.Errorf("insufficient space on %s: free %.2f MB, need %.2f MB", dir, bytesToMB(sp.Free), bytesToMB(need))
	}
	return nil
}

func existingAncestor(path string) (string, error) {
	p := filepath.Clean(path)
	for {
		_, err := os.Stat(p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, iofs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing directory above %s", path)
		}
		p = parent
	}
}

func bytesToMB(b uint64) float64 {
	return float64(b) / (1024 * 1024)
}
