package transport

import (
	"context"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/renzodupont/renzodupont/internal/rsync"
	"github.com/renzodupont/renzodupont/internal/util/fs"
)

// mirror makes req.Target an rsync -a --delete copy of req.Source: files
// whose size or mtime differ are copied, entries missing from the source
// are removed, and excluded paths are neither sent nor deleted.
func mirror(ctx context.Context, req SyncRequest) (rsync.Stats, error) {
	var st rsync.Stats
	src, dst := filepath.Clean(req.Source), filepath.Clean(req.Target)
	if !fs.IsDir(src) {
		return st, fmt.Errorf("sync: source %s is not a directory", src)
	}
	filter := rsync.NewFilter(req.Excludes)
	lim := newLimiter(req.BwLimit)
	emit := func(size int64, name string, deleted bool) {
		if req.Transcript != nil {
			if deleted {
				fmt.Fprintf(req.Transcript, "deleting %s\n", name)
			} else {
				fmt.Fprintf(req.Transcript, "%d %s\n", size, name)
			}
		}
		if req.OnEntry != nil {
			req.OnEntry(size, name, deleted)
		}
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return st, fmt.Errorf("sync: %w", err)
	}
	if !req.DryRun {
		if err := fs.MkdirP(dst); err != nil {
			return st, fmt.Errorf("sync: %w", err)
		}
		if err := os.Chmod(dst, srcInfo.Mode().Perm()|0o700); err != nil {
			return st, fmt.Errorf("sync: %w", err)
		}
	}
	dirs := []dirAttr{{dst, srcInfo}}
	seen := make(map[string]bool)
	err = filepath.WalkDir(src, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == src {
			return nil
		}
		rel, err := relSlash(src, p)
		if err != nil {
			return err
		}
		if filter.Excluded(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		seen[rel] = true
		st.Files++

		info, err := d.Info()
		if err != nil {
			return err
		}
		target := filepath.Join(dst, filepath.FromSlash(rel))
		tinfo, terr := os.Lstat(target)
		exists := terr == nil
		if exists && !sameKind(info, tinfo) {
			if !req.DryRun {
				if err := os.RemoveAll(target); err != nil {
					return err
				}
			}
			exists = false
		}

		switch {
		case info.IsDir():
			dirs = append(dirs, dirAttr{target, info})
			if exists {
				if req.DryRun {
					return nil
				}
				// a read-only copy from an earlier run must accept new entries
				return os.Chmod(target, tinfo.Mode().Perm()|0o700)
			}
			st.Created++
			emit(0, rel+"/", false)
		case info.Mode().IsRegular():
			st.TotalSize += info.Size()
			if exists && tinfo.Size() == info.Size() && tinfo.ModTime().Equal(info.ModTime()) {
				return nil
			}
			if !exists {
				st.Created++
			}
			st.Transferred++
			st.TransferredSize += info.Size()
			emit(info.Size(), rel, false)
		case info.Mode()&iofs.ModeSymlink != 0:
			if exists {
				a, _ := os.Readlink(p)
				b, _ := os.Readlink(target)
				if a == b {
					return nil
				}
				if !req.DryRun {
					if err := os.Remove(target); err != nil {
						return err
					}
				}
			} else {
				st.Created++
			}
			emit(0, rel, false)
		default:
			return nil
		}
		if req.DryRun {
			return nil
		}
		return copyEntry(ctx, p, target, info, lim)
	})
	if err != nil {
		return st, fmt.Errorf("sync %s: %w", src, err)
	}

	if !fs.IsDir(dst) {
		return st, nil // dry run against a fresh target
	}
	err = filepath.WalkDir(dst, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == dst {
			return nil
		}
		rel, err := relSlash(dst, p)
		if err != nil {
			return err
		}
		if filter.Excluded(rel, d.IsDir()) || seen[rel] {
			if d.IsDir() && !seen[rel] {
				return filepath.SkipDir
			}
			return nil
		}
		st.Deleted++
		emit(0, rel, true)
		if !req.DryRun {
			if err := os.RemoveAll(p); err != nil {
				return err
			}
		}
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("sync delete pass %s: %w", dst, err)
	}
	if !req.DryRun {
		if err := applyDirAttrs(dirs); err != nil {
			return st, fmt.Errorf("sync %s: %w", dst, err)
		}
	}
	st.BytesSent = st.TransferredSize
	return st, nil
}

func relSlash(root, p string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func sameKind(a, b iofs.FileInfo) bool {
	return a.Mode().Type() == b.Mode().Type()
}
