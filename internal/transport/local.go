package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/renzodupont/renzodupont/internal/process"
	"github.com/renzodupont/renzodupont/internal/rsync"
	"github.com/renzodupont/renzodupont/internal/util/disk"
	"github.com/renzodupont/renzodupont/internal/util/fs"
)

// Local performs every operation on the local filesystem. It serves
// deployments to a mounted directory (host "local") and tests.
type Local struct {
	now func() time.Time
}

// NewLocal returns a local transport.
func NewLocal() *Local { return &Local{now: time.Now} }

// Run implements Transport via sh -c.
func (l *Local) Run(ctx context.Context, command string) ([]byte, error) {
	res := process.RunLogged(ctx, "sh", "-c", command)
	if res.Err != nil {
		if msg := strings.TrimSpace(string(res.Stderr)); msg != "" {
			return res.Stdout, fmt.Errorf("command %q exited with status %d: %w: %s", command, res.ExitCode, res.Err, msg)
		}
		return res.Stdout, fmt.Errorf("command %q exited with status %d: %w", command, res.ExitCode, res.Err)
	}
	return res.Stdout, nil
}

// MakeDir implements Transport.
func (l *Local) MakeDir(_ context.Context, dir string) error {
	return fs.MkdirP(dir)
}

// CopyTree implements Transport.
func (l *Local) CopyTree(ctx context.Context, src, dst string) error {
	if !fs.IsDir(src) {
		return fmt.Errorf("copy %s: not a directory", src)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("copy %s: destination %s already exists", src, dst)
	}
	size, err := fs.DirSize(src, nil)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := disk.EnsureSpace(filepath.Dir(dst), uint64(size)); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	var dirs []dirAttr
	err = filepath.WalkDir(src, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			dirs = append(dirs, dirAttr{target, info})
		}
		return copyEntry(ctx, p, target, info, nil)
	})
	if err == nil {
		err = applyDirAttrs(dirs)
	}
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	now := l.now()
	return os.Chtimes(dst, now, now)
}

// RemoveTree implements Transport.
// Read-only directories inside path are made writable first, as rm -rf
// run by their owner would manage.
func (l *Local) RemoveTree(_ context.Context, path string) error {
	err := os.RemoveAll(path)
	if err == nil || !errors.Is(err, iofs.ErrPermission) {
		return err
	}
	_ = filepath.WalkDir(path, func(p string, d iofs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			_ = os.Chmod(p, 0o700)
		}
		return nil
	})
	return os.RemoveAll(path)
}

// Rename implements Transport.
func (l *Local) Rename(_ context.Context, from, to string) error {
	return os.Rename(from, to)
}

// Exists implements Transport.
func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ListEntries implements Transport. Equal mtimes fall back to reverse name
// order, which for timestamped names is again newest first.
func (l *Local) ListEntries(_ context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	type item struct {
		name string
		mod  time.Time
	}
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		items = append(items, item{e.Name(), info.ModTime()})
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].mod.Equal(items[j].mod) {
			return items[i].mod.After(items[j].mod)
		}
		return items[i].name > items[j].name
	})
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.name
	}
	return names, nil
}

// Sync implements Transport with an in-process mirror.
func (l *Local) Sync(ctx context.Context, req SyncRequest) (rsync.Stats, error) {
	return mirror(ctx, req)
}

// Close implements Transport.
func (l *Local) Close() error { return nil }

// copyEntry recreates src (described by info) at dst. A non-nil lim caps
// the rate file contents are written at.
func copyEntry(ctx context.Context, src, dst string, info iofs.FileInfo, lim *rate.Limiter) error {
	switch mode := info.Mode(); {
	case mode.IsDir():
		// final mode and mtime come from applyDirAttrs once the contents exist
		return os.MkdirAll(dst, 0o700)
	case mode&iofs.ModeSymlink != 0:
		link, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(link, dst)
	case mode.IsRegular():
		return copyFile(ctx, src, dst, info, lim)
	}
	return nil // sockets, devices: not part of a site
}

// dirAttr is a copied directory whose source mode and mtime are applied
// after everything inside it has been written.
type dirAttr struct {
	path string
	info iofs.FileInfo
}

// applyDirAttrs walks dirs in reverse so children are finished before
// their parents; creating a child would bump the parent's mtime again.
func applyDirAttrs(dirs []dirAttr) error {
	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		if err := os.Chmod(d.path, d.info.Mode().Perm()); err != nil {
			return err
		}
		if err := os.Chtimes(d.path, d.info.ModTime(), d.info.ModTime()); err != nil {
			return err
		}
	}
	return nil
}

// copyFile copies a regular file keeping its mode and mtime.
func copyFile(ctx context.Context, src, dst string, info iofs.FileInfo, lim *rate.Limiter) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	var w io.Writer = out
	if lim != nil {
		w = &throttledWriter{ctx: ctx, w: out, lim: lim}
	}
	if _, err := io.Copy(w, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
