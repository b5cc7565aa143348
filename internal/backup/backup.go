// Package backup snapshots the live site directory on the target host,
// prunes old snapshots and restores them.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/renzodupont/renzodupont/internal/config"
	"github.com/renzodupont/renzodupont/internal/transport"
)

// Prefix starts every backup directory name.
const Prefix = "backup-"

// ErrNoBackups is returned by Rollback when the backup root holds nothing.
var ErrNoBackups = errors.New("no backups available")

// NotFoundError is returned by Rollback for a name absent from the listing.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("backup %q not found; available: %s", e.Name, strings.Join(e.Available, ", "))
}

var nameReplacer = strings.NewReplacer(":", "-", ".", "-")

// Name returns the backup directory name for t, e.g.
// backup-2024-01-01T00-00-00-000Z.
func Name(t time.Time) string {
	return Prefix + nameReplacer.Replace(t.UTC().Format("2006-01-02T15:04:05.000Z"))
}

// Manager runs backup operations for one site.
type Manager struct {
	t          transport.Transport
	remotePath string
	backupPath string
	maxBackups int

	// Now is the clock used for names; tests replace it.
	Now func() time.Time
}

// New returns a Manager for the paths and retention in cfg.
func New(t transport.Transport, cfg config.Config) *Manager {
	return &Manager{
		t:          t,
		remotePath: path.Clean(cfg.RemotePath),
		backupPath: path.Clean(cfg.BackupPath),
		maxBackups: cfg.MaxBackups,
		Now:        time.Now,
	}
}

// Result describes a created backup and the retention pass that followed.
type Result struct {
	Name       string   // empty when there was no live site to copy
	Removed    []string // backups deleted by retention
	CleanupErr error    // retention failure; never fails the backup
}

// List returns backup names, newest first as ordered by the host.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	entries, err := m.t.ListEntries(ctx, m.backupPath)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", m.backupPath, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e, Prefix) {
			names = append(names, e)
		}
	}
	return names, nil
}

// Create copies the live site into a new timestamped backup, then prunes
// old backups. A missing live directory (first deploy) is not an error: no
// backup is taken and Result.Name is empty.
func (m *Manager) Create(ctx context.Context) (Result, error) {
	var res Result
	live, err := m.t.Exists(ctx, m.remotePath)
	if err != nil {
		return res, fmt.Errorf("check %s: %w", m.remotePath, err)
	}
	if !live {
		slog.Warn("live directory missing, nothing to back up", "path", m.remotePath)
		return res, nil
	}
	if err := m.t.MakeDir(ctx, m.backupPath); err != nil {
		return res, fmt.Errorf("create backup root %s: %w", m.backupPath, err)
	}
	name := Name(m.Now())
	dst := path.Join(m.backupPath, name)
	if err := m.t.CopyTree(ctx, m.remotePath, dst); err != nil {
		// a partial copy would otherwise be listed as the newest backup
		m.discard(ctx, dst)
		return res, fmt.Errorf("copy %s to %s: %w", m.remotePath, dst, err)
	}
	slog.Info("backup created", "name", name)
	res.Name = name

	res.Removed, res.CleanupErr = m.Clean(ctx)
	if res.CleanupErr != nil {
		slog.Warn("backup cleanup failed", "err", res.CleanupErr)
	}
	return res, nil
}

// Clean keeps the newest maxBackups backups and removes the rest, oldest
// last in listing order. Removal continues past individual failures.
func (m *Manager) Clean(ctx context.Context) ([]string, error) {
	names, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) <= m.maxBackups {
		return nil, nil
	}
	var (
		removed []string
		errs    []error
	)
	for _, name := range names[m.maxBackups:] {
		if err := m.t.RemoveTree(ctx, path.Join(m.backupPath, name)); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
			continue
		}
		slog.Info("old backup removed", "name", name)
		removed = append(removed, name)
	}
	return removed, errors.Join(errs...)
}

// Rollback replaces the live site with a copy of the named backup, or the
// newest one when name is empty, and returns the backup used.
//
// The backup is first copied next to the live directory; the live tree is
// then moved aside and the copy renamed into place, so a failed copy leaves
// the site untouched. Nothing is changed when the backup cannot be chosen.
func (m *Manager) Rollback(ctx context.Context, name string) (string, error) {
	names, err := m.List(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNoBackups
	}
	chosen := names[0]
	if name != "" {
		if !slices.Contains(names, name) {
			return "", &NotFoundError{Name: name, Available: names}
		}
		chosen = name
	}

	stamp := m.Now().UTC().Format("20060102T150405.000")
	src := path.Join(m.backupPath, chosen)
	tmp := m.remotePath + ".rollback-" + stamp
	old := m.remotePath + ".old-" + stamp

	if err := m.t.CopyTree(ctx, src, tmp); err != nil {
		m.discard(ctx, tmp)
		return chosen, fmt.Errorf("copy %s: %w", chosen, err)
	}
	live, err := m.t.Exists(ctx, m.remotePath)
	if err != nil {
		m.discard(ctx, tmp)
		return chosen, fmt.Errorf("check %s: %w", m.remotePath, err)
	}
	if live {
		if err := m.t.Rename(ctx, m.remotePath, old); err != nil {
			m.discard(ctx, tmp)
			return chosen, fmt.Errorf("move live site aside: %w", err)
		}
	}
	if err := m.t.Rename(ctx, tmp, m.remotePath); err != nil {
		err = fmt.Errorf("move restored copy into place: %w", err)
		if live {
			if rerr := m.t.Rename(ctx, old, m.remotePath); rerr != nil {
				return chosen, errors.Join(err, fmt.Errorf("restore previous site from %s: %w", old, rerr))
			}
		}
		m.discard(ctx, tmp)
		return chosen, err
	}
	if live {
		if err := m.t.RemoveTree(ctx, old); err != nil {
			slog.Warn("previous site left in place", "path", old, "err", err)
		}
	}
	slog.Info("rollback complete", "backup", chosen)
	return chosen, nil
}

// discard removes a half-made copy. It runs even when ctx is cancelled.
func (m *Manager) discard(ctx context.Context, p string) {
	if err := m.t.RemoveTree(context.WithoutCancel(ctx), p); err != nil {
		slog.Warn("temporary copy left in place", "path", p, "err", err)
	}
}
