// Package transport abstracts the host the site is deployed to. The deploy,
// backup and rollback flows only talk to a Transport, so they run unchanged
// against a server over SSH, a mounted directory, or a recording fake.
package transport

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/renzodupont/renzodupont/internal/config"
	"github.com/renzodupont/renzodupont/internal/rsync"
	"github.com/renzodupont/renzodupont/internal/ssh"
)

// Transport is the narrow set of operations performed on the target host.
// Paths are absolute paths on that host. Implementations run one operation
// at a time and never retry.
type Transport interface {
	// Run executes a shell command and returns its stdout.
	Run(ctx context.Context, command string) ([]byte, error)
	// MakeDir creates dir and its parents; existing dirs are not an error.
	MakeDir(ctx context.Context, dir string) error
	// CopyTree copies src recursively to dst, which must not exist. File
	// attributes are preserved; dst itself gets the copy time as mtime so
	// listings order copies by creation.
	CopyTree(ctx context.Context, src, dst string) error
	// RemoveTree deletes path recursively; a missing path is not an error.
	RemoveTree(ctx context.Context, path string) error
	// Rename moves from to to on the same filesystem.
	Rename(ctx context.Context, from, to string) error
	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)
	// ListEntries returns the names in dir, newest modification time
	// first. A missing dir yields an empty list.
	ListEntries(ctx context.Context, dir string) ([]string, error)
	// Sync mirrors a local directory onto a directory on the host.
	Sync(ctx context.Context, req SyncRequest) (rsync.Stats, error)
	// Close releases connections.
	Close() error
}

// SyncRequest describes one mirror of a local tree onto the host.
type SyncRequest struct {
	Source     string          // local directory
	Target     string          // directory on the host
	Excludes   []string        // rsync-style exclude patterns
	DryRun     bool            // report only, change nothing
	BwLimit    int             // KiB/s, 0 for unlimited
	OnEntry    rsync.EntryFunc // optional per-entry callback
	Transcript io.Writer       // optional raw output sink
}

// New picks the transport for cfg: the local filesystem when the host is
// "local", SSH otherwise.
func New(cfg config.Config) Transport {
	if cfg.IsLocal() {
		return NewLocal()
	}
	return NewSSH(ssh.Config{
		User:     cfg.User,
		Host:     cfg.Host,
		Port:     cfg.Port,
		KeyPath:  keyPath(cfg.KeyPath),
		Insecure: cfg.InsecureHostKey,
	})
}

// keyPath drops a configured key that does not exist so authentication
// falls back to the usual key files and the agent.
func keyPath(p string) string {
	if p == "" {
		return ""
	}
	if _, err := os.Stat(p); err != nil {
		slog.Warn("ssh key not readable, falling back to default keys and agent", "path", p, "err", err)
		return ""
	}
	return p
}
