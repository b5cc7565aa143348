package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"

	"github.com/renzodupont/renzodupont/internal/rsync"
	"github.com/renzodupont/renzodupont/internal/ssh"
)

// remote is the part of *ssh.Client the transport uses.
type remote interface {
	Output(ctx context.Context, cmd string) ([]byte, error)
	Close() error
}

// SSH runs every operation as a shell command on the host and pushes files
// with the local rsync binary. The connection is dialed on first use.
type SSH struct {
	cfg   ssh.Config
	rsync rsync.Config
	dial  func(ctx context.Context, cfg ssh.Config) (remote, error)

	mu   sync.Mutex
	conn remote
}

// NewSSH returns a transport for cfg. Nothing is dialed yet.
func NewSSH(cfg ssh.Config) *SSH {
	return &SSH{
		cfg: cfg,
		rsync: rsync.Config{
			Host:     cfg.Host,
			User:     cfg.User,
			Port:     cfg.Port,
			KeyPath:  cfg.KeyPath,
			Insecure: cfg.Insecure,
		},
		dial: func(ctx context.Context, cfg ssh.Config) (remote, error) {
			return ssh.Dial(ctx, cfg)
		},
	}
}

func (t *SSH) client(ctx context.Context) (remote, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return t.conn, nil
	}
	c, err := t.dial(ctx, t.cfg)
	if err != nil {
		return nil, err
	}
	t.conn = c
	return c, nil
}

// Run implements Transport.
func (t *SSH) Run(ctx context.Context, command string) ([]byte, error) {
	c, err := t.client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := c.Output(ctx, command)
	if err != nil {
		if code, ok := ssh.ExitStatus(err); ok {
			return out, fmt.Errorf("remote command %q exited with status %d: %w", command, code, err)
		}
		return out, fmt.Errorf("remote command %q: %w", command, err)
	}
	return out, nil
}

func (t *SSH) exec(ctx context.Context, format string, paths ...string) error {
	quoted := make([]any, len(paths))
	for i, p := range paths {
		quoted[i] = shellquote.Join(p)
	}
	_, err := t.Run(ctx, fmt.Sprintf(format, quoted...))
	return err
}

// MakeDir implements Transport.
func (t *SSH) MakeDir(ctx context.Context, dir string) error {
	return t.exec(ctx, "mkdir -p -- %s", dir)
}

// CopyTree implements Transport.
func (t *SSH) CopyTree(ctx context.Context, src, dst string) error {
	// cp -a keeps the source mtime on dst; touch makes ls -t see the copy as new.
	return t.exec(ctx, "cp -a -- %s %s && touch -- %s", src, dst, dst)
}

// RemoveTree implements Transport.
func (t *SSH) RemoveTree(ctx context.Context, path string) error {
	return t.exec(ctx, "rm -rf -- %s", path)
}

// Rename implements Transport.
func (t *SSH) Rename(ctx context.Context, from, to string) error {
	return t.exec(ctx, "mv -- %s %s", from, to)
}

// Exists implements Transport.
func (t *SSH) Exists(ctx context.Context, path string) (bool, error) {
	q := shellquote.Join(path)
	out, err := t.Run(ctx, fmt.Sprintf("if [ -e %s ]; then echo yes; else echo no; fi", q))
	if err != nil {
		return false, err
	}
	switch strings.TrimSpace(string(out)) {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return false, fmt.Errorf("unexpected output from existence check of %s: %q", path, out)
}

// ListEntries implements Transport. Ordering is left to ls -t.
func (t *SSH) ListEntries(ctx context.Context, dir string) ([]string, error) {
	q := shellquote.Join(dir)
	out, err := t.Run(ctx, fmt.Sprintf("if [ -d %s ]; then ls -1t -- %s; fi", q, q))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, l := range strings.Split(string(out), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			names = append(names, l)
		}
	}
	return names, nil
}

// Sync implements Transport by running rsync over ssh.
func (t *SSH) Sync(ctx context.Context, req SyncRequest) (rsync.Stats, error) {
	return t.rsync.Run(ctx, rsync.Request{
		Source:   req.Source,
		Target:   req.Target,
		Excludes: req.Excludes,
		DryRun:   req.DryRun,
		BwLimit:  req.BwLimit,
	}, req.OnEntry, req.Transcript)
}

// Close implements Transport.
func (t *SSH) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
