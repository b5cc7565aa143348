package rsync

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

// OutFormat makes rsync print "<bytes> <name>" per transferred entry so the
// progress bar can account bytes as they arrive.
const OutFormat = "--out-format=%l %n"

// Config holds the SSH endpoint rsync pushes to.
type Config struct {
	Host     string // remote host
	User     string // remote user
	Port     int    // ssh port
	KeyPath  string // identity file passed to ssh -i
	Insecure bool   // disable host key checking
}

// Request describes one push of a local tree onto a remote directory.
type Request struct {
	Source   string   // local directory; its contents are mirrored
	Target   string   // remote directory
	Excludes []string // rsync --exclude patterns, applied in order
	DryRun   bool     // simulate only (--dry-run)
	BwLimit  int      // KiB/s (--bwlimit), 0 for unlimited
}

// SSHCommand renders the remote shell passed to rsync -e.
func (c Config) SSHCommand() string {
	parts := []string{"ssh", "-p", strconv.Itoa(c.port())}
	if c.KeyPath != "" {
		parts = append(parts, "-i", c.KeyPath)
	}
	parts = append(parts, "-o", "BatchMode=yes")
	if c.Insecure {
		parts = append(parts, "-o", "StrictHostKeyChecking=no", "-o", "UserKnownHostsFile=/dev/null")
	}
	return shellquote.Join(parts...)
}

// Destination renders user@host:/path/ for rsync.
func (c Config) Destination(target string) string {
	host := c.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s@%s:%s/", c.User, host, strings.TrimSuffix(filepath.Clean(target), "/"))
}

// Args returns the rsync argument vector for req (without the binary).
// Archive, verbose and compress are always on; remote-only files are
// deleted so the local tree is the source of truth.
func (c Config) Args(req Request) []string {
	args := []string{"-avz", "--delete", "--stats", OutFormat}
	if req.DryRun {
		args = append(args, "--dry-run")
	}
	if req.BwLimit > 0 {
		args = append(args, "--bwlimit="+strconv.Itoa(req.BwLimit))
	}
	for _, e := range req.Excludes {
		args = append(args, "--exclude", e)
	}
	args = append(args, "-e", c.SSHCommand())
	args = append(args, filepath.Clean(req.Source)+"/", c.Destination(req.Target))
	return args
}

// BuildCmd constructs *exec.Cmd for req.
func (c Config) BuildCmd(ctx context.Context, req Request) *exec.Cmd {
	return exec.CommandContext(ctx, "rsync", c.Args(req)...)
}

func (c Config) port() int {
	if c.Port == 0 {
		return 22
	}
	return c.Port
}
