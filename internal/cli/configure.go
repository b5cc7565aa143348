package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/renzodupont/renzodupont/internal/config"
	"github.com/renzodupont/renzodupont/internal/console"
	"github.com/renzodupont/renzodupont/internal/deploy"
)

// configure walks through every persisted setting, saves the result to
// path and finishes with a connection test.
func configure(ctx context.Context, p *prompter, out *console.Printer, cfg config.Config, path string) error {
	out.Step("Deployment configuration (%s)", path)
	w := out.Writer()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Server to deploy to; %q deploys to a directory on this machine\n", config.LocalHost)
	cfg.Host = p.readValue("Host", cfg.Host)
	if !cfg.IsLocal() {
		cfg.User = p.readValue("SSH user", cfg.User)
		cfg.Port = p.readInt("SSH port", cfg.Port)
		cfg.KeyPath = p.readValue("Private key path", cfg.KeyPath)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Directory served by the web server; it is mirrored from the local build")
	cfg.RemotePath = p.readValue("Remote site path", cfg.RemotePath)
	fmt.Fprintln(w, "Directory holding backups; must be outside the site path")
	cfg.BackupPath = p.readValue("Remote backup path", cfg.BackupPath)
	cfg.MaxBackups = p.readInt("Backups to keep", cfg.MaxBackups)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Comma separated patterns never uploaded (rsync --exclude syntax)")
	cfg.ExcludePatterns = splitList(p.readValue("Exclude patterns", strings.Join(cfg.ExcludePatterns, ", ")))
	cfg.RequireConfirmation = p.readBool("Ask before every deploy", cfg.RequireConfirmation)

	if err := cfg.Validate(); err != nil {
		out.Fail("Configuration")
		out.Info("%v", err)
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		out.Fail("Save %s", path)
		return err
	}
	out.OK("Saved %s", path)

	t := newTransport(cfg)
	defer func() { _ = t.Close() }()
	return deploy.New(cfg, t, out).TestConnection(ctx)
}
