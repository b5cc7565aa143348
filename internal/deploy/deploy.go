// Package deploy runs the deploy and rollback flows against a transport:
// connectivity check, confirmation, backup, sync and restore, with a
// narrative on the console and an optional journal entry per run.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/renzodupont/renzodupont/internal/backup"
	"github.com/renzodupont/renzodupont/internal/config"
	"github.com/renzodupont/renzodupont/internal/console"
	"github.com/renzodupont/renzodupont/internal/debug"
	"github.com/renzodupont/renzodupont/internal/history"
	"github.com/renzodupont/renzodupont/internal/lock"
	"github.com/renzodupont/renzodupont/internal/rsync"
	"github.com/renzodupont/renzodupont/internal/runctx"
	"github.com/renzodupont/renzodupont/internal/transport"
	"github.com/renzodupont/renzodupont/internal/util/fs"
)

// Command is the name suggested in hints.
const Command = "sitedeploy"

// Options tune a single run.
type Options struct {
	DryRun     bool // simulate the sync; no backup, no confirmation
	AssumeYes  bool // skip the confirmation gate
	Progress   bool // draw a transfer bar
	KeepRunTmp bool // keep the run dir with the sync transcript
}

// ConfirmFunc asks the operator a yes/no question.
type ConfirmFunc func(question string) (bool, error)

// Deployer keeps state across the steps of one run.
type Deployer struct {
	cfg config.Config
	t   transport.Transport
	out *console.Printer

	// Confirm is consulted before a real deploy; nil declines.
	Confirm ConfirmFunc
	// History, when set, receives one record per run.
	History *history.History
	// Backups may be replaced to inject a clock.
	Backups *backup.Manager

	runID string
	log   *slog.Logger
}

// New returns a Deployer for cfg over t, narrating to out.
func New(cfg config.Config, t transport.Transport, out *console.Printer) *Deployer {
	return &Deployer{
		cfg:     cfg,
		t:       t,
		out:     out,
		Backups: backup.New(t, cfg),
	}
}

func (d *Deployer) begin(op string) time.Time {
	d.runID = uuid.NewString()
	d.log = slog.With("run", d.runID, "op", op)
	d.log.Info("run start", "target", d.cfg.Target(), "remote", d.cfg.RemotePath)
	return time.Now()
}

// Deploy runs the full pipeline:
//
//	validate → local source → connection → confirm → [dry-run sync] | backup → sync
//
// No transport call is made before the config and local source checks pass,
// and nothing is mutated before the connection check passes.
func (d *Deployer) Deploy(ctx context.Context, opts Options) (err error) {
	started := d.begin("deploy")
	var backupName string
	defer func() { d.finish("deploy", started, backupName, opts.DryRun, err) }()

	if err := d.checkConfig(); err != nil {
		return err
	}
	if !fs.IsDir(d.cfg.LocalPath) {
		d.out.Fail("Local source %s", d.cfg.LocalPath)
		d.out.Hint("build the site first; nothing was sent to the server")
		return fail(KindConfig, "check local source", fmt.Errorf("local source %s does not exist", d.cfg.LocalPath))
	}
	if err := d.TestConnection(ctx); err != nil {
		return err
	}

	if d.cfg.RequireConfirmation && !opts.DryRun && !opts.AssumeYes {
		ok, err := d.confirm(fmt.Sprintf("Deploy %s to %s:%s?", d.cfg.LocalPath, d.cfg.Target(), d.cfg.RemotePath))
		if err != nil {
			return fail(KindCancelled, "confirm", err)
		}
		if !ok {
			d.out.Warn("Deployment cancelled")
			return fail(KindCancelled, "confirm", errors.New("declined by operator"))
		}
	}

	if opts.DryRun {
		d.out.Step("Dry run: computing changes for %s", d.cfg.RemotePath)
		if _, err := d.sync(ctx, opts); err != nil {
			d.out.Banner(false, "Dry run failed")
			return fail(KindSync, "dry-run sync", err)
		}
		d.out.Banner(true, "Dry run complete, no changes were made")
		return nil
	}

	unlock, err := d.lock()
	if err != nil {
		return err
	}
	defer unlock()

	d.out.Step("Creating backup of %s", d.cfg.RemotePath)
	res, err := d.Backups.Create(ctx)
	if err != nil {
		d.out.Fail("Backup")
		d.out.Banner(false, "Deployment failed: backup could not be created")
		d.out.Hint("the live site was not touched; if in doubt run `%s --rollback`", Command)
		return fail(KindBackup, "create backup", err)
	}
	backupName = res.Name
	if res.Name == "" {
		d.out.Warn("Nothing to back up (%s missing)", d.cfg.RemotePath)
	} else {
		d.out.OK("Backup %s", res.Name)
	}
	for _, name := range res.Removed {
		d.out.Info("removed old backup %s", name)
	}
	if res.CleanupErr != nil {
		d.out.Warn("Old backup cleanup")
		d.out.Info("%v", res.CleanupErr)
	}
	debug.StopIf(ctx, "after-backup")

	d.out.Step("Syncing %s to %s", d.cfg.LocalPath, d.cfg.RemotePath)
	if _, err := d.sync(ctx, opts); err != nil {
		d.out.Fail("Sync")
		d.out.Banner(false, "Deployment failed: the site may be partially updated")
		d.out.Hint("restore the previous version with `%s --rollback`", Command)
		return fail(KindSync, "sync", err)
	}
	d.out.Banner(true, "Deployment complete")
	return nil
}

// Rollback restores the named backup, or the newest one when name is empty.
func (d *Deployer) Rollback(ctx context.Context, name string) (err error) {
	started := d.begin("rollback")
	var restored string
	defer func() { d.finish("rollback", started, restored, false, err) }()

	if err := d.checkConfig(); err != nil {
		return err
	}
	if err := d.TestConnection(ctx); err != nil {
		return err
	}
	unlock, err := d.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if name == "" {
		d.out.Step("Rolling back %s to the newest backup", d.cfg.RemotePath)
	} else {
		d.out.Step("Rolling back %s to %s", d.cfg.RemotePath, name)
	}
	debug.StopIf(ctx, "before-restore")
	restored, err = d.Backups.Rollback(ctx, name)
	if err != nil {
		var nf *backup.NotFoundError
		switch {
		case errors.Is(err, backup.ErrNoBackups):
			d.out.Fail("No backups available")
		case errors.As(err, &nf):
			d.out.Fail("Backup %s not found", nf.Name)
			d.out.Info("available backups:")
			for _, n := range nf.Available {
				d.out.Info("  %s", n)
			}
		default:
			d.out.Fail("Restore")
		}
		d.out.Banner(false, "Rollback failed")
		return fail(KindRollback, "rollback", err)
	}
	d.out.OK("Restored %s", restored)
	d.out.Banner(true, "Rollback complete")
	return nil
}

// ListBackups returns backups newest first.
func (d *Deployer) ListBackups(ctx context.Context) ([]string, error) {
	if err := d.checkConfig(); err != nil {
		return nil, err
	}
	names, err := d.Backups.List(ctx)
	if err != nil {
		d.out.Fail("List backups in %s", d.cfg.BackupPath)
		d.out.Info("%v", err)
		return nil, fail(KindConnectivity, "list backups", err)
	}
	return names, nil
}

// TestConnection runs a no-op command on the target. On failure it prints
// remediation hints; it never retries.
func (d *Deployer) TestConnection(ctx context.Context) error {
	d.out.Step("Testing connection to %s", d.cfg.Target())
	out, err := d.t.Run(ctx, "echo ok")
	if err == nil && strings.TrimSpace(string(out)) != "ok" {
		err = fmt.Errorf("unexpected reply %q", strings.TrimSpace(string(out)))
	}
	if err != nil {
		d.out.Fail("Connection to %s", d.cfg.Target())
		d.out.Info("%v", err)
		if !d.cfg.IsLocal() {
			d.out.Hint("check that the key %s is authorised for %s on the server", d.cfg.KeyPath, d.cfg.User)
			d.out.Hint("check host %s and port %d (%s, %s)", d.cfg.Host, d.cfg.Port, config.EnvHost, config.EnvPort)
			d.out.Hint("try manually: ssh -p %d -i %s %s@%s echo ok", d.cfg.Port, d.cfg.KeyPath, d.cfg.User, d.cfg.Host)
		}
		return fail(KindConnectivity, "test connection", err)
	}
	d.out.OK("Connection to %s", d.cfg.Target())
	return nil
}

func (d *Deployer) checkConfig() error {
	if err := d.cfg.Validate(); err != nil {
		d.out.Fail("Configuration")
		d.out.Info("%v", err)
		if errors.Is(err, config.ErrNotConfigured) {
			d.out.Hint("run `%s --config` to set up the target", Command)
		}
		return fail(KindConfig, "validate config", err)
	}
	return nil
}

func (d *Deployer) confirm(question string) (bool, error) {
	if d.Confirm == nil {
		return false, nil
	}
	return d.Confirm(question)
}

func (d *Deployer) lock() (func(), error) {
	lk := lock.New(d.cfg.Target(), d.cfg.RemotePath)
	ok, err := lk.TryLock()
	if err != nil {
		return nil, fail(KindLocked, "lock", err)
	}
	if !ok {
		d.out.Fail("Another deploy or rollback to %s is running", d.cfg.RemotePath)
		return nil, fail(KindLocked, "lock", fmt.Errorf("lock %s is held", lk.Path()))
	}
	return func() {
		if err := lk.Unlock(); err != nil {
			d.log.Warn("unlock", "err", err)
		}
	}, nil
}

func (d *Deployer) sync(ctx context.Context, opts Options) (rsync.Stats, error) {
	rc, err := runctx.New("sitedeploy_", opts.KeepRunTmp)
	if err != nil {
		return rsync.Stats{}, err
	}
	defer func() { _ = rc.Cleanup() }()
	transcript, err := rc.Create("sync.log")
	if err != nil {
		return rsync.Stats{}, err
	}
	defer func() { _ = transcript.Close() }()

	req := transport.SyncRequest{
		Source:     d.cfg.LocalPath,
		Target:     d.cfg.RemotePath,
		Excludes:   d.cfg.ExcludePatterns,
		DryRun:     opts.DryRun,
		BwLimit:    d.cfg.BandwidthLimit,
		Transcript: transcript,
	}

	var bar *rsync.Bar
	switch {
	case opts.DryRun:
		req.OnEntry = func(size int64, name string, deleted bool) {
			if deleted {
				d.out.Info("delete %s", name)
			} else if !strings.HasSuffix(name, "/") {
				d.out.Info("send   %s (%d bytes)", name, size)
			}
		}
	case opts.Progress:
		filter := rsync.NewFilter(d.cfg.ExcludePatterns)
		total, err := fs.DirSize(d.cfg.LocalPath, filter.Excluded)
		if err != nil {
			d.log.Debug("size estimate failed", "err", err)
		}
		bar = rsync.NewBar(d.out.Writer(), "sync", total)
		req.OnEntry = bar.Entry
	default:
		req.OnEntry = func(size int64, name string, deleted bool) {
			d.log.Debug("sync entry", "name", name, "size", size, "deleted", deleted)
		}
	}

	start := time.Now()
	st, err := d.t.Sync(ctx, req)
	if bar != nil {
		bar.Finish(err == nil)
	}
	d.log.Info("sync done", "dur", time.Since(start), "err", err)
	if rc.Keep() {
		d.out.Info("sync transcript kept at %s", rc.Path("sync.log"))
	}
	if err != nil {
		d.out.Info("%v", err)
		return st, err
	}
	d.out.OK("Sync (%s)", st.Summary())
	return st, nil
}

func (d *Deployer) finish(op string, started time.Time, backupName string, dryRun bool, err error) {
	status := history.StatusDone
	switch KindOf(err) {
	case "":
		if err != nil {
			status = history.StatusFailed
		}
	case KindCancelled:
		status = history.StatusCancelled
	default:
		status = history.StatusFailed
	}
	d.log.Info("run end", "status", status, "dur", time.Since(started), "err", err)
	if d.History == nil {
		return
	}
	rec := history.Record{
		RunID:     d.runID,
		Op:        op,
		Target:    d.cfg.Target(),
		Backup:    backupName,
		Status:    status,
		Kind:      string(KindOf(err)),
		DryRun:    dryRun,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	// journal on a fresh context: the run context may already be cancelled
	if _, herr := d.History.Add(context.Background(), rec); herr != nil {
		d.log.Warn("history write failed", "err", herr)
	}
}
