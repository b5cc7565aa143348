package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/renzodupont/renzodupont/internal/config"
	"github.com/renzodupont/renzodupont/internal/console"
	"github.com/renzodupont/renzodupont/internal/deploy"
	"github.com/renzodupont/renzodupont/internal/history"
	dlog "github.com/renzodupont/renzodupont/internal/log"
	"github.com/renzodupont/renzodupont/internal/transport"
)

// Options holds values of CLI flags.
type Options struct {
	ConfigFile string
	Source     string
	DryRun     bool
	Rollback   bool
	Configure  bool
	Yes        bool
	Debug      bool
	Verbose    bool
	Progress   string
	KeepRunTmp bool
}

// newTransport is replaced in tests.
var newTransport = func(cfg config.Config) transport.Transport { return transport.New(cfg) }

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{
		Use:   "sitedeploy [--rollback [BACKUP]]",
		Short: "Deploy the static blog over rsync/ssh with backups and rollback",
		Long: `Deploy the generated site to the web server.

Without flags: test the connection, ask for confirmation, back up the live
site on the server, then mirror the local build onto it (remote files missing
locally are deleted).

Configuration comes from DEPLOY_* environment variables overlaid by the
config file written with --config.`,
		Example: `  sitedeploy --config
  sitedeploy --dry-run
  sitedeploy
  sitedeploy --rollback
  sitedeploy --rollback backup-2024-01-01T00-00-00-000Z`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			dlog.Setup(cmd.ErrOrStderr(), opts.Debug, opts.Verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, opts, args)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.ConfigFile, "config-file", config.DefaultFile, "Config file (.json, or .yaml/.yml)")
	pf.StringVar(&opts.Source, "source", "", "Local site directory (default ./public)")
	pf.BoolVar(&opts.Debug, "debug", false, "Enable debug trace output")
	pf.BoolVar(&opts.Verbose, "verbose", false, "Verbose output")

	f := root.Flags()
	f.BoolVar(&opts.DryRun, "dry-run", false, "Show what would change; no backup, nothing written")
	f.BoolVar(&opts.Rollback, "rollback", false, "Restore the newest backup, or the one named as argument")
	f.BoolVar(&opts.Configure, "config", false, "Interactively set up and save the configuration")
	f.BoolVarP(&opts.Yes, "yes", "y", false, "Do not ask for confirmation")
	f.StringVar(&opts.Progress, "progress", "auto", "Progress display mode: auto|bar|none")
	f.BoolVar(&opts.KeepRunTmp, "keep-run-tmp", false, "Preserve temporary run directory with the sync transcript")
	root.MarkFlagsMutuallyExclusive("dry-run", "rollback", "config")

	root.AddCommand(newBackupsCmd(opts), newHistoryCmd(opts), newVersionCmd())
	return root
}

// Execute parses flags and runs the root command. Failures of the deploy
// flow have already been narrated on stdout; anything else is printed here.
func Execute(ctx context.Context) error {
	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil && deploy.KindOf(err) == "" {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return err
}

func runRoot(cmd *cobra.Command, opts *Options, args []string) error {
	if len(args) > 0 && !opts.Rollback {
		return fmt.Errorf("unexpected argument %q (a backup name is only accepted with --rollback)", args[0])
	}
	switch opts.Progress {
	case "auto", "bar", "none":
	default:
		return fmt.Errorf("invalid --progress %q (want auto|bar|none)", opts.Progress)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	out := console.New(cmd.OutOrStdout())
	in := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())

	if opts.Configure {
		return configure(cmd.Context(), in, out, cfg, opts.ConfigFile)
	}

	t := newTransport(cfg)
	defer func() { _ = t.Close() }()

	d := deploy.New(cfg, t, out)
	d.Confirm = in.Confirm
	if cfg.HistoryPath != "" {
		h, err := history.Open(cfg.HistoryPath)
		if err != nil {
			out.Warn("Run history unavailable")
			out.Info("%v", err)
		} else {
			defer func() { _ = h.Close() }()
			d.History = h
		}
	}

	if opts.Rollback {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return d.Rollback(cmd.Context(), name)
	}
	return d.Deploy(cmd.Context(), deploy.Options{
		DryRun:     opts.DryRun,
		AssumeYes:  opts.Yes,
		Progress:   showBar(opts.Progress, cmd.OutOrStdout()),
		KeepRunTmp: opts.KeepRunTmp,
	})
}

// loadConfig layers defaults, environment and the config file, then adds
// the local source path, which is never persisted.
func loadConfig(opts *Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigFile, os.Getenv)
	if err != nil {
		return config.Config{}, err
	}
	src := opts.Source
	if src == "" {
		wd, err := os.Getwd()
		if err != nil {
			return config.Config{}, err
		}
		src = filepath.Join(wd, "public")
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return config.Config{}, err
	}
	return cfg.WithLocalPath(abs), nil
}

func showBar(mode string, w io.Writer) bool {
	switch mode {
	case "bar":
		return true
	case "none":
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
