package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/renzodupont/renzodupont/internal/console"
	"github.com/renzodupont/renzodupont/internal/deploy"
)

func newBackupsCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List backups on the server, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			t := newTransport(cfg)
			defer func() { _ = t.Close() }()

			names, err := deploy.New(cfg, t, console.New(cmd.ErrOrStderr())).ListBackups(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintf(w, "no backups in %s\n", cfg.BackupPath)
				return nil
			}
			for i, n := range names {
				if i == 0 {
					fmt.Fprintf(w, "%s  (newest, default for --rollback)\n", n)
					continue
				}
				fmt.Fprintln(w, n)
			}
			return nil
		},
	}
}
