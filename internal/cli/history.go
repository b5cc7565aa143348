package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/renzodupont/renzodupont/internal/history"
)

func newHistoryCmd(opts *Options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent deploy and rollback runs from the local journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.HistoryPath == "" {
				return errors.New("run history is disabled: set historyPath in the config file")
			}
			h, err := history.Open(cfg.HistoryPath)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			recs, err := h.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tOP\tSTATUS\tTARGET\tBACKUP\tDURATION\tERROR")
			for _, r := range recs {
				op := r.Op
				if r.DryRun {
					op += " (dry)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					op, r.Status, r.Target, dash(r.Backup),
					r.Duration.Round(time.Millisecond), dash(r.Error))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
