package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// These will be set during build with -ldflags
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "sitedeploy version %s\n", Version)
			fmt.Fprintf(w, "  Git commit:  %s\n", GitCommit)
			fmt.Fprintf(w, "  Build date:  %s\n", BuildDate)
			fmt.Fprintf(w, "  Go version:  %s\n", runtime.Version())
			fmt.Fprintf(w, "  OS/Arch:     %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
