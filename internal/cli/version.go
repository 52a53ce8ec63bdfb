package cli

import (
	"fmt"
	"runtime"

	"github.com/harun/synmem/internal/daemon"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "synmem version %s (%s %s/%s)\n",
				daemon.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
