package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionExtended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "%s %s\n", binaryName, versionInfo.Version)
		if versionExtended {
			_, _ = fmt.Fprintf(out, "commit:     %s\n", versionInfo.Commit)
			_, _ = fmt.Fprintf(out, "built:      %s\n", versionInfo.BuildDate)
			_, _ = fmt.Fprintf(out, "go:         %s\n", runtime.Version())
			_, _ = fmt.Fprintf(out, "platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionExtended, "extended", false, "Include commit, build date and Go version")
}
