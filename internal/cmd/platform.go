package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/thsubmit/internal/observability"
	"github.com/3leaps/thsubmit/pkg/platform"
)

var platformJSON bool

var platformCmd = &cobra.Command{
	Use:   "platform",
	Short: "Show the Treeherder platform of this host",
	Long: `Detect the host OS, version and architecture and show the Treeherder
platform triple that jobs from this host will report.

Example:
  thsubmit platform
  thsubmit platform --json`,
	Args: cobra.NoArgs,
	RunE: runPlatform,
}

func init() {
	rootCmd.AddCommand(platformCmd)
	platformCmd.Flags().BoolVar(&platformJSON, "json", false, "Output as JSON")
}

// hostInfo is swapped in tests.
var hostInfo = platform.Detect

func runPlatform(cmd *cobra.Command, args []string) error {
	info := hostInfo(cmd.Context())
	p, err := platform.Resolve(info)
	if err != nil {
		observability.CLILogger.Error("Unsupported platform",
			zap.String("os", info.OS),
			zap.String("os_version", info.OSVersion),
			zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Unsupported platform", err)
	}

	out := cmd.OutOrStdout()
	if platformJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Host     platform.Info     `json:"host"`
			Platform platform.Platform `json:"platform"`
		}{info, p})
	}

	_, _ = fmt.Fprintf(out, "os_name:      %s\n", p.OSName)
	_, _ = fmt.Fprintf(out, "platform:     %s\n", p.Platform)
	_, _ = fmt.Fprintf(out, "architecture: %s\n", p.Architecture)
	return nil
}
