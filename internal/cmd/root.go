// Package cmd implements the thsubmit command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/thsubmit/internal/config"
	"github.com/3leaps/thsubmit/internal/observability"
)

const binaryName = "thsubmit"

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "none",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected through ldflags.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile  string
	logLevel string

	// cfgViper is rebuilt for every execution by initConfig.
	cfgViper *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   binaryName + " [flags] <venv_path>",
	Short: "Report CI job status to Treeherder",
	Long: `Report the status of a CI job to Treeherder.

Run once with --build-state running when the job starts and once with
--build-state completed when it ends. The running phase writes job.json to
the state directory; the build step writes its exit code to retval.txt; the
completed phase reads both and reports the result.

Treeherder location and credentials come from --treeherder-url,
--treeherder-client-id and --treeherder-secret, or from TREEHERDER_URL,
TREEHERDER_CLIENT_ID and TREEHERDER_SECRET.

Example:
  thsubmit --test-type functional --repository mozilla-central \
    --revision 3f2ad6a1c0b7 --build-state running venv
  ./run-tests.sh; echo $? > retval.txt
  thsubmit --test-type functional --repository mozilla-central \
    --revision 3f2ad6a1c0b7 --build-state completed venv`,
	Args:              cobra.ExactArgs(1),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
	RunE:              runSubmit,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (YAML); keys mirror THSUBMIT_* variables")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
}

// persistentBindings map persistent flags to viper keys.
var persistentBindings = map[string]string{
	"log-level": "logging.level",
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	observability.CLILogger.Error("Command failed", zap.Error(err))
	fmt.Fprintln(os.Stderr, "Error:", err)
	return ExitCode(err)
}

// initConfig builds the viper instance and the CLI logger for a run.
func initConfig(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to initialize configuration", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to read config file", err)
		}
	}

	if err := bindFlags(v, cmd.Flags(), persistentBindings); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to bind flags", err)
	}

	if err := observability.InitCLILoggerWithLevel(binaryName, v.GetString("logging.level")); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --log-level", err)
	}

	if cfgFile != "" {
		observability.CLILogger.Debug("Loaded config file", zap.String("path", v.ConfigFileUsed()))
	}

	cfgViper = v
	return nil
}

// bindFlags binds each named flag present in flags to its viper key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) error {
	for name, key := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

// parseTruthy interprets a boolean-as-string flag. Anything other than an
// empty or explicitly false value is true.
func parseTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "f", "no", "n", "off":
		return false
	}
	return true
}
