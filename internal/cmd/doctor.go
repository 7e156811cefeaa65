package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/thsubmit/internal/config"
	"github.com/3leaps/thsubmit/internal/observability"
	"github.com/3leaps/thsubmit/pkg/jobstate"
	"github.com/3leaps/thsubmit/pkg/platform"
)

var doctorLogUpload bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Check that this host can report jobs: settings, platform mapping,
Treeherder configuration and the state directory. No requests are sent to
Treeherder.

Examples:
  thsubmit doctor               # Full environment check
  thsubmit doctor --log-upload  # Also check AWS credentials for log upload`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorLogUpload, "log-upload", false, "Run log upload (S3) checks")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	log := observability.CLILogger
	log.Info("=== " + binaryName + " doctor ===")
	log.Info("Running diagnostic checks...")

	allChecks := true
	checkNum := 1
	totalChecks := 5
	if doctorLogUpload {
		totalChecks = 7
	}

	cfg, err := config.Load(cfgViper)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	log.Info(fmt.Sprintf("[%d/%d] Checking Go runtime... ✅ %s %s/%s", checkNum, totalChecks, goVersion, runtime.GOOS, runtime.GOARCH),
		zap.String("go_version", goVersion))
	checkNum++

	// Check 2: Settings
	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking settings... ❌ %v", checkNum, totalChecks, err))
		allChecks = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking settings... ✅ %d test type(s)", checkNum, totalChecks, len(settings.TestTypes)),
			zap.Strings("test_types", settings.Names()))
	}
	checkNum++

	// Check 3: Platform
	info := hostInfo(cmd.Context())
	if p, err := platform.Resolve(info); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking platform... ❌ %v", checkNum, totalChecks, err))
		allChecks = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking platform... ✅ %s", checkNum, totalChecks, p))
	}
	checkNum++

	// Check 4: Treeherder configuration
	if err := cfg.Validate(); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking Treeherder configuration... ❌ %v", checkNum, totalChecks, err))
		allChecks = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking Treeherder configuration... ✅ %s", checkNum, totalChecks, cfg.Treeherder.URL),
			zap.String("client_id", cfg.Treeherder.ClientID),
			zap.String("secret", maskSecret(cfg.Treeherder.Secret)))
	}
	checkNum++

	// Check 5: State directory
	if err := checkStateDir(cfg.State.Dir); err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking state directory... ❌ %v", checkNum, totalChecks, err))
		allChecks = false
	} else {
		store := jobstate.NewFileStore(cfg.State.Dir)
		_, jobErr := store.ReadJob()
		log.Info(fmt.Sprintf("[%d/%d] Checking state directory... ✅ %s", checkNum, totalChecks, store.Dir()),
			zap.Bool("job_snapshot", jobErr == nil))
	}
	checkNum++

	if doctorLogUpload {
		allChecks = runS3Checks(cmd.Context(), cfg.LogUpload, checkNum, totalChecks, allChecks)
	}

	if !allChecks {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
		return exitError(foundry.ExitInvalidArgument, "Diagnostics failed", errors.New("one or more checks failed"))
	}
	log.Info("✅ All checks passed!")
	return nil
}

// checkStateDir verifies dir exists (or can be created) and is writable.
func checkStateDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".thsubmit-doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(filepath.Clean(name))
}

// runS3Checks runs log upload diagnostic checks.
func runS3Checks(ctx context.Context, cfg config.LogUploadConfig, checkNum, totalChecks int, allChecks bool) bool {
	log := observability.CLILogger

	// Check 6: Bucket configured
	if !cfg.Enabled() {
		log.Error(fmt.Sprintf("[%d/%d] Checking log upload bucket... ❌ log_upload.bucket is not set", checkNum, totalChecks))
		allChecks = false
	} else {
		log.Info(fmt.Sprintf("[%d/%d] Checking log upload bucket... ✅ %s", checkNum, totalChecks, cfg.Bucket),
			zap.String("prefix", cfg.Prefix),
			zap.String("endpoint", cfg.Endpoint))
	}
	checkNum++

	// Check 7: AWS credentials
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot load AWS config", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking AWS credentials... ❌ Cannot retrieve credentials", checkNum, totalChecks),
			zap.Error(err))
		printAWSCredentialsHelp()
		return false
	}

	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	log.Info(fmt.Sprintf("[%d/%d] Checking AWS credentials... ✅ Found credentials", checkNum, totalChecks),
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("source", source))

	return allChecks
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// maskSecret hides a secret entirely, noting only whether it is set.
func maskSecret(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	return "****"
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	log := observability.CLILogger
	log.Info("To configure AWS credentials for log upload:")
	log.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	log.Info("  2. Set log_upload.profile (THSUBMIT_LOG_UPLOAD_PROFILE) to a configured profile, or")
	log.Info("  3. Use an IAM role when running on AWS infrastructure")
	log.Info("For S3-compatible storage also set log_upload.endpoint and log_upload.force_path_style.")
}
