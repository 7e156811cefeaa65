package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/thsubmit/internal/config"
	"github.com/3leaps/thsubmit/internal/observability"
	"github.com/3leaps/thsubmit/pkg/jobstate"
	"github.com/3leaps/thsubmit/pkg/logupload"
	"github.com/3leaps/thsubmit/pkg/platform"
	"github.com/3leaps/thsubmit/pkg/submission"
	"github.com/3leaps/thsubmit/pkg/treeherder"
)

// runOptions are the per-invocation inputs taken from flags.
type runOptions struct {
	Locale      string `validate:"required"`
	TestType    string `validate:"required"`
	Repository  string `validate:"required"`
	Revision    string `validate:"required,alphanum"`
	BuildState  string `validate:"required,oneof=running completed"`
	TestFailure string
	VenvPath    string `validate:"required"`
	LogFile     string
}

var submitOpts runOptions

func init() {
	f := rootCmd.Flags()
	f.StringVar(&submitOpts.Locale, "locale", "DEMO", "Build locale, substituted into job names")
	f.StringVar(&submitOpts.TestType, "test-type", "", "Test type to report, as named in settings (required)")
	f.StringVar(&submitOpts.Repository, "repository", "", "Treeherder repository (project) name (required)")
	f.StringVar(&submitOpts.Revision, "revision", "", "Changeset under test (required)")
	f.StringVar(&submitOpts.BuildState, "build-state", "", "Phase to report: running or completed (required)")
	f.StringVar(&submitOpts.TestFailure, "test-failure", "", "Report the job as busted regardless of the exit code")
	f.StringVar(&submitOpts.LogFile, "log-file", "", "Build log to upload in the completed phase")

	f.String("treeherder-url", "", "Treeherder URL (env: TREEHERDER_URL)")
	f.String("treeherder-client-id", "", "Treeherder Hawk client id (env: TREEHERDER_CLIENT_ID)")
	f.String("treeherder-secret", "", "Treeherder Hawk secret (env: TREEHERDER_SECRET)")
	f.String("settings", "", "Settings YAML replacing the built-in test types")
	f.String("state-dir", ".", "Directory holding job.json and retval.txt")

	_ = rootCmd.MarkFlagRequired("test-type")
	_ = rootCmd.MarkFlagRequired("repository")
	_ = rootCmd.MarkFlagRequired("revision")
	_ = rootCmd.MarkFlagRequired("build-state")
}

// submitBindings map root flags to viper keys.
var submitBindings = map[string]string{
	"treeherder-url":       "treeherder.url",
	"treeherder-client-id": "treeherder.client_id",
	"treeherder-secret":    "treeherder.secret",
	"settings":             "settings",
	"state-dir":            "state.dir",
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.CLILogger

	opts := submitOpts
	opts.VenvPath = args[0]
	opts.Revision = strings.TrimSpace(opts.Revision)
	if err := validator.New().Struct(opts); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid arguments", err)
	}

	phase, err := submission.ParsePhase(opts.BuildState)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --build-state", err)
	}

	if err := bindFlags(cfgViper, cmd.Flags(), submitBindings); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to bind flags", err)
	}
	cfg, err := config.Load(cfgViper)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	jobSettings, err := loadJobSettings(cfg.SettingsPath, opts.TestType, opts.Locale)
	if err != nil {
		logger.Error("Invalid settings", zap.String("test_type", opts.TestType), zap.Error(err))
		return exitError(foundry.ExitInvalidArgument, "Invalid settings", err)
	}

	logger.Debug("Starting submission",
		zap.String("phase", string(phase)),
		zap.String("repository", opts.Repository),
		zap.String("revision", opts.Revision),
		zap.String("test_type", opts.TestType),
		zap.String("locale", opts.Locale),
		zap.String("venv_path", opts.VenvPath),
		zap.String("state_dir", cfg.State.Dir))

	client, err := treeherder.NewClient(cfg.Treeherder.URL,
		treeherder.Credentials{ClientID: cfg.Treeherder.ClientID, Secret: cfg.Treeherder.Secret},
		treeherder.WithHTTPClient(&http.Client{Timeout: cfg.Treeherder.Timeout}),
		treeherder.WithUserAgent(cfg.Treeherder.UserAgent),
		treeherder.WithLogger(logger.Named("treeherder")))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid Treeherder URL", err)
	}

	target := submission.Target{Repository: opts.Repository, Revision: opts.Revision}
	builder := submission.NewBuilder(target, jobSettings, client,
		submission.WithBuilderLogger(logger),
		submission.WithPlatformSource(func(ctx context.Context) (platform.Platform, error) {
			return platform.Resolve(hostInfo(ctx))
		}))
	submitter := submission.NewSubmitter(client, target,
		submission.WithOutput(cmd.OutOrStdout()),
		submission.WithSubmitterLogger(logger))

	orchOpts := []submission.OrchestratorOption{
		submission.WithLogger(logger),
		submission.WithBuildURL(cfg.BuildURL),
		submission.WithTestFailure(parseTruthy(opts.TestFailure)),
	}
	if phase == submission.PhaseCompleted && opts.LogFile != "" {
		if uploader := newLogUploader(ctx, cfg.LogUpload, logger); uploader != nil {
			orchOpts = append(orchOpts, submission.WithLogUpload(uploader, opts.LogFile))
		}
	}

	orch := submission.NewOrchestrator(builder, jobstate.NewFileStore(cfg.State.Dir), submitter, orchOpts...)
	record, err := orch.Run(ctx, phase)
	if err != nil {
		logger.Error("Submission failed",
			zap.String("phase", string(phase)),
			zap.String("kind", string(submission.KindOf(err))),
			zap.Error(err))
		return exitError(submissionExitCode(err), fmt.Sprintf("Failed to report %s job", phase), err)
	}

	logger.Info("Reported job",
		zap.String("phase", string(phase)),
		zap.String("job_guid", record.JobGUID),
		zap.String("result", string(record.Job.Result)))
	return nil
}

// loadJobSettings selects a test type and renders its names for locale.
func loadJobSettings(path, testType, locale string) (submission.JobSettings, error) {
	settings, err := config.LoadSettings(path)
	if err != nil {
		return submission.JobSettings{}, err
	}
	tt, err := settings.Select(testType)
	if err != nil {
		return submission.JobSettings{}, err
	}
	names, err := tt.Render(map[string]string{config.ParamLocale: locale})
	if err != nil {
		return submission.JobSettings{}, err
	}
	return submission.JobSettings{
		GroupName:    names.GroupName,
		GroupSymbol:  names.GroupSymbol,
		JobName:      names.JobName,
		JobSymbol:    names.JobSymbol,
		Tier:         tt.Treeherder.Tier,
		LogReference: tt.Treeherder.LogReference,
	}, nil
}

// newLogUploader returns nil when upload is not configured or the client
// cannot be built; the job is reported either way.
func newLogUploader(ctx context.Context, cfg config.LogUploadConfig, logger *zap.Logger) submission.LogUploader {
	if !cfg.Enabled() {
		logger.Warn("--log-file given but log upload is not configured; set log_upload.bucket")
		return nil
	}
	uploader, err := logupload.New(ctx, logupload.Config{
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		Profile:         cfg.Profile,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Prefix:          cfg.Prefix,
		PublicBaseURL:   cfg.PublicBaseURL,
		ForcePathStyle:  cfg.ForcePathStyle,
		ContentType:     cfg.ContentType,
	}, logger.Named("logupload"))
	if err != nil {
		logger.Warn("Log upload disabled", zap.Error(err))
		return nil
	}
	return uploader
}
