package submission

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/thsubmit/pkg/jobstate"
	"github.com/3leaps/thsubmit/pkg/treeherder"
)

// Phase selects which half of the job lifecycle an invocation reports.
type Phase string

const (
	PhaseRunning   Phase = "running"
	PhaseCompleted Phase = "completed"
)

// ParsePhase validates a --build-state value.
func ParsePhase(s string) (Phase, error) {
	switch Phase(strings.TrimSpace(s)) {
	case PhaseRunning:
		return PhaseRunning, nil
	case PhaseCompleted:
		return PhaseCompleted, nil
	}
	return "", newError(KindConfiguration, "ParsePhase",
		fmt.Errorf("invalid build state %q (expected %s or %s)", s, PhaseRunning, PhaseCompleted))
}

// Build link detail attached in the completed phase when a build URL is known.
const (
	BuildLinkTitle       = "Inspect Jenkins Build (VPN required)"
	BuildLinkContentType = "link"
)

// UploadedLogName names the log reference for an uploaded build log.
const UploadedLogName = "build_log"

// LogUploader stores a local log file and returns its public URL.
type LogUploader interface {
	UploadLog(ctx context.Context, path, key string) (string, error)
}

// Orchestrator runs one phase of a submission.
type Orchestrator struct {
	builder   *Builder
	store     jobstate.Store
	submitter *Submitter
	uploader  LogUploader

	buildURL    string
	testFailure bool
	logFile     string

	logger *zap.Logger
	now    func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithBuildURL attaches a link to the CI build in the completed phase.
func WithBuildURL(u string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.buildURL = strings.TrimSpace(u)
	}
}

// WithTestFailure forces the completed result to busted.
func WithTestFailure(failed bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.testFailure = failed
	}
}

// WithLogUpload uploads logFile in the completed phase and references it
// from the job. Either argument empty disables the upload.
func WithLogUpload(uploader LogUploader, logFile string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.uploader = uploader
		o.logFile = logFile
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(l *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the clock used for the end timestamp.
func WithClock(fn func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if fn != nil {
			o.now = fn
		}
	}
}

// NewOrchestrator wires the builder, state store and submitter.
func NewOrchestrator(builder *Builder, store jobstate.Store, submitter *Submitter, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		builder:   builder,
		store:     store,
		submitter: submitter,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes phase and returns the record that was submitted.
func (o *Orchestrator) Run(ctx context.Context, phase Phase) (*treeherder.JobRecord, error) {
	switch phase {
	case PhaseRunning:
		return o.running(ctx)
	case PhaseCompleted:
		return o.completed(ctx)
	}
	_, err := ParsePhase(string(phase))
	return nil, err
}

func (o *Orchestrator) running(ctx context.Context) (*treeherder.JobRecord, error) {
	record, err := o.builder.CreateJob(ctx, nil)
	if err != nil {
		return nil, err
	}

	if err := o.store.WriteJob(record); err != nil {
		return nil, newError(KindPersistence, "Run", err)
	}

	record.Job.State = treeherder.JobStateRunning

	if err := o.submitter.Submit(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (o *Orchestrator) completed(ctx context.Context) (*treeherder.JobRecord, error) {
	existing, err := o.store.ReadJob()
	if err != nil {
		o.degraded(err)
		existing = nil
	}

	exitCode, err := o.store.ReadExitCode()
	if err != nil {
		o.degraded(err)
		exitCode = UnknownExitCode
	}

	if existing == nil {
		o.logger.Warn("No job snapshot from the running phase; completion will be reported as a new job")
	}

	record, err := o.builder.CreateJob(ctx, existing)
	if err != nil {
		return nil, err
	}

	record.Job.State = treeherder.JobStateCompleted

	result, err := ResultForExitCode(exitCode)
	if err != nil {
		return nil, err
	}
	if o.testFailure {
		o.logger.Info("Test failure reported; forcing result",
			zap.String("exit_result", string(result)),
			zap.String("result", string(treeherder.ResultBusted)))
		result = treeherder.ResultBusted
	}
	record.Job.Result = result
	record.Job.EndTimestamp = o.now().Unix()

	if o.buildURL != "" {
		o.submitter.AddJobDetail(treeherder.JobDetail{
			Title:       BuildLinkTitle,
			Value:       o.buildURL,
			ContentType: BuildLinkContentType,
			URL:         o.buildURL,
		})
	}

	o.uploadLog(ctx, record)

	if err := o.submitter.Submit(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// uploadLog attaches the uploaded build log. A failed upload is logged and
// the job is still reported.
func (o *Orchestrator) uploadLog(ctx context.Context, record *treeherder.JobRecord) {
	if o.uploader == nil || o.logFile == "" {
		return
	}

	key := record.JobGUID + "/" + filepath.Base(o.logFile)
	url, err := o.uploader.UploadLog(ctx, o.logFile, key)
	if err != nil {
		o.logger.Warn("Build log upload failed; submitting without it",
			zap.String("path", o.logFile),
			zap.Error(err))
		return
	}

	record.AddLogReference(UploadedLogName, url)
	o.logger.Info("Uploaded build log", zap.String("url", url))
}

func (o *Orchestrator) degraded(err error) {
	fields := []zap.Field{zap.Error(err)}
	var de *jobstate.DegradedError
	if errors.As(err, &de) {
		fields = append(fields, zap.String("slot", string(de.Slot)), zap.String("path", de.Path))
	}
	o.logger.Warn("Job state unavailable; continuing with defaults", fields...)
}
