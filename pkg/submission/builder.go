// Package submission builds Treeherder job records and reports them in two
// phases: "running" when the CI job starts and "completed" when it ends.
//
// The phases run as separate processes. The running phase synthesizes the
// job (new guid, revision hash, platform) and persists a snapshot; the
// completed phase reloads it, classifies the build exit code and submits
// the same job again with its result.
package submission

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/thsubmit/pkg/platform"
	"github.com/3leaps/thsubmit/pkg/treeherder"
)

// ProductName is reported for every job.
const ProductName = "firefox"

// RevisionLength is the number of changeset characters sent to Treeherder.
const RevisionLength = 12

// DefaultOptionCollection is the build option set reported for every job.
const DefaultOptionCollection = "opt"

// LogReferenceName names the log reference taken from settings.
const LogReferenceName = "buildbot_text"

// RevisionLookup resolves a revision to its Treeherder result-set hash.
type RevisionLookup interface {
	RevisionHash(ctx context.Context, repository, revision string) (string, error)
}

// PlatformSource returns the platform triple of the build host.
type PlatformSource func(ctx context.Context) (platform.Platform, error)

// HostPlatform detects and resolves the current host.
func HostPlatform(ctx context.Context) (platform.Platform, error) {
	return platform.Resolve(platform.Detect(ctx))
}

// JobSettings are the per-test-type values stamped on a new job. Names are
// already rendered for the build's locale.
type JobSettings struct {
	GroupName    string
	GroupSymbol  string
	JobName      string
	JobSymbol    string
	Tier         int
	LogReference string
}

// Target identifies the code under test.
type Target struct {
	Repository string
	Revision   string
}

// ShortRevision truncates a changeset id to RevisionLength characters.
func ShortRevision(revision string) string {
	revision = strings.TrimSpace(revision)
	if len(revision) > RevisionLength {
		return revision[:RevisionLength]
	}
	return revision
}

// Builder creates job records.
type Builder struct {
	target   Target
	settings JobSettings
	lookup   RevisionLookup
	platform PlatformSource
	logger   *zap.Logger

	hostname func() string
	newGUID  func() string
	now      func() time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithPlatformSource overrides host platform detection.
func WithPlatformSource(src PlatformSource) BuilderOption {
	return func(b *Builder) {
		if src != nil {
			b.platform = src
		}
	}
}

// WithBuilderLogger sets the builder logger.
func WithBuilderLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithHostname overrides machine name detection.
func WithHostname(fn func() string) BuilderOption {
	return func(b *Builder) {
		if fn != nil {
			b.hostname = fn
		}
	}
}

// WithGUIDGenerator overrides job guid generation.
func WithGUIDGenerator(fn func() string) BuilderOption {
	return func(b *Builder) {
		if fn != nil {
			b.newGUID = fn
		}
	}
}

// WithBuilderClock overrides the clock used for the start timestamp.
func WithBuilderClock(fn func() time.Time) BuilderOption {
	return func(b *Builder) {
		if fn != nil {
			b.now = fn
		}
	}
}

// NewBuilder creates a builder for jobs of one target and test type.
func NewBuilder(target Target, settings JobSettings, lookup RevisionLookup, opts ...BuilderOption) *Builder {
	target.Revision = ShortRevision(target.Revision)
	b := &Builder{
		target:   target,
		settings: settings,
		lookup:   lookup,
		platform: HostPlatform,
		logger:   zap.NewNop(),
		hostname: fqdn,
		newGUID:  func() string { return uuid.New().String() },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Target returns the normalized target, with the revision truncated.
func (b *Builder) Target() Target {
	return b.target
}

// CreateJob returns the job record for this submission.
//
// A non-nil existing snapshot is returned as-is so the completed phase
// reports the same job the running phase created. With no snapshot a new
// job is synthesized, which requires the revision hash lookup and platform
// resolution to succeed.
func (b *Builder) CreateJob(ctx context.Context, existing *treeherder.JobRecord) (*treeherder.JobRecord, error) {
	if existing != nil {
		return existing, nil
	}

	if b.target.Repository == "" || b.target.Revision == "" {
		return nil, newError(KindConfiguration, "CreateJob", errors.New("repository and revision are required"))
	}
	if b.lookup == nil {
		return nil, newError(KindConfiguration, "CreateJob", treeherder.ErrMissingURL)
	}

	revisionHash, err := b.lookup.RevisionHash(ctx, b.target.Repository, b.target.Revision)
	if err != nil {
		kind := KindLookup
		if errors.Is(err, treeherder.ErrMissingURL) {
			kind = KindConfiguration
		}
		return nil, newError(kind, "CreateJob", err)
	}

	plat, err := b.platform(ctx)
	if err != nil {
		return nil, newError(KindPlatform, "CreateJob", err)
	}

	record := &treeherder.JobRecord{
		Project:      b.target.Repository,
		Revision:     b.target.Revision,
		RevisionHash: revisionHash,
		Superseded:   []string{},
	}
	record.SetGUID(b.newGUID())
	record.SetPlatform(plat)

	job := &record.Job
	job.ProductName = ProductName
	job.Tier = b.settings.Tier
	job.Machine = b.hostname()
	job.OptionCollection = map[string]bool{DefaultOptionCollection: true}
	job.GroupName = b.settings.GroupName
	job.GroupSymbol = b.settings.GroupSymbol
	job.Name = b.settings.JobName
	job.JobSymbol = b.settings.JobSymbol
	job.StartTimestamp = b.now().Unix()
	job.EndTimestamp = 0

	if b.settings.LogReference != "" {
		record.AddLogReference(LogReferenceName, b.settings.LogReference)
	}

	b.logger.Debug("Created job",
		zap.String("job_guid", record.JobGUID),
		zap.String("revision_hash", revisionHash),
		zap.String("platform", plat.String()),
		zap.String("machine", job.Machine))

	return record, nil
}

// fqdn returns the fully qualified host name when it can be resolved,
// falling back to the plain host name.
func fqdn() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "localhost"
	}
	if strings.Contains(host, ".") {
		return host
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return host
	}
	for _, addr := range addrs {
		names, err := net.LookupAddr(addr)
		if err != nil {
			continue
		}
		for _, name := range names {
			name = strings.TrimSuffix(name, ".")
			if strings.HasPrefix(name, host+".") {
				return name
			}
		}
	}
	return host
}
