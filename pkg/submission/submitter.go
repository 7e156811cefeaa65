package submission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/thsubmit/pkg/treeherder"
)

// JobInfoArtifact is the artifact carrying pending job details.
const JobInfoArtifact = "Job Info"

// Poster sends job collections to Treeherder.
type Poster interface {
	PostCollection(ctx context.Context, repository string, jobs treeherder.JobCollection) error
	JobsURL(repository, revision string) string
}

// Submitter sends one job record per call.
//
// Job details added with AddJobDetail are attached to the next submission
// as a single "Job Info" artifact.
type Submitter struct {
	poster  Poster
	target  Target
	out     io.Writer
	logger  *zap.Logger
	now     func() time.Time
	details []treeherder.JobDetail
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithOutput sets where the payload and view link are printed.
func WithOutput(w io.Writer) SubmitterOption {
	return func(s *Submitter) {
		if w != nil {
			s.out = w
		}
	}
}

// WithSubmitterLogger sets the submitter logger.
func WithSubmitterLogger(l *zap.Logger) SubmitterOption {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSubmitterClock overrides the clock used for the submit timestamp.
func WithSubmitterClock(fn func() time.Time) SubmitterOption {
	return func(s *Submitter) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSubmitter creates a submitter for one repository revision.
func NewSubmitter(poster Poster, target Target, opts ...SubmitterOption) *Submitter {
	target.Revision = ShortRevision(target.Revision)
	s := &Submitter{
		poster: poster,
		target: target,
		out:    io.Discard,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddJobDetail queues a detail for the next submission.
func (s *Submitter) AddJobDetail(detail treeherder.JobDetail) {
	s.details = append(s.details, detail)
}

// PendingDetails returns the details queued for the next submission.
func (s *Submitter) PendingDetails() []treeherder.JobDetail {
	return append([]treeherder.JobDetail(nil), s.details...)
}

type jobInfo struct {
	JobDetails []treeherder.JobDetail `json:"job_details"`
}

// Submit stamps record, attaches pending details and posts it.
//
// There is no retry: a failed POST is returned as a KindSubmission error.
func (s *Submitter) Submit(ctx context.Context, record *treeherder.JobRecord) error {
	if record == nil {
		return newError(KindSubmission, "Submit", errors.New("nil job record"))
	}
	if s.poster == nil {
		return newError(KindConfiguration, "Submit", treeherder.ErrMissingURL)
	}

	record.Job.SubmitTimestamp = s.now().Unix()

	if len(s.details) > 0 {
		if err := record.AddArtifact(JobInfoArtifact, "json", jobInfo{JobDetails: s.details}); err != nil {
			return newError(KindSubmission, "Submit", fmt.Errorf("encode job details: %w", err))
		}
		s.details = nil
	}

	collection := treeherder.NewJobCollection(record)
	payload, err := collection.JSON()
	if err != nil {
		return newError(KindSubmission, "Submit", fmt.Errorf("encode collection: %w", err))
	}

	s.logger.Info("Submitting job",
		zap.String("job_guid", record.JobGUID),
		zap.String("state", string(record.Job.State)),
		zap.String("result", string(record.Job.Result)))

	if err := s.poster.PostCollection(ctx, s.target.Repository, collection); err != nil {
		kind := KindSubmission
		if errors.Is(err, treeherder.ErrMissingCredentials) {
			kind = KindConfiguration
		}
		return newError(kind, "Submit", err)
	}

	_, _ = fmt.Fprintf(s.out, "Sent results to Treeherder: %s\n", payload)
	_, _ = fmt.Fprintf(s.out, "Results are available to view at: %s\n",
		s.poster.JobsURL(s.target.Repository, s.target.Revision))
	return nil
}
