// Package treeherder implements the parts of the Treeherder job ingestion API
// used to report CI jobs: the job payload model, result-set lookup, and
// Hawk-authenticated job collection submission.
package treeherder

import (
	"encoding/json"

	"github.com/3leaps/thsubmit/pkg/platform"
)

// JobState is the Treeherder state of a job.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
)

// Result is the Treeherder classification of a completed job.
type Result string

const (
	ResultSuccess    Result = "success"
	ResultTestFailed Result = "testfailed"
	ResultBusted     Result = "busted"
	ResultSkipped    Result = "skipped"
	ResultException  Result = "exception"
	ResultRetry      Result = "retry"
	ResultUserCancel Result = "usercancel"
	ResultUnknown    Result = "unknown"
)

// LogReference points Treeherder at a log for the job.
type LogReference struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ParseStatus string `json:"parse_status,omitempty"`
}

// Artifact is a titled, typed blob attached to a job.
type Artifact struct {
	Type    string          `json:"type"`
	Name    string          `json:"name"`
	Blob    json.RawMessage `json:"blob"`
	JobGUID string          `json:"job_guid"`
}

// JobDetail is one entry of the "Job Info" artifact.
type JobDetail struct {
	Title       string `json:"title"`
	Value       string `json:"value"`
	ContentType string `json:"content_type"`
	URL         string `json:"url,omitempty"`
}

// Job holds the job attributes nested under "job" in the ingestion payload.
type Job struct {
	JobGUID     string `json:"job_guid"`
	ProductName string `json:"product_name,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Who         string `json:"who,omitempty"`
	Desc        string `json:"desc,omitempty"`

	Name        string `json:"name,omitempty"`
	JobSymbol   string `json:"job_symbol,omitempty"`
	GroupName   string `json:"group_name,omitempty"`
	GroupSymbol string `json:"group_symbol,omitempty"`
	Tier        int    `json:"tier,omitempty"`

	State  JobState `json:"state,omitempty"`
	Result Result   `json:"result,omitempty"`

	SubmitTimestamp int64 `json:"submit_timestamp"`
	StartTimestamp  int64 `json:"start_timestamp"`
	EndTimestamp    int64 `json:"end_timestamp"`

	Machine          string             `json:"machine,omitempty"`
	MachinePlatform  *platform.Platform `json:"machine_platform,omitempty"`
	BuildPlatform    *platform.Platform `json:"build_platform,omitempty"`
	OptionCollection map[string]bool    `json:"option_collection,omitempty"`

	LogReferences []LogReference `json:"log_references,omitempty"`
	Artifacts     []Artifact     `json:"artifacts,omitempty"`
}

// JobRecord is one element of a job collection: the project/revision
// envelope plus the job attributes.
//
// The same shape is used for the on-disk job snapshot, so every field a
// later submission needs must be carried here.
type JobRecord struct {
	Project      string   `json:"project"`
	Revision     string   `json:"revision,omitempty"`
	RevisionHash string   `json:"revision_hash,omitempty"`
	JobGUID      string   `json:"job_guid"`
	Superseded   []string `json:"superseded"`
	Job          Job      `json:"job"`
}

// SetGUID sets the job guid on both the envelope and the job.
func (r *JobRecord) SetGUID(guid string) {
	r.JobGUID = guid
	r.Job.JobGUID = guid
}

// SetPlatform sets the machine and build platform to the same triple.
func (r *JobRecord) SetPlatform(p platform.Platform) {
	machine := p
	build := p
	r.Job.MachinePlatform = &machine
	r.Job.BuildPlatform = &build
}

// AddLogReference appends a log reference.
func (r *JobRecord) AddLogReference(name, url string) {
	r.Job.LogReferences = append(r.Job.LogReferences, LogReference{
		Name:        name,
		URL:         url,
		ParseStatus: "pending",
	})
}

// AddArtifact appends an artifact with the blob marshaled as JSON.
func (r *JobRecord) AddArtifact(name, artifactType string, blob any) error {
	b, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	r.Job.Artifacts = append(r.Job.Artifacts, Artifact{
		Type:    artifactType,
		Name:    name,
		Blob:    b,
		JobGUID: r.JobGUID,
	})
	return nil
}

// Clone returns a deep copy of the record.
func (r *JobRecord) Clone() (*JobRecord, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var out JobRecord
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JobCollection is the body posted to the jobs endpoint.
type JobCollection []*JobRecord

// NewJobCollection wraps records into a collection.
func NewJobCollection(records ...*JobRecord) JobCollection {
	return JobCollection(records)
}

// JSON renders the collection as it is sent on the wire.
func (c JobCollection) JSON() ([]byte, error) {
	return json.Marshal(c)
}
