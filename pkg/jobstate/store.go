// Package jobstate hands job state from the running phase to the completed
// phase of a submission.
//
// The two phases run as separate processes, so the only shared channel is
// storage: the running phase writes a snapshot of the job record, the
// external build step writes its exit code, and the completed phase reads
// both back. Reads are allowed to fail; callers receive a *DegradedError and
// decide on a fallback.
package jobstate

import (
	"errors"
	"fmt"

	"github.com/3leaps/thsubmit/pkg/treeherder"
)

// Default file names, relative to the state directory.
//
// NOTE: retval.txt is written by the build step and is part of the contract
// with the invoking CI job.
const (
	JobFileName      = "job.json"
	ExitCodeFileName = "retval.txt"
)

// Slot names the persisted value a read concerns.
type Slot string

const (
	SlotJob      Slot = "job"
	SlotExitCode Slot = "exit_code"
)

// Sentinel causes for degraded reads.
var (
	// ErrStateMissing indicates the slot was never written.
	ErrStateMissing = errors.New("state missing")

	// ErrStateCorrupt indicates the slot exists but cannot be parsed.
	ErrStateCorrupt = errors.New("state corrupt")
)

// DegradedError reports a read that could not produce a value.
//
// It is not fatal: the completed phase proceeds with defaults.
type DegradedError struct {
	Slot Slot
	Path string
	Err  error
}

// Error implements the error interface.
func (e *DegradedError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("read %s state %s: %v", e.Slot, e.Path, e.Err)
	}
	return fmt.Sprintf("read %s state: %v", e.Slot, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *DegradedError) Unwrap() error {
	return e.Err
}

// IsDegraded returns true if err is a recoverable state read failure.
func IsDegraded(err error) bool {
	var de *DegradedError
	return errors.As(err, &de)
}

// Store persists the job snapshot and reads the build exit code.
type Store interface {
	// WriteJob replaces the job snapshot.
	WriteJob(record *treeherder.JobRecord) error

	// ReadJob returns the job snapshot. Failures are *DegradedError.
	ReadJob() (*treeherder.JobRecord, error)

	// ReadExitCode returns the build exit code. Failures are *DegradedError.
	ReadExitCode() (int, error)
}
