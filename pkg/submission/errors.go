package submission

import (
	"errors"
	"fmt"
)

// Kind classifies a submission failure.
type Kind string

const (
	// KindConfiguration covers missing or invalid URL, credentials or
	// settings. Detected before any network call.
	KindConfiguration Kind = "configuration"

	// KindLookup covers a revision that Treeherder cannot resolve.
	KindLookup Kind = "lookup"

	// KindPlatform covers a host with no Treeherder platform mapping.
	KindPlatform Kind = "platform"

	// KindStateDegradation covers unreadable hand-off state. The
	// orchestrator recovers from it; it is only surfaced in logs.
	KindStateDegradation Kind = "state_degradation"

	// KindPersistence covers a failure to write the job snapshot.
	KindPersistence Kind = "persistence"

	// KindResult covers an exit code with no result classification.
	KindResult Kind = "result"

	// KindSubmission covers a failed POST to Treeherder.
	KindSubmission Kind = "submission"
)

// ErrUnknownExitCode indicates a build exit code outside the result table.
var ErrUnknownExitCode = errors.New("unknown exit code")

// Error is a classified submission failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
