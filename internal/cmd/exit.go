package cmd

import (
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/3leaps/thsubmit/pkg/submission"
)

// exitFailure is used for errors that carry no specific exit code.
const exitFailure = 1

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode returns the process exit code for err: 0 for nil, the carried
// code for an *ExitError, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return exitFailure
}

// submissionExitCode maps a submission failure kind to an exit code.
func submissionExitCode(err error) int {
	switch submission.KindOf(err) {
	case submission.KindConfiguration, submission.KindPlatform:
		return foundry.ExitInvalidArgument
	case submission.KindLookup, submission.KindSubmission:
		return foundry.ExitExternalServiceUnavailable
	case submission.KindPersistence:
		return foundry.ExitFileWriteError
	case submission.KindResult, submission.KindStateDegradation:
		return foundry.ExitFileReadError
	}
	return exitFailure
}
