package submission

import (
	"fmt"

	"github.com/3leaps/thsubmit/pkg/treeherder"
)

// UnknownExitCode is used when the build step left no readable exit code.
// It maps to "busted": the build is treated as failed, not as passing.
const UnknownExitCode = 2

// exitCodeResults follows buildbot's result codes, indexed by exit code.
var exitCodeResults = []treeherder.Result{
	treeherder.ResultSuccess,    // 0
	treeherder.ResultTestFailed, // 1
	treeherder.ResultBusted,     // 2
	treeherder.ResultSkipped,    // 3
	treeherder.ResultException,  // 4
	treeherder.ResultRetry,      // 5
	treeherder.ResultUserCancel, // 6
}

// ResultForExitCode maps a build exit code to a Treeherder result.
//
// Codes outside the table are an error, never a default classification.
func ResultForExitCode(code int) (treeherder.Result, error) {
	if code < 0 || code >= len(exitCodeResults) {
		return "", newError(KindResult, "ResultForExitCode",
			fmt.Errorf("%w: %d (expected 0-%d)", ErrUnknownExitCode, code, len(exitCodeResults)-1))
	}
	return exitCodeResults[code], nil
}
