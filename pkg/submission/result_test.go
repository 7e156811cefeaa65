package submission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/thsubmit/pkg/treeherder"
)

func TestResultForExitCode(t *testing.T) {
	tests := []struct {
		code int
		want treeherder.Result
	}{
		{0, treeherder.ResultSuccess},
		{1, treeherder.ResultTestFailed},
		{2, treeherder.ResultBusted},
		{3, treeherder.ResultSkipped},
		{4, treeherder.ResultException},
		{5, treeherder.ResultRetry},
		{6, treeherder.ResultUserCancel},
	}
	for _, tt := range tests {
		got, err := ResultForExitCode(tt.code)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "exit code %d", tt.code)
	}
}

func TestResultForExitCode_Unknown(t *testing.T) {
	for _, code := range []int{-1, 7, 99, 255} {
		_, err := ResultForExitCode(code)
		require.Error(t, err, "exit code %d", code)
		assert.ErrorIs(t, err, ErrUnknownExitCode)
		assert.Equal(t, KindResult, KindOf(err))
	}
}

func TestUnknownExitCodeIsBusted(t *testing.T) {
	got, err := ResultForExitCode(UnknownExitCode)
	require.NoError(t, err)
	assert.Equal(t, treeherder.ResultBusted, got)
}
