package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	clearEnv(t)
	orig := versionInfo
	defer func() { versionInfo = orig }()
	SetVersionInfo("1.2.3", "abc123", "2026-01-02")

	out, err := executeRoot(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "thsubmit 1.2.3\n", out)

	out, err = executeRoot(t, "version", "--extended")
	require.NoError(t, err)
	assert.Contains(t, out, "commit:     abc123")
	assert.Contains(t, out, "built:      2026-01-02")
}

func TestInvalidLogLevel(t *testing.T) {
	clearEnv(t)
	_, err := executeRoot(t, "--log-level", "loud", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid --log-level")
}
