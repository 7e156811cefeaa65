package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Embedded(t *testing.T) {
	s, err := LoadSettings("")
	require.NoError(t, err)

	assert.Equal(t, []string{"functional"}, s.Names())

	tt, err := s.Select("functional")
	require.NoError(t, err)
	assert.Equal(t, "functional", tt.Name)
	assert.Equal(t, "TES", tt.Treeherder.GroupName)
	assert.Equal(t, "TEST", tt.Treeherder.GroupSymbol)
	assert.Equal(t, "Trial ({locale})", tt.Treeherder.JobName)
	assert.Equal(t, "{locale}", tt.Treeherder.JobSymbol)
	assert.Equal(t, 2, tt.Treeherder.Tier)
	assert.Contains(t, tt.Treeherder.LogReference, "log_info.txt")
}

func TestSettings_SelectUnknown(t *testing.T) {
	s, err := LoadSettings("")
	require.NoError(t, err)

	_, err = s.Select("perf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown test type "perf"`)
	assert.Contains(t, err.Error(), "functional")
}

func TestSettings_SelectReturnsCopy(t *testing.T) {
	s, err := LoadSettings("")
	require.NoError(t, err)

	tt, err := s.Select("functional")
	require.NoError(t, err)
	tt.Treeherder.Tier = 3

	again, err := s.Select("functional")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Treeherder.Tier)
}

func TestTestType_Render(t *testing.T) {
	s, err := LoadSettings("")
	require.NoError(t, err)
	tt, err := s.Select("functional")
	require.NoError(t, err)

	names, err := tt.Render(map[string]string{ParamLocale: "en-US"})
	require.NoError(t, err)
	assert.Equal(t, JobNames{
		GroupName:   "TES",
		GroupSymbol: "TEST",
		JobName:     "Trial (en-US)",
		JobSymbol:   "en-US",
	}, names)

	_, err = tt.Render(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job_name: no value for template parameter {locale}")
}

func TestLoadSettingsFromBytes_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "empty",
			doc:     "   ",
			wantErr: "settings document is empty",
		},
		{
			name:    "bad yaml",
			doc:     "test_types: [",
			wantErr: "invalid YAML",
		},
		{
			name:    "no test types",
			doc:     "test_types: {}",
			wantErr: "settings validation failed: /test_types:",
		},
		{
			name: "missing tier",
			doc: `
test_types:
  functional:
    treeherder:
      group_name: TES
      group_symbol: TEST
      job_name: Trial
      job_symbol: T
`,
			wantErr: "/test_types/functional/treeherder: missing properties: 'tier'",
		},
		{
			name: "unknown field",
			doc: `
test_types:
  functional:
    treeherder:
      group_name: TES
      group_symbol: TEST
      job_name: Trial
      job_symbol: T
      tier: 2
      colour: red
`,
			wantErr: "/test_types/functional/treeherder: additionalProperties 'colour' not allowed",
		},
		{
			name: "unknown template parameter",
			doc: `
test_types:
  functional:
    treeherder:
      group_name: TES
      group_symbol: TEST
      job_name: "Trial ({locale}, {branch})"
      job_symbol: "{locale}"
      tier: 2
`,
			wantErr: "unknown template parameter {branch}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSettingsFromBytes([]byte(tt.doc), "test.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadSettings_File(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "settings.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
test_types:
  update:
    treeherder:
      group_name: Update
      group_symbol: U
      job_name: "Update ({locale})"
      job_symbol: "{locale}"
      tier: 3
`), 0644))

		s, err := LoadSettings(path)
		require.NoError(t, err)
		tt, err := s.Select("update")
		require.NoError(t, err)
		assert.Equal(t, 3, tt.Treeherder.Tier)
		assert.Empty(t, tt.Treeherder.LogReference)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSettings(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "settings file not found")
	})
}

func TestSettingsValidationErrors(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{{Path: "/test_types", Message: "required"}}
		assert.Equal(t, "settings validation failed: /test_types: required", errs.Error())
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Path: "/test_types/a/treeherder", Message: "missing properties: 'tier'"},
			{Path: "/test_types/b/treeherder", Message: "missing properties: 'job_name'"},
		}
		msg := errs.Error()
		assert.Contains(t, msg, "2 errors")
		assert.Contains(t, msg, "/test_types/a/treeherder")
		assert.Contains(t, msg, "/test_types/b/treeherder")
	})

	t.Run("empty path", func(t *testing.T) {
		e := ValidationError{Message: "root error"}
		assert.Equal(t, "root error", e.Error())
	})

	t.Run("unwrap returns ErrSettingsInvalid", func(t *testing.T) {
		errs := ValidationErrors{{Path: "/x", Message: "bad"}}
		assert.True(t, errors.Is(errs, ErrSettingsInvalid))
	})
}

func TestLoadSettings_CollectsEveryViolation(t *testing.T) {
	doc := `
test_types:
  functional:
    treeherder:
      group_name: TES
      group_symbol: TEST
      job_name: Trial
      job_symbol: T
  update:
    treeherder:
      group_name: UPD
      group_symbol: U
      job_symbol: U
      tier: 9
`
	_, err := LoadSettingsFromBytes([]byte(doc), "test.yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSettingsInvalid))

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	paths := make([]string, 0, len(verrs))
	for _, v := range verrs {
		paths = append(paths, v.Path)
	}
	assert.Contains(t, paths, "/test_types/functional/treeherder")
	assert.Contains(t, paths, "/test_types/update/treeherder")
	assert.Contains(t, paths, "/test_types/update/treeherder/tier")

	// The compiled schema is reused across loads.
	first, err := getSettingsSchema()
	require.NoError(t, err)
	second, err := getSettingsSchema()
	require.NoError(t, err)
	assert.Same(t, first, second)
}
