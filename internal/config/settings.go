package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ParamLocale is the template parameter holding the build locale.
const ParamLocale = "locale"

// KnownParams lists the template parameters a settings document may use.
var KnownParams = []string{ParamLocale}

var placeholderPattern = regexp.MustCompile(`\{([^{}]*)\}`)

// TreeherderSettings holds the Treeherder naming for one test type.
type TreeherderSettings struct {
	GroupName    string `yaml:"group_name" json:"group_name"`
	GroupSymbol  string `yaml:"group_symbol" json:"group_symbol"`
	JobName      string `yaml:"job_name" json:"job_name"`
	JobSymbol    string `yaml:"job_symbol" json:"job_symbol"`
	Tier         int    `yaml:"tier" json:"tier"`
	LogReference string `yaml:"log_reference,omitempty" json:"log_reference,omitempty"`
}

// TestType is the settings selected by --test-type.
type TestType struct {
	Name       string             `yaml:"-" json:"-"`
	Treeherder TreeherderSettings `yaml:"treeherder" json:"treeherder"`
}

// Settings is the parsed settings document. Treat as read-only once loaded.
type Settings struct {
	TestTypes map[string]TestType `yaml:"test_types" json:"test_types"`
}

// Names returns the configured test type names, sorted.
func (s *Settings) Names() []string {
	names := make([]string, 0, len(s.TestTypes))
	for name := range s.TestTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the settings for a test type by value.
func (s *Settings) Select(name string) (TestType, error) {
	tt, ok := s.TestTypes[name]
	if !ok {
		return TestType{}, fmt.Errorf("unknown test type %q (expected one of: %s)", name, strings.Join(s.Names(), ", "))
	}
	tt.Name = name
	return tt, nil
}

// JobNames are the rendered Treeherder group and job labels.
type JobNames struct {
	GroupName   string
	GroupSymbol string
	JobName     string
	JobSymbol   string
}

// Render substitutes params into the naming templates.
//
// Every placeholder must have a value in params.
func (t TestType) Render(params map[string]string) (JobNames, error) {
	var names JobNames
	var err error
	if names.GroupName, err = renderTemplate(t.Treeherder.GroupName, params); err != nil {
		return JobNames{}, fmt.Errorf("group_name: %w", err)
	}
	if names.GroupSymbol, err = renderTemplate(t.Treeherder.GroupSymbol, params); err != nil {
		return JobNames{}, fmt.Errorf("group_symbol: %w", err)
	}
	if names.JobName, err = renderTemplate(t.Treeherder.JobName, params); err != nil {
		return JobNames{}, fmt.Errorf("job_name: %w", err)
	}
	if names.JobSymbol, err = renderTemplate(t.Treeherder.JobSymbol, params); err != nil {
		return JobNames{}, fmt.Errorf("job_symbol: %w", err)
	}
	return names, nil
}

func (t TestType) templates() map[string]string {
	return map[string]string{
		"group_name":   t.Treeherder.GroupName,
		"group_symbol": t.Treeherder.GroupSymbol,
		"job_name":     t.Treeherder.JobName,
		"job_symbol":   t.Treeherder.JobSymbol,
	}
}

// validateTemplates rejects placeholders outside KnownParams.
func (t TestType) validateTemplates() error {
	known := make(map[string]bool, len(KnownParams))
	for _, p := range KnownParams {
		known[p] = true
	}
	fields := t.templates()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, field := range keys {
		for _, param := range placeholders(fields[field]) {
			if !known[param] {
				return fmt.Errorf("test type %q: %s: unknown template parameter {%s} (known: %s)",
					t.Name, field, param, strings.Join(KnownParams, ", "))
			}
		}
	}
	return nil
}

func placeholders(tmpl string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(tmpl, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func renderTemplate(tmpl string, params map[string]string) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := params[key]
		if !ok {
			if missing == "" {
				missing = key
			}
			return m
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("no value for template parameter {%s}", missing)
	}
	return out, nil
}
