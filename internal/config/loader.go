package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	schemasassets "github.com/3leaps/thsubmit/internal/assets/schemas"
)

const settingsSchemaURL = "settings.schema.json"

// LoadSettings reads a settings document from path, or the embedded default
// when path is empty.
//
// Returns an error if:
//   - The file cannot be read
//   - The content is not valid YAML
//   - The document fails schema validation
//   - A naming template references an unknown parameter
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		return LoadSettingsFromBytes(schemasassets.DefaultSettings, "embedded settings.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("settings file not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading settings: %s", path)
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	return LoadSettingsFromBytes(data, path)
}

// LoadSettingsFromBytes parses and validates a settings document.
//
// The source parameter is only used in error messages.
func LoadSettingsFromBytes(data []byte, source string) (*Settings, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("settings document is empty")
	}

	// Validate the raw document first so unknown fields are rejected instead
	// of silently dropped by struct decoding.
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML in settings %s: %w", source, err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert settings to JSON: %w", err)
	}
	if err := validateSettingsJSON(jsonData); err != nil {
		return nil, fmt.Errorf("settings %s: %w", source, err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("invalid YAML in settings %s: %w", source, err)
	}

	for _, name := range settings.Names() {
		tt := settings.TestTypes[name]
		tt.Name = name
		if err := tt.validateTemplates(); err != nil {
			return nil, fmt.Errorf("settings %s: %w", source, err)
		}
	}

	return &settings, nil
}

// ErrSettingsInvalid indicates the settings document failed schema validation.
var ErrSettingsInvalid = errors.New("settings validation failed")

// Cached schema (compiled once from the embedded document)
var (
	schemaOnce     sync.Once
	settingsSchema *jsonschema.Schema
	schemaErr      error
)

// ValidationError is a single schema violation.
type ValidationError struct {
	// Path is the JSON pointer to the offending value (e.g. "/test_types/functional").
	Path string

	// Message describes the violation.
	Message string
}

// Error implements error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors collects every violation found in one document.
type ValidationErrors []ValidationError

// Error implements error interface.
func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ErrSettingsInvalid.Error()
	case 1:
		return ErrSettingsInvalid.Error() + ": " + e[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s with %d errors:", ErrSettingsInvalid, len(e))
	for _, err := range e {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap returns ErrSettingsInvalid.
func (e ValidationErrors) Unwrap() error {
	return ErrSettingsInvalid
}

// getSettingsSchema compiles the embedded schema on first use.
func getSettingsSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(settingsSchemaURL, bytes.NewReader(schemasassets.SettingsSchema)); err != nil {
			schemaErr = fmt.Errorf("add settings schema: %w", err)
			return
		}
		settingsSchema, schemaErr = compiler.Compile(settingsSchemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile settings schema: %w", schemaErr)
		}
	})
	return settingsSchema, schemaErr
}

// validateSettingsJSON checks a JSON document against the settings schema.
//
// Returns nil on success or ValidationErrors listing every leaf violation.
func validateSettingsJSON(data []byte) error {
	schema, err := getSettingsSchema()
	if err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}

	err = schema.Validate(v)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("schema validation error: %w", err)
	}

	var errs ValidationErrors
	collectViolations(ve, &errs)
	if len(errs) == 0 {
		errs = append(errs, ValidationError{Path: ve.InstanceLocation, Message: ve.Message})
	}
	return errs
}

// collectViolations appends the leaves of a validation error tree.
func collectViolations(ve *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(ve.Causes) == 0 {
		*errs = append(*errs, ValidationError{Path: ve.InstanceLocation, Message: ve.Message})
		return
	}
	for _, cause := range ve.Causes {
		collectViolations(cause, errs)
	}
}
