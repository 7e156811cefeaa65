// Package schemasassets provides embedded settings and schemas for standalone
// binary behavior.
//
// Assets are embedded at compile time so the CLI works regardless of the
// working directory or installation location.
package schemasassets

import _ "embed"

// SettingsSchema is the JSON schema every settings document must satisfy.
//
//go:embed settings.schema.json
var SettingsSchema []byte

// DefaultSettings is the settings document used when no --settings file is
// given.
//
//go:embed settings.yaml
var DefaultSettings []byte
