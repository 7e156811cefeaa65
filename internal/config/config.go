// Package config loads process configuration and Treeherder settings.
//
// Process configuration (Treeherder endpoint and credentials, state
// directory, logging, log upload) comes from viper: flags bound by the CLI,
// THSUBMIT_* environment variables, the TREEHERDER_* variables used by CI
// jobs, and an optional config file. Settings (per test type naming) come
// from a YAML document validated against an embedded JSON schema.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides of every config key.
const EnvPrefix = "THSUBMIT"

// Config is the resolved process configuration.
type Config struct {
	Treeherder TreeherderConfig `mapstructure:"treeherder"`
	State      StateConfig      `mapstructure:"state"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	LogUpload  LogUploadConfig  `mapstructure:"log_upload"`

	// SettingsPath replaces the embedded settings document when set.
	SettingsPath string `mapstructure:"settings"`

	// BuildURL is the external CI build link, from BUILD_URL. It is passed
	// through as is.
	BuildURL string `mapstructure:"build_url"`
}

// TreeherderConfig configures the Treeherder endpoint and credentials.
type TreeherderConfig struct {
	URL       string        `mapstructure:"url" validate:"required,url"`
	ClientID  string        `mapstructure:"client_id" validate:"required"`
	Secret    string        `mapstructure:"secret" validate:"required"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	UserAgent string        `mapstructure:"user_agent"`
}

// StateConfig configures where the phase hand-off files live.
type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// LogUploadConfig configures optional build log upload to S3.
//
// Upload is enabled when Bucket is set.
type LogUploadConfig struct {
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	Profile  string `mapstructure:"profile"`
	Prefix   string `mapstructure:"prefix"`

	// AccessKeyID and SecretAccessKey override the AWS default credential
	// chain. Both or neither must be set.
	AccessKeyID     string `mapstructure:"access_key_id" validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required_with=AccessKeyID"`

	PublicBaseURL  string `mapstructure:"public_base_url" validate:"omitempty,url"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
	ContentType    string `mapstructure:"content_type"`
}

// Enabled reports whether log upload is configured.
func (c LogUploadConfig) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

// envAliases are the unprefixed variables CI jobs already export.
var envAliases = map[string]string{
	"treeherder.url":       "TREEHERDER_URL",
	"treeherder.client_id": "TREEHERDER_CLIENT_ID",
	"treeherder.secret":    "TREEHERDER_SECRET",
	"build_url":            "BUILD_URL",
}

// flagHints name the flag and variable that set a required key, for error
// messages.
var flagHints = map[string]string{
	"Treeherder.URL":      "--treeherder-url or TREEHERDER_URL",
	"Treeherder.ClientID": "--treeherder-client-id or TREEHERDER_CLIENT_ID",
	"Treeherder.Secret":   "--treeherder-secret or TREEHERDER_SECRET",
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("treeherder.url", "")
	v.SetDefault("treeherder.client_id", "")
	v.SetDefault("treeherder.secret", "")
	v.SetDefault("treeherder.timeout", "30s")
	v.SetDefault("treeherder.user_agent", "thsubmit")

	v.SetDefault("state.dir", ".")

	v.SetDefault("logging.level", "info")

	v.SetDefault("log_upload.bucket", "")
	v.SetDefault("log_upload.region", "")
	v.SetDefault("log_upload.endpoint", "")
	v.SetDefault("log_upload.profile", "")
	v.SetDefault("log_upload.access_key_id", "")
	v.SetDefault("log_upload.secret_access_key", "")
	v.SetDefault("log_upload.prefix", "logs/")
	v.SetDefault("log_upload.public_base_url", "")
	v.SetDefault("log_upload.force_path_style", false)
	v.SetDefault("log_upload.content_type", "text/plain; charset=utf-8")

	v.SetDefault("settings", "")
	v.SetDefault("build_url", "")
}

// BindEnv wires THSUBMIT_* overrides plus the unprefixed CI aliases.
//
// A prefixed variable wins over its alias.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, alias := range envAliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, alias); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings applied.
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Load decodes v into a Config without validating it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Treeherder.URL = strings.TrimSpace(cfg.Treeherder.URL)
	cfg.Treeherder.ClientID = strings.TrimSpace(cfg.Treeherder.ClientID)
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	return &cfg, nil
}

// Validate checks required values. It never touches the network.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return fmt.Errorf("invalid config: %w", err)
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		field := strings.TrimPrefix(fe.StructNamespace(), "Config.")
		switch fe.Tag() {
		case "required":
			if hint, ok := flagHints[field]; ok {
				msgs = append(msgs, fmt.Sprintf("%s is required (set %s)", field, hint))
				continue
			}
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed on '%s' validation", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
