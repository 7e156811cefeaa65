// Package logupload stores build logs in AWS S3 or an S3-compatible store so
// Treeherder can link to them.
package logupload

import "strings"

// Config configures an Uploader.
//
// Credentials follow the AWS SDK v2 default chain unless AccessKeyID and
// SecretAccessKey are both set:
//  1. Explicit AccessKeyID/SecretAccessKey
//  2. Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//  3. Shared credentials/config files, optionally with Profile
//  4. Instance or task role
//
// For S3-compatible stores set Endpoint and usually ForcePathStyle.
type Config struct {
	// Bucket is the destination bucket (required).
	Bucket string

	// Region is the AWS region. For AWS S3 it defaults to us-east-1 when
	// neither config nor environment provides one. No default is applied
	// when Endpoint is set.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	Endpoint string

	// Profile is the shared config profile to use.
	Profile string

	// AccessKeyID and SecretAccessKey are explicit credentials. Both or
	// neither must be set.
	AccessKeyID     string
	SecretAccessKey string

	// Prefix is prepended to every object key.
	Prefix string

	// PublicBaseURL is the base of the URL reported to Treeherder, for
	// buckets fronted by a CDN or website endpoint. When empty the URL is
	// derived from the endpoint, bucket and region.
	PublicBaseURL string

	// ForcePathStyle puts the bucket in the URL path instead of the host.
	ForcePathStyle bool

	// ContentType is set on uploaded objects. Defaults to DefaultContentType.
	ContentType string
}

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// DefaultContentType lets browsers render logs inline.
const DefaultContentType = "text/plain; charset=utf-8"

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "log upload config: " + e.Field + ": " + e.Message
}
