package logupload

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// objectPutter is the subset of *s3.Client the uploader needs.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader puts log files into one bucket.
type Uploader struct {
	client objectPutter
	cfg    Config
	region string
	logger *zap.Logger
}

// New creates an uploader with an S3 client built from cfg.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &UploadError{Op: "New", Bucket: cfg.Bucket, Err: err}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newUploader(client, cfg, awsCfg.Region, logger), nil
}

func newUploader(client objectPutter, cfg Config, region string, logger *zap.Logger) *Uploader {
	if cfg.ContentType == "" {
		cfg.ContentType = DefaultContentType
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{client: client, cfg: cfg, region: region, logger: logger}
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Let the SDK resolve region from env/profile unless set explicitly.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	awsCfg.Region = resolveRegion(cfg.Endpoint, awsCfg.Region)
	return awsCfg, nil
}

// resolveRegion applies the AWS default only when no custom endpoint is set.
func resolveRegion(endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}

// Key returns the object key for name under the configured prefix.
func (u *Uploader) Key(name string) string {
	prefix := strings.Trim(u.cfg.Prefix, "/")
	name = strings.TrimLeft(name, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// UploadLog uploads the file at localPath under name and returns the URL
// Treeherder should link to.
func (u *Uploader) UploadLog(ctx context.Context, localPath, name string) (string, error) {
	key := u.Key(name)

	f, err := os.Open(localPath)
	if err != nil {
		return "", &UploadError{Op: "UploadLog", Bucket: u.cfg.Bucket, Key: key, Err: err}
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", &UploadError{Op: "UploadLog", Bucket: u.cfg.Bucket, Key: key, Err: err}
	}
	if info.IsDir() {
		return "", &UploadError{Op: "UploadLog", Bucket: u.cfg.Bucket, Key: key, Err: fmt.Errorf("%s is a directory", localPath)}
	}

	size := info.Size()
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: &size,
		ContentType:   aws.String(u.cfg.ContentType),
	})
	if err != nil {
		return "", &UploadError{Op: "PutObject", Bucket: u.cfg.Bucket, Key: key, Err: classify(err)}
	}

	objectURL := u.ObjectURL(key)
	u.logger.Debug("Uploaded log",
		zap.String("bucket", u.cfg.Bucket),
		zap.String("key", key),
		zap.Int64("bytes", size),
		zap.String("url", objectURL))
	return objectURL, nil
}

// ObjectURL returns the public URL of key.
func (u *Uploader) ObjectURL(key string) string {
	escaped := escapeKey(key)

	if base := strings.TrimRight(u.cfg.PublicBaseURL, "/"); base != "" {
		return base + "/" + escaped
	}

	if u.cfg.Endpoint != "" {
		ep, err := url.Parse(u.cfg.Endpoint)
		if err == nil && ep.Host != "" {
			if u.cfg.ForcePathStyle {
				return fmt.Sprintf("%s://%s/%s/%s", ep.Scheme, ep.Host, u.cfg.Bucket, escaped)
			}
			return fmt.Sprintf("%s://%s.%s/%s", ep.Scheme, u.cfg.Bucket, ep.Host, escaped)
		}
	}

	region := u.region
	if region == "" {
		region = DefaultAWSRegion
	}
	if u.cfg.ForcePathStyle {
		return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", region, u.cfg.Bucket, escaped)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, region, escaped)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return path.Join(parts...)
}
