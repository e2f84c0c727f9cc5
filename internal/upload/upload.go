// Package upload mirrors output files to object storage.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/joseph-ayodele/invoice-processor/internal/common"
)

// Uploader copies a local output file to remote storage under key.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) error
}

// Nop discards uploads.
type Nop struct{}

func (Nop) Upload(context.Context, string, string) error { return nil }

// S3Options configure an S3Uploader. An empty Endpoint uses AWS; a set Endpoint switches to
// path-style addressing for S3-compatible stores such as MinIO.
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Uploader puts output files into a bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Uploader loads the AWS configuration. Static credentials are used when both keys are set,
// otherwise the default credential chain applies.
func NewS3Uploader(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3Uploader, error) {
	if opts.Bucket == "" {
		return nil, common.ConfigErrorf("s3 bucket is empty")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if logger == nil {
		logger = slog.Default()
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, common.NewConfigError("load AWS config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Uploader{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
		logger: logger,
	}, nil
}

// Upload puts the file at localPath under <prefix>/<key>.
func (u *S3Uploader) Upload(ctx context.Context, localPath, key string) error {
	start := time.Now()
	data, err := os.ReadFile(localPath)
	if err != nil {
		return common.NewIOError("read "+localPath, err)
	}

	objectKey := key
	if u.prefix != "" {
		objectKey = path.Join(u.prefix, key)
	}
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(localPath)),
	})
	if err != nil {
		u.logger.Error("upload.s3.put_failed", "bucket", u.bucket, "key", objectKey, "error", err)
		return common.NewTransportError(fmt.Sprintf("put s3://%s/%s", u.bucket, objectKey), err)
	}

	common.LoggerFromContext(ctx, u.logger).Info("upload.s3.ok",
		"bucket", u.bucket,
		"key", objectKey,
		"bytes", len(data),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func contentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".csv":
		return "text/csv"
	case ".md":
		return "text/markdown"
	}
	return "application/octet-stream"
}
