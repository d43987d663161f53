// Package archive stores raw page content in S3-compatible object storage.
// Archival is best effort: a failed upload is logged and never fails the
// pipeline unit that produced the page.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"seer/internal/config"
	"seer/internal/schema"
)

// Archiver uploads raw page text under pages/<job_id>/<content-sha256>.txt.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	logger *slog.Logger

	uploaded atomic.Int64
	failed   atomic.Int64
}

// New creates an archiver. Returns nil (disabled) when archival is off in
// the configuration.
func New(ctx context.Context, cfg config.ArchiveConfig) (*Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		// MinIO and other S3-compatible stores need path-style addressing.
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	a := &Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: slog.Default().With("component", "archive"),
	}
	a.logger.Info("page archiver initialized", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
	return a, nil
}

// Key returns the object key for a page of a job.
func Key(jobID, content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("pages/%s/%s.txt", jobID, hex.EncodeToString(sum[:]))
}

// ArchivePage uploads one fetched page. Failures are logged and swallowed.
func (a *Archiver) ArchivePage(ctx context.Context, jobID string, page *schema.PageContent) {
	if a == nil || page == nil || page.Content == "" {
		return
	}

	key := a.prefix + Key(jobID, page.Content)
	contentType := page.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(page.Content),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"source-url": page.URL,
			"job-id":     jobID,
		},
	})
	if err != nil {
		a.failed.Add(1)
		a.logger.Warn("page archival failed",
			"job_id", jobID, "url", page.URL, "error", err)
		return
	}
	a.uploaded.Add(1)
	a.logger.Debug("page archived", "key", key, "size", len(page.Content))
}

// Metrics reports archiver counters.
type Metrics struct {
	Uploaded int64 `json:"uploaded"`
	Failed   int64 `json:"failed"`
}

// Metrics returns current counters. Safe on a nil (disabled) archiver.
func (a *Archiver) Metrics() Metrics {
	if a == nil {
		return Metrics{}
	}
	return Metrics{
		Uploaded: a.uploaded.Load(),
		Failed:   a.failed.Load(),
	}
}
