// Package archive stores batch reports in an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ericksa/clauseguard/internal/analyzer"
	"github.com/ericksa/clauseguard/internal/config"
)

// Report is the archived form of one batch run.
type Report struct {
	RunID     string                    `json:"run_id"`
	CreatedAt time.Time                 `json:"created_at"`
	Summary   analyzer.BatchSummary     `json:"summary"`
	Results   []analyzer.ClauseAnalysis `json:"results"`
}

// Archiver persists reports and returns the object key they were stored
// under.
type Archiver interface {
	Store(ctx context.Context, report Report) (string, error)
}

// ObjectKey is the key a report for runID is stored under.
func ObjectKey(runID string) string {
	return fmt.Sprintf("reports/%s.json", runID)
}

// Nop discards reports.
type Nop struct{}

func (Nop) Store(context.Context, Report) (string, error) {
	return "", nil
}

type MinIOArchive struct {
	client *minio.Client
	bucket string
}

var _ Archiver = (*MinIOArchive)(nil)

// New returns a MinIOArchive when archiving is enabled and Nop otherwise.
func New(cfg config.ArchiveConfig) (Archiver, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	return NewMinIO(cfg)
}

func NewMinIO(cfg config.ArchiveConfig) (*MinIOArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &MinIOArchive{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the report bucket when it does not exist yet.
func (a *MinIOArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

func (a *MinIOArchive) Store(ctx context.Context, report Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	key := ObjectKey(report.RunID)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"run-id":  report.RunID,
			"clauses": fmt.Sprint(report.Summary.Total),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload report %s: %w", key, err)
	}
	return key, nil
}
