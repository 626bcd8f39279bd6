/*
Package storage archives registry snapshots to S3-compatible object storage.
*/
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"realchat/internal/pkg/logx"
)

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// uploader is the part of *manager.Uploader the archive uses.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// SnapshotArchive writes JSON snapshots into a bucket.
// It satisfies presence.SnapshotSink.
type SnapshotArchive struct {
	bucket   string
	uploader uploader
	logger   zerolog.Logger
}

// NewSnapshotArchive builds an archive backed by an S3 upload manager.
func NewSnapshotArchive(ctx context.Context, cfg ServiceConfig) (*SnapshotArchive, error) {
	if cfg.S3BucketName == "" {
		return nil, errors.New("snapshot archive requires a bucket name")
	}

	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return newSnapshotArchive(cfg.S3BucketName, manager.NewUploader(client)), nil
}

func newSnapshotArchive(bucket string, up uploader) *SnapshotArchive {
	return &SnapshotArchive{
		bucket:   bucket,
		uploader: up,
		logger:   logx.Component("SnapshotArchive"),
	}
}

// Put uploads body under key as application/json.
func (a *SnapshotArchive) Put(ctx context.Context, key string, body []byte) error {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return errors.New("snapshot key is empty")
	}

	out, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		a.logger.Error().Err(err).Str("key", key).Msg("Snapshot upload failed")
		return fmt.Errorf("upload %s to bucket %s: %w", key, a.bucket, err)
	}

	a.logger.Debug().Str("key", key).Str("location", out.Location).Int("bytes", len(body)).Msg("Snapshot uploaded")
	return nil
}
