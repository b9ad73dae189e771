// Package storage provides the S3-backed dead-letter archive.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/partsbridge/backend/internal/domain/shared"
	infraconfig "github.com/partsbridge/backend/internal/infrastructure/config"
)

// S3DeadLetterArchiver stores dead-lettered outbox payloads in an
// S3-compatible bucket (AWS S3, MinIO, etc.) for operator inspection.
// Keys are topic/event-id.json so letters group by topic.
type S3DeadLetterArchiver struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// NewS3DeadLetterArchiver creates an archiver from configuration
func NewS3DeadLetterArchiver(cfg *infraconfig.ArchiveConfig, logger *zap.Logger) (*S3DeadLetterArchiver, error) {
	if cfg == nil {
		return nil, errors.New("archive configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("archive access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("archive secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid archive endpoint: %w", err)
		}
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &S3DeadLetterArchiver{
		client: client,
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during application startup.
func (a *S3DeadLetterArchiver) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	a.logger.Info("creating archive bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Archive uploads the event payload under topic/event-id.json. Repeating
// the upload for the same event overwrites the same key.
func (a *S3DeadLetterArchiver) Archive(ctx context.Context, event *shared.OutboxEvent) error {
	key := fmt.Sprintf("%s/%s.json", event.Topic, event.ID)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(event.Payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"topic":         event.Topic,
			"partition-key": event.PartitionKey,
			"last-error":    event.LastError,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive dead letter %s: %w", key, err)
	}

	a.logger.Info("dead letter archived",
		zap.String("bucket", a.bucket),
		zap.String("key", key),
	)
	return nil
}
