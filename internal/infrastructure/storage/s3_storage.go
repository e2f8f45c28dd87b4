// Package storage keeps verification proof images in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	appledger "github.com/mxi/presale/internal/application/ledger"
	"github.com/mxi/presale/internal/infrastructure/config"
	"go.uber.org/zap"
)

var _ appledger.ProofUploader = (*S3ProofStore)(nil)

// S3ProofStore issues presigned URLs for proof uploads and admin review.
// It works with any S3-compatible backend (AWS S3, MinIO, RustFS).
type S3ProofStore struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	keyPrefix     string
	expiry        time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// Option configures an S3ProofStore
type Option func(*S3ProofStore)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *S3ProofStore) {
		s.logger = logger
	}
}

// WithClock overrides the clock used to compute URL expiry
func WithClock(now func() time.Time) Option {
	return func(s *S3ProofStore) {
		s.now = now
	}
}

// NewS3ProofStore builds a store from configuration. Credentials fall back
// to the default AWS chain when no static keys are configured.
func NewS3ProofStore(ctx context.Context, cfg *config.StorageConfig, opts ...Option) (*S3ProofStore, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return nil, errors.New("storage access key id and secret access key must be set together")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	var endpoint string
	if cfg.Endpoint != "" {
		endpoint = cfg.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid storage endpoint: %w", err)
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	store := &S3ProofStore{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        cfg.Bucket,
		keyPrefix:     strings.Trim(cfg.KeyPrefix, "/"),
		expiry:        cfg.PresignExpiry,
		now:           time.Now,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(store)
	}
	if store.expiry <= 0 {
		store.expiry = 15 * time.Minute
	}
	return store, nil
}

// EnsureBucket creates the bucket if it does not exist
func (s *S3ProofStore) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating proof bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// PresignUpload returns a PUT URL for a proof image
func (s *S3ProofStore) PresignUpload(ctx context.Context, key, contentType string) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, errors.New("storage key is required")
	}
	req, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to presign upload: %w", err)
	}
	return req.URL, s.now().Add(s.expiry), nil
}

// PresignDownload returns a GET URL for a stored proof image
func (s *S3ProofStore) PresignDownload(ctx context.Context, key string) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, errors.New("storage key is required")
	}
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to presign download: %w", err)
	}
	return req.URL, s.now().Add(s.expiry), nil
}

// Bucket returns the bucket name
func (s *S3ProofStore) Bucket() string {
	return s.bucket
}

func (s *S3ProofStore) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.keyPrefix == "" {
		return key
	}
	return path.Join(s.keyPrefix, key)
}
