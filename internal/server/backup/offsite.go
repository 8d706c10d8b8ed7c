package backup

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/flatwiki/flatwiki/internal/server/config"
)

// Uploader replicates published artifacts to offsite storage. Replication
// is best-effort: the local artifact stays authoritative whether or not
// the upload succeeds.
type Uploader interface {
	Enabled() bool
	Upload(ctx context.Context, path, key string) error
}

// s3API is the slice of the S3 client the uploader needs.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader pushes artifacts into an S3 bucket. A custom endpoint enables
// S3-compatible targets such as MinIO.
type S3Uploader struct {
	bucket string
	client s3API
}

// NewS3Uploader builds an uploader from the configured replication target.
// An empty bucket yields a disabled uploader and never touches AWS config.
func NewS3Uploader(ctx context.Context, cfg *config.Config) (*S3Uploader, error) {
	if cfg.S3Bucket == "" {
		return &S3Uploader{}, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Uploader{bucket: cfg.S3Bucket, client: client}, nil
}

func (u *S3Uploader) Enabled() bool {
	return u.bucket != ""
}

// Upload streams the file at path into the bucket under key.
func (u *S3Uploader) Upload(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for upload: %w", err)
	}
	defer f.Close()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}
