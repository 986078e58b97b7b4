package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"capture-go/internal/capture"
	"capture-go/internal/config"
)

// S3Publisher uploads bundles to an S3-compatible bucket.
type S3Publisher struct {
	bucket   string
	prefix   string
	timeout  time.Duration
	uploader *manager.Uploader
}

var _ capture.Publisher = (*S3Publisher)(nil)

// NewS3Publisher builds an S3 client from cfg. Static credentials are used
// when an access key is configured, otherwise the default AWS chain.
// A custom endpoint switches to path-style addressing.
func NewS3Publisher(ctx context.Context, cfg config.PublisherConfig, timeout time.Duration) (*S3Publisher, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 publisher requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3PublisherWithClient(client, cfg.S3Bucket, cfg.S3Prefix, timeout), nil
}

// NewS3PublisherWithClient creates a publisher over an existing client.
// A zero timeout uses config.DefaultBackendTimeout.
func NewS3PublisherWithClient(client manager.UploadAPIClient, bucket, prefix string, timeout time.Duration) *S3Publisher {
	if timeout <= 0 {
		timeout = config.DefaultBackendTimeout
	}
	return &S3Publisher{
		bucket:   bucket,
		prefix:   prefix,
		timeout:  timeout,
		uploader: manager.NewUploader(client),
	}
}

func (p *S3Publisher) Name() string {
	return "s3"
}

func (p *S3Publisher) Publish(ctx context.Context, b *capture.Bundle) (string, error) {
	if err := validate(b); err != nil {
		return "", err
	}

	id, rawKey, metaKey := objectKeys(p.prefix, b)
	meta, err := encodeMetadata(b)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.put(ctx, rawKey, b.Raw, b.Proof.MimeType.Type); err != nil {
		return "", err
	}
	if err := p.put(ctx, metaKey, meta, "application/json"); err != nil {
		return "", err
	}
	return id, nil
}

func (p *S3Publisher) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("uploading %s: %w", key, capture.ErrTimeout)
		}
		return fmt.Errorf("uploading %s: %w: %v", key, capture.ErrTransport, err)
	}
	return nil
}
