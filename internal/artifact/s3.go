package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/doclatex/doclatex/internal/config"
)

// S3Sink uploads archives to an S3 (or S3-compatible) bucket.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink loads AWS configuration from the environment, overridden by the
// delivery section's region, endpoint and static keys when set.
func NewS3Sink(ctx context.Context, cfg config.DeliveryConfig, httpClient *nethttp.Client) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, config.ErrMissingBucket
	}

	var opts []func(*awsconfig.LoadOptions) error
	if httpClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(httpClient))
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		if cfg.SecretAccessKey == "" {
			return nil, errors.New("access_key_id is set but " + config.EnvS3SecretKey + " is empty")
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Sink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Deliver buffers the archive so the SDK can sign and retry the upload.
func (s *S3Sink) Deliver(ctx context.Context, req DeliverRequest) (string, int64, error) {
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read archive: %w", err)
	}

	key := objectKey(s.prefix, req.JobID, req.FileName)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/zip"),
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload to s3://%s/%s: %w", s.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), int64(len(data)), nil
}
