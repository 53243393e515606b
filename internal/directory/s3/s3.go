// Package s3 implements a directory Source backed by an Amazon S3 object.
package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
)

// SourceConfig holds the configuration for creating a Source.
type SourceConfig struct {
	Region          string
	Bucket          string
	Key             string
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint overrides the S3 endpoint, e.g. for MinIO. Path-style
	// addressing is used when it is set.
	Endpoint string
}

// GetObjectAPI is the interface for the S3 GetObject operation.
// Used for testing with mock implementations.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
}

// Source downloads the directory document from one S3 object.
type Source struct {
	bucket string
	key    string
	client GetObjectAPI
}

// New creates a Source with the given configuration.
func New(ctx context.Context, cfg SourceConfig) (*Source, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(cfg.Bucket, cfg.Key, client), nil
}

// NewWithClient creates a Source with a custom client, used for testing.
func NewWithClient(bucket, key string, client GetObjectAPI) *Source {
	return &Source{
		bucket: bucket,
		key:    key,
		client: client,
	}
}

// Fetch downloads the object body.
func (s *Source) Fetch(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

// Name returns the object location.
func (s *Source) Name() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
}
