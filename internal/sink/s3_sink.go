package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Sink struct {
	bucket           string
	prefix           string
	region           string
	endpoint         string
	accessKey        string
	secretKey        string
	pathStyle        bool
	disableChecksums bool

	mu     sync.Mutex
	client S3API // injected by tests; built lazily otherwise
}

// S3API is the subset of the S3 client the sink uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

func NewS3Sink(opts map[string]interface{}) (Sink, error) {
	bucket := optString(opts, "bucket")
	region := optString(opts, "region")
	if bucket == "" || region == "" {
		return nil, fmt.Errorf("s3 sink requires 'bucket' and 'region' options")
	}
	endpoint := optString(opts, "endpoint")
	if endpoint == "" {
		endpoint = optString(opts, "base_endpoint")
	}
	return &S3Sink{
		bucket:           bucket,
		prefix:           optString(opts, "prefix"),
		region:           region,
		endpoint:         endpoint,
		accessKey:        optString(opts, "access_key_id"),
		secretKey:        optString(opts, "secret_access_key"),
		pathStyle:        toBool(opts["path_style"]),
		disableChecksums: toBool(opts["disable_checksums"]),
	}, nil
}

// NewS3SinkWithClient builds a sink around an existing client.
func NewS3SinkWithClient(client S3API, bucket, prefix string) *S3Sink {
	return &S3Sink{bucket: bucket, prefix: prefix, client: client}
}

func (s *S3Sink) getClient(ctx context.Context) (S3API, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	awsCfgOpts := []func(*config.LoadOptions) error{
		config.WithRegion(s.region),
	}
	// Static keys win; otherwise the default chain (env, shared config, IMDS).
	if s.accessKey != "" && s.secretKey != "" {
		awsCfgOpts = append(awsCfgOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.accessKey, s.secretKey, ""),
		))
	}
	if s.disableChecksums {
		awsCfgOpts = append(awsCfgOpts, config.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired))
		awsCfgOpts = append(awsCfgOpts, config.WithResponseChecksumValidation(aws.ResponseChecksumValidationWhenRequired))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, awsCfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("aws config load error: %w", err)
	}
	s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s.endpoint != "" {
			o.BaseEndpoint = aws.String(s.endpoint)
		}
		o.UsePathStyle = s.pathStyle
	})
	return s.client, nil
}

func (s *S3Sink) Open(ctx context.Context, name string) (SinkWriter, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}
	key := s.prefix + name
	return startUpload(func(r io.Reader) error {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   r,
		})
		if err != nil {
			return fmt.Errorf("s3 put %s: %w", key, err)
		}
		return nil
	}), nil
}

// List returns object names below prefix, relative to the sink prefix.
func (s *S3Sink) List(ctx context.Context, prefix string) ([]string, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	p := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, strings.TrimPrefix(aws.ToString(obj.Key), s.prefix))
		}
	}
	return out, nil
}

func init() {
	Register("s3", NewS3Sink)
}
