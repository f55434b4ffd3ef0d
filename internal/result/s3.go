package result

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/kiranshivaraju/operator-service/internal/config"
)

// S3API is the subset of the S3 client used by S3Fetcher.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher downloads results stored as s3://bucket/key.
type S3Fetcher struct {
	client S3API
}

// NewS3Fetcher builds an S3 client from cfg. The SDK default credential
// chain is used unless static keys are configured.
func NewS3Fetcher(ctx context.Context, cfg config.S3Config) (*S3Fetcher, error) {
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
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3FetcherWithClient(client), nil
}

// NewS3FetcherWithClient wraps an existing client.
func NewS3FetcherWithClient(client S3API) *S3Fetcher {
	return &S3Fetcher{client: client}
}

// Fetch implements Fetcher.
func (f *S3Fetcher) Fetch(ctx context.Context, rawURL, rangeHeader string) (*Upstream, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if rangeHeader != "" {
		input.Range = aws.String(rangeHeader)
	}

	out, err := f.client.GetObject(ctx, input)
	if err != nil {
		return nil, wrapS3Error(bucket, key, err)
	}

	header := make(http.Header)
	if ct := aws.ToString(out.ContentType); ct != "" {
		header.Set("Content-Type", ct)
	}
	if cd := aws.ToString(out.ContentDisposition); cd != "" {
		header.Set("Content-Disposition", cd)
	}
	if out.ContentLength != nil {
		header.Set("Content-Length", strconv.FormatInt(*out.ContentLength, 10))
	}

	status := http.StatusOK
	if cr := aws.ToString(out.ContentRange); cr != "" {
		header.Set("Content-Range", cr)
		status = http.StatusPartialContent
	}

	return &Upstream{StatusCode: status, Header: header, Body: out.Body}, nil
}

func parseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 url: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "s3") {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("s3 url %q must be s3://bucket/key", rawURL)
	}
	return u.Host, key, nil
}

func wrapS3Error(bucket, key string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrObjectNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return fmt.Errorf("s3 get s3://%s/%s: %s: %w", bucket, key, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("s3 get s3://%s/%s: %w", bucket, key, err)
}
