// Public domain.

// Package storage opens input and output files named by local paths or
// s3://bucket/key URIs.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectAPI is the part of the S3 client used here.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures the S3 client.  Endpoint selects an S3 compatible
// service such as MinIO, addressed path style.  Without keys the default
// AWS credential chain applies.
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Client returns an S3 client for cfg.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts = append(opts, awsconfig.WithRegion(region))
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Endpoint == "" {
		return s3.NewFromConfig(awsCfg), nil
	}
	endpoint := cfg.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	}), nil
}

// ErrNoS3 is returned for s3 URIs when the Opener has no client.
var ErrNoS3 = errors.New("no S3 client configured")

// Opener opens local files and, given a client, S3 objects.
type Opener struct {
	S3 ObjectAPI
}

// ParseURI splits an s3://bucket/key URI.  ok is false for anything else.
func ParseURI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func (o *Opener) client(uri string) error {
	if o.S3 == nil {
		return fmt.Errorf("%s: %w", uri, ErrNoS3)
	}
	return nil
}

type readCloser struct{ *bytes.Reader }

func (readCloser) Close() error { return nil }

// Open opens uri for reading.  S3 objects are read fully into memory.
func (o *Opener) Open(ctx context.Context, uri string) (io.ReadSeekCloser, error) {
	bucket, key, ok := ParseURI(uri)
	if !ok {
		if strings.HasPrefix(uri, "s3:") {
			return nil, fmt.Errorf("invalid S3 URI %q", uri)
		}
		return os.Open(uri)
	}
	if err := o.client(uri); err != nil {
		return nil, err
	}
	out, err := o.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", uri, err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", uri, err)
	}
	return readCloser{bytes.NewReader(b)}, nil
}

type objectWriter struct {
	bytes.Buffer
	ctx         context.Context
	s3          ObjectAPI
	bucket, key string
	contentType string
	closed      bool
}

func (w *objectWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.s3.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.bucket),
		Key:           aws.String(w.key),
		Body:          bytes.NewReader(w.Bytes()),
		ContentLength: aws.Int64(int64(w.Len())),
		ContentType:   aws.String(w.contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", w.bucket, w.key, err)
	}
	return nil
}

// Create opens uri for writing.  An S3 object is uploaded when the
// writer is closed, so the error from Close must be checked.
func (o *Opener) Create(ctx context.Context, uri string) (io.WriteCloser, error) {
	bucket, key, ok := ParseURI(uri)
	if !ok {
		if strings.HasPrefix(uri, "s3:") {
			return nil, fmt.Errorf("invalid S3 URI %q", uri)
		}
		return os.Create(uri)
	}
	if err := o.client(uri); err != nil {
		return nil, err
	}
	ct := "application/octet-stream"
	if strings.HasSuffix(key, ".fits") {
		ct = "application/fits"
	}
	return &objectWriter{ctx: ctx, s3: o.S3, bucket: bucket, key: key, contentType: ct}, nil
}
