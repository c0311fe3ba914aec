// Package objectstore holds photo bytes in S3 or an S3-compatible service.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/apmanager001/tripmaps-sub000/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

// Store is the object-store surface used by the photo and cascade packages.
type Store interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (Object, error)
	Delete(ctx context.Context, key string) error
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Object struct {
	Key    string `json:"key"`
	Bucket string `json:"bucket"`
	URL    string `json:"url"`
}

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3 struct {
	api       objectAPI
	presigner presigner
	bucket    string
	baseURL   string
	timeout   time.Duration
}

type presigner func(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)

// NewS3 builds a store from config. Requests retry with the SDK standard
// retryer bounded by S3_MAX_ATTEMPTS.
func NewS3(ctx context.Context, cfg config.Config) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), maxAttempts(cfg.S3MaxAttempts))
		}),
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "could not load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	presignClient := s3.NewPresignClient(client)

	return newS3(client, func(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
		req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
		if err != nil {
			return "", err
		}
		return req.URL, nil
	}, cfg), nil
}

func newS3(api objectAPI, presign presigner, cfg config.Config) *S3 {
	timeout := cfg.StorageTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &S3{
		api:       api,
		presigner: presign,
		bucket:    cfg.S3Bucket,
		baseURL:   publicBaseURL(cfg),
		timeout:   timeout,
	}
}

func (s *S3) Upload(ctx context.Context, key string, body []byte, contentType string) (Object, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return Object{}, errors.Wrapf(err, "could not upload %s", key)
	}
	return Object{Key: key, Bucket: s.bucket, URL: s.ObjectURL(key)}, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrapf(err, "could not delete %s", key)
}

func (s *S3) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	u, err := s.presigner(ctx, s.bucket, key, ttl)
	if err != nil {
		return "", errors.Wrapf(err, "could not presign %s", key)
	}
	return u, nil
}

// ObjectURL is the unsigned address of key, stored alongside the photo row.
func (s *S3) ObjectURL(key string) string {
	return s.baseURL + "/" + escapeKey(key)
}

func publicBaseURL(cfg config.Config) string {
	if cfg.S3Endpoint != "" {
		return strings.TrimRight(cfg.S3Endpoint, "/") + "/" + cfg.S3Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.S3Region)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func maxAttempts(n int) int {
	if n < 1 {
		return 3
	}
	return n
}
