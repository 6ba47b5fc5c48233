// ABOUTME: S3-compatible object storage backend for uploads
// ABOUTME: Works against AWS or MinIO style endpoints with static credentials

package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the bucket and endpoint settings.
type S3Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// s3API is the subset of the S3 client used here.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage stores uploads as objects in a bucket.
type S3Storage struct {
	client     s3API
	bucket     string
	publicBase string
}

// NewS3Storage builds an S3 client from cfg. A custom endpoint switches the
// client to path-style addressing.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Storage(client, cfg.Bucket, cfg.PublicBaseURL), nil
}

func newS3Storage(client s3API, bucket, publicBase string) *S3Storage {
	return &S3Storage{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimSuffix(publicBase, "/"),
	}
}

// Save implements Storage. The body is spooled to a temp file first so the
// upload has a known length and can be retried by the SDK.
func (s *S3Storage) Save(ctx context.Context, key string, r io.Reader) (string, int64, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp("", "chorale-upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("creating spool file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, r)
	if err != nil {
		return "", 0, fmt.Errorf("spooling upload: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", 0, fmt.Errorf("rewinding spool file: %w", err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          tmp,
		ContentLength: aws.Int64(size),
	}
	if ct, ok := inlineTypes[Ext(key)]; ok {
		input.ContentType = aws.String(ct)
	} else {
		input.ContentType = aws.String("application/octet-stream")
		input.ContentDisposition = aws.String("attachment")
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", 0, fmt.Errorf("putting object %s: %w", key, err)
	}
	return s.publicBase + "/" + key, size, nil
}

// Delete implements Storage.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	return nil
}

// KeyFromPath implements Storage.
func (s *S3Storage) KeyFromPath(publicPath string) (string, bool) {
	key, ok := strings.CutPrefix(publicPath, s.publicBase+"/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
