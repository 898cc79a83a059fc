package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/maheshrc27/postpilot/configs"
)

// Uploader stores a blob on a public host and returns the URL it is served
// from. That URL may redirect before reaching the bytes.
type Uploader interface {
	Upload(ctx context.Context, key string, file []byte, contentType string) (string, error)
}

type R2Service struct {
	config cfg.R2
	client *s3.Client
}

func NewR2Service(ctx context.Context, r2 cfg.R2) (*R2Service, error) {
	if r2.BucketName == "" || r2.PublicURL == "" {
		return nil, errors.New("r2 bucket name and public url are required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r2.AccessKey, r2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("load r2 config: %w", err)
	}

	endpoint := r2.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = r2.Endpoint != ""
	})
	return &R2Service{config: r2, client: client}, nil
}

// Upload puts the file into the bucket and returns its public URL.
func (r *R2Service) Upload(ctx context.Context, key string, file []byte, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.config.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(contentType),
	}

	if _, err := r.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	return strings.TrimRight(r.config.PublicURL, "/") + "/" + key, nil
}

type unconfiguredUploader struct{}

func (unconfiguredUploader) Upload(context.Context, string, []byte, string) (string, error) {
	return "", permanent(errors.New("media host is not configured (R2_BUCKET_NAME, R2_PUBLIC_URL)"))
}

// NewUploader returns the R2 uploader, or one that always fails when R2 is not
// configured so text-only posts can still be published.
func NewUploader(ctx context.Context, r2 cfg.R2) (Uploader, error) {
	if r2.BucketName == "" && r2.PublicURL == "" {
		return unconfiguredUploader{}, nil
	}
	return NewR2Service(ctx, r2)
}
