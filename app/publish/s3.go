package publish

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

var _ ArtifactStore = (*S3Store)(nil)

type S3Store struct {
	client S3API
	bucket string
	prefix string
}

func NewS3Store(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func NewS3StoreFromConfig(cfg aws.Config, bucket, prefix string) *S3Store {
	return NewS3Store(s3.NewFromConfig(cfg), bucket, prefix)
}

func (s *S3Store) Key(artifactPath string) string {
	if s.prefix == "" {
		return artifactPath
	}
	return path.Join(s.prefix, artifactPath)
}

// Write skips the upload when the object's ETag already matches the content. Single-part
// uploads use the MD5 of the body as their ETag.
func (s *S3Store) Write(ctx context.Context, artifactPath string, data []byte) (bool, error) {
	key := s.Key(artifactPath)
	sum := md5.Sum(data)
	checksum := hex.EncodeToString(sum[:])

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil && head.ETag != nil && strings.Trim(*head.ETag, `"`) == checksum {
		return false, nil
	}
	if err != nil {
		slog.Debug("S3 head failed, uploading", "key", key, "error", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return false, fmt.Errorf("failed to put s3://%s/%s: %w", s.bucket, key, err)
	}

	return true, nil
}
