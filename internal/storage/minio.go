package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements ObjectStore against any S3-compatible endpoint.
type MinioStore struct {
	core   *minio.Core
	bucket string
}

func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	core, err := minio.NewCore(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &MinioStore{core: core, bucket: bucket}, nil
}

func (s *MinioStore) Stat(ctx context.Context, key string) (int64, error) {
	info, err := s.core.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("head object %q: %w", key, err)
	}
	return info.Size, nil
}

func (s *MinioStore) GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(start, end); err != nil {
		return nil, err
	}
	obj, err := s.core.Client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, fmt.Errorf("get object %q range %d-%d: %w", key, start, end, err)
	}
	return obj, nil
}

func (s *MinioStore) CreateMultipartUpload(ctx context.Context, key string) (string, error) {
	uploadID, err := s.core.NewMultipartUpload(ctx, s.bucket, key, minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("create multipart upload %q: %w", key, err)
	}
	return uploadID, nil
}

func (s *MinioStore) UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (Part, error) {
	part, err := s.core.PutObjectPart(ctx, s.bucket, key, uploadID, partNumber,
		bytes.NewReader(data), int64(len(data)), minio.PutObjectPartOptions{})
	if err != nil {
		return Part{}, fmt.Errorf("upload part %d of %q: %w", partNumber, key, err)
	}
	return Part{Number: part.PartNumber, ETag: part.ETag}, nil
}

func (s *MinioStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) error {
	completed := make([]minio.CompletePart, len(parts))
	for i, p := range parts {
		completed[i] = minio.CompletePart{PartNumber: p.Number, ETag: p.ETag}
	}
	_, err := s.core.CompleteMultipartUpload(ctx, s.bucket, key, uploadID, completed, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("complete multipart upload %q: %w", key, err)
	}
	return nil
}

func (s *MinioStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	return s.core.AbortMultipartUpload(ctx, s.bucket, key, uploadID)
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	return s.core.Client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func (s *MinioStore) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.core.Client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %q: %w", key, err)
	}
	return u.String(), nil
}
