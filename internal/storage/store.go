package storage

import (
	"context"
	"io"
	"time"
)

// Part identifies one uploaded part of a multipart upload.
type Part struct {
	Number int    // 1-based
	ETag   string
}

// ObjectStore is the subset of an S3-compatible object storage API the
// pipeline needs: sized HEAD, ranged reads and explicit multipart uploads.
type ObjectStore interface {
	// Stat returns the total object size in bytes.
	Stat(ctx context.Context, key string) (int64, error)
	// GetRange streams bytes [start, end] (inclusive) of the object.
	GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error)
	CreateMultipartUpload(ctx context.Context, key string) (uploadID string, err error)
	UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (Part, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []Part) error
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	Remove(ctx context.Context, key string) error
	// PresignedGetURL returns a time-limited credential-free download URL.
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
