package storage

import (
	"context"
	"time"
)

// ObjectInfo is the subset of object metadata the pipeline needs.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStore abstracts the MinIO buckets so stage code and tests share one
// surface. Keys are always bucket-relative.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	UploadFile(ctx context.Context, bucket, key, path, contentType string) error
	UploadBytes(ctx context.Context, bucket, key string, data []byte, contentType string) error
	DownloadFile(ctx context.Context, bucket, key, path string) error
	ReadObject(ctx context.Context, bucket, key string) ([]byte, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
	ListPrefix(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	PresignPut(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}
