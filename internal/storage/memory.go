package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process ObjectStore for tests and local runs without
// MinIO. Presigned URLs are synthetic and not servable.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	buckets map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		buckets: make(map[string]bool),
	}
}

func objectKey(bucket, key string) string { return bucket + "/" + key }

func (s *MemoryStore) EnsureBucket(_ context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[bucket] = true
	return nil
}

func (s *MemoryStore) UploadFile(ctx context.Context, bucket, key, path, contentType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read upload source: %w", err)
	}
	return s.UploadBytes(ctx, bucket, key, data, contentType)
}

func (s *MemoryStore) UploadBytes(_ context.Context, bucket, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[objectKey(bucket, key)] = cp
	return nil
}

func (s *MemoryStore) DownloadFile(ctx context.Context, bucket, key, path string) error {
	data, err := s.ReadObject(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *MemoryStore) ReadObject(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[objectKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemoryStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[objectKey(bucket, key)]
	return ok, nil
}

func (s *MemoryStore) ListPrefix(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	full := objectKey(bucket, prefix)
	var out []ObjectInfo
	for k, v := range s.objects {
		if strings.HasPrefix(k, full) {
			out = append(out, ObjectInfo{
				Key:  strings.TrimPrefix(k, bucket+"/"),
				Size: int64(len(v)),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) PresignPut(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("memory://put/%s/%s?expires=%d", bucket, key, int(expiry.Seconds())), nil
}

func (s *MemoryStore) PresignGet(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("memory://get/%s/%s?expires=%d", bucket, key, int(expiry.Seconds())), nil
}

// Delete removes an object, for tests that simulate lost artifacts.
func (s *MemoryStore) Delete(_ context.Context, bucket, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectKey(bucket, key))
}
