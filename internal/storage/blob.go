package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Blob stores raw file bytes under opaque keys. The in-memory implementation
// below backs tests and single-node deployments; production wires the MinIO
// implementation from the s3storage package.
type Blob interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
}

// MemoryBlob is a map-backed Blob. Values are copied on Put so callers can
// reuse their buffers.
type MemoryBlob struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBlob constructs an empty MemoryBlob.
func NewMemoryBlob() *MemoryBlob {
	return &MemoryBlob{blobs: make(map[string][]byte)}
}

// Put reads r to completion and stores the bytes under key. The size hint is
// ignored; the reader defines the payload.
func (b *MemoryBlob) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = data
	return nil
}

// Get returns a reader over the stored bytes and their length.
func (b *MemoryBlob) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	b.mu.RLock()
	data, ok := b.blobs[key]
	b.mu.RUnlock()
	if !ok {
		return nil, 0, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// Delete removes the blob. Deleting a missing key is not an error, matching
// object-store semantics.
func (b *MemoryBlob) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}
