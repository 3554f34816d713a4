package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// BucketStore writes archive objects to a Cloud Storage bucket.
type BucketStore struct {
	bucket *storage.BucketHandle
}

func NewBucketStore(bucket *storage.BucketHandle) *BucketStore {
	return &BucketStore{bucket: bucket}
}

func (b *BucketStore) WriteObject(ctx context.Context, name, contentType string, data []byte) error {
	w := b.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close object %s: %w", name, err)
	}
	return nil
}
