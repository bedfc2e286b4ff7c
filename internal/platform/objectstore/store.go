// Package objectstore wraps S3-compatible storage used for partition data.
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by Get and Stat for missing keys.
var ErrObjectNotFound = errors.New("object not found")

// Store abstracts S3-compatible object storage.
type Store interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts PutOptions) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
}

type PutOptions struct {
	ContentType     string
	ContentEncoding string
}

type ObjectInfo struct {
	Key             string
	Size            int64
	ETag            string
	ContentType     string
	ContentEncoding string
	LastModified    time.Time
}
