// Package storage defines the object storage abstraction the record source reads from and the
// rejects exporter writes to. Buckets map to directories for the local backend.
package storage

import (
	"context"
	"io"
)

// StorageExecutor is the set of object operations a connection supports.
type StorageExecutor interface {
	// Upload stores data as objectName in bucket. contentType is a MIME type.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens objectName for reading. The caller closes the returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for each object under prefix, stopping at the first error fn returns.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes objectName. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is an open, named connection to one storage backend.
type StorageConnection interface {
	StorageExecutor
	Close() error
	// Type is the backend type, e.g. "local" or "gcs".
	Type() string
	Name() string
}

// StorageProvider creates and caches the connections of one backend type.
type StorageProvider interface {
	GetConnection(name string) (StorageConnection, error)
	CloseAll() error
	Type() string
}

// StorageConnectionResolver finds the connection configured under a name, whatever its backend.
type StorageConnectionResolver interface {
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}
