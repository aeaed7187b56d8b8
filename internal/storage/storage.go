// Package storage provides object storage abstractions used to persist
// backend snapshots.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUploadFailed       = errors.New("upload failed")
	ErrDownloadFailed     = errors.New("download failed")
	ErrDeleteFailed       = errors.New("delete failed")
)

// ObjectStorage abstracts object storage operations.
// Implementations are S3 (or any S3-compatible endpoint) and the local
// filesystem.
type ObjectStorage interface {
	// Put stores data under key and returns the new ETag.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// Get returns the object's contents and ETag.
	// Returns ErrObjectNotFound when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, string, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, key string) (bool, error)

	// ConditionalPut stores data only if the current ETag matches etag.
	// An empty etag requires that the object does not exist yet.
	// Returns ErrPreconditionFailed when the condition does not hold.
	ConditionalPut(ctx context.Context, key string, data []byte, etag string) (string, error)

	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
