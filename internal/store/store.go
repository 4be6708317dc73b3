// Package store abstracts the document object store. Paths are
// case-prefixed: "<caseID>/<subdir>/<filename>".
package store

import (
	"context"
	"time"
)

// ObjectInfo is the subset of object properties the hub cares about.
type ObjectInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	LastModified time.Time `json:"last_modified"`
}

// ObjectStore is the boundary to the blob store. The implementations are
// not authorization-aware; every caller re-validates case prefixes
// against its own entitlement.
type ObjectStore interface {
	// List returns all object paths under prefix. An empty prefix lists
	// the whole store.
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
	Properties(ctx context.Context, path string) (*ObjectInfo, error)
	// Read returns length bytes starting at offset; length <= 0 reads to
	// the end of the object.
	Read(ctx context.Context, path string, offset, length int64) ([]byte, error)
	// SignURL issues a read-only presigned URL valid for ttl.
	SignURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}
