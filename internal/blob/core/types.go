// Package core defines the archive abstraction shared by the blob backends
// that hold exported registry snapshots.
package core

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete blob storage backend implementation.
type Driver string

const (
	// DriverFilesystem stores archives under a local directory.
	DriverFilesystem Driver = "fs"
	// DriverS3 targets an S3 or MinIO compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps archives in process memory (tests).
	DriverMemory Driver = "memory"
)

// ParseDriver validates a configured driver name.
func ParseDriver(raw string) (Driver, error) {
	switch d := Driver(raw); d {
	case DriverFilesystem, DriverS3, DriverMemory:
		return d, nil
	case "":
		return DriverFilesystem, nil
	default:
		return "", errors.New("unknown blob driver " + raw)
	}
}

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored blob.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is the write-once object store used for snapshot archives. Put fails
// with ErrExists when the key is taken; Get fails with ErrNotFound when it is
// missing. List orders results by key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

var (
	// ErrNotFound reports a missing key.
	ErrNotFound = errors.New("blob not found")
	// ErrExists reports a write to an existing key.
	ErrExists = errors.New("blob already exists")
)

// CloneMetadata copies user metadata so stores never alias caller maps.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
