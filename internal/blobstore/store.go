// Package blobstore is the object-store layer reports are written to and read
// from. Each driver maps a "container" onto its native namespace: an Azure blob
// container, a GCS or S3 bucket, or a directory on disk.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when the named object does not exist.
var ErrNotFound = errors.New("object not found")

// Object describes a stored blob.
type Object struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Store is implemented by every driver.
type Store interface {
	// Container returns the container (bucket, directory) name.
	Container() string

	// EnsureContainer creates the container if it is missing and reports
	// whether it had to be created.
	EnsureContainer(ctx context.Context) (bool, error)

	// Put writes a new object. Existing objects with the same name are replaced.
	Put(ctx context.Context, name string, data []byte) error

	// Get reads a whole object.
	Get(ctx context.Context, name string) ([]byte, error)

	// List returns all objects in the container in lexical name order.
	List(ctx context.Context) ([]Object, error)
}

// Driver names accepted by Open.
const (
	DriverAzure  = "azure"
	DriverGCS    = "gcs"
	DriverS3     = "s3"
	DriverDisk   = "disk"
	DriverMemory = "memory"
)

// Options configures Open.
type Options struct {
	Driver           string
	Container        string
	ConnectionString string // azure
	Project          string // gcs, only needed to create a missing bucket
	Region           string // s3
	Dir              string // disk root
}

// Open constructs the driver named in opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.Container == "" {
		return nil, fmt.Errorf("blobstore: container name is required")
	}
	switch opts.Driver {
	case DriverAzure, "":
		return NewAzure(opts.ConnectionString, opts.Container)
	case DriverGCS:
		return NewGCS(ctx, opts.Container, opts.Project)
	case DriverS3:
		return NewS3(opts.Container, opts.Region)
	case DriverDisk:
		return NewDisk(opts.Dir, opts.Container), nil
	case DriverMemory:
		return NewMemory(opts.Container), nil
	}
	return nil, fmt.Errorf("blobstore: unknown driver %q", opts.Driver)
}
