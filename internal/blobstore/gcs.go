package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

var _ Store = (*GCSStore)(nil)

// GCSStore keeps reports in a Google Cloud Storage bucket named after the container.
// Credentials come from Application Default Credentials.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	project string
}

func NewGCS(ctx context.Context, bucket, project string) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, project: project}, nil
}

func (s *GCSStore) Container() string { return s.bucket }

func (s *GCSStore) EnsureContainer(ctx context.Context) (bool, error) {
	bkt := s.client.Bucket(s.bucket)
	_, err := bkt.Attrs(ctx)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return false, fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	if s.project == "" {
		return false, fmt.Errorf("bucket %s does not exist and no project is configured to create it", s.bucket)
	}
	if err := bkt.Create(ctx, s.project, nil); err != nil {
		return false, fmt.Errorf("creating bucket %s: %w", s.bucket, err)
	}
	return true, nil
}

func (s *GCSStore) Put(ctx context.Context, name string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalising %s: %w", name, err)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, name string) ([]byte, error) {
	rc, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *GCSStore) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	it := s.client.Bucket(s.bucket).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing bucket %s: %w", s.bucket, err)
		}
		objects = append(objects, Object{Name: attrs.Name, Size: attrs.Size, Modified: attrs.Updated})
	}
	return objects, nil
}
