package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

var _ Store = (*AzureStore)(nil)

// AzureStore keeps reports in an Azure Storage blob container.
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzure builds a store from a storage-account connection string.
func NewAzure(connectionString, container string) (*AzureStore, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("azure blob storage: connection string is required")
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob storage: %w", err)
	}
	return &AzureStore{client: client, container: container}, nil
}

func (s *AzureStore) Container() string { return s.container }

func (s *AzureStore) EnsureContainer(ctx context.Context) (bool, error) {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating container %s: %w", s.container, err)
	}
	return true, nil
}

func (s *AzureStore) Put(ctx context.Context, name string, data []byte) error {
	if _, err := s.client.UploadBuffer(ctx, s.container, name, data, nil); err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	return nil
}

func (s *AzureStore) Get(ctx context.Context, name string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

func (s *AzureStore) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	pager := s.client.NewListBlobsFlatPager(s.container, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing container %s: %w", s.container, err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			obj := Object{Name: *item.Name}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					obj.Size = *p.ContentLength
				}
				if p.LastModified != nil {
					obj.Modified = *p.LastModified
				}
			}
			objects = append(objects, obj)
		}
	}
	return objects, nil
}
