package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureStore keeps images in an Azure Blob Storage container
type AzureStore struct {
	client        *azblob.Client
	container     string
	publicBaseURL string
	now           func() time.Time
}

// NewAzureStore creates a store authenticated with a shared account key
func NewAzureStore(accountName, accountKey, container string) (*AzureStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid storage credentials: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net/", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return NewAzureStoreWithClient(client, container), nil
}

// NewAzureStoreFromConnectionString creates a store from a storage account
// connection string, as used with Azurite in development.
func NewAzureStoreFromConnectionString(connStr, container string) (*AzureStore, error) {
	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return NewAzureStoreWithClient(client, container), nil
}

// NewAzureStoreWithClient wraps an existing client
func NewAzureStoreWithClient(client *azblob.Client, container string) *AzureStore {
	return &AzureStore{
		client:    client,
		container: container,
		now:       time.Now,
	}
}

// WithPublicBaseURL makes Upload return URLs under base (a CDN, for example)
// instead of the blob endpoint.
func (s *AzureStore) WithPublicBaseURL(base string) *AzureStore {
	s.publicBaseURL = strings.TrimRight(base, "/")
	return s
}

// EnsureContainer creates the container if it does not exist yet
func (s *AzureStore) EnsureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("failed to create container %s: %w", s.container, err)
	}
	return nil
}

// Upload stores data as a new block blob and returns its URL
func (s *AzureStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}

	name := objectName(s.now(), contentType)
	_, err := s.client.UploadBuffer(ctx, s.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + name, nil
	}
	return s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(name).URL(), nil
}
