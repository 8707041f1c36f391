// Package blob stores uploaded files in Azure Blob Storage.
package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	azb "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// Uploader writes files into one container and hands back their durable URL.
type Uploader struct {
	client    *azblob.Client
	container string
}

// New creates an Uploader over the given container. The container must
// already exist and allow public blob reads, since the returned URLs are
// served to browsers directly.
func New(connectionString, container string) (*Uploader, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &Uploader{client: client, container: container}, nil
}

// Upload streams content into the container under name, overwriting any
// previous blob with that name, and returns the blob URL.
func (u *Uploader) Upload(ctx context.Context, name string, content io.Reader, contentType string) (string, error) {
	opts := &azblob.UploadStreamOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &azb.HTTPHeaders{BlobContentType: &contentType}
	}
	if _, err := u.client.UploadStream(ctx, u.container, name, content, opts); err != nil {
		return "", fmt.Errorf("upload blob %q: %w", name, err)
	}
	return u.client.ServiceClient().NewContainerClient(u.container).NewBlobClient(name).URL(), nil
}
