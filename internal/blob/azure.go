package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/mohammad-safakhou/ebookqa/config"
)

// Azure stores blobs in an Azure Blob Storage container.
type Azure struct {
	client    *azblob.Client
	container string
}

// NewAzure connects and ensures the container exists.
func NewAzure(cfg config.AzureBlobConfig) (*Azure, error) {
	if cfg.ConnectionString == "" || cfg.Container == "" {
		return nil, errors.New("azure blob requires connection_string and container")
	}
	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob client: %w", err)
	}
	if _, err := client.CreateContainer(context.Background(), cfg.Container, nil); err != nil {
		if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil, fmt.Errorf("ensure container: %w", err)
		}
	}
	return &Azure{client: client, container: cfg.Container}, nil
}

var _ Store = (*Azure)(nil)

func (a *Azure) Put(ctx context.Context, key string, data []byte) error {
	if _, err := a.client.UploadBuffer(ctx, a.container, key, data, nil); err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}
	return nil
}

func (a *Azure) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download blob %s: %w", key, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

func (a *Azure) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := a.client.DeleteBlob(ctx, a.container, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete blob %s: %w", key, err)
	}
	return true, nil
}

func (a *Azure) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob %s: %w", key, err)
	}
	resp.Body.Close()
	return true, nil
}
