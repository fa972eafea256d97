package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureConfig 描述 Azure Blob 存储参数。
type AzureConfig struct {
	ConnectionString string
	ContainerName    string
}

type azureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore 创建 Azure Blob 存储，并确保容器存在。
func NewAzureStore(ctx context.Context, cfg AzureConfig) (Store, error) {
	if cfg.ConnectionString == "" {
		return nil, errors.New("azure connection string required")
	}
	if cfg.ContainerName == "" {
		return nil, errors.New("azure container name required")
	}

	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	if _, err := client.CreateContainer(ctx, cfg.ContainerName, nil); err != nil {
		if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil, fmt.Errorf("create container %s: %w", cfg.ContainerName, err)
		}
	}

	return &azureStore{client: client, container: cfg.ContainerName}, nil
}

func (a *azureStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.DownloadStream(ctx, a.container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download blob %s: %w", name, err)
	}
	return resp.Body, nil
}

func (a *azureStore) Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (int64, error) {
	name, err := cleanKey(key)
	if err != nil {
		return 0, err
	}

	counter := &countingReader{r: body}
	uploadOpts := &azblob.UploadStreamOptions{}
	if opts.ContentType != "" {
		contentType := opts.ContentType
		uploadOpts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}

	if _, err := a.client.UploadStream(ctx, a.container, name, counter, uploadOpts); err != nil {
		return 0, fmt.Errorf("upload blob %s: %w", name, err)
	}
	return counter.n, nil
}

func (a *azureStore) Remove(ctx context.Context, key string) error {
	name, err := cleanKey(key)
	if err != nil {
		return err
	}

	if _, err := a.client.DeleteBlob(ctx, a.container, name, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return fmt.Errorf("delete blob %s: %w", name, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
