// Package azurefile implements a directory Source backed by a file in an
// Azure Storage file share.
package azurefile

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azfile/file"
)

// Defaults of the original deployment.
const (
	DefaultShareName = "email-app"
	DefaultFilePath  = "emails.json"
)

// SourceConfig holds the configuration for creating a Source.
type SourceConfig struct {
	ConnectionString string
	ShareName        string
	FilePath         string
}

// DownloadAPI opens the file for reading.
// Used for testing with mock implementations.
type DownloadAPI interface {
	Download(ctx context.Context) (io.ReadCloser, error)
}

// Source downloads the directory document from a file share.
type Source struct {
	share  string
	path   string
	client DownloadAPI
}

// New creates a Source from a storage account connection string.
func New(cfg SourceConfig) (*Source, error) {
	if cfg.ShareName == "" {
		cfg.ShareName = DefaultShareName
	}
	if cfg.FilePath == "" {
		cfg.FilePath = DefaultFilePath
	}

	client, err := file.NewClientFromConnectionString(cfg.ConnectionString, cfg.ShareName, cfg.FilePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create file share client: %w", err)
	}

	return NewWithClient(cfg.ShareName, cfg.FilePath, sdkClient{client: client}), nil
}

// NewWithClient creates a Source with a custom client, used for testing.
func NewWithClient(share, path string, client DownloadAPI) *Source {
	return &Source{
		share:  share,
		path:   path,
		client: client,
	}
}

// Fetch downloads the whole file.
func (s *Source) Fetch(ctx context.Context) ([]byte, error) {
	body, err := s.client.Download(ctx)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			return nil, fmt.Errorf("file share returned %d (%s): %w", respErr.StatusCode, respErr.ErrorCode, err)
		}
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file body: %w", err)
	}
	return data, nil
}

// Name returns the share and path of the file.
func (s *Source) Name() string {
	return fmt.Sprintf("azurefile://%s/%s", s.share, s.path)
}

// sdkClient adapts *file.Client to DownloadAPI.
type sdkClient struct {
	client *file.Client
}

func (c sdkClient) Download(ctx context.Context) (io.ReadCloser, error) {
	resp, err := c.client.DownloadStream(ctx, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
