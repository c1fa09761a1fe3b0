package postgres

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/lernbegleiter/lernwelt-cli/internal/core/domain"
	"github.com/lernbegleiter/lernwelt-cli/internal/core/ports/driven"
)

// DefaultContainer is the blob container shared by previews and audio.
const DefaultContainer = "tasks-media"

// BlobMedia stores binary payloads in Azure Blob Storage.
type BlobMedia struct {
	client    *azblob.Client
	container string
}

var _ driven.MediaStore = (*BlobMedia)(nil)

// NewBlobMedia creates a media store from an Azure storage connection string.
func NewBlobMedia(connString, container string) (*BlobMedia, error) {
	if container == "" {
		container = DefaultContainer
	}
	client, err := azblob.NewClientFromConnectionString(connString, nil)
	if err != nil {
		return nil, fmt.Errorf("creating blob client: %w", err)
	}
	return &BlobMedia{client: client, container: container}, nil
}

// Upload stores a blob and returns its URL.
func (m *BlobMedia) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	_, err := m.client.UploadBuffer(ctx, m.container, name, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("uploading blob %s: %w", name, err)
	}
	return strings.TrimSuffix(m.client.URL(), "/") + "/" + m.container + "/" + name, nil
}

// Download fetches a blob by name.
func (m *BlobMedia) Download(ctx context.Context, name string) ([]byte, error) {
	resp, err := m.client.DownloadStream(ctx, m.container, name, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("downloading blob %s: %w", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", name, err)
	}
	return data, nil
}

// Remove deletes a blob. Missing blobs are a no-op.
func (m *BlobMedia) Remove(ctx context.Context, name string) error {
	_, err := m.client.DeleteBlob(ctx, m.container, name, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting blob %s: %w", name, err)
	}
	return nil
}

// parseDataURI splits a data URI (data:image/png;base64,...) into its content
// type and decoded payload. ok is false for anything else, including remote
// URLs that were already uploaded.
func parseDataURI(uri string) (contentType string, data []byte, ok bool) {
	rest, found := strings.CutPrefix(uri, "data:")
	if !found {
		return "", nil, false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found || !strings.HasSuffix(meta, ";base64") {
		return "", nil, false
	}
	contentType = strings.TrimSuffix(meta, ";base64")

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, false
	}
	return contentType, decoded, true
}

// extForContentType maps preview content types to blob name extensions.
func extForContentType(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "bin"
	}
}
