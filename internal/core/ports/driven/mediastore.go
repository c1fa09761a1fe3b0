package driven

import "context"

// MediaStore is remote blob storage for image previews and audio payloads.
// Record data and media travel over independent transports: the postgres
// adapter keeps rows in the relational store and blobs here.
type MediaStore interface {
	// Upload stores a blob under the given name and returns its public URL.
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)

	// Download fetches a blob by name, or domain.ErrNotFound.
	Download(ctx context.Context, name string) ([]byte, error)

	// Remove deletes a blob by name. Missing blobs are a no-op.
	Remove(ctx context.Context, name string) error
}
