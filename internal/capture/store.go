package capture

import "context"

// WriteStrategy decides what ContentStore.Write does when the content is
// already indexed.
type WriteStrategy int

const (
	// WriteReplace always writes the blob, overwriting any existing copy.
	WriteReplace WriteStrategy = iota
	// WriteIgnore leaves an existing blob untouched and returns its index.
	WriteIgnore
)

// ContentStore is content-addressed storage for raw media and derived
// thumbnails. The index of a blob is ContentHash of its bytes.
type ContentStore interface {
	// Write stores data and returns its index. The extension recorded for an
	// index is never changed by later writes of the same content.
	Write(ctx context.Context, data []byte, mimeType MimeType, strategy WriteStrategy) (string, error)

	// Read returns the bytes stored at index.
	// Returns ErrNotFound if the index is not mapped or the blob is missing.
	Read(ctx context.Context, index string) ([]byte, error)

	// Exists reports whether both the blob and its extension mapping exist.
	Exists(ctx context.Context, index string) (bool, error)

	// ThumbnailURL returns a data URL for the thumbnail of index, generating
	// and caching the thumbnail on first request.
	ThumbnailURL(ctx context.Context, index string, mimeType MimeType) (string, error)

	// URI returns a file URI for the blob stored at index.
	URI(ctx context.Context, index string) (string, error)

	// Delete removes the blob, its mapping and any cached thumbnail.
	// Deleting an index that was never written is a no-op.
	Delete(ctx context.Context, index string) error

	// Clear removes every blob and mapping row.
	Clear(ctx context.Context) error

	// Drop clears the store and destroys its mapping tables. The store
	// cannot be used afterwards.
	Drop(ctx context.Context) error
}
