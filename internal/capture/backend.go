package capture

import (
	"context"
	"fmt"
)

// Asset is a backend record describing a proof uploaded to the remote service.
type Asset struct {
	ID              string `json:"id"`
	ProofHash       string `json:"proof_hash"`
	OwnerName       string `json:"owner_name,omitempty"`
	IsOriginalOwner bool   `json:"is_original_owner"`
	AssetFileType   string `json:"asset_file_mime_type,omitempty"`
}

// AssetPage is one page of a paginated asset listing.
type AssetPage struct {
	Results []Asset `json:"results"`
	Count   int     `json:"count"`
}

// AssetBackend lists assets held by the remote service.
type AssetBackend interface {
	// ListNotOriginallyOwned returns assets owned by the user but first
	// captured by someone else. An empty page marks the end of the listing.
	ListNotOriginallyOwned(ctx context.Context, offset, limit int) (*AssetPage, error)
}

// ListAllNotOriginallyOwned pages through the backend until it returns an
// empty page. The offset advances by the rows actually returned, so a
// backend that caps its page size below the requested limit skips nothing.
func ListAllNotOriginallyOwned(ctx context.Context, assets AssetBackend) ([]Asset, error) {
	var all []Asset
	offset := 0
	for {
		page, err := assets.ListNotOriginallyOwned(ctx, offset, assetPageSize)
		if err != nil {
			return nil, fmt.Errorf("listing assets at offset %d: %w", offset, err)
		}
		if page == nil || len(page.Results) == 0 {
			return all, nil
		}
		all = append(all, page.Results...)
		offset += len(page.Results)
	}
}
