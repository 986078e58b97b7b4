// Package publisher uploads proof bundles to remote or local targets.
//
// Every target stores two objects per proof under the key prefix
// "<prefix>/<hash>": the raw content as "raw.<ext>" and the bundle metadata
// (proof, facts, signatures) as "bundle.json". The prefix is the identifier
// recorded on the proof.
package publisher

import (
	"encoding/json"
	"fmt"
	"path"

	"capture-go/internal/capture"
)

const bundleObject = "bundle.json"

// objectKeys returns the bundle prefix and the raw and metadata keys.
func objectKeys(prefix string, b *capture.Bundle) (id, rawKey, metaKey string) {
	id = path.Join(prefix, b.Proof.Hash)
	rawKey = path.Join(id, "raw."+b.Proof.MimeType.Extension)
	metaKey = path.Join(id, bundleObject)
	return id, rawKey, metaKey
}

// encodeMetadata serializes the bundle without its raw content.
func encodeMetadata(b *capture.Bundle) ([]byte, error) {
	meta := *b
	meta.Raw = nil
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding bundle: %w", err)
	}
	return data, nil
}

func validate(b *capture.Bundle) error {
	if b == nil || b.Proof == nil || b.Proof.Hash == "" {
		return fmt.Errorf("bundle has no proof")
	}
	return nil
}
