package proof

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"capture-go/internal/capture"
)

// Schema versions of stored proof files.
const (
	// SchemaLegacy files wrap the record: {"proof": {"hash", "mimeType", "timestamp"}, ...}.
	SchemaLegacy = 0
	// SchemaCurrent files hold the Proof object itself.
	SchemaCurrent = 1
)

var errNoHash = errors.New("proof file has no hash")

type storedFile struct {
	Hash              string               `json:"hash"`
	MimeType          json.RawMessage      `json:"mimeType"`
	Timestamp         int64                `json:"timestamp"`
	DiaBackendAssetID string               `json:"diaBackendAssetId"`
	CollectionPending bool                 `json:"collectionPending"`
	Geolocation       *capture.Geolocation `json:"geolocation"`
	Legacy            *legacyProof         `json:"proof"`
}

type legacyProof struct {
	Hash      string          `json:"hash"`
	MimeType  json.RawMessage `json:"mimeType"`
	Timestamp float64         `json:"timestamp"`
}

// Normalize decodes a stored proof file of any schema version into the
// canonical Proof and reports the version it was read from.
func Normalize(raw []byte) (*capture.Proof, int, error) {
	var f storedFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, 0, fmt.Errorf("decoding proof file: %w", err)
	}

	if f.Hash != "" {
		mt, err := decodeMimeType(f.MimeType)
		if err != nil {
			return nil, 0, err
		}
		return &capture.Proof{
			Hash:              NormalizeHash(f.Hash),
			MimeType:          mt,
			Timestamp:         f.Timestamp,
			DiaBackendAssetID: f.DiaBackendAssetID,
			CollectionPending: f.CollectionPending,
			Geolocation:       f.Geolocation,
		}, SchemaCurrent, nil
	}

	if f.Legacy != nil && f.Legacy.Hash != "" {
		mt, err := decodeMimeType(f.Legacy.MimeType)
		if err != nil {
			return nil, 0, err
		}
		return &capture.Proof{
			Hash:      NormalizeHash(f.Legacy.Hash),
			MimeType:  mt,
			Timestamp: int64(f.Legacy.Timestamp),
		}, SchemaLegacy, nil
	}

	return nil, 0, errNoHash
}

// NormalizeHash returns the canonical form of a content hash.
func NormalizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

// decodeMimeType accepts either the {type, extension} object or a bare
// media type string.
func decodeMimeType(raw json.RawMessage) (capture.MimeType, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return capture.MimeType{}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		mt, err := capture.ParseMimeType(s)
		if err != nil {
			return capture.MimeType{Type: s}, nil
		}
		return mt, nil
	}

	var mt capture.MimeType
	if err := json.Unmarshal(raw, &mt); err != nil {
		return capture.MimeType{}, fmt.Errorf("decoding mime type: %w", err)
	}
	return mt, nil
}
