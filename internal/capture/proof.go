package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MimeType is a media type together with the file extension used when the
// content is written to disk.
type MimeType struct {
	Type      string `json:"type"`
	Extension string `json:"extension"`
}

// ParseMimeType resolves a media type string such as "image/jpeg" into a
// MimeType. Parameters ("; charset=...") are ignored.
// Returns ErrUnsupportedMedia if the type is unknown.
func ParseMimeType(raw string) (MimeType, error) {
	t, _, _ := strings.Cut(raw, ";")
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return MimeType{}, fmt.Errorf("%w: empty mime type", ErrUnsupportedMedia)
	}

	m := mimetype.Lookup(t)
	if m == nil || m.Extension() == "" {
		return MimeType{}, fmt.Errorf("%w: %s", ErrUnsupportedMedia, t)
	}
	return MimeType{Type: t, Extension: strings.TrimPrefix(m.Extension(), ".")}, nil
}

// IsImage reports whether the media type is an image.
func (m MimeType) IsImage() bool {
	return strings.HasPrefix(m.Type, "image/")
}

// IsVideo reports whether the media type is a video.
func (m MimeType) IsVideo() bool {
	return strings.HasPrefix(m.Type, "video/")
}

// Geolocation is the capture position attached to a proof.
type Geolocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Proof is the record for one captured asset. Hash is the hex SHA-256 of the
// raw content and identifies the proof; two proofs with the same hash are the
// same asset.
type Proof struct {
	Hash              string       `json:"hash"`
	MimeType          MimeType     `json:"mimeType"`
	Timestamp         int64        `json:"timestamp"`
	DiaBackendAssetID string       `json:"diaBackendAssetId,omitempty"`
	CollectionPending bool         `json:"collectionPending"`
	Geolocation       *Geolocation `json:"geolocation,omitempty"`
}

// Clone returns a deep copy of the proof.
func (p *Proof) Clone() *Proof {
	c := *p
	if p.Geolocation != nil {
		g := *p.Geolocation
		c.Geolocation = &g
	}
	return &c
}

// Fact is one piece of contextual metadata attached to a proof.
// Facts are namespaced by the provider that produced them.
type Fact struct {
	ProofHash string `json:"proofHash"`
	Provider  string `json:"provider"`
	Name      string `json:"name"`
	Value     string `json:"value"`
}

// Signature is an attestation by one signature provider over the canonical
// payload of a proof and its facts. Signature and PublicKey are hex encoded.
type Signature struct {
	ProofHash string `json:"proofHash"`
	Provider  string `json:"provider"`
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
}

// ContentHash returns the index used for content-addressed storage: the
// lowercase hex SHA-256 of data.
func ContentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
