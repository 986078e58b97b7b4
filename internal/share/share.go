// Package share exports proofs as encrypted bundles and opens bundles
// received from others.
package share

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"capture-go/internal/capture"
)

// FormatVersion is written into every exported envelope.
const FormatVersion = 1

var (
	// ErrUnsupportedVersion is returned for envelopes written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported share bundle version")

	// ErrHashMismatch is returned when the raw content does not hash to the
	// proof hash it claims.
	ErrHashMismatch = errors.New("content does not match proof hash")
)

type envelope struct {
	Version int             `json:"version"`
	Bundle  *capture.Bundle `json:"bundle"`
}

// Export encrypts bundle to w for the given recipients. With no recipients
// the bundle is encrypted to the local key.
func Export(bundle *capture.Bundle, enc capture.Encryptor, w io.Writer, recipients ...string) error {
	if bundle == nil || bundle.Proof == nil {
		return fmt.Errorf("bundle has no proof")
	}

	data, err := json.Marshal(envelope{Version: FormatVersion, Bundle: bundle})
	if err != nil {
		return fmt.Errorf("encoding bundle: %w", err)
	}
	if err := enc.Encrypt(bytes.NewReader(data), w, recipients...); err != nil {
		return fmt.Errorf("encrypting bundle: %w", err)
	}
	return nil
}

// Open decrypts and decodes a bundle. The raw content is checked against
// the proof hash.
func Open(r io.Reader, dc capture.DecryptionContext) (*capture.Bundle, error) {
	var plain bytes.Buffer
	if err := dc.Decrypt(r, &plain); err != nil {
		return nil, fmt.Errorf("decrypting bundle: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(plain.Bytes(), &env); err != nil {
		return nil, fmt.Errorf("decoding bundle: %w", err)
	}
	if env.Version > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if env.Bundle == nil || env.Bundle.Proof == nil {
		return nil, fmt.Errorf("bundle has no proof")
	}
	if got := capture.ContentHash(env.Bundle.Raw); got != env.Bundle.Proof.Hash {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrHashMismatch, got, env.Bundle.Proof.Hash)
	}
	return env.Bundle, nil
}

// Import stores an opened bundle locally. An already known proof is left
// unchanged and Import reports false.
func Import(ctx context.Context, bundle *capture.Bundle, proofs capture.ProofRepository, facts capture.FactStore, signatures capture.SignatureStore) (bool, error) {
	existing, err := proofs.GetByHash(ctx, bundle.Proof.Hash)
	if err != nil {
		return false, fmt.Errorf("checking existing proof: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	if _, err := proofs.AddRawFile(ctx, bundle.Raw, bundle.Proof.MimeType); err != nil {
		return false, fmt.Errorf("storing raw content: %w", err)
	}

	p := bundle.Proof.Clone()
	p.DiaBackendAssetID = ""
	if _, err := proofs.Add(ctx, p); err != nil {
		return false, fmt.Errorf("storing proof: %w", err)
	}

	stamped := make([]capture.Fact, len(bundle.Facts))
	for i, f := range bundle.Facts {
		f.ProofHash = p.Hash
		stamped[i] = f
	}
	if err := facts.AddFacts(ctx, stamped); err != nil {
		return false, fmt.Errorf("storing facts: %w", err)
	}
	for _, sig := range bundle.Signatures {
		sig.ProofHash = p.Hash
		if err := signatures.AddSignature(ctx, sig); err != nil {
			return false, fmt.Errorf("storing signature: %w", err)
		}
	}
	return true, nil
}
