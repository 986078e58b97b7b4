package capture

import (
	"context"
	"fmt"
)

// Bundle is everything needed to reproduce and verify one proof elsewhere.
type Bundle struct {
	Proof      *Proof      `json:"proof"`
	Facts      []Fact      `json:"facts"`
	Signatures []Signature `json:"signatures"`
	Raw        []byte      `json:"raw,omitempty"`
}

// Publisher sends a bundle to a remote destination and returns the
// identifier it was stored under.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, bundle *Bundle) (string, error)
}

// LoadBundle assembles the bundle for the proof with the given hash.
// Returns ErrNotFound if no such proof exists.
func LoadBundle(ctx context.Context, proofs ProofRepository, facts FactStore, signatures SignatureStore, hash string) (*Bundle, error) {
	proof, err := proofs.GetByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("loading proof: %w", err)
	}
	if proof == nil {
		return nil, fmt.Errorf("proof %s: %w", hash, ErrNotFound)
	}

	// Lookups below use the stored hash; hash may be in any accepted form.
	raw, err := proofs.RawFile(ctx, proof.Hash)
	if err != nil {
		return nil, fmt.Errorf("loading raw content: %w", err)
	}
	fs, err := facts.FactsForProof(ctx, proof.Hash)
	if err != nil {
		return nil, fmt.Errorf("loading facts: %w", err)
	}
	sigs, err := signatures.SignaturesForProof(ctx, proof.Hash)
	if err != nil {
		return nil, fmt.Errorf("loading signatures: %w", err)
	}

	return &Bundle{Proof: proof, Facts: fs, Signatures: sigs, Raw: raw}, nil
}

// PublishBundle publishes bundle and records the returned identifier on the
// stored proof.
func PublishBundle(ctx context.Context, proofs ProofRepository, pub Publisher, bundle *Bundle) (string, error) {
	id, err := pub.Publish(ctx, bundle)
	if err != nil {
		return "", fmt.Errorf("publishing to %s: %w", pub.Name(), err)
	}

	updated := bundle.Proof.Clone()
	updated.DiaBackendAssetID = id
	if _, err := proofs.Update(ctx, updated); err != nil {
		return "", fmt.Errorf("recording asset id: %w", err)
	}
	bundle.Proof = updated
	return id, nil
}
