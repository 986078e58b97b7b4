package capture

import "context"

// ProofRepository is the durable store of Proof records, one per asset.
type ProofRepository interface {
	// GetAll re-reads every stored proof and returns the current set.
	GetAll(ctx context.Context) ([]*Proof, error)

	// GetByHash returns the proof with the given hash, or nil if none exists.
	GetByHash(ctx context.Context, hash string) (*Proof, error)

	// Add stores the proofs and returns their storage URIs.
	Add(ctx context.Context, proofs ...*Proof) ([]string, error)

	// Update overwrites every stored proof whose normalized hash equals
	// proof.Hash. Returns the number of records overwritten; zero means no
	// stored counterpart was found and nothing was written.
	Update(ctx context.Context, proof *Proof) (int, error)

	// Remove deletes the proofs together with their raw content, facts and
	// signatures. Missing proofs are ignored.
	Remove(ctx context.Context, proofs ...*Proof) error

	// RawFile returns the raw content of the proof with the given hash.
	RawFile(ctx context.Context, hash string) ([]byte, error)

	// AddRawFile stores raw content and returns its hash, which becomes the
	// hash of the proof created for it.
	AddRawFile(ctx context.Context, data []byte, mimeType MimeType) (string, error)

	// RemoveRawFile deletes the raw content of the proof with the given hash.
	RemoveRawFile(ctx context.Context, hash string) error
}
