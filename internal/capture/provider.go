package capture

import "context"

// FactProvider collects contextual metadata for a proof.
// A provider whose collections are all disabled returns an empty slice.
type FactProvider interface {
	Name() string
	Provide(ctx context.Context, proof *Proof) ([]Fact, error)
}

// SignatureProvider signs a canonical payload. The returned Signature only
// needs Signature and PublicKey set; the collector fills in the rest.
type SignatureProvider interface {
	Name() string
	Sign(ctx context.Context, payload []byte) (Signature, error)
}
