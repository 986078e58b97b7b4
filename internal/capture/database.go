package capture

import (
	"context"
	"time"
)

// FactStore persists facts keyed by proof hash.
type FactStore interface {
	// AddFacts stores facts. A fact with the same proof, provider and name
	// as an existing one replaces it.
	AddFacts(ctx context.Context, facts []Fact) error

	// FactsForProof returns all facts attached to a proof.
	FactsForProof(ctx context.Context, proofHash string) ([]Fact, error)

	// DeleteFactsForProof removes all facts attached to a proof.
	DeleteFactsForProof(ctx context.Context, proofHash string) error
}

// SignatureStore persists one signature per (proof, provider).
type SignatureStore interface {
	// AddSignature stores sig, superseding an earlier signature by the same
	// provider for the same proof.
	AddSignature(ctx context.Context, sig Signature) error

	// SignaturesForProof returns all signatures over a proof.
	SignaturesForProof(ctx context.Context, proofHash string) ([]Signature, error)

	// DeleteSignaturesForProof removes all signatures over a proof.
	DeleteSignaturesForProof(ctx context.Context, proofHash string) error
}

// PreferenceStore is a namespaced key-value store for settings and
// process-wide persisted state.
type PreferenceStore interface {
	// GetPreference returns the stored value and whether it was present.
	GetPreference(ctx context.Context, namespace, key string) (string, bool, error)

	// SetPreference stores value under namespace/key.
	SetPreference(ctx context.Context, namespace, key, value string) error

	// InitPreferences stores every value in one transaction, only if none of
	// the keys is set yet. It reports whether the values were written.
	InitPreferences(ctx context.Context, namespace string, values map[string]string) (bool, error)
}

// Operation is the audit record of one mutating command.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// OperationStore records operations.
type OperationStore interface {
	// CreateOperation records the start of an operation and returns it with
	// its assigned ID.
	CreateOperation(ctx context.Context, operation, parameters string) (*Operation, error)

	// FinishOperation sets the final status of an operation.
	FinishOperation(ctx context.Context, id int64, status string) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(ctx context.Context, limit int) ([]*Operation, error)
}
