package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SignedMessage is the structure covered by proof signatures.
type SignedMessage struct {
	SpecVersion   string                       `json:"spec_version"`
	Recorder      string                       `json:"recorder"`
	CreatedAt     int64                        `json:"created_at"`
	ProofHash     string                       `json:"proof_hash"`
	AssetMimeType string                       `json:"asset_mime_type"`
	Caption       string                       `json:"caption"`
	Information   map[string]map[string]string `json:"information"`
}

// SignedMessageSpecVersion is the spec_version written into signed messages.
const SignedMessageSpecVersion = "2.0.0"

// NewSignedMessage builds the message for a proof and its facts.
// Facts are grouped by provider, then keyed by name.
func NewSignedMessage(recorder string, proof *Proof, facts []Fact) *SignedMessage {
	info := make(map[string]map[string]string)
	for _, f := range facts {
		if info[f.Provider] == nil {
			info[f.Provider] = make(map[string]string)
		}
		info[f.Provider][f.Name] = f.Value
	}
	return &SignedMessage{
		SpecVersion:   SignedMessageSpecVersion,
		Recorder:      recorder,
		CreatedAt:     proof.Timestamp,
		ProofHash:     proof.Hash,
		AssetMimeType: proof.MimeType.Type,
		Information:   info,
	}
}

// Canonicalize serializes v as JSON with every object's keys sorted
// recursively, so logically equal values always produce identical bytes
// regardless of field order.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	// Decoding into interface values turns every object into a map, and
	// encoding/json writes map keys in sorted order.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("encoding canonical payload: %w", err)
	}
	return out, nil
}
