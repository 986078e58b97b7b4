package testutil

import (
	"capture-go/internal/capture"
	"capture-go/internal/encryption"
)

// NewTestEncryptor creates a deterministic encryptor for share bundle tests.
func NewTestEncryptor() capture.Encryptor {
	return encryption.NewTestEncryptor()
}
