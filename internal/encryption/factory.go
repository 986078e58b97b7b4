package encryption

import (
	"fmt"

	"capture-go/internal/capture"
	"capture-go/internal/config"
)

// NewEncryptorFromConfig returns the share bundle encryptor for cfg.Type.
// An age encryptor needs both key paths; the files themselves may not
// exist until keys are initialized.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (capture.Encryptor, error) {
	switch cfg.Type {
	case "test":
		return NewTestEncryptor(), nil
	case "age", "":
		if cfg.PublicKeyPath == "" || cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("age encryption requires public_key_path and private_key_path")
		}
		return NewAgeEncryptor(cfg), nil
	}
	return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
}
