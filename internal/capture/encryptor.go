package capture

import "io"

// Encryptor encrypts share bundles and unlocks the local identity to open
// bundles addressed to it. Encryption needs only public recipients.
type Encryptor interface {
	// Setup performs one-time key generation. The private identity is
	// stored encrypted with passphrase.
	Setup(passphrase string) error

	// Encrypt encrypts r to w for the given recipients. With none, the
	// local public key is used.
	Encrypt(r io.Reader, w io.Writer, recipients ...string) error

	// Recipient returns the local public key in its string form.
	Recipient() (string, error)

	// Unlock decrypts the private identity and returns a context that can
	// decrypt data for the rest of the session.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked identity in memory only.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
