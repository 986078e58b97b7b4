package encryption

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"capture-go/internal/capture"
)

// testMagic starts every TestEncryptor ciphertext.
const testMagic = "CAPENC"

// TestRecipient is the local public key of every TestEncryptor.
const TestRecipient = "test-recipient"

// TestEncryptor is a deterministic, reversible stand-in for age. Ciphertext
// is a header line naming the recipients followed by the plaintext, so tests
// can check who a bundle was addressed to without any crypto.
type TestEncryptor struct {
	setupCalled bool
}

var _ capture.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.setupCalled = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer, recipients ...string) error {
	if len(recipients) == 0 {
		recipients = []string{TestRecipient}
	}
	if _, err := fmt.Fprintf(w, "%s %s\n", testMagic, strings.Join(recipients, ",")); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Recipient() (string, error) {
	return TestRecipient, nil
}

func (e *TestEncryptor) Unlock(passphrase string) (capture.DecryptionContext, error) {
	return &TestDecryptionContext{recipient: TestRecipient}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext opens TestEncryptor ciphertext addressed to its recipient.
type TestDecryptionContext struct {
	recipient string
}

var _ capture.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}

	magic, list, ok := strings.Cut(strings.TrimSuffix(header, "\n"), " ")
	if !ok || magic != testMagic {
		return fmt.Errorf("invalid test encryption header")
	}
	if !slices.Contains(strings.Split(list, ","), c.recipient) {
		return fmt.Errorf("data is not addressed to %s", c.recipient)
	}

	if _, err := io.Copy(w, br); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
