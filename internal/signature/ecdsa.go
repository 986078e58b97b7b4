// Package signature implements signature providers over canonical proof
// payloads.
package signature

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"capture-go/internal/capture"
)

const (
	// ProviderName is the name signatures from ECDSAProvider are stored under.
	ProviderName = "ecdsa-p256"

	// Namespace scopes the persisted key pair.
	Namespace = "ecdsa-signature-provider"

	PublicKeyKey  = "publicKey"
	PrivateKeyKey = "privateKey"
)

var (
	// ErrIncompleteKeyPair is returned when only one half of the key pair is
	// stored. The pair is never regenerated automatically.
	ErrIncompleteKeyPair = errors.New("stored key pair is incomplete")

	// ErrInvalidSignature is returned by Verify for a signature that does not
	// match the payload.
	ErrInvalidSignature = errors.New("invalid signature")
)

// ECDSAProvider signs payloads with a P-256 key pair kept in the
// preference store. The public key is hex PKIX DER and the private key is
// hex PKCS#8 DER.
type ECDSAProvider struct {
	prefs *capture.Preferences

	mu  sync.Mutex
	key *ecdsa.PrivateKey
}

var _ capture.SignatureProvider = (*ECDSAProvider)(nil)

func NewECDSAProvider(store capture.PreferenceStore) *ECDSAProvider {
	return &ECDSAProvider{prefs: capture.NewPreferences(store, Namespace)}
}

func (p *ECDSAProvider) Name() string {
	return ProviderName
}

// Initialize creates and stores a key pair when none exists. Concurrent
// calls create at most one pair.
func (p *ECDSAProvider) Initialize(ctx context.Context) error {
	_, err := p.signingKey(ctx)
	return err
}

// PublicKey returns the hex PKIX encoding of the public key, creating the
// key pair on first use.
func (p *ECDSAProvider) PublicKey(ctx context.Context) (string, error) {
	key, err := p.signingKey(ctx)
	if err != nil {
		return "", err
	}
	return encodePublicKey(&key.PublicKey)
}

// Sign returns the hex ASN.1 ECDSA signature over the SHA-256 digest of
// payload, along with the public key.
func (p *ECDSAProvider) Sign(ctx context.Context, payload []byte) (capture.Signature, error) {
	key, err := p.signingKey(ctx)
	if err != nil {
		return capture.Signature{}, err
	}

	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return capture.Signature{}, fmt.Errorf("signing payload: %w", err)
	}

	pub, err := encodePublicKey(&key.PublicKey)
	if err != nil {
		return capture.Signature{}, err
	}
	return capture.Signature{
		Signature: hex.EncodeToString(sig),
		PublicKey: pub,
	}, nil
}

// Verify checks a hex signature over payload against a hex PKIX public key.
func Verify(payload []byte, signatureHex, publicKeyHex string) error {
	der, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return fmt.Errorf("decoding public key: %w", err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return fmt.Errorf("parsing public key: %w", err)
	}
	pub, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("public key is %T, not ECDSA", parsed)
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}

	digest := sha256.Sum256(payload)
	if !ecdsa.VerifyASN1(pub, digest[:], sig) {
		return ErrInvalidSignature
	}
	return nil
}

// signingKey loads the stored key pair, generating it when both halves are
// empty. The pair is created with one conditional store transaction, so
// providers over the same store (in this or another process) agree on a
// single pair. The mutex only guards the loaded key.
func (p *ECDSAProvider) signingKey(ctx context.Context) (*ecdsa.PrivateKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key != nil {
		return p.key, nil
	}

	key, found, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		if key, err = p.generate(ctx); err != nil {
			return nil, err
		}
	}
	p.key = key
	return p.key, nil
}

// load returns the stored private key and whether a pair exists.
func (p *ECDSAProvider) load(ctx context.Context) (*ecdsa.PrivateKey, bool, error) {
	pubHex, err := p.prefs.GetString(ctx, PublicKeyKey, "")
	if err != nil {
		return nil, false, err
	}
	privHex, err := p.prefs.GetString(ctx, PrivateKeyKey, "")
	if err != nil {
		return nil, false, err
	}

	switch {
	case pubHex == "" && privHex == "":
		return nil, false, nil
	case pubHex == "" || privHex == "":
		return nil, false, ErrIncompleteKeyPair
	}
	key, err := decodePrivateKey(privHex)
	if err != nil {
		return nil, false, err
	}
	return key, true, nil
}

// generate creates a pair and stores it unless another writer stored one
// first, in which case the stored pair is returned.
func (p *ECDSAProvider) generate(ctx context.Context) (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encoding private key: %w", err)
	}
	pub, err := encodePublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	stored, err := p.prefs.InitStrings(ctx, map[string]string{
		PrivateKeyKey: hex.EncodeToString(der),
		PublicKeyKey:  pub,
	})
	if err != nil {
		return nil, err
	}
	if stored {
		return key, nil
	}

	existing, found, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrIncompleteKeyPair
	}
	return existing, nil
}

func encodePublicKey(pub *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("encoding public key: %w", err)
	}
	return hex.EncodeToString(der), nil
}

func decodePrivateKey(privHex string) (*ecdsa.PrivateKey, error) {
	der, err := hex.DecodeString(privHex)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not ECDSA", parsed)
	}
	return key, nil
}
