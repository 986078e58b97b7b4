package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"

	"capture-go/internal/capture"
)

// ErrProviderFailed is returned by the failing stub providers.
var ErrProviderFailed = errors.New("provider failed")

// StubFactProvider returns a fixed set of facts and counts its calls.
type StubFactProvider struct {
	ProviderName string
	Facts        map[string]string
	calls        atomic.Int32
}

var _ capture.FactProvider = (*StubFactProvider)(nil)

// NewStubFactProvider creates a provider that reports the given name/value
// pairs. Map order is not preserved.
func NewStubFactProvider(name string, facts map[string]string) *StubFactProvider {
	return &StubFactProvider{ProviderName: name, Facts: facts}
}

func (p *StubFactProvider) Name() string { return p.ProviderName }

func (p *StubFactProvider) Provide(ctx context.Context, _ *capture.Proof) ([]capture.Fact, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]capture.Fact, 0, len(p.Facts))
	for name, value := range p.Facts {
		out = append(out, capture.Fact{Name: name, Value: value})
	}
	return out, nil
}

// Calls returns how many times Provide was called.
func (p *StubFactProvider) Calls() int { return int(p.calls.Load()) }

// FailingFactProvider always fails.
type FailingFactProvider struct {
	ProviderName string
}

var _ capture.FactProvider = FailingFactProvider{}

func (p FailingFactProvider) Name() string { return p.ProviderName }

func (p FailingFactProvider) Provide(context.Context, *capture.Proof) ([]capture.Fact, error) {
	return nil, ErrProviderFailed
}

// StubSignatureProvider "signs" by hashing the payload together with its
// name. It records every payload it was asked to sign.
type StubSignatureProvider struct {
	ProviderName string

	mu       sync.Mutex
	payloads [][]byte
}

var _ capture.SignatureProvider = (*StubSignatureProvider)(nil)

func NewStubSignatureProvider(name string) *StubSignatureProvider {
	return &StubSignatureProvider{ProviderName: name}
}

func (p *StubSignatureProvider) Name() string { return p.ProviderName }

func (p *StubSignatureProvider) Sign(_ context.Context, payload []byte) (capture.Signature, error) {
	p.mu.Lock()
	p.payloads = append(p.payloads, append([]byte(nil), payload...))
	p.mu.Unlock()

	sum := sha256.Sum256(append([]byte(p.ProviderName+":"), payload...))
	return capture.Signature{
		Signature: hex.EncodeToString(sum[:]),
		PublicKey: hex.EncodeToString([]byte(p.ProviderName)),
	}, nil
}

// Payloads returns copies of all payloads signed so far.
func (p *StubSignatureProvider) Payloads() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.payloads...)
}

// FailingSignatureProvider always fails.
type FailingSignatureProvider struct {
	ProviderName string
}

var _ capture.SignatureProvider = FailingSignatureProvider{}

func (p FailingSignatureProvider) Name() string { return p.ProviderName }

func (p FailingSignatureProvider) Sign(context.Context, []byte) (capture.Signature, error) {
	return capture.Signature{}, ErrProviderFailed
}

// FakeAssetBackend serves a fixed asset list in pages. MaxPage, when set,
// caps each page below the requested limit.
type FakeAssetBackend struct {
	Assets  []capture.Asset
	Err     error
	MaxPage int

	mu    sync.Mutex
	pages int
}

var _ capture.AssetBackend = (*FakeAssetBackend)(nil)

func (b *FakeAssetBackend) ListNotOriginallyOwned(ctx context.Context, offset, limit int) (*capture.AssetPage, error) {
	b.mu.Lock()
	b.pages++
	b.mu.Unlock()

	if b.Err != nil {
		return nil, b.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page := &capture.AssetPage{Count: len(b.Assets), Results: []capture.Asset{}}
	if offset >= len(b.Assets) {
		return page, nil
	}
	if b.MaxPage > 0 && limit > b.MaxPage {
		limit = b.MaxPage
	}
	end := min(offset+limit, len(b.Assets))
	page.Results = append(page.Results, b.Assets[offset:end]...)
	return page, nil
}

// Pages returns how many pages were requested.
func (b *FakeAssetBackend) Pages() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pages
}
