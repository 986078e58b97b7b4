package capture

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// LocationFactName is the fact name under which providers report the
// capture position as "(latitude, longitude)".
const LocationFactName = "location"

// CollectorOptions configures a Collector. Providers are fixed at
// construction; a provider whose name repeats an earlier one is dropped.
type CollectorOptions struct {
	FactProviders      []FactProvider
	SignatureProviders []SignatureProvider

	// Tasks, when set, wraps every fire-and-forget pipeline in a background
	// task. Leave nil on platforms without suspension risk.
	Tasks BackgroundTasks

	// Gate, when set, is held shared for the duration of every pipeline.
	Gate *Gate

	// Recorder identifies this application in signed messages.
	Recorder string

	Logger Logger
	Clock  Clock
}

// Collector runs the capture pipeline: store raw content, create the proof,
// collect facts, then sign the proof together with its facts.
type Collector struct {
	proofs     ProofRepository
	facts      FactStore
	signatures SignatureStore

	factProviders      []FactProvider
	signatureProviders []SignatureProvider

	tasks    BackgroundTasks
	gate     *Gate
	recorder string
	logger   Logger
	clock    Clock

	inflight sync.WaitGroup
}

// NewCollector creates a Collector over the given stores.
func NewCollector(proofs ProofRepository, facts FactStore, signatures SignatureStore, opts CollectorOptions) *Collector {
	c := &Collector{
		proofs:     proofs,
		facts:      facts,
		signatures: signatures,
		tasks:      opts.Tasks,
		gate:       opts.Gate,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		clock:      opts.Clock,
	}
	if c.logger == nil {
		c.logger = NewNopLogger()
	}
	if c.clock == nil {
		c.clock = RealClock{}
	}

	seen := make(map[string]bool)
	for _, p := range opts.FactProviders {
		if seen["fact/"+p.Name()] {
			continue
		}
		seen["fact/"+p.Name()] = true
		c.factProviders = append(c.factProviders, p)
	}
	for _, p := range opts.SignatureProviders {
		if seen["sig/"+p.Name()] {
			continue
		}
		seen["sig/"+p.Name()] = true
		c.signatureProviders = append(c.signatureProviders, p)
	}
	return c
}

// StoreAndCollect runs the pipeline without waiting for it. Failures are
// logged. The pipeline is detached from ctx cancellation; use Wait to drain
// in-flight pipelines before exiting.
func (c *Collector) StoreAndCollect(ctx context.Context, raw []byte, mimeType MimeType) {
	ctx = context.WithoutCancel(ctx)
	run := func() {
		proof, err := c.Collect(ctx, raw, mimeType)
		if err != nil {
			c.logger.Error("capture collection failed", "mime_type", mimeType.Type, "error", err)
			return
		}
		c.logger.Info("capture collected", "hash", proof.Hash)
	}

	c.inflight.Add(1)
	if c.tasks == nil {
		go func() {
			defer c.inflight.Done()
			run()
		}()
		return
	}

	c.tasks.BeforeExit(func(taskID string) {
		defer c.inflight.Done()
		run()
		c.tasks.Finish(taskID)
	})
}

// Wait blocks until all pipelines started by StoreAndCollect have finished
// or ctx is done.
func (c *Collector) Wait(ctx context.Context) error {
	return waitGroup(ctx, &c.inflight)
}

// Collect runs the whole pipeline for one capture and returns the stored proof.
// Steps run strictly in order; facts exist before signing starts.
func (c *Collector) Collect(ctx context.Context, raw []byte, mimeType MimeType) (*Proof, error) {
	var proof *Proof
	run := func() error {
		var err error
		proof, err = c.collect(ctx, raw, mimeType)
		return err
	}

	if c.gate == nil {
		if err := run(); err != nil {
			return nil, err
		}
		return proof, nil
	}
	if err := c.gate.Shared(run); err != nil {
		return nil, err
	}
	return proof, nil
}

func (c *Collector) collect(ctx context.Context, raw []byte, mimeType MimeType) (*Proof, error) {
	hash, err := c.proofs.AddRawFile(ctx, raw, mimeType)
	if err != nil {
		return nil, fmt.Errorf("storing raw content: %w", err)
	}

	proof := &Proof{
		Hash:              hash,
		MimeType:          mimeType,
		Timestamp:         c.clock.Now().UnixMilli(),
		CollectionPending: true,
	}
	if _, err := c.proofs.Add(ctx, proof); err != nil {
		return nil, fmt.Errorf("creating proof: %w", err)
	}
	c.logger.Debug("proof created", "hash", hash)

	facts, err := c.CollectFacts(ctx, proof)
	if err != nil {
		return nil, err
	}

	if _, err := c.Sign(ctx, proof); err != nil {
		return nil, err
	}

	proof.CollectionPending = false
	if geo, ok := geolocationFromFacts(facts); ok {
		proof.Geolocation = geo
	}
	if _, err := c.proofs.Update(ctx, proof); err != nil {
		return nil, fmt.Errorf("finishing proof: %w", err)
	}

	return proof, nil
}

// CollectFacts runs every fact provider concurrently against proof and
// stores the results. One failing provider fails the whole phase.
// With no providers the result is empty.
func (c *Collector) CollectFacts(ctx context.Context, proof *Proof) ([]Fact, error) {
	results := make([][]Fact, len(c.factProviders))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range c.factProviders {
		g.Go(func() error {
			facts, err := c.collectAndStore(gctx, p, proof)
			if err != nil {
				return fmt.Errorf("provider %s: %w", p.Name(), err)
			}
			results[i] = facts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collecting facts: %w", err)
	}

	all := []Fact{}
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// collectAndStore asks one provider for facts, stamps them with the proof
// hash and provider name, and persists them.
func (c *Collector) collectAndStore(ctx context.Context, p FactProvider, proof *Proof) ([]Fact, error) {
	facts, err := p.Provide(ctx, proof)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, nil
	}

	for i := range facts {
		facts[i].ProofHash = proof.Hash
		facts[i].Provider = p.Name()
	}
	if err := c.facts.AddFacts(ctx, facts); err != nil {
		return nil, fmt.Errorf("storing facts: %w", err)
	}
	return facts, nil
}

// Payload returns the canonical bytes signed for proof: its SignedMessage
// built from the facts currently stored for it.
func (c *Collector) Payload(ctx context.Context, proof *Proof) ([]byte, error) {
	facts, err := c.facts.FactsForProof(ctx, proof.Hash)
	if err != nil {
		return nil, fmt.Errorf("loading facts: %w", err)
	}
	return Canonicalize(NewSignedMessage(c.recorder, proof, facts))
}

// Sign runs every signature provider concurrently over the proof's
// canonical payload and stores one signature per provider.
func (c *Collector) Sign(ctx context.Context, proof *Proof) ([]Signature, error) {
	payload, err := c.Payload(ctx, proof)
	if err != nil {
		return nil, fmt.Errorf("building signed payload: %w", err)
	}

	results := make([]Signature, len(c.signatureProviders))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range c.signatureProviders {
		g.Go(func() error {
			sig, err := p.Sign(gctx, payload)
			if err != nil {
				return fmt.Errorf("provider %s: %w", p.Name(), err)
			}
			sig.ProofHash = proof.Hash
			sig.Provider = p.Name()
			if err := c.signatures.AddSignature(gctx, sig); err != nil {
				return fmt.Errorf("storing signature from %s: %w", p.Name(), err)
			}
			results[i] = sig
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("signing proof: %w", err)
	}
	return results, nil
}

// geolocationFromFacts extracts the first parseable location fact.
func geolocationFromFacts(facts []Fact) (*Geolocation, bool) {
	for _, f := range facts {
		if f.Name != LocationFactName {
			continue
		}
		var g Geolocation
		if _, err := fmt.Sscanf(f.Value, "(%g, %g)", &g.Latitude, &g.Longitude); err == nil {
			return &g, true
		}
	}
	return nil, false
}
