// Package proof stores Proof records as one JSON file per proof.
package proof

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"capture-go/internal/capture"
)

// entry is one proof file as last read from disk.
type entry struct {
	fileName string
	version  int
	proof    *capture.Proof
}

// Repository is a ProofRepository over a directory of proof files:
//
//	<dir>/
//	  <hash>.json
//
// Every read re-reads the directory, so proofs written or removed by
// another repository over the same directory are seen. Mutations are
// serialized by the repository's mutex.
type Repository struct {
	dir        string
	content    capture.ContentStore
	facts      capture.FactStore
	signatures capture.SignatureStore
	logger     capture.Logger

	mu sync.Mutex
}

var _ capture.ProofRepository = (*Repository)(nil)

// NewRepository opens the repository in dir, creating it when missing.
// Raw content lives in content; facts and signatures are removed together
// with their proof.
func NewRepository(dir string, content capture.ContentStore, facts capture.FactStore, signatures capture.SignatureStore, logger capture.Logger) (*Repository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create proof directory: %w", err)
	}
	if logger == nil {
		logger = capture.NewNopLogger()
	}
	return &Repository{
		dir:        dir,
		content:    content,
		facts:      facts,
		signatures: signatures,
		logger:     logger,
	}, nil
}

func (r *Repository) GetAll(ctx context.Context) ([]*capture.Proof, error) {
	entries, err := r.refresh(ctx)
	if err != nil {
		return nil, err
	}

	proofs := make([]*capture.Proof, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.proof.Hash] {
			continue
		}
		seen[e.proof.Hash] = true
		proofs = append(proofs, e.proof.Clone())
	}
	return proofs, nil
}

// GetByHash re-reads the directory and returns the proof with hash, or nil.
func (r *Repository) GetByHash(ctx context.Context, hash string) (*capture.Proof, error) {
	entries, err := r.refresh(ctx)
	if err != nil {
		return nil, err
	}

	hash = NormalizeHash(hash)
	for _, e := range entries {
		if e.proof.Hash == hash {
			return e.proof.Clone(), nil
		}
	}
	return nil, nil
}

func (r *Repository) Add(ctx context.Context, proofs ...*capture.Proof) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	uris := make([]string, 0, len(proofs))
	for _, p := range proofs {
		path, err := r.write(p)
		if err != nil {
			return nil, err
		}
		uris = append(uris, fileURI(path))
	}

	if _, err := r.refresh(ctx); err != nil {
		return nil, err
	}
	return uris, nil
}

func (r *Repository) Update(ctx context.Context, p *capture.Proof) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.refresh(ctx)
	if err != nil {
		return 0, err
	}

	hash := NormalizeHash(p.Hash)
	canonical := canonicalName(hash)

	matched := 0
	for _, e := range entries {
		if e.proof.Hash != hash {
			continue
		}
		matched++
		if e.version == SchemaLegacy {
			r.logger.Info("upgrading legacy proof file", "file", e.fileName, "hash", hash)
		}
		if e.fileName != canonical {
			if err := os.Remove(filepath.Join(r.dir, e.fileName)); err != nil && !os.IsNotExist(err) {
				return 0, fmt.Errorf("removing superseded proof file: %w", err)
			}
		}
	}
	if matched == 0 {
		return 0, nil
	}

	if _, err := r.write(p); err != nil {
		return 0, err
	}
	if _, err := r.refresh(ctx); err != nil {
		return 0, err
	}
	return matched, nil
}

func (r *Repository) Remove(ctx context.Context, proofs ...*capture.Proof) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.refresh(ctx)
	if err != nil {
		return err
	}

	for _, p := range proofs {
		hash := NormalizeHash(p.Hash)
		for _, e := range entries {
			if e.proof.Hash != hash {
				continue
			}
			if err := os.Remove(filepath.Join(r.dir, e.fileName)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing proof file: %w", err)
			}
		}

		if err := r.content.Delete(ctx, hash); err != nil {
			return fmt.Errorf("removing raw content of %s: %w", hash, err)
		}
		if r.facts != nil {
			if err := r.facts.DeleteFactsForProof(ctx, hash); err != nil {
				return fmt.Errorf("removing facts of %s: %w", hash, err)
			}
		}
		if r.signatures != nil {
			if err := r.signatures.DeleteSignaturesForProof(ctx, hash); err != nil {
				return fmt.Errorf("removing signatures of %s: %w", hash, err)
			}
		}
		r.logger.Debug("proof removed", "hash", hash)
	}

	_, err = r.refresh(ctx)
	return err
}

func (r *Repository) RawFile(ctx context.Context, hash string) ([]byte, error) {
	return r.content.Read(ctx, NormalizeHash(hash))
}

func (r *Repository) AddRawFile(ctx context.Context, data []byte, mimeType capture.MimeType) (string, error) {
	return r.content.Write(ctx, data, mimeType, capture.WriteIgnore)
}

func (r *Repository) RemoveRawFile(ctx context.Context, hash string) error {
	return r.content.Delete(ctx, NormalizeHash(hash))
}

// RawFileURI returns the file URI of the raw content of a proof.
func (r *Repository) RawFileURI(ctx context.Context, hash string) (string, error) {
	return r.content.URI(ctx, NormalizeHash(hash))
}

// Thumbnail returns a data URL of the cached thumbnail of a proof.
func (r *Repository) Thumbnail(ctx context.Context, p *capture.Proof) (string, error) {
	return r.content.ThumbnailURL(ctx, NormalizeHash(p.Hash), p.MimeType)
}

// refresh re-reads every proof file. Unreadable files are logged and skipped.
func (r *Repository) refresh(_ context.Context) ([]entry, error) {
	dirEntries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("listing proofs: %w", err)
	}

	var entries []entry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(r.dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading proof %s: %w", name, err)
		}

		p, version, err := Normalize(data)
		if err != nil {
			r.logger.Warn("skipping unreadable proof file", "file", name, "error", err)
			continue
		}
		entries = append(entries, entry{fileName: name, version: version, proof: p})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].proof.Timestamp != entries[j].proof.Timestamp {
			return entries[i].proof.Timestamp < entries[j].proof.Timestamp
		}
		return entries[i].fileName < entries[j].fileName
	})

	return entries, nil
}

// write stores p in canonical form under its hash. Caller holds r.mu.
func (r *Repository) write(p *capture.Proof) (string, error) {
	c := p.Clone()
	c.Hash = NormalizeHash(c.Hash)
	if c.Hash == "" {
		return "", fmt.Errorf("proof has no hash")
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding proof: %w", err)
	}

	path := filepath.Join(r.dir, canonicalName(c.Hash))
	if err := writeFile(path, data); err != nil {
		return "", fmt.Errorf("writing proof %s: %w", c.Hash, err)
	}
	return path, nil
}

func canonicalName(hash string) string {
	return hash + ".json"
}

func fileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}

// writeFile writes data to destPath using atomic write (temp file + rename).
func writeFile(destPath string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
