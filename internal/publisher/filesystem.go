package publisher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"capture-go/internal/capture"
)

// FileSystemPublisher writes bundles into a directory tree:
//
//	<root>/
//	  <prefix>/<hash>/
//	    raw.<ext>      (content, identical for every publish of the hash)
//	    bundle.json    (proof, facts and signatures)
type FileSystemPublisher struct {
	root   string
	prefix string
}

var _ capture.Publisher = (*FileSystemPublisher)(nil)

// NewFileSystemPublisher creates a publisher rooted at root.
func NewFileSystemPublisher(root, prefix string) (*FileSystemPublisher, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create publish directory: %w", err)
	}
	return &FileSystemPublisher{root: root, prefix: prefix}, nil
}

func (p *FileSystemPublisher) Name() string {
	return "filesystem"
}

// Publish stores the bundle. Raw content that is already present is kept.
func (p *FileSystemPublisher) Publish(ctx context.Context, b *capture.Bundle) (string, error) {
	if err := validate(b); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, rawKey, metaKey := objectKeys(p.prefix, b)
	if err := os.MkdirAll(filepath.Join(p.root, filepath.FromSlash(id)), 0755); err != nil {
		return "", fmt.Errorf("failed to create bundle directory: %w", err)
	}

	rawPath := filepath.Join(p.root, filepath.FromSlash(rawKey))
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := writeFile(rawPath, bytes.NewReader(b.Raw), int64(len(b.Raw))); err != nil {
			return "", err
		}
	}

	meta, err := encodeMetadata(b)
	if err != nil {
		return "", err
	}
	if err := writeFile(filepath.Join(p.root, filepath.FromSlash(metaKey)), bytes.NewReader(meta), int64(len(meta))); err != nil {
		return "", err
	}
	return id, nil
}

// ValidateSetup verifies that the publish root is an accessible directory.
func (p *FileSystemPublisher) ValidateSetup() error {
	info, err := os.Stat(p.root)
	if err != nil {
		return fmt.Errorf("publish root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("publish root is not a directory: %s", p.root)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}
