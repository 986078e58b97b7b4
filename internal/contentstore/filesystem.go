package contentstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"capture-go/internal/capture"
	"capture-go/internal/table"
)

// DefaultThumbnailSize is the longest edge of generated thumbnails in pixels.
const DefaultThumbnailSize = 100

type extensionRow struct {
	ImageIndex string `json:"imageIndex"`
	Extension  string `json:"extension"`
}

type thumbnailRow struct {
	ImageIndex     string `json:"imageIndex"`
	ThumbnailIndex string `json:"thumbnailIndex"`
	MimeType       string `json:"mimeType"`
}

// FileSystemStore is a content-addressed store that keeps every blob as
// <root>/<index>.<extension>. Two mapping tables record the extension of
// each index and the cached thumbnail of each image:
//
//	<tables>/
//	  <name>_extension.jsonl
//	  <name>_thumbnail.jsonl
//
// A single mutex serializes mutations. Reads take no lock.
type FileSystemStore struct {
	root          string
	extensions    *table.Table[extensionRow]
	thumbnails    *table.Table[thumbnailRow]
	thumbnailer   Thumbnailer
	thumbnailSize int

	mu      sync.Mutex
	dropped atomic.Bool
}

var _ capture.ContentStore = (*FileSystemStore)(nil)

// NewFileSystemStore opens the store rooted at root, creating the directory
// and mapping tables when missing. The returned store is ready to use.
func NewFileSystemStore(root, tablesDir, name string, thumbnailer Thumbnailer) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}

	extensions, err := table.Open(tablesDir, name+"_extension", func(r extensionRow) string { return r.ImageIndex })
	if err != nil {
		return nil, fmt.Errorf("opening extension table: %w", err)
	}
	thumbnails, err := table.Open(tablesDir, name+"_thumbnail", func(r thumbnailRow) string { return r.ImageIndex })
	if err != nil {
		return nil, fmt.Errorf("opening thumbnail table: %w", err)
	}

	return &FileSystemStore{
		root:          root,
		extensions:    extensions,
		thumbnails:    thumbnails,
		thumbnailer:   thumbnailer,
		thumbnailSize: DefaultThumbnailSize,
	}, nil
}

// SetThumbnailSize overrides the longest thumbnail edge. Values below 1 are ignored.
func (s *FileSystemStore) SetThumbnailSize(px int) {
	if px > 0 {
		s.thumbnailSize = px
	}
}

// Root returns the directory holding the blobs.
func (s *FileSystemStore) Root() string {
	return s.root
}

func (s *FileSystemStore) Write(_ context.Context, data []byte, mimeType capture.MimeType, strategy capture.WriteStrategy) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dropped.Load() {
		return "", ErrDropped
	}
	return s.write(data, mimeType, strategy)
}

// write stores data. Caller holds s.mu.
func (s *FileSystemStore) write(data []byte, mimeType capture.MimeType, strategy capture.WriteStrategy) (string, error) {
	index := capture.ContentHash(data)

	row, mapped, err := s.extensions.Find(index)
	if err != nil {
		return "", fmt.Errorf("reading extension mapping: %w", err)
	}

	if mapped && strategy == capture.WriteIgnore {
		if _, err := os.Stat(s.blobPath(index, row.Extension)); err == nil {
			return index, nil
		}
	}

	ext := mimeType.Extension
	if mapped {
		ext = row.Extension
	}

	if err := writeFile(s.blobPath(index, ext), data); err != nil {
		return "", err
	}

	if !mapped {
		if _, err := s.extensions.Insert([]extensionRow{{ImageIndex: index, Extension: ext}}, table.Ignore); err != nil {
			return "", fmt.Errorf("recording extension: %w", err)
		}
	}
	return index, nil
}

func (s *FileSystemStore) Read(_ context.Context, index string) ([]byte, error) {
	if s.dropped.Load() {
		return nil, ErrDropped
	}
	return s.read(index)
}

func (s *FileSystemStore) read(index string) ([]byte, error) {
	row, ok, err := s.extensions.Find(index)
	if err != nil {
		return nil, fmt.Errorf("reading extension mapping: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("content %s: %w", index, capture.ErrNotFound)
	}

	data, err := os.ReadFile(s.blobPath(index, row.Extension))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("content %s: %w", index, capture.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	return data, nil
}

func (s *FileSystemStore) Exists(_ context.Context, index string) (bool, error) {
	if s.dropped.Load() {
		return false, ErrDropped
	}

	row, ok, err := s.extensions.Find(index)
	if err != nil {
		return false, fmt.Errorf("reading extension mapping: %w", err)
	}
	if !ok {
		return false, nil
	}

	if _, err := os.Stat(s.blobPath(index, row.Extension)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking content: %w", err)
	}
	return true, nil
}

func (s *FileSystemStore) ThumbnailURL(_ context.Context, index string, mimeType capture.MimeType) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dropped.Load() {
		return "", ErrDropped
	}

	row, ok, err := s.thumbnails.Find(index)
	if err != nil {
		return "", fmt.Errorf("reading thumbnail mapping: %w", err)
	}
	if ok {
		data, err := s.read(row.ThumbnailIndex)
		if err == nil {
			return dataURL(row.MimeType, data), nil
		}
		// The cached blob is gone; regenerate below.
		if err := s.thumbnails.Delete(index); err != nil {
			return "", fmt.Errorf("removing stale thumbnail mapping: %w", err)
		}
	}

	if s.thumbnailer == nil {
		return "", fmt.Errorf("%w: no thumbnailer configured", capture.ErrUnsupportedMedia)
	}

	original, err := s.read(index)
	if err != nil {
		return "", err
	}

	thumb, thumbType, err := s.thumbnailer.Thumbnail(original, mimeType, s.thumbnailSize)
	if err != nil {
		return "", fmt.Errorf("generating thumbnail: %w", err)
	}

	thumbIndex, err := s.write(thumb, thumbType, capture.WriteIgnore)
	if err != nil {
		return "", fmt.Errorf("storing thumbnail: %w", err)
	}

	mapping := thumbnailRow{ImageIndex: index, ThumbnailIndex: thumbIndex, MimeType: thumbType.Type}
	if _, err := s.thumbnails.Insert([]thumbnailRow{mapping}, table.Replace); err != nil {
		return "", fmt.Errorf("recording thumbnail: %w", err)
	}
	return dataURL(thumbType.Type, thumb), nil
}

func (s *FileSystemStore) URI(_ context.Context, index string) (string, error) {
	if s.dropped.Load() {
		return "", ErrDropped
	}

	row, ok, err := s.extensions.Find(index)
	if err != nil {
		return "", fmt.Errorf("reading extension mapping: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("content %s: %w", index, capture.ErrNotFound)
	}

	abs, err := filepath.Abs(s.blobPath(index, row.Extension))
	if err != nil {
		return "", fmt.Errorf("resolving content path: %w", err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String(), nil
}

func (s *FileSystemStore) Delete(_ context.Context, index string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dropped.Load() {
		return ErrDropped
	}
	return s.delete(index)
}

// delete removes a blob, its mapping and its thumbnail. Caller holds s.mu.
func (s *FileSystemStore) delete(index string) error {
	thumb, ok, err := s.thumbnails.Find(index)
	if err != nil {
		return fmt.Errorf("reading thumbnail mapping: %w", err)
	}
	if ok {
		if thumb.ThumbnailIndex != index {
			if err := s.delete(thumb.ThumbnailIndex); err != nil {
				return fmt.Errorf("deleting thumbnail: %w", err)
			}
		}
		if err := s.thumbnails.Delete(index); err != nil {
			return fmt.Errorf("removing thumbnail mapping: %w", err)
		}
	}

	row, ok, err := s.extensions.Find(index)
	if err != nil {
		return fmt.Errorf("reading extension mapping: %w", err)
	}
	if !ok {
		return nil
	}

	if err := os.Remove(s.blobPath(index, row.Extension)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	if err := s.extensions.Delete(index); err != nil {
		return fmt.Errorf("removing extension mapping: %w", err)
	}
	return nil
}

func (s *FileSystemStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dropped.Load() {
		return ErrDropped
	}
	return s.clear()
}

func (s *FileSystemStore) clear() error {
	entries, err := os.ReadDir(s.root)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("listing content: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return fmt.Errorf("failed to delete content: %w", err)
		}
	}

	if err := s.extensions.Clear(); err != nil {
		return fmt.Errorf("clearing extension table: %w", err)
	}
	if err := s.thumbnails.Clear(); err != nil {
		return fmt.Errorf("clearing thumbnail table: %w", err)
	}
	return nil
}

func (s *FileSystemStore) Drop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dropped.Load() {
		return nil
	}
	if err := s.clear(); err != nil {
		return err
	}
	if err := s.extensions.Drop(); err != nil {
		return err
	}
	if err := s.thumbnails.Drop(); err != nil {
		return err
	}
	if err := os.Remove(s.root); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing content directory: %w", err)
	}
	s.dropped.Store(true)
	return nil
}

func (s *FileSystemStore) blobPath(index, ext string) string {
	if ext == "" {
		return filepath.Join(s.root, index)
	}
	return filepath.Join(s.root, index+"."+ext)
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// writeFile writes data to destPath using atomic write (temp file + rename).
func writeFile(destPath string, data []byte) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
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

	written, err := tmpFile.Write(data)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != len(data) {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", len(data), written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
