// Package fs discovers capture media on the local filesystem.
package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gabriel-vasile/mimetype"

	"capture-go/internal/capture"
)

// MediaFile is a regular file that can be captured.
type MediaFile struct {
	Path     string
	Size     int64
	MimeType capture.MimeType
}

// Importer finds media files to capture. Files whose detected type is not
// an image or video are skipped.
type Importer struct {
	ignore *IgnoreMatcher
}

// NewImporter creates an Importer that always applies the given ignore
// patterns in addition to the defaults.
func NewImporter(ignorePatterns []string) *Importer {
	return &Importer{ignore: NewIgnoreMatcher(defaultIgnorePatterns).With(ignorePatterns)}
}

// Resolve validates rawPath and returns its absolute form. Only regular
// files and directories are accepted.
func (im *Importer) Resolve(rawPath string) (string, os.FileInfo, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return "", nil, fmt.Errorf("stat path: %w", err)
	}

	mode := info.Mode()
	switch {
	case mode&os.ModeSymlink != 0:
		return "", nil, fmt.Errorf("symlinks not supported: %s", absPath)
	case mode&os.ModeDevice != 0:
		return "", nil, fmt.Errorf("device files not supported: %s", absPath)
	case mode&os.ModeNamedPipe != 0:
		return "", nil, fmt.Errorf("named pipes not supported: %s", absPath)
	case mode&os.ModeSocket != 0:
		return "", nil, fmt.Errorf("sockets not supported: %s", absPath)
	}
	return absPath, info, nil
}

// Detect inspects a single file. mime, when non-empty, overrides detection.
func (im *Importer) Detect(path, mime string) (*MediaFile, error) {
	absPath, info, err := im.Resolve(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory: %s", absPath)
	}
	return detect(absPath, info.Size(), mime)
}

// FindMedia returns the capturable files under dir, sorted by path.
// Ignore patterns from dir's ignore file are applied on top of the
// importer's own.
func (im *Importer) FindMedia(dir string, recursive bool) ([]*MediaFile, error) {
	root, info, err := im.Resolve(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root)
	}

	local, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	matcher := im.ignore.With(local)

	var files []*MediaFile
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive || matcher.MatchDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.Match(rel) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		mf, err := detect(p, fi.Size(), "")
		if err != nil {
			return nil
		}
		files = append(files, mf)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Read returns the bytes of a media file.
func (im *Importer) Read(f *MediaFile) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Path, err)
	}
	return data, nil
}

func detect(path string, size int64, override string) (*MediaFile, error) {
	var mt capture.MimeType
	if override != "" {
		parsed, err := capture.ParseMimeType(override)
		if err != nil {
			return nil, err
		}
		mt = parsed
	} else {
		m, err := mimetype.DetectFile(path)
		if err != nil {
			return nil, fmt.Errorf("detecting type of %s: %w", path, err)
		}
		parsed, err := capture.ParseMimeType(m.String())
		if err != nil {
			return nil, err
		}
		mt = parsed
	}

	if !mt.IsImage() && !mt.IsVideo() {
		return nil, fmt.Errorf("%w: %s is %s", capture.ErrUnsupportedMedia, path, mt.Type)
	}
	return &MediaFile{Path: path, Size: size, MimeType: mt}, nil
}
