package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-directory ignore file read during import.
const IgnoreFileName = ".captureignore"

// defaultIgnorePatterns are always applied regardless of config or ignore file.
var defaultIgnorePatterns = []string{IgnoreFileName, ".*.tmp"}

type ignorePattern struct {
	pattern   string
	matchPath bool // match against the relative path instead of the basename
	dirOnly   bool // "name/" matches any directory component
	negate    bool // "!pattern" re-includes a path excluded earlier
}

// IgnoreMatcher checks file paths against a set of ignore patterns.
// Patterns without '/' match the basename; patterns with '/' match the full
// relative path; a trailing '/' matches a directory anywhere in the path.
// A leading '!' re-includes paths matched by earlier patterns; the last
// matching pattern wins.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		p := ignorePattern{}
		if strings.HasPrefix(raw, "!") {
			p.negate = true
			raw = raw[1:]
		}
		if strings.HasSuffix(raw, "/") {
			p.dirOnly = true
			raw = strings.TrimSuffix(raw, "/")
		}
		p.pattern = raw
		p.matchPath = !p.dirOnly && strings.Contains(raw, "/")
		if raw != "" {
			patterns = append(patterns, p)
		}
	}
	return &IgnoreMatcher{patterns: patterns}
}

// With returns a matcher that applies m's patterns followed by extra.
func (m *IgnoreMatcher) With(extra []string) *IgnoreMatcher {
	more := NewIgnoreMatcher(extra)
	return &IgnoreMatcher{patterns: append(append([]ignorePattern{}, m.patterns...), more.patterns...)}
}

// Match reports whether the given relative path should be ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if relativePath == "" {
		return false
	}

	normalized := filepath.ToSlash(relativePath)
	parts := strings.Split(normalized, "/")
	basename := parts[len(parts)-1]

	ignored := false
	for _, p := range m.patterns {
		if p.matches(normalized, basename, parts[:len(parts)-1]) {
			ignored = !p.negate
		}
	}
	return ignored
}

// MatchDir reports whether the directory at relativePath should be skipped
// entirely.
func (m *IgnoreMatcher) MatchDir(relativePath string) bool {
	if relativePath == "" {
		return false
	}

	normalized := filepath.ToSlash(relativePath)
	parts := strings.Split(normalized, "/")

	ignored := false
	for _, p := range m.patterns {
		if p.matches(normalized, parts[len(parts)-1], parts) {
			ignored = !p.negate
		}
	}
	return ignored
}

func (p ignorePattern) matches(path, basename string, dirs []string) bool {
	if p.dirOnly {
		for _, d := range dirs {
			if ok, err := filepath.Match(p.pattern, d); err == nil && ok {
				return true
			}
		}
		return false
	}

	target := basename
	if p.matchPath {
		target = path
	}
	ok, err := filepath.Match(p.pattern, target)
	return err == nil && ok
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern lines.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
