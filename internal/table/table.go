// Package table provides small keyed tables persisted as JSON Lines files.
// Every mutation rewrites the whole file atomically.
package table

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// OnConflict decides what Insert does with a row whose key already exists.
type OnConflict int

const (
	// Abort fails the whole insert and writes nothing.
	Abort OnConflict = iota
	// Ignore keeps the existing row and skips the new one.
	Ignore
	// Replace overwrites the existing row.
	Replace
)

var (
	// ErrConflict is returned by Insert with Abort when a key already exists.
	ErrConflict = errors.New("table: key already exists")

	// ErrDropped is returned by every operation on a dropped table.
	ErrDropped = errors.New("table: dropped")
)

// Table is a set of rows of type T, unique by the key function.
// Safe for concurrent use.
type Table[T any] struct {
	path    string
	key     func(T) string
	mu      sync.Mutex
	dropped bool
}

// Open opens the table stored at dir/name.jsonl, creating an empty file if
// none exists.
func Open[T any](dir, name string, key func(T) string) (*Table[T], error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating table directory: %w", err)
	}

	path := filepath.Join(dir, name+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening table %s: %w", name, err)
	}
	f.Close()

	return &Table[T]{path: path, key: key}, nil
}

// Path returns the file backing the table.
func (t *Table[T]) Path() string {
	return t.path
}

// QueryAll returns every row in insertion order.
func (t *Table[T]) QueryAll() ([]T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dropped {
		return nil, ErrDropped
	}
	return t.load()
}

// Find returns the row with the given key.
func (t *Table[T]) Find(key string) (T, bool, error) {
	var zero T
	rows, err := t.QueryAll()
	if err != nil {
		return zero, false, err
	}
	for _, r := range rows {
		if t.key(r) == key {
			return r, true, nil
		}
	}
	return zero, false, nil
}

// Insert adds rows and returns the rows that were actually stored.
func (t *Table[T]) Insert(rows []T, onConflict OnConflict) ([]T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dropped {
		return nil, ErrDropped
	}

	existing, err := t.load()
	if err != nil {
		return nil, err
	}

	pos := make(map[string]int, len(existing))
	for i, r := range existing {
		pos[t.key(r)] = i
	}

	var stored []T
	for _, r := range rows {
		k := t.key(r)
		i, ok := pos[k]
		if !ok {
			pos[k] = len(existing)
			existing = append(existing, r)
			stored = append(stored, r)
			continue
		}

		switch onConflict {
		case Abort:
			return nil, fmt.Errorf("%w: %s", ErrConflict, k)
		case Ignore:
			continue
		case Replace:
			existing[i] = r
			stored = append(stored, r)
		}
	}

	if len(stored) == 0 {
		return nil, nil
	}
	if err := t.save(existing); err != nil {
		return nil, err
	}
	return stored, nil
}

// Delete removes the rows with the given keys. Unknown keys are ignored.
func (t *Table[T]) Delete(keys ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dropped {
		return ErrDropped
	}

	rows, err := t.load()
	if err != nil {
		return err
	}

	doomed := make(map[string]bool, len(keys))
	for _, k := range keys {
		doomed[k] = true
	}

	kept := rows[:0]
	for _, r := range rows {
		if !doomed[t.key(r)] {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(rows) {
		return nil
	}
	return t.save(kept)
}

// Clear removes every row.
func (t *Table[T]) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dropped {
		return ErrDropped
	}
	return t.save(nil)
}

// Drop deletes the backing file. The table cannot be used afterwards.
func (t *Table[T]) Drop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dropped {
		return nil
	}
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("dropping table: %w", err)
	}
	t.dropped = true
	return nil
}

// load reads all rows. Blank and malformed lines are skipped.
func (t *Table[T]) load() ([]T, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s: %w", t.path, err)
	}
	defer f.Close()

	var rows []T
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r T
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		rows = append(rows, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", t.path, err)
	}
	return rows, nil
}

// save atomically replaces the file with rows using temp file, fsync, rename.
func (t *Table[T]) save(rows []T) error {
	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	fail := func(format string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf(format, err)
	}

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fail("writing row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fail("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
