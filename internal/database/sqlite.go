package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"capture-go/internal/capture"
	"capture-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase stores facts, signatures, preferences and the operation
// log in SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	path  string
	clock capture.Clock
}

var (
	_ capture.FactStore       = (*SQLiteDatabase)(nil)
	_ capture.SignatureStore  = (*SQLiteDatabase)(nil)
	_ capture.PreferenceStore = (*SQLiteDatabase)(nil)
	_ capture.OperationStore  = (*SQLiteDatabase)(nil)
)

// NewSQLiteDatabase opens the database at path (or ":memory:").
// The schema is not applied; call MigrateUp or CheckMigrations.
// A nil clock uses the real time.
func NewSQLiteDatabase(path string, clock capture.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteDatabaseFromDB(db, path, clock), nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection pool.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB, path string, clock capture.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = capture.RealClock{}
	}
	return &SQLiteDatabase{db: db, path: path, clock: clock}
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. The pool holds a single connection, which serializes access and
// keeps ":memory:" databases shared across calls.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// MigrateUp applies all pending schema migrations.
func (s *SQLiteDatabase) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations returns an error unless the schema is at the latest version.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Fact operations

func (s *SQLiteDatabase) AddFacts(ctx context.Context, facts []capture.Fact) error {
	if len(facts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO facts (proof_hash, provider, name, value, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (proof_hash, provider, name) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at`)
	if err != nil {
		return fmt.Errorf("preparing fact insert: %w", err)
	}
	defer stmt.Close()

	now := s.clock.Now().UTC()
	for _, f := range facts {
		if _, err := stmt.ExecContext(ctx, f.ProofHash, f.Provider, f.Name, f.Value, now); err != nil {
			return fmt.Errorf("inserting fact %s/%s: %w", f.Provider, f.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FactsForProof(ctx context.Context, proofHash string) ([]capture.Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT proof_hash, provider, name, value
		FROM facts
		WHERE proof_hash = ?
		ORDER BY provider, name`, proofHash)
	if err != nil {
		return nil, fmt.Errorf("finding facts for proof: %w", err)
	}
	defer rows.Close()

	facts := []capture.Fact{}
	for rows.Next() {
		var f capture.Fact
		if err := rows.Scan(&f.ProofHash, &f.Provider, &f.Name, &f.Value); err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading facts: %w", err)
	}
	return facts, nil
}

func (s *SQLiteDatabase) DeleteFactsForProof(ctx context.Context, proofHash string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM facts WHERE proof_hash = ?", proofHash); err != nil {
		return fmt.Errorf("deleting facts for proof: %w", err)
	}
	return nil
}

// Signature operations

func (s *SQLiteDatabase) AddSignature(ctx context.Context, sig capture.Signature) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signatures (proof_hash, provider, signature, public_key, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (proof_hash, provider) DO UPDATE SET
			signature = excluded.signature,
			public_key = excluded.public_key,
			created_at = excluded.created_at`,
		sig.ProofHash, sig.Provider, sig.Signature, sig.PublicKey, s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("inserting signature: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) SignaturesForProof(ctx context.Context, proofHash string) ([]capture.Signature, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT proof_hash, provider, signature, public_key
		FROM signatures
		WHERE proof_hash = ?
		ORDER BY provider`, proofHash)
	if err != nil {
		return nil, fmt.Errorf("finding signatures for proof: %w", err)
	}
	defer rows.Close()

	sigs := []capture.Signature{}
	for rows.Next() {
		var sig capture.Signature
		if err := rows.Scan(&sig.ProofHash, &sig.Provider, &sig.Signature, &sig.PublicKey); err != nil {
			return nil, fmt.Errorf("scanning signature: %w", err)
		}
		sigs = append(sigs, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading signatures: %w", err)
	}
	return sigs, nil
}

func (s *SQLiteDatabase) DeleteSignaturesForProof(ctx context.Context, proofHash string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM signatures WHERE proof_hash = ?", proofHash); err != nil {
		return fmt.Errorf("deleting signatures for proof: %w", err)
	}
	return nil
}

// Preference operations

func (s *SQLiteDatabase) GetPreference(ctx context.Context, namespace, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM preferences WHERE namespace = ? AND key = ?", namespace, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil // Not set
		}
		return "", false, fmt.Errorf("finding preference: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteDatabase) SetPreference(ctx context.Context, namespace, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		namespace, key, value, s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("storing preference: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) InitPreferences(ctx context.Context, namespace string, values map[string]string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := s.clock.Now().UTC()
	for _, key := range keys {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO preferences (namespace, key, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (namespace, key) DO NOTHING`,
			namespace, key, values[key], now)
		if err != nil {
			return false, fmt.Errorf("storing preference: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("storing preference: %w", err)
		}
		if n == 0 {
			return false, nil
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing preferences: %w", err)
	}
	return true, nil
}

// Operation tracking

func (s *SQLiteDatabase) CreateOperation(ctx context.Context, operation, parameters string) (*capture.Operation, error) {
	started := s.clock.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO operations (operation, parameters, started_at) VALUES (?, ?, ?)",
		operation, parameters, started)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}
	return &capture.Operation{
		ID:         id,
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
		StartedAt:  started,
	}, nil
}

func (s *SQLiteDatabase) FinishOperation(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE operations SET status = ?, finished_at = ? WHERE id = ?",
		status, s.clock.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(ctx context.Context, limit int) ([]*capture.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation, parameters, status, started_at, finished_at
		FROM operations
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*capture.Operation
	for rows.Next() {
		op := &capture.Operation{}
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status, &op.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading operations: %w", err)
	}
	return ops, nil
}
