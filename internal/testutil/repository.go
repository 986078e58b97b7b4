package testutil

import (
	"path/filepath"
	"testing"

	"capture-go/internal/capture"
	"capture-go/internal/contentstore"
	"capture-go/internal/database"
	"capture-go/internal/proof"
)

// TestRepository bundles a proof repository with the stores behind it.
type TestRepository struct {
	*proof.Repository
	Content *contentstore.FileSystemStore
	DB      *database.SQLiteDatabase
	Dir     string
}

// NewTestRepository creates a proof repository rooted in a temp directory,
// backed by a filesystem content store and an in-memory database.
func NewTestRepository(t *testing.T) *TestRepository {
	t.Helper()

	dir := t.TempDir()
	db := NewTestDatabase(t)

	content, err := contentstore.NewFileSystemStore(
		filepath.Join(dir, "content"),
		filepath.Join(dir, "tables"),
		"raw",
		contentstore.ImageThumbnailer{},
	)
	if err != nil {
		t.Fatalf("failed to create content store: %v", err)
	}

	repo, err := proof.NewRepository(filepath.Join(dir, "proofs"), content, db, db, capture.NewNopLogger())
	if err != nil {
		t.Fatalf("failed to create proof repository: %v", err)
	}

	return &TestRepository{Repository: repo, Content: content, DB: db, Dir: dir}
}
