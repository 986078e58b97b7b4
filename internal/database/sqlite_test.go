package database

import (
	"context"
	"testing"
	"time"

	"capture-go/internal/capture"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// newTestDB creates a new in-memory database with schema applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:", fixedClock{time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestSQLiteDatabase_Facts(t *testing.T) {
	ctx := context.Background()

	t.Run("returns empty list when proof has no facts", func(t *testing.T) {
		db := newTestDB(t)

		facts, err := db.FactsForProof(ctx, "missing")
		if err != nil {
			t.Fatalf("FactsForProof() error = %v", err)
		}
		if len(facts) != 0 {
			t.Errorf("FactsForProof() = %v, want empty", facts)
		}
	})

	t.Run("same provider and name replaces value", func(t *testing.T) {
		db := newTestDB(t)

		first := []capture.Fact{
			{ProofHash: "h", Provider: "Device", Name: "model", Value: "a"},
			{ProofHash: "h", Provider: "Device", Name: "os", Value: "linux"},
		}
		if err := db.AddFacts(ctx, first); err != nil {
			t.Fatalf("AddFacts() error = %v", err)
		}
		if err := db.AddFacts(ctx, []capture.Fact{{ProofHash: "h", Provider: "Device", Name: "model", Value: "b"}}); err != nil {
			t.Fatalf("AddFacts() error = %v", err)
		}

		facts, err := db.FactsForProof(ctx, "h")
		if err != nil {
			t.Fatalf("FactsForProof() error = %v", err)
		}
		if len(facts) != 2 {
			t.Fatalf("got %d facts, want 2", len(facts))
		}
		if facts[0].Name != "model" || facts[0].Value != "b" {
			t.Errorf("facts[0] = %+v, want model=b", facts[0])
		}
	})

	t.Run("delete removes only that proof", func(t *testing.T) {
		db := newTestDB(t)
		facts := []capture.Fact{
			{ProofHash: "a", Provider: "Device", Name: "model", Value: "x"},
			{ProofHash: "b", Provider: "Device", Name: "model", Value: "y"},
		}
		if err := db.AddFacts(ctx, facts); err != nil {
			t.Fatalf("AddFacts() error = %v", err)
		}

		if err := db.DeleteFactsForProof(ctx, "a"); err != nil {
			t.Fatalf("DeleteFactsForProof() error = %v", err)
		}

		if got, _ := db.FactsForProof(ctx, "a"); len(got) != 0 {
			t.Errorf("proof a still has %d facts", len(got))
		}
		if got, _ := db.FactsForProof(ctx, "b"); len(got) != 1 {
			t.Errorf("proof b has %d facts, want 1", len(got))
		}
	})
}

func TestSQLiteDatabase_Signatures(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	sig := capture.Signature{ProofHash: "h", Provider: "ecdsa-p256", Signature: "01", PublicKey: "aa"}
	if err := db.AddSignature(ctx, sig); err != nil {
		t.Fatalf("AddSignature() error = %v", err)
	}
	sig.Signature = "02"
	if err := db.AddSignature(ctx, sig); err != nil {
		t.Fatalf("AddSignature() error = %v", err)
	}
	other := capture.Signature{ProofHash: "h", Provider: "other", Signature: "03", PublicKey: "bb"}
	if err := db.AddSignature(ctx, other); err != nil {
		t.Fatalf("AddSignature() error = %v", err)
	}

	sigs, err := db.SignaturesForProof(ctx, "h")
	if err != nil {
		t.Fatalf("SignaturesForProof() error = %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("got %d signatures, want 2 (one per provider)", len(sigs))
	}
	if sigs[0].Signature != "02" {
		t.Errorf("signature = %s, want superseded value 02", sigs[0].Signature)
	}

	if err := db.DeleteSignaturesForProof(ctx, "h"); err != nil {
		t.Fatalf("DeleteSignaturesForProof() error = %v", err)
	}
	if sigs, _ := db.SignaturesForProof(ctx, "h"); len(sigs) != 0 {
		t.Errorf("got %d signatures after delete", len(sigs))
	}
}

func TestSQLiteDatabase_Preferences(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if _, ok, err := db.GetPreference(ctx, "ns", "key"); err != nil || ok {
		t.Fatalf("GetPreference() on empty store = ok %v, err %v", ok, err)
	}

	if err := db.SetPreference(ctx, "ns", "key", "one"); err != nil {
		t.Fatalf("SetPreference() error = %v", err)
	}
	if err := db.SetPreference(ctx, "ns", "key", "two"); err != nil {
		t.Fatalf("SetPreference() error = %v", err)
	}
	if err := db.SetPreference(ctx, "other", "key", "three"); err != nil {
		t.Fatalf("SetPreference() error = %v", err)
	}

	v, ok, err := db.GetPreference(ctx, "ns", "key")
	if err != nil || !ok || v != "two" {
		t.Errorf("GetPreference() = %q, %v, %v; want two", v, ok, err)
	}
	v, _, _ = db.GetPreference(ctx, "other", "key")
	if v != "three" {
		t.Errorf("namespaces are not isolated: got %q", v)
	}
}

func TestSQLiteDatabase_Operations(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	first, err := db.CreateOperation(ctx, "add", "photo.jpg")
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	second, err := db.CreateOperation(ctx, "rm", "abc")
	if err != nil {
		t.Fatalf("CreateOperation() error = %v", err)
	}
	if second.ID <= first.ID {
		t.Errorf("ids not increasing: %d then %d", first.ID, second.ID)
	}

	if err := db.FinishOperation(ctx, first.ID, "success"); err != nil {
		t.Fatalf("FinishOperation() error = %v", err)
	}

	ops, err := db.ListOperations(ctx, 10)
	if err != nil {
		t.Fatalf("ListOperations() error = %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("got %d operations, want 2", len(ops))
	}
	if ops[0].ID != second.ID {
		t.Errorf("newest first: got id %d, want %d", ops[0].ID, second.ID)
	}
	if ops[0].FinishedAt != nil || ops[0].Status != "running" {
		t.Errorf("unfinished op = %+v", ops[0])
	}
	if ops[1].Status != "success" || ops[1].FinishedAt == nil {
		t.Errorf("finished op = %+v", ops[1])
	}

	limited, _ := db.ListOperations(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("limit ignored: got %d", len(limited))
	}
}

func TestSQLiteDatabase_InitPreferences(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	ok, err := db.InitPreferences(ctx, "keys", map[string]string{"a": "1", "b": "2"})
	if err != nil || !ok {
		t.Fatalf("InitPreferences() on empty namespace = %v, %v; want true", ok, err)
	}

	ok, err = db.InitPreferences(ctx, "keys", map[string]string{"a": "x", "b": "y"})
	if err != nil || ok {
		t.Fatalf("InitPreferences() over existing keys = %v, %v; want false", ok, err)
	}
	if v, _, _ := db.GetPreference(ctx, "keys", "b"); v != "2" {
		t.Errorf("b = %q, want 2", v)
	}

	// One key already present: nothing is written.
	if err := db.SetPreference(ctx, "half", "b", "kept"); err != nil {
		t.Fatal(err)
	}
	ok, err = db.InitPreferences(ctx, "half", map[string]string{"a": "new", "b": "new"})
	if err != nil || ok {
		t.Fatalf("InitPreferences() with one key present = %v, %v; want false", ok, err)
	}
	if _, found, _ := db.GetPreference(ctx, "half", "a"); found {
		t.Error("partial write left key a behind")
	}
}
