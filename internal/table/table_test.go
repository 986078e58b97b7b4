package table_test

import (
	"errors"
	"os"
	"testing"

	"capture-go/internal/table"
)

type row struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func rowKey(r row) string { return r.Key }

func openTable(t *testing.T) *table.Table[row] {
	t.Helper()
	tbl, err := table.Open(t.TempDir(), "rows", rowKey)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return tbl
}

func TestOpen_CreatesEmptyFile(t *testing.T) {
	tbl := openTable(t)

	info, err := os.Stat(tbl.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("size = %d, want 0", info.Size())
	}

	rows, err := tbl.QueryAll()
	if err != nil {
		t.Fatalf("QueryAll() error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("QueryAll() = %v, want empty", rows)
	}
}

func TestInsert_OnConflict(t *testing.T) {
	tests := []struct {
		name       string
		onConflict table.OnConflict
		wantErr    error
		wantValue  string
		wantStored int
	}{
		{name: "abort", onConflict: table.Abort, wantErr: table.ErrConflict, wantValue: "first"},
		{name: "ignore", onConflict: table.Ignore, wantValue: "first", wantStored: 1},
		{name: "replace", onConflict: table.Replace, wantValue: "second", wantStored: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := openTable(t)
			if _, err := tbl.Insert([]row{{Key: "a", Value: "first"}}, table.Abort); err != nil {
				t.Fatalf("Insert() error = %v", err)
			}

			stored, err := tbl.Insert([]row{{Key: "a", Value: "second"}, {Key: "b", Value: "other"}}, tt.onConflict)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Insert() error = %v, want %v", err, tt.wantErr)
			}
			if len(stored) != tt.wantStored {
				t.Errorf("stored %d rows, want %d", len(stored), tt.wantStored)
			}

			got, ok, err := tbl.Find("a")
			if err != nil || !ok {
				t.Fatalf("Find() = %v, %v, %v", got, ok, err)
			}
			if got.Value != tt.wantValue {
				t.Errorf("value = %q, want %q", got.Value, tt.wantValue)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	tbl := openTable(t)
	if _, err := tbl.Insert([]row{{Key: "a"}, {Key: "b"}, {Key: "c"}}, table.Abort); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if err := tbl.Delete("b", "missing"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	rows, err := tbl.QueryAll()
	if err != nil {
		t.Fatalf("QueryAll() error = %v", err)
	}
	if len(rows) != 2 || rows[0].Key != "a" || rows[1].Key != "c" {
		t.Errorf("QueryAll() = %v, want [a c]", rows)
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	tbl, err := table.Open(dir, "rows", rowKey)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := tbl.Insert([]row{{Key: "a", Value: "v"}}, table.Abort); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	reopened, err := table.Open(dir, "rows", rowKey)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, ok, err := reopened.Find("a")
	if err != nil || !ok || got.Value != "v" {
		t.Errorf("Find() = %v, %v, %v", got, ok, err)
	}
}

func TestSkipsMalformedLines(t *testing.T) {
	tbl := openTable(t)
	data := "{\"key\":\"a\",\"value\":\"1\"}\nnot json\n\n{\"key\":\"b\",\"value\":\"2\"}\n"
	if err := os.WriteFile(tbl.Path(), []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	rows, err := tbl.QueryAll()
	if err != nil {
		t.Fatalf("QueryAll() error = %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows, want 2", len(rows))
	}
}

func TestClearAndDrop(t *testing.T) {
	tbl := openTable(t)
	if _, err := tbl.Insert([]row{{Key: "a"}}, table.Abort); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if err := tbl.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	rows, _ := tbl.QueryAll()
	if len(rows) != 0 {
		t.Errorf("after Clear got %d rows", len(rows))
	}

	if err := tbl.Drop(); err != nil {
		t.Fatalf("Drop() error = %v", err)
	}
	if _, err := os.Stat(tbl.Path()); !os.IsNotExist(err) {
		t.Errorf("table file still exists after Drop")
	}
	if _, err := tbl.QueryAll(); !errors.Is(err, table.ErrDropped) {
		t.Errorf("QueryAll() after Drop error = %v, want ErrDropped", err)
	}
}
