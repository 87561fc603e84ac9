package vtab_test

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"vec0"
)

// openTestDB opens a fresh vec0-enabled database in a temp directory,
// using a unique driver name per test so sql.Register doesn't panic on
// a duplicate registration across tests in the same process.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	driver := fmt.Sprintf("vec0_test_%s", t.Name())
	path := filepath.Join(t.TempDir(), "vec0.db")
	db, err := vec0.Open(driver, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateInsertAndKNNQuery(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Exec(`CREATE VIRTUAL TABLE items USING vec0(
		embedding float32[3],
		label text,
		score float
	)`); err != nil {
		t.Fatalf("create virtual table: %v", err)
	}

	vectors := []string{"[1,0,0]", "[0,1,0]", "[0,0,1]", "[1,1,0]"}
	for i, v := range vectors {
		if _, err := db.Exec(`INSERT INTO items(embedding, label, score) VALUES (?, ?, ?)`,
			v, fmt.Sprintf("row%d", i), float64(i)); err != nil {
			t.Fatalf("insert row %d: %v", i, err)
		}
	}

	rows, err := db.Query(`SELECT rowid, distance FROM items WHERE embedding MATCH ? AND k = ? ORDER BY distance`,
		"[1,0,0]", 2)
	if err != nil {
		t.Fatalf("knn query: %v", err)
	}
	defer rows.Close()

	var ids []int64
	var distances []float64
	for rows.Next() {
		var id int64
		var d float64
		if err := rows.Scan(&id, &d); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
		distances = append(distances, d)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}

	if len(ids) != 2 {
		t.Fatalf("expected 2 nearest rows, got %d", len(ids))
	}
	// row0 ([1,0,0]) is an exact match and must come first.
	if ids[0] != 1 {
		t.Errorf("expected exact match rowid 1 first, got %d", ids[0])
	}
	if distances[0] != 0 {
		t.Errorf("expected distance 0 for exact match, got %f", distances[0])
	}
	for i := 1; i < len(distances); i++ {
		if distances[i] < distances[i-1] {
			t.Errorf("distances not sorted ascending: %v", distances)
		}
	}
}

func TestMetadataFilterNarrowsKNN(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Exec(`CREATE VIRTUAL TABLE items USING vec0(
		embedding float32[2],
		category text
	)`); err != nil {
		t.Fatalf("create virtual table: %v", err)
	}

	rows := []struct {
		vec string
		cat string
	}{
		{"[1,0]", "a"},
		{"[0,1]", "b"},
		{"[0.9,0.1]", "a"},
		{"[0.1,0.9]", "b"},
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO items(embedding, category) VALUES (?, ?)`, r.vec, r.cat); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	res, err := db.Query(`SELECT rowid FROM items WHERE embedding MATCH ? AND k = ? AND category = ?`,
		"[1,0]", 4, "b")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer res.Close()

	var ids []int64
	for res.Next() {
		var id int64
		if err := res.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 rows matching category='b', got %d (%v)", len(ids), ids)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Exec(`CREATE VIRTUAL TABLE items USING vec0(
		embedding float32[2],
		label text
	)`); err != nil {
		t.Fatalf("create virtual table: %v", err)
	}

	res, err := db.Exec(`INSERT INTO items(embedding, label) VALUES (?, ?)`, "[1,1]", "first")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	id, _ := res.LastInsertId()

	if _, err := db.Exec(`UPDATE items SET label = ? WHERE rowid = ?`, "updated", id); err != nil {
		t.Fatalf("update: %v", err)
	}

	var label string
	if err := db.QueryRow(`SELECT label FROM items WHERE rowid = ?`, id).Scan(&label); err != nil {
		t.Fatalf("select after update: %v", err)
	}
	if label != "updated" {
		t.Errorf("expected label %q, got %q", "updated", label)
	}

	if _, err := db.Exec(`DELETE FROM items WHERE rowid = ?`, id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM items WHERE rowid = ?`, id).Scan(&count); err != nil {
		t.Fatalf("count after delete: %v", err)
	}
	if count != 0 {
		t.Errorf("expected row to be gone after delete, count=%d", count)
	}
}

func TestOptimizeCommand(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Exec(`CREATE VIRTUAL TABLE items USING vec0(
		embedding float32[2],
		chunk_size=8
	)`); err != nil {
		t.Fatalf("create virtual table: %v", err)
	}

	var ids []int64
	for i := 0; i < 8; i++ {
		res, err := db.Exec(`INSERT INTO items(embedding) VALUES (?)`, fmt.Sprintf("[%d,0]", i))
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		id, _ := res.LastInsertId()
		ids = append(ids, id)
	}

	// delete half the chunk, then optimize should compact it away.
	for _, id := range ids[:4] {
		if _, err := db.Exec(`DELETE FROM items WHERE rowid = ?`, id); err != nil {
			t.Fatalf("delete %d: %v", id, err)
		}
	}

	if _, err := db.Exec(`INSERT INTO items(items) VALUES ('optimize')`); err != nil {
		t.Fatalf("optimize command: %v", err)
	}

	var remaining int
	if err := db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&remaining); err != nil {
		t.Fatalf("count after optimize: %v", err)
	}
	if remaining != 4 {
		t.Errorf("expected 4 rows to survive optimize, got %d", remaining)
	}
}

func TestUnknownCommandRejected(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Exec(`CREATE VIRTUAL TABLE items USING vec0(embedding float32[2])`); err != nil {
		t.Fatalf("create virtual table: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO items(items) VALUES ('not-a-real-command')`); err == nil {
		t.Fatal("expected an error for an unrecognized maintenance command")
	}
}

func TestVecDebugAndVersionFunctions(t *testing.T) {
	db := openTestDB(t)

	var version string
	if err := db.QueryRow(`SELECT vec_version()`).Scan(&version); err != nil {
		t.Fatalf("vec_version(): %v", err)
	}
	if version == "" {
		t.Error("expected a non-empty vec_version() result")
	}

	var debug string
	if err := db.QueryRow(`SELECT vec_debug()`).Scan(&debug); err != nil {
		t.Fatalf("vec_debug(): %v", err)
	}
	if debug == "" {
		t.Error("expected a non-empty vec_debug() result")
	}
}
