package rowdir

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"vec0/internal/tableopts"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite3: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createRowidsTable(t *testing.T, db *sql.DB, table, pkType string) {
	t.Helper()
	_, err := db.Exec(`CREATE TABLE "` + table + `_rowids" (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rowid_value ` + pkType + ` NOT NULL UNIQUE,
		chunk_id INTEGER NOT NULL,
		chunk_offset INTEGER NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create rowids table: %v", err)
	}
}

func createAuxTable(t *testing.T, db *sql.DB, table string) {
	t.Helper()
	_, err := db.Exec(`CREATE TABLE "` + table + `_auxiliary" (rowid INTEGER PRIMARY KEY, note TEXT)`)
	if err != nil {
		t.Fatalf("create auxiliary table: %v", err)
	}
}

func TestInsertAndLookupInteger(t *testing.T) {
	db := openTestDB(t)
	createRowidsTable(t, db, "v", "INTEGER")
	schema := &tableopts.Schema{PKKind: tableopts.PKRowid}
	dir := New(db, "v", schema)

	id, err := dir.Insert(100, "", 5, 2)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	e, ok, err := dir.LookupByInt(100)
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if e.ID != id || e.ChunkID != 5 || e.ChunkOffset != 2 {
		t.Fatalf("got %+v", e)
	}

	e2, ok, err := dir.LookupByID(id)
	if err != nil || !ok || e2.ChunkID != 5 {
		t.Fatalf("lookup by id: %+v ok=%v err=%v", e2, ok, err)
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	db := openTestDB(t)
	createRowidsTable(t, db, "v", "INTEGER")
	schema := &tableopts.Schema{PKKind: tableopts.PKRowid}
	dir := New(db, "v", schema)

	if _, err := dir.Insert(1, "", 0, 0); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := dir.Insert(1, "", 0, 1); err == nil {
		t.Fatalf("expected unique violation on duplicate rowid")
	}
}

func TestTextPrimaryKey(t *testing.T) {
	db := openTestDB(t)
	createRowidsTable(t, db, "v", "TEXT")
	schema := &tableopts.Schema{PKKind: tableopts.PKText}
	dir := New(db, "v", schema)

	id, err := dir.Insert(0, "t_1", 3, 0)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	e, ok, err := dir.LookupByText("t_1")
	if err != nil || !ok || e.ID != id || e.RowidText != "t_1" {
		t.Fatalf("got %+v ok=%v err=%v", e, ok, err)
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	db := openTestDB(t)
	createRowidsTable(t, db, "v", "INTEGER")
	schema := &tableopts.Schema{PKKind: tableopts.PKRowid}
	dir := New(db, "v", schema)

	id, _ := dir.Insert(7, "", 0, 0)
	if err := dir.Delete(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, ok, err := dir.LookupByInt(7)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ok {
		t.Fatalf("expected entry to be gone after delete")
	}
}

func TestAuxiliaryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	createRowidsTable(t, db, "v", "INTEGER")
	createAuxTable(t, db, "v")
	schema := &tableopts.Schema{PKKind: tableopts.PKRowid}
	dir := New(db, "v", schema)

	if err := dir.SetAuxiliary(1, map[string]interface{}{"note": "hello"}); err != nil {
		t.Fatalf("set auxiliary: %v", err)
	}
	v, err := dir.GetAuxiliary(1, "note")
	if err != nil {
		t.Fatalf("get auxiliary: %v", err)
	}
	if s, ok := v.(string); !ok || s != "hello" {
		t.Fatalf("got %v", v)
	}

	if err := dir.SetAuxiliary(1, map[string]interface{}{"note": "updated"}); err != nil {
		t.Fatalf("update auxiliary: %v", err)
	}
	v, _ = dir.GetAuxiliary(1, "note")
	if s := v.(string); s != "updated" {
		t.Fatalf("got %q want updated", s)
	}

	if err := dir.DeleteAuxiliary(1); err != nil {
		t.Fatalf("delete auxiliary: %v", err)
	}
	v, err = dir.GetAuxiliary(1, "note")
	if err != nil {
		t.Fatalf("get auxiliary after delete: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil after delete, got %v", v)
	}
}
