package writepath

import (
	"database/sql"
	"math"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"vec0/internal/chunkstore"
	"vec0/internal/rowdir"
	"vec0/internal/tableopts"
	"vec0/internal/vecvalue"
)

func setup(t *testing.T) (*Writer, *chunkstore.Store, *rowdir.Directory, *tableopts.Schema) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema, err := tableopts.Parse("v", []string{"a float[2]", "label text", "score integer", "chunk_size=8"})
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	store := chunkstore.New(db, "v", schema)
	if err := store.CreateShadowTables(); err != nil {
		t.Fatalf("create shadow tables: %v", err)
	}
	dir := rowdir.New(db, "v", schema)
	return New(store, dir, schema), store, dir, schema
}

func vec2(x, y float32) vecvalue.Vector {
	return vecvalue.Vector{Kind: vecvalue.Float32, Dim: 2, Raw: encodeF32Pair(x, y)}
}

func encodeF32Pair(x, y float32) []byte {
	out := make([]byte, 8)
	putF32(out[0:4], x)
	putF32(out[4:8], y)
	return out
}

func putF32(b []byte, f float32) {
	bits := math.Float32bits(f)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

func TestInsertAndLookup(t *testing.T) {
	w, store, dir, _ := setup(t)
	row := &Row{
		ExternalInt: 1,
		Vectors:     map[string]vecvalue.Vector{"a": vec2(1, 2)},
		Metadata:    map[string]interface{}{"label": "hello", "score": int64(5)},
	}
	id, err := w.Insert(row)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	entry, ok, err := dir.LookupByInt(1)
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if entry.ID != id {
		t.Fatalf("got id %d want %d", entry.ID, id)
	}
	v, err := store.ReadValidity(entry.ChunkID)
	if err != nil || !v.Test(entry.ChunkOffset) {
		t.Fatalf("expected slot valid, err=%v", err)
	}
}

func TestInsertRejectsWrongDimension(t *testing.T) {
	w, _, _, _ := setup(t)
	bad := vecvalue.Vector{Kind: vecvalue.Float32, Dim: 3, Raw: make([]byte, 12)}
	row := &Row{ExternalInt: 1, Vectors: map[string]vecvalue.Vector{"a": bad}, Metadata: map[string]interface{}{"label": "x", "score": int64(1)}}
	if _, err := w.Insert(row); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestInsertRejectsUnknownMetadataColumn(t *testing.T) {
	w, _, _, _ := setup(t)
	row := &Row{
		ExternalInt: 1,
		Vectors:     map[string]vecvalue.Vector{"a": vec2(1, 2)},
		Metadata:    map[string]interface{}{"label": "x", "score": int64(1), "bogus": 1},
	}
	if _, err := w.Insert(row); err == nil {
		t.Fatalf("expected rejection of undeclared metadata column")
	}
}

func TestUpdateInPlaceKeepsSlot(t *testing.T) {
	w, store, dir, _ := setup(t)
	id, err := w.Insert(&Row{
		ExternalInt: 1,
		Vectors:     map[string]vecvalue.Vector{"a": vec2(1, 2)},
		Metadata:    map[string]interface{}{"label": "old", "score": int64(1)},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	before, _, _ := dir.LookupByID(id)

	if err := w.Update(id, &Row{
		Vectors:  map[string]vecvalue.Vector{"a": vec2(9, 9)},
		Metadata: map[string]interface{}{"label": "new", "score": int64(2)},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	after, _, _ := dir.LookupByID(id)
	if before.ChunkID != after.ChunkID || before.ChunkOffset != after.ChunkOffset {
		t.Fatalf("update must not move the row: before=%+v after=%+v", before, after)
	}

	buf, err := store.ReadVectorBuffer(after.ChunkID, 0)
	if err != nil {
		t.Fatalf("read vector buffer: %v", err)
	}
	stride := 8
	got := buf[after.ChunkOffset*stride : (after.ChunkOffset+1)*stride]
	want := encodeF32Pair(9, 9)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("vector not updated: got %v want %v", got, want)
		}
	}
}

func TestDeleteClearsValidityAndRowid(t *testing.T) {
	w, store, dir, _ := setup(t)
	id, err := w.Insert(&Row{
		ExternalInt: 1,
		Vectors:     map[string]vecvalue.Vector{"a": vec2(1, 2)},
		Metadata:    map[string]interface{}{"label": "x", "score": int64(1)},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	entry, _, _ := dir.LookupByID(id)

	if err := w.Delete(id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	v, err := store.ReadValidity(entry.ChunkID)
	if err != nil {
		t.Fatalf("read validity: %v", err)
	}
	if v.Test(entry.ChunkOffset) {
		t.Fatalf("expected slot invalid after delete")
	}
	_, ok, err := dir.LookupByID(id)
	if err != nil {
		t.Fatalf("lookup after delete: %v", err)
	}
	if ok {
		t.Fatalf("expected directory entry removed after delete")
	}
}
