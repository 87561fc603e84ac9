package chunkstore

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

func testSchema(t *testing.T) *tableopts.Schema {
	t.Helper()
	s, err := tableopts.Parse("v", []string{"a float[2]", "cat text partition key", "label text", "chunk_size=8"})
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	return s
}

func TestCreateAndDropShadowTables(t *testing.T) {
	db := openTestDB(t)
	schema := testSchema(t)
	store := New(db, "v", schema)

	if err := store.CreateShadowTables(); err != nil {
		t.Fatalf("create shadow tables: %v", err)
	}
	// idempotent
	if err := store.CreateShadowTables(); err != nil {
		t.Fatalf("create shadow tables again: %v", err)
	}
	if err := store.DropShadowTables(); err != nil {
		t.Fatalf("drop shadow tables: %v", err)
	}
}

func TestAllocateSlotCreatesChunkLazily(t *testing.T) {
	db := openTestDB(t)
	schema := testSchema(t)
	store := New(db, "v", schema)
	if err := store.CreateShadowTables(); err != nil {
		t.Fatalf("create shadow tables: %v", err)
	}

	chunks, err := store.AllChunks()
	if err != nil {
		t.Fatalf("all chunks: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected zero chunks before first insert, got %d", len(chunks))
	}

	chunkID, slot, err := store.AllocateSlot("A")
	if err != nil {
		t.Fatalf("allocate slot: %v", err)
	}
	if slot != 0 {
		t.Fatalf("got slot %d want 0", slot)
	}

	if err := store.SetValid(chunkID, slot); err != nil {
		t.Fatalf("set valid: %v", err)
	}
	if err := store.WriteRowid(chunkID, slot, 42); err != nil {
		t.Fatalf("write rowid: %v", err)
	}

	v, err := store.ReadValidity(chunkID)
	if err != nil {
		t.Fatalf("read validity: %v", err)
	}
	if !v.Test(0) {
		t.Fatalf("expected slot 0 valid")
	}

	rowids, err := store.ReadRowids(chunkID)
	if err != nil {
		t.Fatalf("read rowids: %v", err)
	}
	if rowids[0] != 42 {
		t.Fatalf("got rowid %d want 42", rowids[0])
	}
}

func TestAllocateSlotFillsChunkThenCreatesNew(t *testing.T) {
	db := openTestDB(t)
	schema := testSchema(t) // chunk_size = 8
	store := New(db, "v", schema)
	if err := store.CreateShadowTables(); err != nil {
		t.Fatalf("create shadow tables: %v", err)
	}

	var lastChunk int64
	for i := 0; i < 8; i++ {
		chunkID, slot, err := store.AllocateSlot("A")
		if err != nil {
			t.Fatalf("allocate slot %d: %v", i, err)
		}
		if err := store.SetValid(chunkID, slot); err != nil {
			t.Fatalf("set valid: %v", err)
		}
		lastChunk = chunkID
	}

	chunkID, slot, err := store.AllocateSlot("A")
	if err != nil {
		t.Fatalf("allocate slot 9: %v", err)
	}
	if chunkID == lastChunk {
		t.Fatalf("expected a new chunk once the first filled")
	}
	if slot != 0 {
		t.Fatalf("got slot %d want 0 in new chunk", slot)
	}
}

func TestVectorSlotWriteReadAndZero(t *testing.T) {
	db := openTestDB(t)
	schema := testSchema(t)
	store := New(db, "v", schema)
	if err := store.CreateShadowTables(); err != nil {
		t.Fatalf("create shadow tables: %v", err)
	}

	chunkID, slot, err := store.AllocateSlot("")
	if err != nil {
		t.Fatalf("allocate slot: %v", err)
	}

	raw := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := store.WriteVectorSlot(chunkID, 0, slot, raw); err != nil {
		t.Fatalf("write vector slot: %v", err)
	}
	buf, err := store.ReadVectorBuffer(chunkID, 0)
	if err != nil {
		t.Fatalf("read vector buffer: %v", err)
	}
	for i, b := range raw {
		if buf[i] != b {
			t.Fatalf("byte %d: got %d want %d", i, buf[i], b)
		}
	}

	if err := store.ZeroVectorSlot(chunkID, 0, slot); err != nil {
		t.Fatalf("zero vector slot: %v", err)
	}
	buf2, err := store.ReadVectorBuffer(chunkID, 0)
	if err != nil {
		t.Fatalf("read vector buffer: %v", err)
	}
	for i := 0; i < 8; i++ {
		if buf2[i] != 0 {
			t.Fatalf("byte %d: expected zero after clear, got %d", i, buf2[i])
		}
	}
}

func TestPartitionsAreDisjoint(t *testing.T) {
	db := openTestDB(t)
	schema := testSchema(t)
	store := New(db, "v", schema)
	if err := store.CreateShadowTables(); err != nil {
		t.Fatalf("create shadow tables: %v", err)
	}

	chunkA, _, err := store.AllocateSlot("A")
	if err != nil {
		t.Fatalf("allocate slot A: %v", err)
	}
	chunkB, _, err := store.AllocateSlot("B")
	if err != nil {
		t.Fatalf("allocate slot B: %v", err)
	}
	if chunkA == chunkB {
		t.Fatalf("expected distinct chunks for distinct partitions")
	}

	chunksA, err := store.PartitionChunks("A")
	if err != nil {
		t.Fatalf("partition chunks A: %v", err)
	}
	if len(chunksA) != 1 || chunksA[0] != chunkA {
		t.Fatalf("got %v", chunksA)
	}
}

func TestInfoRoundTrip(t *testing.T) {
	db := openTestDB(t)
	schema := testSchema(t)
	store := New(db, "v", schema)
	if err := store.CreateShadowTables(); err != nil {
		t.Fatalf("create shadow tables: %v", err)
	}
	if err := store.SaveInfo("chunk_size", "8"); err != nil {
		t.Fatalf("save info: %v", err)
	}
	v, ok, err := store.LoadInfo("chunk_size")
	if err != nil || !ok || v != "8" {
		t.Fatalf("got v=%q ok=%v err=%v", v, ok, err)
	}
	if err := store.SaveInfo("chunk_size", "16"); err != nil {
		t.Fatalf("save info again: %v", err)
	}
	v, _, _ = store.LoadInfo("chunk_size")
	if v != "16" {
		t.Fatalf("got %q want 16 after update", v)
	}
}

func TestMetadataTextOverflow(t *testing.T) {
	db := openTestDB(t)
	schema := testSchema(t)
	store := New(db, "v", schema)
	if err := store.CreateShadowTables(); err != nil {
		t.Fatalf("create shadow tables: %v", err)
	}
	chunkID, _, err := store.AllocateSlot("")
	if err != nil {
		t.Fatalf("allocate slot: %v", err)
	}
	ov := store.TextOverflow(0)
	if err := ov.Set(chunkID, 0, "a string longer than twelve bytes for sure"); err != nil {
		t.Fatalf("set overflow: %v", err)
	}
	s, err := ov.Get(chunkID, 0)
	if err != nil {
		t.Fatalf("get overflow: %v", err)
	}
	if s != "a string longer than twelve bytes for sure" {
		t.Fatalf("got %q", s)
	}
	if err := ov.Delete(chunkID, 0); err != nil {
		t.Fatalf("delete overflow: %v", err)
	}
	if _, err := ov.Get(chunkID, 0); err == nil {
		t.Fatalf("expected error reading deleted overflow row")
	}
}
