package knn

import (
	"context"
	"database/sql"
	"math"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"vec0/internal/chunkstore"
	"vec0/internal/metadata"
	"vec0/internal/rowdir"
	"vec0/internal/tableopts"
	"vec0/internal/vecvalue"
)

func setup(t *testing.T) (*sql.DB, *tableopts.Schema, *chunkstore.Store, *rowdir.Directory) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema, err := tableopts.Parse("v", []string{"a float[2]", "tag text", "chunk_size=8"})
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	store := chunkstore.New(db, "v", schema)
	if err := store.CreateShadowTables(); err != nil {
		t.Fatalf("create shadow tables: %v", err)
	}
	dir := rowdir.New(db, "v", schema)
	return db, schema, store, dir
}

func insertRow(t *testing.T, store *chunkstore.Store, dir *rowdir.Directory, schema *tableopts.Schema, extID int64, x, y float32, tag string) {
	t.Helper()
	chunkID, slot, err := store.AllocateSlot("")
	if err != nil {
		t.Fatalf("allocate slot: %v", err)
	}
	id, err := dir.Insert(extID, "", chunkID, slot)
	if err != nil {
		t.Fatalf("insert directory: %v", err)
	}
	v := vecvalue.Vector{Kind: vecvalue.Float32, Dim: 2, Raw: make([]byte, 8)}
	binaryPutF32(v.Raw[0:4], x)
	binaryPutF32(v.Raw[4:8], y)
	if err := store.WriteVectorSlot(chunkID, 0, slot, v.Raw); err != nil {
		t.Fatalf("write vector: %v", err)
	}
	buf, err := store.ReadMetadataBuffer(chunkID, 0)
	if err != nil {
		t.Fatalf("read metadata buffer: %v", err)
	}
	if err := metadata.SetText(buf, slot, tag, store.TextOverflow(0), chunkID); err != nil {
		t.Fatalf("set text: %v", err)
	}
	if err := store.WriteMetadataBuffer(chunkID, 0, buf); err != nil {
		t.Fatalf("write metadata buffer: %v", err)
	}
	if err := store.WriteRowid(chunkID, slot, id); err != nil {
		t.Fatalf("write rowid: %v", err)
	}
	if err := store.SetValid(chunkID, slot); err != nil {
		t.Fatalf("set valid: %v", err)
	}
}

func binaryPutF32(b []byte, f float32) {
	bits := math.Float32bits(f)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}

func TestExecuteFindsClosest(t *testing.T) {
	_, schema, store, dir := setup(t)
	insertRow(t, store, dir, schema, 1, 0, 0, "a")
	insertRow(t, store, dir, schema, 2, 10, 10, "b")
	insertRow(t, store, dir, schema, 3, 1, 1, "c")

	query := vecvalue.Vector{Kind: vecvalue.Float32, Dim: 2, Raw: make([]byte, 8)}
	binaryPutF32(query.Raw[0:4], 0)
	binaryPutF32(query.Raw[4:8], 0)

	results, err := Execute(context.Background(), store, dir, schema, Query{
		VectorColumn: 0,
		Query:        query,
		K:            2,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results want 2", len(results))
	}
	if results[0].Rowid != 1 {
		t.Fatalf("closest should be rowid 1, got %d", results[0].Rowid)
	}
	if results[1].Rowid != 3 {
		t.Fatalf("second closest should be rowid 3, got %d", results[1].Rowid)
	}
}

func TestExecuteAcrossMultipleChunks(t *testing.T) {
	_, schema, store, dir := setup(t)
	for i := int64(1); i <= 9; i++ {
		insertRow(t, store, dir, schema, i, float32(i), 0, "x")
	}
	query := vecvalue.Vector{Kind: vecvalue.Float32, Dim: 2, Raw: make([]byte, 8)}
	binaryPutF32(query.Raw[0:4], 9)
	binaryPutF32(query.Raw[4:8], 0)

	results, err := Execute(context.Background(), store, dir, schema, Query{
		VectorColumn: 0,
		Query:        query,
		K:            3,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results want 3", len(results))
	}
	if results[0].Rowid != 9 {
		t.Fatalf("closest should be rowid 9, got %d", results[0].Rowid)
	}
}
