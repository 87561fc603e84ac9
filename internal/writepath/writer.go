// Package writepath implements the write path (component C5):
// INSERT, UPDATE, and DELETE orchestration across the vector codec
// (internal/vecvalue), the validated schema (internal/tableopts), the
// chunk manager (internal/chunkstore), and the row directory
// (internal/rowdir). It owns the exact step ordering that keeps a
// concurrent reader from ever observing a half-written row: a new
// row becomes visible only once every buffer it occupies has been
// written, by setting its validity bit last; a deleted row stops
// being visible before its storage is reclaimed, by clearing the
// validity bit first.
package writepath

import (
	"vec0/internal/chunkstore"
	"vec0/internal/metadata"
	"vec0/internal/rowdir"
	"vec0/internal/tableopts"
	"vec0/internal/vecerr"
	"vec0/internal/vecvalue"
)

// Row is the fully-validated payload for one insert or update.
type Row struct {
	ExternalInt  int64
	ExternalText string
	PartitionKey string
	Vectors      map[string]vecvalue.Vector
	Metadata     map[string]interface{}
	Auxiliary    map[string]interface{}
}

// Writer orchestrates inserts, updates, and deletes for one vec0 table.
type Writer struct {
	store  *chunkstore.Store
	dir    *rowdir.Directory
	schema *tableopts.Schema
}

// New builds a Writer bound to the given chunk store, row directory,
// and schema. store and dir must already be bound to the same DB
// handle (typically the host's enclosing transaction).
func New(store *chunkstore.Store, dir *rowdir.Directory, schema *tableopts.Schema) *Writer {
	return &Writer{store: store, dir: dir, schema: schema}
}

// Validate checks row against schema: every declared vector column
// present with the right kind and dimension, every metadata value of
// the declared type, and no stray column names.
func (w *Writer) Validate(row *Row) error {
	for _, vc := range w.schema.Vectors {
		v, ok := row.Vectors[vc.Name]
		if !ok {
			return vecerr.Constraintf("missing value for vector column %q", vc.Name)
		}
		if v.Kind != vc.Kind {
			return vecerr.Typef(vc.Name, "column %q expects %s vectors, got %s", vc.Name, vc.Kind, v.Kind)
		}
		if v.Dim != vc.Dim {
			return vecerr.Typef(vc.Name, "column %q expects dimension %d, got %d", vc.Name, vc.Dim, v.Dim)
		}
	}
	for name, v := range row.Metadata {
		mc := w.schema.MetadataColumnByName(name)
		if mc == nil {
			return vecerr.Constraintf("%q is not a declared metadata column", name)
		}
		if err := checkMetaType(mc.Type, v); err != nil {
			return vecerr.Typef(name, "column %q: %v", name, err)
		}
	}
	for name := range row.Auxiliary {
		if !w.schema.IsAuxiliary(name) {
			return vecerr.Constraintf("%q is not a declared auxiliary column", name)
		}
	}
	return nil
}

func checkMetaType(t tableopts.MetaType, v interface{}) error {
	switch t {
	case tableopts.MetaBoolean:
		if _, ok := v.(bool); !ok {
			return vecerr.Constraintf("expected boolean, got %T", v)
		}
	case tableopts.MetaInteger:
		if _, ok := v.(int64); !ok {
			return vecerr.Constraintf("expected integer, got %T", v)
		}
	case tableopts.MetaFloat:
		if _, ok := v.(float64); !ok {
			return vecerr.Constraintf("expected float, got %T", v)
		}
	case tableopts.MetaText:
		if _, ok := v.(string); !ok {
			return vecerr.Constraintf("expected text, got %T", v)
		}
	}
	return nil
}

// Insert validates and writes a new row, returning its internal id
// (the value the host-visible rowid resolves through the directory).
// Order: allocate a slot, add the directory entry (so a crash before
// this point leaves no trace), write every vector and metadata
// buffer, bind the slot's rowid, then set the validity bit last — the
// single instant the row becomes visible to readers.
func (w *Writer) Insert(row *Row) (int64, error) {
	if err := w.Validate(row); err != nil {
		return 0, err
	}

	chunkID, slot, err := w.store.AllocateSlot(row.PartitionKey)
	if err != nil {
		return 0, err
	}

	id, err := w.dir.Insert(row.ExternalInt, row.ExternalText, chunkID, slot)
	if err != nil {
		return 0, err
	}

	for i, vc := range w.schema.Vectors {
		v := row.Vectors[vc.Name]
		if err := w.store.WriteVectorSlot(chunkID, i, slot, v.Raw); err != nil {
			return 0, err
		}
	}

	for i, mc := range w.schema.Metadata {
		buf, err := w.store.ReadMetadataBuffer(chunkID, i)
		if err != nil {
			return 0, err
		}
		if err := writeMetaSlot(mc.Type, buf, slot, row.Metadata[mc.Name], w.store.TextOverflow(i), chunkID); err != nil {
			return 0, err
		}
		if err := w.store.WriteMetadataBuffer(chunkID, i, buf); err != nil {
			return 0, err
		}
	}

	if len(row.Auxiliary) > 0 {
		if err := w.dir.SetAuxiliary(id, row.Auxiliary); err != nil {
			return 0, err
		}
	}

	if err := w.store.WriteRowid(chunkID, slot, id); err != nil {
		return 0, err
	}
	if err := w.store.SetValid(chunkID, slot); err != nil {
		return 0, err
	}

	return id, nil
}

func readMetaSlot(t tableopts.MetaType, buf []byte, slot int, overflow metadata.TextOverflow, chunkID int64) (interface{}, error) {
	switch t {
	case tableopts.MetaBoolean:
		return metadata.GetBool(buf, slot), nil
	case tableopts.MetaInteger:
		return metadata.GetInt64(buf, slot), nil
	case tableopts.MetaFloat:
		return metadata.GetFloat64(buf, slot), nil
	case tableopts.MetaText:
		return metadata.GetText(buf, slot, overflow, chunkID)
	}
	return nil, nil
}

func clearMetaSlot(t tableopts.MetaType, buf []byte, slot int, overflow metadata.TextOverflow, chunkID int64) error {
	if t == tableopts.MetaText {
		return metadata.ClearText(buf, slot, overflow, chunkID)
	}
	metadata.ClearSlot(t, buf, slot)
	return nil
}

func writeMetaSlot(t tableopts.MetaType, buf []byte, slot int, v interface{}, overflow metadata.TextOverflow, chunkID int64) error {
	if v == nil {
		metadata.ClearSlot(t, buf, slot)
		return nil
	}
	switch t {
	case tableopts.MetaBoolean:
		metadata.SetBool(buf, slot, v.(bool))
	case tableopts.MetaInteger:
		metadata.SetInt64(buf, slot, v.(int64))
	case tableopts.MetaFloat:
		metadata.SetFloat64(buf, slot, v.(float64))
	case tableopts.MetaText:
		return metadata.SetText(buf, slot, v.(string), overflow, chunkID)
	}
	return nil
}

// Update overwrites the vector and metadata buffers for an existing
// row in place, leaving its (chunk, slot) and directory entry
// untouched. The primary key can never be updated — callers that
// detect a PK column in the UPDATE's SET list must reject it before
// reaching here.
func (w *Writer) Update(id int64, row *Row) error {
	if err := w.Validate(row); err != nil {
		return err
	}
	entry, ok, err := w.dir.LookupByID(id)
	if err != nil {
		return err
	}
	if !ok {
		return vecerr.Constraintf("update target id %d does not exist", id)
	}

	for i, vc := range w.schema.Vectors {
		v := row.Vectors[vc.Name]
		if err := w.store.WriteVectorSlot(entry.ChunkID, i, entry.ChunkOffset, v.Raw); err != nil {
			return err
		}
	}
	for i, mc := range w.schema.Metadata {
		buf, err := w.store.ReadMetadataBuffer(entry.ChunkID, i)
		if err != nil {
			return err
		}
		if err := writeMetaSlot(mc.Type, buf, entry.ChunkOffset, row.Metadata[mc.Name], w.store.TextOverflow(i), entry.ChunkID); err != nil {
			return err
		}
		if err := w.store.WriteMetadataBuffer(entry.ChunkID, i, buf); err != nil {
			return err
		}
	}
	if len(row.Auxiliary) > 0 {
		if err := w.dir.SetAuxiliary(id, row.Auxiliary); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a row. Order: clear the validity bit first (the row
// stops being visible to any new reader), clear its rowid slot and
// zero its vector bytes, then remove the directory entry — a reader
// already mid-scan that read the validity bit just before this call
// may still see the old rowid/vector briefly, but never a
// cleared-then-partially-zeroed state, since validity goes first.
func (w *Writer) Delete(id int64) error {
	entry, ok, err := w.dir.LookupByID(id)
	if err != nil {
		return err
	}
	if !ok {
		return vecerr.Constraintf("delete target id %d does not exist", id)
	}

	if err := w.store.ClearValid(entry.ChunkID, entry.ChunkOffset); err != nil {
		return err
	}
	if err := w.store.ClearRowid(entry.ChunkID, entry.ChunkOffset); err != nil {
		return err
	}
	for i := range w.schema.Vectors {
		if err := w.store.ZeroVectorSlot(entry.ChunkID, i, entry.ChunkOffset); err != nil {
			return err
		}
	}
	for i, mc := range w.schema.Metadata {
		if mc.Type == tableopts.MetaText {
			buf, err := w.store.ReadMetadataBuffer(entry.ChunkID, i)
			if err != nil {
				return err
			}
			if err := metadata.ClearText(buf, entry.ChunkOffset, w.store.TextOverflow(i), entry.ChunkID); err != nil {
				return err
			}
			if err := w.store.WriteMetadataBuffer(entry.ChunkID, i, buf); err != nil {
				return err
			}
		}
	}

	if err := w.dir.DeleteAuxiliary(id); err != nil {
		return err
	}
	return w.dir.Delete(id)
}
