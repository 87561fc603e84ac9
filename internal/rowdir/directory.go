// Package rowdir implements the row directory (component C4): the
// mapping from a table's external primary key (the host rowid, or an
// explicitly declared integer/text primary key column) to its
// internal (chunk_id, slot) position, plus the one-to-one auxiliary
// row store for `+`-prefixed columns.
package rowdir

import (
	"database/sql"
	"fmt"
	"strings"

	"vec0/internal/tableopts"
	"vec0/internal/vecerr"
)

// DB is satisfied by both *sql.DB and *sql.Tx.
type DB interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func quoteIdent(name string) string { return `"` + name + `"` }

func rowidsTable(table string) string { return quoteIdent(table + "_rowids") }

func auxiliaryTable(table string) string { return quoteIdent(table + "_auxiliary") }

// Directory is the row directory for one vec0 table.
type Directory struct {
	db     DB
	table  string
	schema *tableopts.Schema
}

// New builds a Directory bound to db for the given table and schema.
func New(db DB, table string, schema *tableopts.Schema) *Directory {
	return &Directory{db: db, table: table, schema: schema}
}

// WithDB rebinds the directory onto a different DB handle (typically
// the host's enclosing transaction for the duration of one statement).
func (d *Directory) WithDB(db DB) *Directory {
	cp := *d
	cp.db = db
	return &cp
}

// Entry is one row-directory record.
type Entry struct {
	ID           int64 // internal id, same value the chunk's rowids buffer stores
	RowidInt     int64 // valid when the table's PK is implicit or integer
	RowidText    string
	ChunkID      int64
	ChunkOffset  int
}

// Insert adds a directory entry mapping externalID (as int64 or
// string, depending on PK kind) to (chunkID, slot). Returns the
// internal id to store in the chunk's rowids buffer. Violates a
// unique-index constraint (surfaced as ConstraintViolation) if
// externalID already exists.
func (d *Directory) Insert(externalInt int64, externalText string, chunkID int64, slot int) (int64, error) {
	var value interface{}
	if d.schema.PKKind == tableopts.PKText {
		value = externalText
	} else {
		value = externalInt
	}

	res, err := d.db.Exec(fmt.Sprintf(
		`INSERT INTO %s(rowid_value, chunk_id, chunk_offset) VALUES(?, ?, ?)`,
		rowidsTable(d.table)), value, chunkID, slot)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, vecerr.Constraintf("rowid %v already exists", value)
		}
		return 0, vecerr.Resourcef("rowdir", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, vecerr.Resourcef("rowdir", err)
	}
	return id, nil
}

// isUniqueViolation matches go-sqlite3's error text for a UNIQUE
// constraint failure; the driver doesn't expose a typed sentinel we
// can inspect with errors.Is.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// LookupByInt finds the directory entry for an integer external id.
func (d *Directory) LookupByInt(external int64) (Entry, bool, error) {
	return d.lookup(external)
}

// LookupByText finds the directory entry for a text external id.
func (d *Directory) LookupByText(external string) (Entry, bool, error) {
	return d.lookup(external)
}

func (d *Directory) lookup(value interface{}) (Entry, bool, error) {
	var e Entry
	var rowidVal interface{}
	row := d.db.QueryRow(fmt.Sprintf(
		`SELECT id, rowid_value, chunk_id, chunk_offset FROM %s WHERE rowid_value = ?`,
		rowidsTable(d.table)), value)
	if err := row.Scan(&e.ID, &rowidVal, &e.ChunkID, &e.ChunkOffset); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, vecerr.Resourcef("rowdir", err)
	}
	switch v := rowidVal.(type) {
	case int64:
		e.RowidInt = v
	case string:
		e.RowidText = v
	}
	return e, true, nil
}

// LookupByID finds the directory entry for an internal id (the value
// stored in a chunk's rowids buffer).
func (d *Directory) LookupByID(id int64) (Entry, bool, error) {
	var e Entry
	var rowidVal interface{}
	row := d.db.QueryRow(fmt.Sprintf(
		`SELECT id, rowid_value, chunk_id, chunk_offset FROM %s WHERE id = ?`,
		rowidsTable(d.table)), id)
	if err := row.Scan(&e.ID, &rowidVal, &e.ChunkID, &e.ChunkOffset); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, vecerr.Resourcef("rowdir", err)
	}
	switch v := rowidVal.(type) {
	case int64:
		e.RowidInt = v
	case string:
		e.RowidText = v
	}
	return e, true, nil
}

// Relocate repoints id's directory entry to a new (chunk, slot) —
// used by compaction after a row's underlying buffers have been
// copied to their new home.
func (d *Directory) Relocate(id int64, chunkID int64, slot int) error {
	_, err := d.db.Exec(fmt.Sprintf(`UPDATE %s SET chunk_id = ?, chunk_offset = ? WHERE id = ?`,
		rowidsTable(d.table)), chunkID, slot, id)
	if err != nil {
		return vecerr.Resourcef("rowdir", err)
	}
	return nil
}

// SetRowidValue overwrites the external rowid_value an internal id
// resolves from — used once, right after Insert, for implicit-rowid
// tables where there is no declared PK column to source the external
// identity from: the engine's own internal id becomes the row's
// externally visible rowid too.
func (d *Directory) SetRowidValue(id int64, value int64) error {
	_, err := d.db.Exec(fmt.Sprintf(`UPDATE %s SET rowid_value = ? WHERE id = ?`,
		rowidsTable(d.table)), value, id)
	if err != nil {
		return vecerr.Resourcef("rowdir", err)
	}
	return nil
}

// Delete removes the directory entry for internal id.
func (d *Directory) Delete(id int64) error {
	_, err := d.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, rowidsTable(d.table)), id)
	if err != nil {
		return vecerr.Resourcef("rowdir", err)
	}
	return nil
}

// SetAuxiliary upserts the auxiliary row for id with the given
// column-name/value pairs.
func (d *Directory) SetAuxiliary(id int64, values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}
	cols := "rowid"
	placeholders := "?"
	updates := ""
	args := []interface{}{id}
	first := true
	for name, v := range values {
		cols += ", " + quoteIdent(name)
		placeholders += ", ?"
		if !first {
			updates += ", "
		}
		updates += quoteIdent(name) + " = excluded." + quoteIdent(name)
		args = append(args, v)
		first = false
	}
	query := fmt.Sprintf(`INSERT INTO %s(%s) VALUES(%s) ON CONFLICT(rowid) DO UPDATE SET %s`,
		auxiliaryTable(d.table), cols, placeholders, updates)
	if _, err := d.db.Exec(query, args...); err != nil {
		return vecerr.Resourcef("rowdir", err)
	}
	return nil
}

// GetAuxiliary reads one auxiliary column's value for id.
func (d *Directory) GetAuxiliary(id int64, column string) (interface{}, error) {
	var v interface{}
	err := d.db.QueryRow(fmt.Sprintf(`SELECT %s FROM %s WHERE rowid = ?`, quoteIdent(column), auxiliaryTable(d.table)), id).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, vecerr.Resourcef("rowdir", err)
	}
	return v, nil
}

// DeleteAuxiliary removes the auxiliary row for id.
func (d *Directory) DeleteAuxiliary(id int64) error {
	_, err := d.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, auxiliaryTable(d.table)), id)
	if err != nil {
		return vecerr.Resourcef("rowdir", err)
	}
	return nil
}
