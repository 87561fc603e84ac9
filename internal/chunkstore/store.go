// Package chunkstore implements the chunk manager (component C3): it
// owns the shadow tables that hold validity bitmaps, rowid slot
// arrays, and per-column vector/metadata buffers, and exposes the
// logical "blob handle" operations the write path and KNN executor
// drive. The host's database/sql driver for SQLite (mattn/go-sqlite3)
// doesn't expose incremental blob I/O, so every "handle" here is a
// full-column read-modify-write rather than a streaming cursor —
// documented explicitly since it departs from the host database's own
// native blob-handle model.
package chunkstore

import (
	"database/sql"
	"fmt"

	"vec0/internal/bitset"
	"vec0/internal/metadata"
	"vec0/internal/tableopts"
	"vec0/internal/vecerr"
)

// DB is satisfied by both *sql.DB and *sql.Tx, so every Store method
// can run either autocommit or inside the host's enclosing write
// transaction.
type DB interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Store is the chunk manager for one vec0 table.
type Store struct {
	db        DB
	table     string
	schema    *tableopts.Schema
	chunkSize int
}

// New builds a Store bound to db for the given table and validated schema.
func New(db DB, table string, schema *tableopts.Schema) *Store {
	return &Store{db: db, table: table, schema: schema, chunkSize: schema.ChunkSize}
}

// WithDB returns a copy of the store bound to a different DB handle —
// used to rebind an autocommit store onto the host's transaction for
// the duration of one write-path statement.
func (s *Store) WithDB(db DB) *Store {
	cp := *s
	cp.db = db
	return &cp
}

// CreateShadowTables creates every shadow table for this vec0 table,
// idempotently.
func (s *Store) CreateShadowTables() error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value TEXT)`, infoTable(s.table)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			chunk_id INTEGER PRIMARY KEY,
			partition_key TEXT,
			size INTEGER NOT NULL,
			validity BLOB NOT NULL,
			rowids BLOB NOT NULL
		)`, chunksTable(s.table)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(partition_key)`,
			quoteIdent(s.table+"_chunks_partition_idx"), chunksTable(s.table)),
	}

	pkType := "INTEGER"
	if s.schema.PKKind == tableopts.PKText {
		pkType = "TEXT"
	}
	stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rowid_value %s NOT NULL UNIQUE,
		chunk_id INTEGER NOT NULL,
		chunk_offset INTEGER NOT NULL
	)`, rowidsTable(s.table), pkType))

	for i := range s.schema.Vectors {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (chunk_id INTEGER PRIMARY KEY, vectors BLOB NOT NULL)`,
			vectorTable(s.table, i)))
	}

	for i := range s.schema.Metadata {
		stmts = append(stmts, fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (chunk_id INTEGER PRIMARY KEY, data BLOB NOT NULL)`,
			metadataTable(s.table, i)))
		if s.schema.Metadata[i].Type == tableopts.MetaText {
			stmts = append(stmts, fmt.Sprintf(
				`CREATE TABLE IF NOT EXISTS %s (chunk_id INTEGER NOT NULL, slot INTEGER NOT NULL, data TEXT NOT NULL, PRIMARY KEY(chunk_id, slot))`,
				metadataTextTable(s.table, i)))
		}
	}

	if len(s.schema.Auxiliary) > 0 {
		cols := ""
		for _, a := range s.schema.Auxiliary {
			cols += fmt.Sprintf(", %s", quoteIdent(a.Name))
		}
		stmts = append(stmts, fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (rowid INTEGER PRIMARY KEY%s)`, auxiliaryTable(s.table), cols))
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return vecerr.Resourcef("chunkstore", fmt.Errorf("create shadow table: %w", err))
		}
	}
	return nil
}

// DropShadowTables removes every shadow table for this vec0 table —
// called from xDestroy when the table is dropped.
func (s *Store) DropShadowTables() error {
	names := []string{infoTable(s.table), chunksTable(s.table), rowidsTable(s.table)}
	for i := range s.schema.Vectors {
		names = append(names, vectorTable(s.table, i))
	}
	for i, m := range s.schema.Metadata {
		names = append(names, metadataTable(s.table, i))
		if m.Type == tableopts.MetaText {
			names = append(names, metadataTextTable(s.table, i))
		}
	}
	if len(s.schema.Auxiliary) > 0 {
		names = append(names, auxiliaryTable(s.table))
	}
	for _, n := range names {
		if _, err := s.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, n)); err != nil {
			return vecerr.Resourcef("chunkstore", fmt.Errorf("drop shadow table %s: %w", n, err))
		}
	}
	return nil
}

// SaveInfo upserts a key/value pair in the info table.
func (s *Store) SaveInfo(key, value string) error {
	_, err := s.db.Exec(fmt.Sprintf(`INSERT INTO %s(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, infoTable(s.table)), key, value)
	if err != nil {
		return vecerr.Resourcef("chunkstore", err)
	}
	return nil
}

// LoadInfo reads a key from the info table.
func (s *Store) LoadInfo(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, infoTable(s.table)), key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, vecerr.Resourcef("chunkstore", err)
	}
	return value, true, nil
}

// LatestChunk returns the most recently created chunk for partitionKey,
// the allocation target per §4.3, whether or not it still has room;
// AllocateSlot checks its validity for a free slot.
func (s *Store) LatestChunk(partitionKey string) (int64, bool, error) {
	var chunkID int64
	err := s.db.QueryRow(fmt.Sprintf(
		`SELECT chunk_id FROM %s WHERE partition_key IS ? ORDER BY chunk_id DESC LIMIT 1`,
		chunksTable(s.table)), partitionKey).Scan(&chunkID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, vecerr.Resourcef("chunkstore", err)
	}
	return chunkID, true, nil
}

// CreateChunk inserts a zeroed chunk row plus a paired zeroed row in
// every vector-chunk and metadata shadow table.
func (s *Store) CreateChunk(partitionKey string) (int64, error) {
	size := s.chunkSize
	validity := make([]byte, bitset.ByteLen(size))
	rowids := make([]byte, size*8)

	res, err := s.db.Exec(fmt.Sprintf(
		`INSERT INTO %s(partition_key, size, validity, rowids) VALUES(?, ?, ?, ?)`,
		chunksTable(s.table)), partitionKey, size, validity, rowids)
	if err != nil {
		return 0, vecerr.Resourcef("chunkstore", err)
	}
	chunkID, err := res.LastInsertId()
	if err != nil {
		return 0, vecerr.Resourcef("chunkstore", err)
	}

	for i, col := range s.schema.Vectors {
		buf := make([]byte, size*col.Kind.ByteLen(col.Dim))
		if _, err := s.db.Exec(fmt.Sprintf(`INSERT INTO %s(chunk_id, vectors) VALUES(?, ?)`,
			vectorTable(s.table, i)), chunkID, buf); err != nil {
			return 0, vecerr.Resourcef("chunkstore", err)
		}
	}
	for i, col := range s.schema.Metadata {
		buf := make([]byte, metadata.BufferLen(col.Type, size))
		if _, err := s.db.Exec(fmt.Sprintf(`INSERT INTO %s(chunk_id, data) VALUES(?, ?)`,
			metadataTable(s.table, i)), chunkID, buf); err != nil {
			return 0, vecerr.Resourcef("chunkstore", err)
		}
	}
	return chunkID, nil
}

// AllocateSlot finds the first zero bit in the latest chunk's
// validity bitmap for partitionKey, creating a new chunk if none
// exists or the latest is full.
func (s *Store) AllocateSlot(partitionKey string) (chunkID int64, slot int, err error) {
	chunkID, exists, err := s.LatestChunk(partitionKey)
	if err != nil {
		return 0, 0, err
	}
	if exists {
		v, err := s.ReadValidity(chunkID)
		if err != nil {
			return 0, 0, err
		}
		if i, ok := v.FirstZero(s.chunkSize); ok {
			return chunkID, i, nil
		}
	}
	chunkID, err = s.CreateChunk(partitionKey)
	if err != nil {
		return 0, 0, err
	}
	return chunkID, 0, nil
}

// ReadValidity returns the chunk's validity bitmap, verifying its
// length against the expected stride.
func (s *Store) ReadValidity(chunkID int64) (bitset.Bitmap, error) {
	var buf []byte
	err := s.db.QueryRow(fmt.Sprintf(`SELECT validity FROM %s WHERE chunk_id = ?`, chunksTable(s.table)), chunkID).Scan(&buf)
	if err != nil {
		return nil, vecerr.Internalf("chunkstore", "chunk %d: missing validity row: %v", chunkID, err)
	}
	want := bitset.ByteLen(s.chunkSize)
	if len(buf) != want {
		return nil, vecerr.Internalf("chunkstore", "chunk %d: validity length %d, want %d", chunkID, len(buf), want)
	}
	return bitset.Bitmap(buf), nil
}

func (s *Store) writeValidity(chunkID int64, v bitset.Bitmap) error {
	_, err := s.db.Exec(fmt.Sprintf(`UPDATE %s SET validity = ? WHERE chunk_id = ?`, chunksTable(s.table)), []byte(v), chunkID)
	if err != nil {
		return vecerr.Resourcef("chunkstore", err)
	}
	return nil
}

// SetValid sets the validity bit for slot, the commit point for an insert.
func (s *Store) SetValid(chunkID int64, slot int) error {
	v, err := s.ReadValidity(chunkID)
	if err != nil {
		return err
	}
	v.Set(slot)
	return s.writeValidity(chunkID, v)
}

// ClearValid clears the validity bit for slot, the first step of a delete.
func (s *Store) ClearValid(chunkID int64, slot int) error {
	v, err := s.ReadValidity(chunkID)
	if err != nil {
		return err
	}
	v.Clear(slot)
	return s.writeValidity(chunkID, v)
}

// ReadRowids returns the chunk's flat rowid array, verifying length.
func (s *Store) ReadRowids(chunkID int64) ([]int64, error) {
	var buf []byte
	err := s.db.QueryRow(fmt.Sprintf(`SELECT rowids FROM %s WHERE chunk_id = ?`, chunksTable(s.table)), chunkID).Scan(&buf)
	if err != nil {
		return nil, vecerr.Internalf("chunkstore", "chunk %d: missing rowids row: %v", chunkID, err)
	}
	want := s.chunkSize * 8
	if len(buf) != want {
		return nil, vecerr.Internalf("chunkstore", "chunk %d: rowids length %d, want %d", chunkID, len(buf), want)
	}
	out := make([]int64, s.chunkSize)
	for i := range out {
		out[i] = decodeInt64(buf[i*8:])
	}
	return out, nil
}

func (s *Store) readRowidsRaw(chunkID int64) ([]byte, error) {
	var buf []byte
	err := s.db.QueryRow(fmt.Sprintf(`SELECT rowids FROM %s WHERE chunk_id = ?`, chunksTable(s.table)), chunkID).Scan(&buf)
	if err != nil {
		return nil, vecerr.Internalf("chunkstore", "chunk %d: missing rowids row: %v", chunkID, err)
	}
	return buf, nil
}

// WriteRowid writes the 8-byte rowid into slot.
func (s *Store) WriteRowid(chunkID int64, slot int, rowid int64) error {
	buf, err := s.readRowidsRaw(chunkID)
	if err != nil {
		return err
	}
	encodeInt64(buf[slot*8:], rowid)
	_, err = s.db.Exec(fmt.Sprintf(`UPDATE %s SET rowids = ? WHERE chunk_id = ?`, chunksTable(s.table)), buf, chunkID)
	if err != nil {
		return vecerr.Resourcef("chunkstore", err)
	}
	return nil
}

// ClearRowid zeroes slot's rowid.
func (s *Store) ClearRowid(chunkID int64, slot int) error {
	return s.WriteRowid(chunkID, slot, 0)
}

// ReadVectorBuffer returns the full vector blob for column colIdx.
func (s *Store) ReadVectorBuffer(chunkID int64, colIdx int) ([]byte, error) {
	col := s.schema.Vectors[colIdx]
	var buf []byte
	err := s.db.QueryRow(fmt.Sprintf(`SELECT vectors FROM %s WHERE chunk_id = ?`, vectorTable(s.table, colIdx)), chunkID).Scan(&buf)
	if err != nil {
		return nil, vecerr.Internalf("chunkstore", "chunk %d col %d: missing vector row: %v", chunkID, colIdx, err)
	}
	want := s.chunkSize * col.Kind.ByteLen(col.Dim)
	if len(buf) != want {
		return nil, vecerr.Internalf("chunkstore", "chunk %d col %d: vector buffer length %d, want %d", chunkID, colIdx, len(buf), want)
	}
	return buf, nil
}

// WriteVectorSlot writes raw into the slot'th element of column colIdx.
func (s *Store) WriteVectorSlot(chunkID int64, colIdx, slot int, raw []byte) error {
	col := s.schema.Vectors[colIdx]
	buf, err := s.ReadVectorBuffer(chunkID, colIdx)
	if err != nil {
		return err
	}
	stride := col.Kind.ByteLen(col.Dim)
	if len(raw) != stride {
		return vecerr.Internalf("chunkstore", "chunk %d col %d: write length %d, want stride %d", chunkID, colIdx, len(raw), stride)
	}
	copy(buf[slot*stride:(slot+1)*stride], raw)
	_, err = s.db.Exec(fmt.Sprintf(`UPDATE %s SET vectors = ? WHERE chunk_id = ?`, vectorTable(s.table, colIdx)), buf, chunkID)
	if err != nil {
		return vecerr.Resourcef("chunkstore", err)
	}
	return nil
}

// ZeroVectorSlot zeroes the slot'th element of column colIdx.
func (s *Store) ZeroVectorSlot(chunkID int64, colIdx, slot int) error {
	col := s.schema.Vectors[colIdx]
	stride := col.Kind.ByteLen(col.Dim)
	return s.WriteVectorSlot(chunkID, colIdx, slot, make([]byte, stride))
}

// ReadMetadataBuffer returns the full metadata blob for column colIdx.
func (s *Store) ReadMetadataBuffer(chunkID int64, colIdx int) ([]byte, error) {
	col := s.schema.Metadata[colIdx]
	var buf []byte
	err := s.db.QueryRow(fmt.Sprintf(`SELECT data FROM %s WHERE chunk_id = ?`, metadataTable(s.table, colIdx)), chunkID).Scan(&buf)
	if err != nil {
		return nil, vecerr.Internalf("chunkstore", "chunk %d meta %d: missing row: %v", chunkID, colIdx, err)
	}
	want := metadata.BufferLen(col.Type, s.chunkSize)
	if len(buf) != want {
		return nil, vecerr.Internalf("chunkstore", "chunk %d meta %d: buffer length %d, want %d", chunkID, colIdx, len(buf), want)
	}
	return buf, nil
}

// WriteMetadataBuffer persists the full metadata blob for column colIdx.
func (s *Store) WriteMetadataBuffer(chunkID int64, colIdx int, buf []byte) error {
	_, err := s.db.Exec(fmt.Sprintf(`UPDATE %s SET data = ? WHERE chunk_id = ?`, metadataTable(s.table, colIdx)), buf, chunkID)
	if err != nil {
		return vecerr.Resourcef("chunkstore", err)
	}
	return nil
}

// TextOverflow returns a metadata.TextOverflow adapter for column colIdx.
func (s *Store) TextOverflow(colIdx int) metadata.TextOverflow {
	return &textOverflowAdapter{store: s, colIdx: colIdx}
}

type textOverflowAdapter struct {
	store  *Store
	colIdx int
}

func (a *textOverflowAdapter) Get(chunkID int64, slot int) (string, error) {
	var s string
	err := a.store.db.QueryRow(fmt.Sprintf(`SELECT data FROM %s WHERE chunk_id = ? AND slot = ?`,
		metadataTextTable(a.store.table, a.colIdx)), chunkID, slot).Scan(&s)
	if err != nil {
		return "", fmt.Errorf("read text overflow: %w", err)
	}
	return s, nil
}

func (a *textOverflowAdapter) Set(chunkID int64, slot int, value string) error {
	_, err := a.store.db.Exec(fmt.Sprintf(
		`INSERT INTO %s(chunk_id, slot, data) VALUES(?, ?, ?)
		 ON CONFLICT(chunk_id, slot) DO UPDATE SET data = excluded.data`,
		metadataTextTable(a.store.table, a.colIdx)), chunkID, slot, value)
	if err != nil {
		return fmt.Errorf("write text overflow: %w", err)
	}
	return nil
}

func (a *textOverflowAdapter) Delete(chunkID int64, slot int) error {
	_, err := a.store.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE chunk_id = ? AND slot = ?`,
		metadataTextTable(a.store.table, a.colIdx)), chunkID, slot)
	if err != nil {
		return fmt.Errorf("delete text overflow: %w", err)
	}
	return nil
}

// PartitionChunks returns every chunk id belonging to partitionKey, in
// creation order.
func (s *Store) PartitionChunks(partitionKey string) ([]int64, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT chunk_id FROM %s WHERE partition_key IS ? ORDER BY chunk_id ASC`,
		chunksTable(s.table)), partitionKey)
	if err != nil {
		return nil, vecerr.Resourcef("chunkstore", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, vecerr.Resourcef("chunkstore", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AllChunks returns every chunk id in the table, in creation order —
// used by full-scan plans with no partition predicate.
func (s *Store) AllChunks() ([]int64, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT chunk_id FROM %s ORDER BY chunk_id ASC`, chunksTable(s.table)))
	if err != nil {
		return nil, vecerr.Resourcef("chunkstore", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, vecerr.Resourcef("chunkstore", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ChunkSize returns the configured slot count per chunk.
func (s *Store) ChunkSize() int { return s.chunkSize }

// ChunkPartitionKey returns the partition key a chunk belongs to, for
// rendering a row's partition column value from its (chunk, slot)
// without a separate per-row copy of the key.
func (s *Store) ChunkPartitionKey(chunkID int64) (string, error) {
	var key string
	err := s.db.QueryRow(fmt.Sprintf(`SELECT partition_key FROM %s WHERE chunk_id = ?`,
		chunksTable(s.table)), chunkID).Scan(&key)
	if err != nil {
		return "", vecerr.Resourcef("chunkstore", err)
	}
	return key, nil
}

// DistinctPartitionKeys returns every partition key with at least one
// chunk, used by compaction to iterate partitions independently.
func (s *Store) DistinctPartitionKeys() ([]string, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT DISTINCT partition_key FROM %s`, chunksTable(s.table)))
	if err != nil {
		return nil, vecerr.Resourcef("chunkstore", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var pk sql.NullString
		if err := rows.Scan(&pk); err != nil {
			return nil, vecerr.Resourcef("chunkstore", err)
		}
		out = append(out, pk.String)
	}
	return out, rows.Err()
}

// DeleteChunk removes a chunk row and its paired vector/metadata rows
// entirely — only safe once every slot in the chunk is invalid,
// called by compaction after draining a chunk of its live rows.
func (s *Store) DeleteChunk(chunkID int64) error {
	stmts := []string{
		fmt.Sprintf(`DELETE FROM %s WHERE chunk_id = ?`, chunksTable(s.table)),
	}
	for i := range s.schema.Vectors {
		stmts = append(stmts, fmt.Sprintf(`DELETE FROM %s WHERE chunk_id = ?`, vectorTable(s.table, i)))
	}
	for i, m := range s.schema.Metadata {
		stmts = append(stmts, fmt.Sprintf(`DELETE FROM %s WHERE chunk_id = ?`, metadataTable(s.table, i)))
		if m.Type == tableopts.MetaText {
			stmts = append(stmts, fmt.Sprintf(`DELETE FROM %s WHERE chunk_id = ?`, metadataTextTable(s.table, i)))
		}
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt, chunkID); err != nil {
			return vecerr.Resourcef("chunkstore", err)
		}
	}
	return nil
}

func encodeInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

func decodeInt64(b []byte) int64 {
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	return int64(u)
}
