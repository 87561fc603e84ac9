package vtab

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mattn/go-sqlite3"

	"vec0/internal/bitset"
	"vec0/internal/knn"
	"vec0/internal/metadata"
	"vec0/internal/planner"
	"vec0/internal/rowdir"
	"vec0/internal/tableopts"
	"vec0/internal/vecerr"
	"vec0/internal/vecvalue"
)

// cursorRow is one result row buffered at Filter time: an internal id
// (the value chunk rowid buffers store) plus, for a KNN plan, the
// distance computed for it.
type cursorRow struct {
	id          int64
	distance    float64
	hasDistance bool
}

// Cursor implements sqlite3.VTabCursor. Filter runs the whole query
// eagerly and buffers its result rows; Next/Column/Rowid then just
// walk the buffer, matching how internal/knn.Execute already has to
// materialize the full candidate set to rank it.
type Cursor struct {
	vtab      *VTab
	kind      planner.Kind
	vectorCol int
	rows      []cursorRow
	pos       int
}

// Close implements sqlite3.VTabCursor.
func (c *Cursor) Close() error { return nil }

// Next implements sqlite3.VTabCursor.
func (c *Cursor) Next() error {
	c.pos++
	return nil
}

// EOF implements sqlite3.VTabCursor.
func (c *Cursor) EOF() bool { return c.pos >= len(c.rows) }

// Rowid implements sqlite3.VTabCursor, returning the internal id the
// chunk's rowid buffer and row directory both key on.
func (c *Cursor) Rowid() (int64, error) {
	if c.EOF() {
		return 0, vecerr.Internalf("vtab", "Rowid called past EOF")
	}
	return c.rows[c.pos].id, nil
}

// Filter implements sqlite3.VTabCursor: decode the idxstr BestIndex
// chose, resolve vals against it, and run the matching query shape.
func (c *Cursor) Filter(idxNum int, idxStr string, vals []interface{}) error {
	kind, vectorCol, bindings, err := planner.Decode(idxStr)
	if err != nil {
		return vecerr.Internalf("vtab", "decode idxstr %q: %v", idxStr, err)
	}
	c.kind = kind
	c.vectorCol = vectorCol
	c.pos = 0
	c.rows = nil

	switch kind {
	case planner.KindKNN:
		return c.filterKNN(vectorCol, bindings, vals)
	case planner.KindPoint:
		return c.filterPoint(bindings, vals)
	default:
		return c.filterFullScan(bindings, vals)
	}
}

func bindingValue(vals []interface{}, b planner.Binding) (interface{}, bool) {
	i := b.ArgvIndex - 1
	if i < 0 || i >= len(vals) {
		return nil, false
	}
	return vals[i], true
}

func (c *Cursor) resolveRowidBinding(colIndex int, val interface{}) (int64, bool, error) {
	schema := c.vtab.schema
	dir := c.vtab.dir

	useText := colIndex == planner.RowidViaExplicitPK && schema.PKKind == tableopts.PKText
	if useText {
		s, err := coerceText(val)
		if err != nil {
			return 0, false, err
		}
		entry, ok, err := dir.LookupByText(s)
		if err != nil || !ok {
			return 0, ok, err
		}
		return entry.ID, true, nil
	}

	iv, err := coerceInt(val)
	if err != nil {
		return 0, false, err
	}
	entry, ok, err := dir.LookupByInt(iv)
	if err != nil || !ok {
		return 0, ok, err
	}
	return entry.ID, true, nil
}

func (c *Cursor) filterKNN(vectorCol int, bindings []planner.Binding, vals []interface{}) error {
	schema := c.vtab.schema
	vc := schema.Vectors[vectorCol]

	q := knn.Query{VectorColumn: vectorCol}
	haveK := false
	partitionVals := map[int]string{}
	havePartition := false

	for _, b := range bindings {
		val, ok := bindingValue(vals, b)
		if !ok {
			continue
		}
		switch b.Role {
		case planner.BindMatchVector:
			v, err := parseQueryVector(val, vc)
			if err != nil {
				return err
			}
			q.Query = v
		case planner.BindK:
			k, err := coerceInt(val)
			if err != nil {
				return err
			}
			q.K = int(k)
			haveK = true
		case planner.BindLimit:
			k, err := coerceInt(val)
			if err != nil {
				return err
			}
			q.K = int(k)
			haveK = true
		case planner.BindPartitionEq:
			s, err := coerceText(val)
			if err != nil {
				return err
			}
			partitionVals[b.ColumnIndex] = s
			havePartition = true
		case planner.BindMetadata:
			f, err := buildMetadataFilter(schema, b, val)
			if err != nil {
				return err
			}
			q.Filters = append(q.Filters, f)
		case planner.BindRowidEq:
			id, ok, err := c.resolveRowidBinding(b.ColumnIndex, val)
			if err != nil {
				return err
			}
			if !ok {
				// no such row: empty result, short-circuit.
				c.rows = nil
				return nil
			}
			q.RowidEq = &id
		case planner.BindDistanceRange:
			f, err := coerceFloat(val)
			if err != nil {
				return err
			}
			setDistanceRangeBound(&q.DistanceRange, b.Op, f)
		}
	}
	if !haveK {
		return vecerr.Planf("missing-k-or-limit", "KNN query has no k or LIMIT bound at Filter time")
	}
	if havePartition {
		key := buildPartitionKey(schema, partitionVals)
		q.PartitionKey = &key
	}

	results, err := knn.Execute(context.Background(), c.vtab.store, c.vtab.dir, schema, q)
	if err != nil {
		return err
	}
	c.rows = make([]cursorRow, len(results))
	for i, r := range results {
		c.rows[i] = cursorRow{id: r.Rowid, distance: r.Distance, hasDistance: true}
	}
	return nil
}

func (c *Cursor) filterPoint(bindings []planner.Binding, vals []interface{}) error {
	if len(bindings) != 1 {
		return vecerr.Internalf("vtab", "point plan must carry exactly one binding, got %d", len(bindings))
	}
	b := bindings[0]
	val, ok := bindingValue(vals, b)
	if !ok {
		return vecerr.Internalf("vtab", "point plan binding has no argv value")
	}
	id, ok, err := c.resolveRowidBinding(b.ColumnIndex, val)
	if err != nil {
		return err
	}
	if !ok {
		c.rows = nil
		return nil
	}
	c.rows = []cursorRow{{id: id}}
	return nil
}

func (c *Cursor) filterFullScan(bindings []planner.Binding, vals []interface{}) error {
	schema := c.vtab.schema
	store := c.vtab.store

	partitionVals := map[int]string{}
	havePartition := false
	var filters []knn.MetadataFilter
	for _, b := range bindings {
		val, ok := bindingValue(vals, b)
		if !ok {
			continue
		}
		switch b.Role {
		case planner.BindPartitionEq:
			s, err := coerceText(val)
			if err != nil {
				return err
			}
			partitionVals[b.ColumnIndex] = s
			havePartition = true
		case planner.BindMetadata:
			f, err := buildMetadataFilter(schema, b, val)
			if err != nil {
				return err
			}
			filters = append(filters, f)
		}
	}

	var chunks []int64
	var err error
	if havePartition {
		chunks, err = store.PartitionChunks(buildPartitionKey(schema, partitionVals))
	} else {
		chunks, err = store.AllChunks()
	}
	if err != nil {
		return err
	}

	for _, chunkID := range chunks {
		validity, err := store.ReadValidity(chunkID)
		if err != nil {
			return err
		}
		size := store.ChunkSize()
		candidates := validity.Clone()
		for _, f := range filters {
			mc := schema.Metadata[f.ColumnIndex]
			buf, err := store.ReadMetadataBuffer(chunkID, f.ColumnIndex)
			if err != nil {
				return err
			}
			match, err := metadata.Evaluate(mc.Type, buf, size, f.Op, f.Args, store.TextOverflow(f.ColumnIndex), chunkID)
			if err != nil {
				return err
			}
			bitset.AndInPlace(candidates, match)
		}
		rowids, err := store.ReadRowids(chunkID)
		if err != nil {
			return err
		}
		for slot := 0; slot < size; slot++ {
			if !candidates.Test(slot) {
				continue
			}
			c.rows = append(c.rows, cursorRow{id: rowids[slot]})
		}
	}
	return nil
}

func buildMetadataFilter(schema *tableopts.Schema, b planner.Binding, val interface{}) (knn.MetadataFilter, error) {
	mc := schema.Metadata[b.ColumnIndex]
	op, ok := translateMetaOp(b.Op)
	if !ok {
		return knn.MetadataFilter{}, vecerr.Planf("unsupported-metadata-op", "column %q does not support this operator", mc.Name)
	}

	var args metadata.Args
	switch mc.Type {
	case tableopts.MetaBoolean:
		v, err := coerceBool(val)
		if err != nil {
			return knn.MetadataFilter{}, err
		}
		args.Bool = v
	case tableopts.MetaInteger:
		v, err := coerceInt(val)
		if err != nil {
			return knn.MetadataFilter{}, err
		}
		args.Int = v
	case tableopts.MetaFloat:
		v, err := coerceFloat(val)
		if err != nil {
			return knn.MetadataFilter{}, err
		}
		args.Float = v
	case tableopts.MetaText:
		v, err := coerceText(val)
		if err != nil {
			return knn.MetadataFilter{}, err
		}
		if op == metadata.OpLike || op == metadata.OpGlob {
			args.Pattern = v
		} else {
			args.Text = v
		}
	}
	return knn.MetadataFilter{ColumnIndex: b.ColumnIndex, Op: op, Args: args}, nil
}

func setDistanceRangeBound(r *knn.DistanceRange, op planner.Op, v float64) {
	switch op {
	case planner.OpGT:
		r.HasLow, r.Low, r.LowInclusive = true, v, false
	case planner.OpGE:
		r.HasLow, r.Low, r.LowInclusive = true, v, true
	case planner.OpLT:
		r.HasHigh, r.High, r.HighInclusive = true, v, false
	case planner.OpLE:
		r.HasHigh, r.High, r.HighInclusive = true, v, true
	}
}

func parseQueryVector(val interface{}, vc tableopts.VectorColumn) (vecvalue.Vector, error) {
	switch v := val.(type) {
	case []byte:
		return vecvalue.ParseBlob(v, vc.Kind)
	case string:
		return vecvalue.ParseText(v, vc.Kind)
	default:
		return vecvalue.Vector{}, vecerr.Typef(vc.Name, "match value for %q must be text or blob, got %T", vc.Name, val)
	}
}

// Column implements sqlite3.VTabCursor, dispatching on the column's
// planner role to read the current row's value.
func (c *Cursor) Column(ctx *sqlite3.SQLiteContext, col int) error {
	if c.EOF() {
		return vecerr.Internalf("vtab", "Column called past EOF")
	}
	row := c.rows[c.pos]
	info := c.vtab.layout.columns[col]

	switch info.Role {
	case planner.RoleDistanceHidden:
		if row.hasDistance {
			ctx.ResultDouble(row.distance)
		} else {
			ctx.ResultNull()
		}
		return nil
	case planner.RoleKHidden, planner.RoleCommandHidden:
		ctx.ResultNull()
		return nil
	}

	entry, ok, err := c.vtab.dir.LookupByID(row.id)
	if err != nil {
		return err
	}
	if !ok {
		ctx.ResultNull()
		return nil
	}

	switch info.Role {
	case planner.RolePK:
		return c.columnPK(ctx, entry)
	case planner.RoleVector:
		return c.columnVector(ctx, entry, info.SchemaIndex)
	case planner.RolePartition:
		return c.columnPartition(ctx, entry, info.SchemaIndex)
	case planner.RoleMetadata:
		return c.columnMetadata(ctx, entry, info.SchemaIndex)
	case planner.RoleAuxiliary:
		return c.columnAuxiliary(ctx, entry, col)
	}
	ctx.ResultNull()
	return nil
}

func (c *Cursor) columnPK(ctx *sqlite3.SQLiteContext, entry rowdir.Entry) error {
	if c.vtab.schema.PKKind == tableopts.PKText {
		ctx.ResultText(entry.RowidText)
	} else {
		ctx.ResultInt64(entry.RowidInt)
	}
	return nil
}

func (c *Cursor) columnVector(ctx *sqlite3.SQLiteContext, entry rowdir.Entry, schemaIdx int) error {
	vc := c.vtab.schema.Vectors[schemaIdx]
	buf, err := c.vtab.store.ReadVectorBuffer(entry.ChunkID, schemaIdx)
	if err != nil {
		return err
	}
	stride := vc.Kind.ByteLen(vc.Dim)
	start := entry.ChunkOffset * stride
	raw := make([]byte, stride)
	copy(raw, buf[start:start+stride])
	ctx.ResultBlob(raw)
	return nil
}

func (c *Cursor) columnPartition(ctx *sqlite3.SQLiteContext, entry rowdir.Entry, schemaIdx int) error {
	key, err := c.vtab.store.ChunkPartitionKey(entry.ChunkID)
	if err != nil {
		return err
	}
	pc := c.vtab.schema.Partitions[schemaIdx]
	if pc.Type == tableopts.MetaInteger {
		if key == "" {
			ctx.ResultNull()
			return nil
		}
		v, err := coerceInt(key)
		if err != nil {
			return err
		}
		ctx.ResultInt64(v)
		return nil
	}
	if key == "" {
		ctx.ResultNull()
		return nil
	}
	ctx.ResultText(key)
	return nil
}

func (c *Cursor) columnMetadata(ctx *sqlite3.SQLiteContext, entry rowdir.Entry, schemaIdx int) error {
	mc := c.vtab.schema.Metadata[schemaIdx]
	buf, err := c.vtab.store.ReadMetadataBuffer(entry.ChunkID, schemaIdx)
	if err != nil {
		return err
	}
	switch mc.Type {
	case tableopts.MetaBoolean:
		ctx.ResultInt(boolToInt(metadata.GetBool(buf, entry.ChunkOffset)))
	case tableopts.MetaInteger:
		ctx.ResultInt64(metadata.GetInt64(buf, entry.ChunkOffset))
	case tableopts.MetaFloat:
		ctx.ResultDouble(metadata.GetFloat64(buf, entry.ChunkOffset))
	case tableopts.MetaText:
		s, err := metadata.GetText(buf, entry.ChunkOffset, c.vtab.store.TextOverflow(schemaIdx), entry.ChunkID)
		if err != nil {
			return err
		}
		ctx.ResultText(s)
	}
	return nil
}

func (c *Cursor) columnAuxiliary(ctx *sqlite3.SQLiteContext, entry rowdir.Entry, col int) error {
	name := c.vtab.layout.names[col]
	v, err := c.vtab.dir.GetAuxiliary(entry.ID, name)
	if err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		ctx.ResultNull()
	case int64:
		ctx.ResultInt64(x)
	case float64:
		ctx.ResultDouble(x)
	case string:
		ctx.ResultText(x)
	case []byte:
		ctx.ResultBlob(x)
	case bool:
		ctx.ResultInt(boolToInt(x))
	default:
		ctx.ResultNull()
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// coerceInt converts an argv value (as go-sqlite3 hands it: int64,
// float64, string, or []byte) into an int64.
func coerceInt(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, vecerr.Constraintf("expected integer argument, got %T", v)
	}
}

// coerceFloat converts an argv value into a float64.
func coerceFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, vecerr.Constraintf("expected numeric argument, got %T", v)
	}
}

// coerceText converts an argv value into a string.
func coerceText(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return fmt.Sprintf("%d", x), nil
	case float64:
		return fmt.Sprintf("%g", x), nil
	case nil:
		return "", nil
	default:
		return "", vecerr.Constraintf("expected text argument, got %T", v)
	}
}

// coerceBool converts an argv value into a bool.
func coerceBool(v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string:
		return strconv.ParseBool(x)
	default:
		return false, vecerr.Constraintf("expected boolean argument, got %T", v)
	}
}
