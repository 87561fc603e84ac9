// Package vtab wires the rest of the engine into the host's SQLite
// virtual-table protocol via github.com/mattn/go-sqlite3: it
// translates the driver's BestIndex/Filter/Update calls into
// internal/planner, internal/knn, and internal/writepath calls, and
// registers the vec_* scalar functions. This is the one package that
// depends on go-sqlite3's vtab types directly, so that a host API
// mismatch is isolated here rather than spread through the rest of
// the engine.
package vtab

import (
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"vec0/internal/metadata"
	"vec0/internal/planner"
	"vec0/internal/tableopts"
)

// layout derives the full column list (visible columns in the order
// the host will index them, plus the three trailing hidden columns:
// distance, k, and the eponymous command column) and the per-column
// planner role.
type layout struct {
	schema  *tableopts.Schema
	columns []planner.ColumnInfo
	names   []string
}

const (
	distanceColumnSuffix = "distance"
	kColumnSuffix        = "k"
)

// commandColumnName returns the name of the hidden eponymous column
// used for `INSERT INTO t(t) VALUES('optimize')`-style maintenance
// commands: the table's own name, the same convention FTS5 and the
// original vec0 use for their eponymous command channel.
func commandColumnName(schema *tableopts.Schema) string { return schema.TableName }

func newLayout(schema *tableopts.Schema) *layout {
	l := &layout{schema: schema}

	if schema.PKKind != tableopts.PKRowid {
		l.names = append(l.names, schema.PKName)
		l.columns = append(l.columns, planner.ColumnInfo{Role: planner.RolePK})
	}
	for i := range schema.Vectors {
		l.names = append(l.names, schema.Vectors[i].Name)
		l.columns = append(l.columns, planner.ColumnInfo{Role: planner.RoleVector, SchemaIndex: i})
	}
	for i := range schema.Partitions {
		l.names = append(l.names, schema.Partitions[i].Name)
		l.columns = append(l.columns, planner.ColumnInfo{Role: planner.RolePartition, SchemaIndex: i})
	}
	for i := range schema.Metadata {
		l.names = append(l.names, schema.Metadata[i].Name)
		l.columns = append(l.columns, planner.ColumnInfo{Role: planner.RoleMetadata, SchemaIndex: i})
	}
	for i := range schema.Auxiliary {
		l.names = append(l.names, schema.Auxiliary[i].Name)
		l.columns = append(l.columns, planner.ColumnInfo{Role: planner.RoleAuxiliary, SchemaIndex: i})
	}
	l.names = append(l.names, distanceColumnSuffix)
	l.columns = append(l.columns, planner.ColumnInfo{Role: planner.RoleDistanceHidden})
	l.names = append(l.names, kColumnSuffix)
	l.columns = append(l.columns, planner.ColumnInfo{Role: planner.RoleKHidden})
	l.names = append(l.names, commandColumnName(schema))
	l.columns = append(l.columns, planner.ColumnInfo{Role: planner.RoleCommandHidden})

	return l
}

func (l *layout) distanceColumn() int { return len(l.names) - 3 }
func (l *layout) kColumn() int        { return len(l.names) - 2 }
func (l *layout) commandColumn() int  { return len(l.names) - 1 }

// declareSQL renders the CREATE TABLE(...) the host uses to learn the
// vtab's shape, with the three trailing hidden columns.
func (l *layout) declareSQL() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE x(")
	for i, name := range l.names {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, `"%s"`, name)
		if i == l.distanceColumn() || i == l.kColumn() || i == l.commandColumn() {
			b.WriteString(" HIDDEN")
		}
	}
	b.WriteString(")")
	return b.String()
}

// partitionKeySeparator joins multiple declared partition-key column
// values into the single composite string internal/chunkstore keys
// chunks on; 0x1f (ASCII unit separator) can't appear in ordinary text
// input, so it never collides with a real column value.
const partitionKeySeparator = "\x1f"

// buildPartitionKey composes the chunkstore partition key from a
// schema-index-keyed set of equality values. A table with a single
// partition column uses that value directly; with several, only rows
// binding every declared partition column can match a real chunk.
func buildPartitionKey(schema *tableopts.Schema, values map[int]string) string {
	if len(schema.Partitions) == 1 {
		return values[0]
	}
	parts := make([]string, len(schema.Partitions))
	for i := range schema.Partitions {
		parts[i] = values[i]
	}
	return strings.Join(parts, partitionKeySeparator)
}

// translateOp maps go-sqlite3's SQLITE_INDEX_CONSTRAINT_* operator
// codes onto the planner's own Op vocabulary.
func translateOp(op byte) (planner.Op, bool) {
	switch op {
	case sqlite3.OpEQ:
		return planner.OpEQ, true
	case sqlite3.OpGT:
		return planner.OpGT, true
	case sqlite3.OpLE:
		return planner.OpLE, true
	case sqlite3.OpLT:
		return planner.OpLT, true
	case sqlite3.OpGE:
		return planner.OpGE, true
	case sqlite3.OpMATCH:
		return planner.OpMATCH, true
	case sqlite3.OpLIKE:
		return planner.OpLIKE, true
	case sqlite3.OpGLOB:
		return planner.OpGLOB, true
	case sqlite3.OpNE:
		return planner.OpNE, true
	case sqlite3.OpIS:
		return planner.OpIS, true
	case sqlite3.OpISNULL:
		return planner.OpISNULL, true
	case sqlite3.OpISNOTNULL:
		return planner.OpISNOTNULL, true
	default:
		return 0, false
	}
}

// translateMetaOp maps a usable planner.Op (already narrowed to a
// metadata-column constraint) onto the metadata package's own
// predicate operator enum.
func translateMetaOp(op planner.Op) (metadata.Op, bool) {
	switch op {
	case planner.OpEQ:
		return metadata.OpEq, true
	case planner.OpNE:
		return metadata.OpNe, true
	case planner.OpLT:
		return metadata.OpLt, true
	case planner.OpLE:
		return metadata.OpLe, true
	case planner.OpGT:
		return metadata.OpGt, true
	case planner.OpGE:
		return metadata.OpGe, true
	case planner.OpLIKE:
		return metadata.OpLike, true
	case planner.OpGLOB:
		return metadata.OpGlob, true
	default:
		return 0, false
	}
}
