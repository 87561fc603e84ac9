package vtab

import (
	"vec0/internal/planner"
	"vec0/internal/rowdir"
	"vec0/internal/tableopts"
	"vec0/internal/vecerr"
	"vec0/internal/vecvalue"
	"vec0/internal/writepath"
)

// Update implements sqlite3.VTabUpdater, translating the host's xUpdate
// argv convention into writepath calls: argv[0] == nil is an insert;
// len(argv) == 1 is a delete keyed on argv[0]; anything else is an
// update, with argv[0] the existing rowid and argv[2:] the new column
// values in declared order (the same order layout.names lists them).
func (v *VTab) Update(argv []interface{}, rowidPtr *int64) error {
	switch {
	case len(argv) == 1:
		return v.updateDelete(argv[0])
	case argv[0] == nil:
		return v.updateInsert(argv, rowidPtr)
	default:
		return v.updateReplace(argv, rowidPtr)
	}
}

func (v *VTab) updateDelete(rowidArg interface{}) error {
	id, err := coerceInt(rowidArg)
	if err != nil {
		return err
	}
	w := writepath.New(v.store, v.dir, v.schema)
	return w.Delete(id)
}

// updateInsert handles the xUpdate insert case. For an implicit-rowid
// table there is no declared PK column among argv[2:], so there is no
// external identity to key the row directory's rowid_value column on
// other than the engine's own internal id: vec0 doesn't honor a
// caller-supplied explicit rowid in that case (argv[1] is ignored),
// the internal id becomes the row's externally visible rowid too.
//
// An insert that binds the hidden eponymous command column
// (`INSERT INTO t(t) VALUES('optimize')`) never reaches the row store
// at all: it's a maintenance command, not a row, dispatched here the
// way the original vec0Update dispatches on the same rowid-less insert
// shape.
func (v *VTab) updateInsert(argv []interface{}, rowidPtr *int64) error {
	if cmd, ok := v.commandArg(argv[2:]); ok {
		return v.runCommand(cmd)
	}

	row, err := v.rowFromArgv(argv[2:])
	if err != nil {
		return err
	}
	w := writepath.New(v.store, v.dir, v.schema)
	id, err := w.Insert(row)
	if err != nil {
		return err
	}
	if v.schema.PKKind == tableopts.PKRowid {
		if err := v.dir.SetRowidValue(id, id); err != nil {
			return err
		}
	}
	*rowidPtr = id
	return nil
}

// updateReplace handles the UPDATE case. The row directory entry is
// addressed by the old rowid (argv[0]); vec0's declared PK column, if
// any, can never change value across an update, so a mismatch between
// argv[0]'s row and the new PK column value is rejected rather than
// silently renaming the row.
func (v *VTab) updateReplace(argv []interface{}, rowidPtr *int64) error {
	oldID, err := coerceInt(argv[0])
	if err != nil {
		return err
	}
	row, err := v.rowFromArgv(argv[2:])
	if err != nil {
		return err
	}

	if v.schema.PKKind != tableopts.PKRowid {
		entry, ok, err := v.dir.LookupByID(oldID)
		if err != nil {
			return err
		}
		if !ok {
			return vecerr.Constraintf("update target id %d does not exist", oldID)
		}
		if pkChanged(v.schema, entry, row) {
			return vecerr.Constraintf("the primary key column cannot be changed by UPDATE")
		}
	}

	w := writepath.New(v.store, v.dir, v.schema)
	if err := w.Update(oldID, row); err != nil {
		return err
	}
	*rowidPtr = oldID
	return nil
}

// commandArg reports whether the hidden eponymous column carries a
// non-null value among an xUpdate insert's column tuple, returning it
// coerced to a string command name if so.
func (v *VTab) commandArg(cols []interface{}) (string, bool) {
	idx := v.layout.commandColumn()
	if idx >= len(cols) || cols[idx] == nil {
		return "", false
	}
	cmd, err := coerceText(cols[idx])
	if err != nil || cmd == "" {
		return "", false
	}
	return cmd, true
}

// runCommand dispatches a maintenance command written to the hidden
// eponymous column. "optimize" is the only command the original vec0
// recognizes; anything else is rejected rather than silently ignored.
func (v *VTab) runCommand(cmd string) error {
	switch cmd {
	case "optimize":
		return writepath.New(v.store, v.dir, v.schema).Optimize()
	default:
		return vecerr.Constraintf("unknown vec0 command %q", cmd)
	}
}

func pkChanged(schema *tableopts.Schema, entry rowdir.Entry, row *writepath.Row) bool {
	if schema.PKKind == tableopts.PKText {
		return entry.RowidText != row.ExternalText
	}
	return entry.RowidInt != row.ExternalInt
}

// rowFromArgv maps one xUpdate column-value tuple (in layout.names
// order, the three trailing hidden distance/k/command columns
// included; this loop skips them) onto a writepath.Row.
func (v *VTab) rowFromArgv(cols []interface{}) (*writepath.Row, error) {
	schema := v.schema
	row := &writepath.Row{
		Vectors:   map[string]vecvalue.Vector{},
		Metadata:  map[string]interface{}{},
		Auxiliary: map[string]interface{}{},
	}
	partitionVals := map[int]string{}

	columns := v.layout.columns
	for i, info := range columns {
		if i >= len(cols) {
			break
		}
		val := cols[i]
		switch info.Role {
		case planner.RolePK:
			if schema.PKKind == tableopts.PKText {
				s, err := coerceText(val)
				if err != nil {
					return nil, err
				}
				row.ExternalText = s
			} else {
				n, err := coerceInt(val)
				if err != nil {
					return nil, err
				}
				row.ExternalInt = n
			}
		case planner.RoleVector:
			vc := schema.Vectors[info.SchemaIndex]
			vec, err := parseQueryVector(val, vc)
			if err != nil {
				return nil, err
			}
			row.Vectors[vc.Name] = vec
		case planner.RolePartition:
			s, err := coerceText(val)
			if err != nil {
				return nil, err
			}
			partitionVals[info.SchemaIndex] = s
		case planner.RoleMetadata:
			mc := schema.Metadata[info.SchemaIndex]
			if mc.Type == tableopts.MetaBoolean && val != nil {
				if n, ok := val.(int64); !ok || (n != 0 && n != 1) {
					return nil, vecerr.Typef(mc.Name, "boolean column %q accepts only 0 or 1, got %v", mc.Name, val)
				}
			}
			v, err := coerceMetaValue(mc.Type, val)
			if err != nil {
				return nil, err
			}
			row.Metadata[mc.Name] = v
		case planner.RoleAuxiliary:
			ac := schema.Auxiliary[info.SchemaIndex]
			v, err := coerceMetaValue(ac.Type, val)
			if err != nil {
				return nil, err
			}
			row.Auxiliary[ac.Name] = v
		}
	}
	row.PartitionKey = buildPartitionKey(schema, partitionVals)
	return row, nil
}

func coerceMetaValue(t tableopts.MetaType, val interface{}) (interface{}, error) {
	if val == nil {
		return nil, nil
	}
	switch t {
	case tableopts.MetaBoolean:
		return coerceBool(val)
	case tableopts.MetaInteger:
		return coerceInt(val)
	case tableopts.MetaFloat:
		return coerceFloat(val)
	case tableopts.MetaText:
		return coerceText(val)
	}
	return nil, vecerr.Internalf("vtab", "unknown metadata type %v", t)
}
