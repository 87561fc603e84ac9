package vtab

import (
	"github.com/mattn/go-sqlite3"

	"vec0/internal/chunkstore"
	"vec0/internal/planner"
	"vec0/internal/rowdir"
	"vec0/internal/tableopts"
)

// VTab is the per-table handle the host keeps for the lifetime of one
// `CREATE VIRTUAL TABLE ... USING vec0(...)` declaration.
type VTab struct {
	table  string
	schema *tableopts.Schema
	store  *chunkstore.Store
	dir    *rowdir.Directory
	layout *layout
}

// Open implements sqlite3.VTab.
func (v *VTab) Open() (sqlite3.VTabCursor, error) {
	return &Cursor{vtab: v}, nil
}

// Disconnect implements sqlite3.VTab: the connection is closing, but
// the shadow tables persist.
func (v *VTab) Disconnect() error { return nil }

// Destroy implements sqlite3.VTab: `DROP TABLE` was issued, so the
// shadow tables must go too.
func (v *VTab) Destroy() error {
	return v.store.DropShadowTables()
}

// BestIndex implements sqlite3.VTab: translate the host's constraint
// set into internal/planner's vocabulary, classify it into a QueryPlan,
// and report back which constraints the engine will consume and the
// idxnum/idxstr Filter receives.
func (v *VTab) BestIndex(csts []sqlite3.InfoConstraint, obs []sqlite3.InfoOrderBy) (*sqlite3.IndexResult, error) {
	constraints := make([]planner.Constraint, len(csts))
	for i, c := range csts {
		op, ok := translateOp(c.Op)
		constraints[i] = planner.Constraint{
			ColumnIndex: c.Column,
			Op:          op,
			Usable:      c.Usable && ok,
		}
	}
	var orderBy []planner.OrderByTerm
	for _, o := range obs {
		orderBy = append(orderBy, planner.OrderByTerm{ColumnIndex: o.Column, Desc: o.Desc})
	}

	totalRows, _ := v.estimateRows()
	plan, err := planner.Plan(v.layout.columns, constraints, orderBy, planner.Stats{TotalRows: totalRows})
	if err != nil {
		return nil, err
	}

	used := make([]bool, len(csts))
	for _, idx := range plan.UsedConstraint {
		used[idx] = true
	}

	return &sqlite3.IndexResult{
		Used:           used,
		IdxNum:         plan.IdxNum,
		IdxStr:         plan.IdxStr,
		AlreadyOrdered: plan.Kind == planner.KindKNN,
		EstimatedCost:  plan.EstimatedCost,
		EstimatedRows:  plan.EstimatedRows,
	}, nil
}

func (v *VTab) estimateRows() (int64, error) {
	chunks, err := v.store.AllChunks()
	if err != nil {
		return 0, err
	}
	return int64(len(chunks)) * int64(v.store.ChunkSize()), nil
}
