// Package planner implements the query planner (component C6): it
// classifies the host's best-index request into a Point, Full-scan,
// or KNN plan, rejects illegal shapes, and encodes the chosen plan
// into an idxnum/idxstr pair the executor decodes in Filter.
package planner

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"vec0/internal/vecerr"
)

// Column index sentinels for constraints that don't target a declared
// table column.
const (
	RowidColumn  = -1
	LimitColumn  = -2
	OffsetColumn = -3
)

// BindRowidEq.ColumnIndex sentinels distinguishing where the row
// identity came from: the host's native rowid (already the engine's
// internal id, no directory lookup needed) versus an explicitly
// declared primary key column (an external value the row directory
// must resolve to an internal id).
const (
	RowidViaImplicit   = -1
	RowidViaExplicitPK = -2
)

// ColumnRole classifies a declared (or hidden) column for planning purposes.
type ColumnRole int

const (
	RolePK ColumnRole = iota
	RoleVector
	RolePartition
	RoleMetadata
	RoleAuxiliary
	RoleDistanceHidden
	RoleKHidden
	// RoleCommandHidden is the hidden eponymous column named after the
	// table itself, reachable only via `INSERT INTO t(t) VALUES(...)`.
	// It carries no query-time meaning; BestIndex never binds it.
	RoleCommandHidden
)

// ColumnInfo describes one column's role and, for vector/metadata
// columns, its index into the schema's Vectors/Metadata slice.
type ColumnInfo struct {
	Role        ColumnRole
	SchemaIndex int
}

// Constraint is one usable-or-not predicate the host offers to BestIndex.
type Constraint struct {
	ColumnIndex int // RowidColumn/LimitColumn/OffsetColumn, or an index into the Columns slice
	Op          Op
	Usable      bool
}

// OrderByTerm is one ORDER BY clause term.
type OrderByTerm struct {
	ColumnIndex int
	Desc        bool
}

// Kind is the chosen plan shape.
type Kind int

const (
	KindPoint Kind = iota
	KindFullScan
	KindKNN
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindKNN:
		return "knn"
	default:
		return "fullscan"
	}
}

// BindingRole tags what an argv slot carries at Filter time.
type BindingRole int

const (
	BindMatchVector BindingRole = iota
	BindK
	BindLimit
	BindPartitionEq
	BindMetadata
	BindRowidEq
	BindDistanceRange
)

// Binding maps one argv position to the constraint it satisfies.
type Binding struct {
	ArgvIndex   int
	Role        BindingRole
	ColumnIndex int // the schema/Columns index this binding targets (meaningless for BindK/BindLimit)
	Op          Op
}

// QueryPlan is the planner's output: which constraints are used, in what
// argv order, and the host-facing idxnum/idxstr/cost.
type QueryPlan struct {
	Kind           Kind
	VectorColumn   int // schema index of the MATCH'd vector column, valid when Kind == KindKNN
	Bindings       []Binding
	UsedConstraint []int // index into the original Constraints slice, one entry per binding, parallel to Bindings
	IdxNum         int
	IdxStr         string
	EstimatedCost  float64
	EstimatedRows  int64
}

// Stats supplies row-count context the planner needs for cost estimation.
type Stats struct {
	TotalRows int64
}

// Plan classifies constraints+orderBy against columns (indexed the
// same way the host indexes them) and produces a QueryPlan, or a
// *vecerr.Error of kind KindPlan for an illegal query shape.
func Plan(columns []ColumnInfo, constraints []Constraint, orderBy []OrderByTerm, stats Stats) (*QueryPlan, error) {
	role := func(ci int) (ColumnRole, int, bool) {
		if ci < 0 || ci >= len(columns) {
			return 0, 0, false
		}
		return columns[ci].Role, columns[ci].SchemaIndex, true
	}

	var matchIdx = -1
	var matchVectorSchemaIdx int
	var kIdx, limitIdx = -1, -1
	var rowidEqIdx = -1
	var pkEqIdx = -1
	var partitionIdx, metadataIdx, distanceIdx, auxIdx []int

	for i, c := range constraints {
		if !c.Usable {
			continue
		}
		if c.ColumnIndex == LimitColumn && c.Op == OpLIMIT {
			limitIdx = i
			continue
		}
		if c.ColumnIndex == OffsetColumn && c.Op == OpOFFSET {
			continue
		}
		if c.ColumnIndex == RowidColumn {
			if c.Op == OpEQ {
				rowidEqIdx = i
			}
			continue
		}
		r, _, ok := role(c.ColumnIndex)
		if !ok {
			continue
		}
		switch r {
		case RoleVector:
			if c.Op == OpMATCH {
				if matchIdx != -1 {
					return nil, vecerr.Planf("multiple-match", "a KNN query may use at most one MATCH operator")
				}
				matchIdx = i
				_, matchVectorSchemaIdx, _ = role(c.ColumnIndex)
			}
		case RolePK:
			if c.Op == OpEQ {
				pkEqIdx = i
			}
		case RolePartition:
			partitionIdx = append(partitionIdx, i)
		case RoleMetadata:
			metadataIdx = append(metadataIdx, i)
		case RoleAuxiliary:
			auxIdx = append(auxIdx, i)
		case RoleKHidden:
			if c.Op == OpEQ {
				kIdx = i
			}
		case RoleDistanceHidden:
			switch c.Op {
			case OpGT, OpGE, OpLT, OpLE:
				distanceIdx = append(distanceIdx, i)
			}
		}
	}

	isKNN := matchIdx != -1

	if isKNN && len(auxIdx) > 0 {
		return nil, vecerr.Planf("aux-in-knn-where", "auxiliary columns may not appear in a KNN query's WHERE clause")
	}

	if len(orderBy) > 1 {
		return nil, vecerr.Planf("secondary-order-key", "ORDER BY may not combine distance with a secondary key")
	}
	if len(orderBy) == 1 {
		r, _, ok := role(orderBy[0].ColumnIndex)
		if ok && r == RoleDistanceHidden {
			if !isKNN {
				return nil, vecerr.Planf("order-by-distance-no-match", "ORDER BY distance requires a MATCH operator")
			}
			if orderBy[0].Desc {
				return nil, vecerr.Planf("desc-order-by-distance", "ORDER BY distance does not support DESC")
			}
		}
	}

	p := &QueryPlan{}

	if isKNN {
		if kIdx == -1 && limitIdx == -1 {
			return nil, vecerr.Planf("missing-k-or-limit", "a KNN query requires either k = ? or LIMIT")
		}
		if kIdx != -1 && limitIdx != -1 {
			return nil, vecerr.Planf("both-k-and-limit", "a KNN query may not specify both k and LIMIT")
		}

		p.Kind = KindKNN
		p.VectorColumn = matchVectorSchemaIdx
		argv := 0
		add := func(constraintIdx int, role BindingRole, colIdx int, op Op) {
			argv++
			p.Bindings = append(p.Bindings, Binding{ArgvIndex: argv, Role: role, ColumnIndex: colIdx, Op: op})
			p.UsedConstraint = append(p.UsedConstraint, constraintIdx)
		}
		add(matchIdx, BindMatchVector, matchVectorSchemaIdx, OpMATCH)
		if kIdx != -1 {
			add(kIdx, BindK, 0, OpEQ)
		} else {
			add(limitIdx, BindLimit, 0, OpLIMIT)
		}
		if rowidEqIdx != -1 {
			add(rowidEqIdx, BindRowidEq, RowidViaImplicit, OpEQ)
		}
		if pkEqIdx != -1 {
			add(pkEqIdx, BindRowidEq, RowidViaExplicitPK, OpEQ)
		}
		for _, ci := range partitionIdx {
			_, schemaIdx, _ := role(constraints[ci].ColumnIndex)
			add(ci, BindPartitionEq, schemaIdx, constraints[ci].Op)
		}
		for _, ci := range metadataIdx {
			_, schemaIdx, _ := role(constraints[ci].ColumnIndex)
			add(ci, BindMetadata, schemaIdx, constraints[ci].Op)
		}
		for _, ci := range distanceIdx {
			add(ci, BindDistanceRange, 0, constraints[ci].Op)
		}

		p.EstimatedCost = 3.0 * float64(stats.TotalRows) / float64(maxInt64(1, estimatedK(kIdx, limitIdx)))
		p.EstimatedRows = estimatedK(kIdx, limitIdx)
	} else if rowidEqIdx != -1 || pkEqIdx != -1 {
		p.Kind = KindPoint
		if rowidEqIdx != -1 {
			p.Bindings = append(p.Bindings, Binding{ArgvIndex: 1, Role: BindRowidEq, ColumnIndex: RowidViaImplicit, Op: OpEQ})
			p.UsedConstraint = append(p.UsedConstraint, rowidEqIdx)
		} else {
			p.Bindings = append(p.Bindings, Binding{ArgvIndex: 1, Role: BindRowidEq, ColumnIndex: RowidViaExplicitPK, Op: OpEQ})
			p.UsedConstraint = append(p.UsedConstraint, pkEqIdx)
		}
		p.EstimatedCost = 10
		p.EstimatedRows = 1
	} else {
		p.Kind = KindFullScan
		argv := 0
		add := func(constraintIdx int, role BindingRole, colIdx int, op Op) {
			argv++
			p.Bindings = append(p.Bindings, Binding{ArgvIndex: argv, Role: role, ColumnIndex: colIdx, Op: op})
			p.UsedConstraint = append(p.UsedConstraint, constraintIdx)
		}
		for _, ci := range partitionIdx {
			_, schemaIdx, _ := role(constraints[ci].ColumnIndex)
			add(ci, BindPartitionEq, schemaIdx, constraints[ci].Op)
		}
		for _, ci := range metadataIdx {
			_, schemaIdx, _ := role(constraints[ci].ColumnIndex)
			add(ci, BindMetadata, schemaIdx, constraints[ci].Op)
		}
		p.EstimatedCost = float64(stats.TotalRows)
		if p.EstimatedCost == 0 {
			p.EstimatedCost = 1000
		}
		p.EstimatedRows = stats.TotalRows
	}

	assignArgvIndices(p.Bindings, p.UsedConstraint)

	p.IdxNum = int(p.Kind)
	p.IdxStr = Encode(p)
	return p, nil
}

// assignArgvIndices overwrites each Binding's ArgvIndex with the rank
// of its constraint among all used constraints, ascending by original
// constraint index — go-sqlite3 (like SQLite generally) assigns each
// used constraint's argvIndex sequentially in ascending constraint-array
// order, independent of the order BestIndex happened to process them
// in. bindings and usedConstraint are parallel slices.
func assignArgvIndices(bindings []Binding, usedConstraint []int) {
	order := make([]int, len(usedConstraint))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return usedConstraint[order[a]] < usedConstraint[order[b]]
	})
	rank := make([]int, len(usedConstraint))
	for r, idx := range order {
		rank[idx] = r + 1
	}
	for i := range bindings {
		bindings[i].ArgvIndex = rank[i]
	}
}

func estimatedK(kIdx, limitIdx int) int64 {
	// Without a literal value available at plan time (SQLite only
	// supplies literal constants in some builds), assume a
	// conservative default; the executor uses the real bound value at
	// Filter time for correctness, this estimate only affects cost.
	if kIdx != -1 || limitIdx != -1 {
		return 10
	}
	return 1
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Encode renders a QueryPlan's idxnum/bindings into the idxstr program the
// cursor's Filter reads back via Decode. Format:
// "<kind>[;vc=<vectorCol>]|<argv>:<role>:<col>:<op>,..." (the ";vc="
// part is written for KNN plans only).
func Encode(p *QueryPlan) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(p.Kind)))
	if p.Kind == KindKNN {
		b.WriteString(fmt.Sprintf(";vc=%d", p.VectorColumn))
	}
	b.WriteByte('|')
	for i, bind := range p.Bindings {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d:%d:%d:%d", bind.ArgvIndex, bind.Role, bind.ColumnIndex, bind.Op)
	}
	return b.String()
}

// Decode parses an idxstr produced by Encode back into a Kind, vector
// column index, and binding list.
func Decode(idxStr string) (Kind, int, []Binding, error) {
	parts := strings.SplitN(idxStr, "|", 2)
	if len(parts) != 2 {
		return 0, 0, nil, fmt.Errorf("malformed idxstr %q", idxStr)
	}
	head := strings.SplitN(parts[0], ";", 2)
	kindNum, err := strconv.Atoi(head[0])
	if err != nil {
		return 0, 0, nil, fmt.Errorf("malformed idxstr kind %q", head[0])
	}
	kind := Kind(kindNum)
	vectorCol := 0
	if len(head) == 2 && strings.HasPrefix(head[1], "vc=") {
		vectorCol, _ = strconv.Atoi(strings.TrimPrefix(head[1], "vc="))
	}

	var bindings []Binding
	if parts[1] != "" {
		for _, tok := range strings.Split(parts[1], ",") {
			fields := strings.SplitN(tok, ":", 4)
			if len(fields) != 4 {
				return 0, 0, nil, fmt.Errorf("malformed idxstr binding %q", tok)
			}
			argv, _ := strconv.Atoi(fields[0])
			roleNum, _ := strconv.Atoi(fields[1])
			col, _ := strconv.Atoi(fields[2])
			opNum, _ := strconv.Atoi(fields[3])
			bindings = append(bindings, Binding{
				ArgvIndex:   argv,
				Role:        BindingRole(roleNum),
				ColumnIndex: col,
				Op:          Op(opNum),
			})
		}
	}
	return kind, vectorCol, bindings, nil
}
