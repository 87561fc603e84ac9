// Package knn implements the KNN executor (component C7): given a
// query vector and a plan from internal/planner, it walks every
// candidate chunk, narrows slots with the validity bitmap and any
// metadata/rowid predicates, computes distances with internal/vecvalue,
// and returns the k closest rows.
package knn

import (
	"context"

	"vec0/internal/bitset"
	"vec0/internal/chunkstore"
	"vec0/internal/metadata"
	"vec0/internal/rowdir"
	"vec0/internal/tableopts"
	"vec0/internal/vecerr"
	"vec0/internal/vecvalue"
)

// MetadataFilter is one metadata predicate to AND into the candidate set.
type MetadataFilter struct {
	ColumnIndex int
	Op          metadata.Op
	Args        metadata.Args
}

// DistanceRange bounds acceptable distances, built from constraints on
// the hidden distance column.
type DistanceRange struct {
	HasLow        bool
	Low           float64
	LowInclusive  bool
	HasHigh       bool
	High          float64
	HighInclusive bool
}

func (r DistanceRange) allows(d float64) bool {
	if r.HasLow {
		if r.LowInclusive {
			if d < r.Low {
				return false
			}
		} else if d <= r.Low {
			return false
		}
	}
	if r.HasHigh {
		if r.HighInclusive {
			if d > r.High {
				return false
			}
		} else if d >= r.High {
			return false
		}
	}
	return true
}

// Query parameterizes one KNN search.
type Query struct {
	VectorColumn  int
	Query         vecvalue.Vector
	K             int
	PartitionKey  *string
	RowidEq       *int64
	Filters       []MetadataFilter
	DistanceRange DistanceRange
}

// Execute runs one KNN search against store, returning up to q.K
// results ordered by ascending distance.
func Execute(ctx context.Context, store *chunkstore.Store, dir *rowdir.Directory, schema *tableopts.Schema, q Query) ([]Result, error) {
	col := schema.Vectors[q.VectorColumn]
	metric := schema.DistanceMetricFor(&col)

	var chunks []int64
	var err error
	if q.PartitionKey != nil {
		chunks, err = store.PartitionChunks(*q.PartitionKey)
	} else {
		chunks, err = store.AllChunks()
	}
	if err != nil {
		return nil, err
	}

	heap := newTopK(q.K)

	var rowidTargetChunk int64 = -1
	var rowidTargetSlot int = -1
	if q.RowidEq != nil {
		entry, ok, err := dir.LookupByID(*q.RowidEq)
		if err != nil {
			return nil, err
		}
		if !ok {
			return heap.Sorted(), nil
		}
		rowidTargetChunk = entry.ChunkID
		rowidTargetSlot = entry.ChunkOffset
	}

	for _, chunkID := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, vecerr.Interrupted()
		}
		if rowidTargetChunk != -1 && chunkID != rowidTargetChunk {
			continue
		}

		validity, err := store.ReadValidity(chunkID)
		if err != nil {
			return nil, err
		}
		size := store.ChunkSize()

		candidates := validity.Clone()
		for _, f := range q.Filters {
			mc := schema.Metadata[f.ColumnIndex]
			buf, err := store.ReadMetadataBuffer(chunkID, f.ColumnIndex)
			if err != nil {
				return nil, err
			}
			match, err := metadata.Evaluate(mc.Type, buf, size, f.Op, f.Args, store.TextOverflow(f.ColumnIndex), chunkID)
			if err != nil {
				return nil, err
			}
			bitset.AndInPlace(candidates, match)
		}

		if rowidTargetSlot != -1 {
			masked := bitset.New(size)
			if candidates.Test(rowidTargetSlot) {
				masked.Set(rowidTargetSlot)
			}
			candidates = masked
		}

		vecBuf, err := store.ReadVectorBuffer(chunkID, q.VectorColumn)
		if err != nil {
			return nil, err
		}
		rowids, err := store.ReadRowids(chunkID)
		if err != nil {
			return nil, err
		}
		stride := col.Kind.ByteLen(col.Dim)

		for slot := 0; slot < size; slot++ {
			if slot%64 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, vecerr.Interrupted()
				}
			}
			if !candidates.Test(slot) {
				continue
			}
			cand := vecvalue.Vector{Kind: col.Kind, Dim: col.Dim, Raw: vecBuf[slot*stride : (slot+1)*stride]}
			dist, err := distance(metric, q.Query, cand)
			if err != nil {
				return nil, err
			}
			if !q.DistanceRange.allows(dist) {
				continue
			}
			heap.Offer(rowids[slot], dist)
		}
	}

	return heap.Sorted(), nil
}

func distance(metric string, a, b vecvalue.Vector) (float64, error) {
	switch metric {
	case "l1":
		return vecvalue.L1(a, b)
	case "cosine":
		return vecvalue.Cosine(a, b)
	case "hamming":
		return vecvalue.Hamming(a, b)
	default:
		return vecvalue.L2(a, b)
	}
}
