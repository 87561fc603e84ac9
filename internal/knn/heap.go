package knn

import (
	"container/heap"
	"sort"
)

// Result is one candidate row surfaced by the KNN executor.
type Result struct {
	Rowid    int64
	Distance float64
	seq      int64
}

// topK is a bounded max-heap over the k closest results seen so far:
// the root is always the current worst (largest distance, or on a
// tie the most recently inserted) candidate, so a new candidate only
// has to be compared against the root to decide whether it displaces
// something.
type topK struct {
	items []Result
	k     int
	next  int64
}

func newTopK(k int) *topK {
	return &topK{k: k}
}

func (h *topK) Len() int { return len(h.items) }
func (h *topK) Less(i, j int) bool {
	if h.items[i].Distance != h.items[j].Distance {
		return h.items[i].Distance > h.items[j].Distance
	}
	return h.items[i].seq > h.items[j].seq
}
func (h *topK) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topK) Push(x interface{}) {
	h.items = append(h.items, x.(Result))
}
func (h *topK) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// Offer considers a candidate for inclusion in the top-k set.
func (h *topK) Offer(rowid int64, distance float64) {
	r := Result{Rowid: rowid, Distance: distance, seq: h.next}
	h.next++
	if h.k <= 0 {
		return
	}
	if h.Len() < h.k {
		heap.Push(h, r)
		return
	}
	worst := h.items[0]
	if distance < worst.Distance || (distance == worst.Distance && r.seq < worst.seq) {
		h.items[0] = r
		heap.Fix(h, 0)
	}
}

// Sorted drains the heap into an ascending-distance slice, ties broken
// by insertion order.
func (h *topK) Sorted() []Result {
	out := make([]Result, len(h.items))
	copy(out, h.items)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].seq < out[j].seq
	})
	return out
}
