package hnsw

import "container/heap"

// candidateItem pairs a NodeId with its distance to the current query, the
// unit both the beam-search frontier and the top-k result heap operate on.
// Grounded on the teacher's heapItem/minHeap/maxHeap in insert.go/search.go,
// generalized to a single pair of heap types shared by both the insertion
// and query paths (pkg/hnsw previously defined them once per file; here one
// definition serves both, since both now run through the same Context).
type candidateItem struct {
	id       NodeId
	distance float32
}

// less implements the tie-break rule of §4.4: "distances compared strictly;
// on ties, lower NodeId wins."
func (a candidateItem) less(b candidateItem) bool {
	if a.distance != b.distance {
		return a.distance < b.distance
	}
	return a.id < b.id
}

// minHeap is a min-heap of candidateItem (smallest distance popped first),
// the beam-search candidate frontier C of §3/§4.4.
type minHeap []candidateItem

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].less(h[j]) }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidateItem)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
func (h minHeap) peek() (candidateItem, bool) {
	if len(h) == 0 {
		return candidateItem{}, false
	}
	return h[0], true
}

// maxHeap is a max-heap of candidateItem (largest distance popped first),
// the bounded top-k / beam-width result set W of §3/§4.4.
type maxHeap []candidateItem

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[j].less(h[i]) }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidateItem)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
func (h maxHeap) peek() (candidateItem, bool) {
	if len(h) == 0 {
		return candidateItem{}, false
	}
	return h[0], true
}

// sortedAscending drains a maxHeap (top-k result set W) into a slice sorted
// closest-first, matching §4.4 step 4's "Return W sorted ascending."
func sortedAscending(h *maxHeap) []candidateItem {
	out := make([]candidateItem, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(candidateItem)
	}
	return out
}
