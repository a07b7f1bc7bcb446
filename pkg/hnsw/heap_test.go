package hnsw

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestCandidateItemTieBreak exercises §4.4's tie-break rule: distances
// compared strictly, lower NodeId wins on ties.
func TestCandidateItemTieBreak(t *testing.T) {
	a := candidateItem{id: 2, distance: 1.0}
	b := candidateItem{id: 3, distance: 1.0}
	require.True(t, a.less(b))
	require.False(t, b.less(a))

	c := candidateItem{id: 5, distance: 0.5}
	require.True(t, c.less(a))
}

func TestMinHeapOrdersByDistanceThenID(t *testing.T) {
	h := &minHeap{}
	heap.Push(h, candidateItem{id: 3, distance: 1.0})
	heap.Push(h, candidateItem{id: 2, distance: 1.0})
	heap.Push(h, candidateItem{id: 1, distance: 0.1})

	first := heap.Pop(h).(candidateItem)
	require.Equal(t, NodeId(1), first.id)
	second := heap.Pop(h).(candidateItem)
	require.Equal(t, NodeId(2), second.id)
	third := heap.Pop(h).(candidateItem)
	require.Equal(t, NodeId(3), third.id)
}

func TestSortedAscendingDrainsWorstFirstHeapIntoClosestFirstSlice(t *testing.T) {
	h := &maxHeap{}
	heap.Push(h, candidateItem{id: 1, distance: 3.0})
	heap.Push(h, candidateItem{id: 2, distance: 1.0})
	heap.Push(h, candidateItem{id: 3, distance: 2.0})

	out := sortedAscending(h)
	require.Equal(t, []NodeId{2, 3, 1}, []NodeId{out[0].id, out[1].id, out[2].id})
}
