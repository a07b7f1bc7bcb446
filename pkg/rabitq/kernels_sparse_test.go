package rabitq_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
)

func TestSquaredEuclideanSparse(t *testing.T) {
	a := rabitq.SparseVector{Indices: []uint32{2, 5, 7}, Values: []float32{1, 1, 1}}
	b := rabitq.SparseVector{Indices: []uint32{2, 5, 9}, Values: []float32{1, 2, 1}}

	got := rabitq.SquaredEuclideanSparse(a, b)
	require.InDelta(t, float32(3.0), got, 1e-6)
}

func TestInnerProductSparse_NoOverlap(t *testing.T) {
	a := rabitq.SparseVector{Indices: []uint32{1, 3}, Values: []float32{2, 4}}
	b := rabitq.SparseVector{Indices: []uint32{2, 5}, Values: []float32{9, 9}}
	require.Equal(t, float32(0), rabitq.InnerProductSparse(a, b))
}

func TestCosineSparse_Identical(t *testing.T) {
	a := rabitq.SparseVector{Indices: []uint32{0, 4}, Values: []float32{3, 4}}
	require.InDelta(t, float32(0), rabitq.CosineSparse(a, a), 1e-5)
}
