package rabitq_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
)

func TestSquaredEuclideanF32_Block(t *testing.T) {
	db := []float32{0, 0, 1, 0, 0, 1}
	queries := []float32{0, 0}
	out := make([]float32, 3)
	rabitq.SquaredEuclideanF32(db, 3, queries, 1, 2, out)
	require.Equal(t, []float32{0, 1, 1}, out)
}

func TestInnerProductF32_Block(t *testing.T) {
	db := []float32{1, 0, 0, 1}
	queries := []float32{1, 1}
	out := make([]float32, 2)
	rabitq.InnerProductF32(db, 2, queries, 1, 2, out)
	require.Equal(t, []float32{1, 1}, out)
}

func TestCosineF32_IdenticalVector(t *testing.T) {
	db := []float32{3, 4}
	queries := []float32{3, 4}
	out := make([]float32, 1)
	rabitq.CosineF32(db, 1, queries, 1, 2, out)
	require.InDelta(t, float32(0), out[0], 1e-5)
}
