package rabitq_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
)

// TestQuantizer_OppositeVectors mirrors the D=8,C=1,k=0 scenario: two
// antipodal vectors, a query identical to one of them, one-bit codes alone
// must recover an estimate of (near) zero for the matching vector.
func TestQuantizer_OppositeVectors(t *testing.T) {
	v1 := []float32{1, 1, 1, 1, 1, 1, 1, 1}
	v2 := []float32{-1, -1, -1, -1, -1, -1, -1, -1}
	query := []float32{1, 1, 1, 1, 1, 1, 1, 1}

	cb, err := rabitq.Train([][]float32{v1, v2}, rabitq.TrainConfig{
		ClusterCount: 1,
		KMeansIters:  5,
		RotatorKind:  rabitq.RotatorKac,
		Seed:         1,
		Metric:       rabitq.SquaredEuclidean,
	})
	require.NoError(t, err)

	quantizer, err := rabitq.NewQuantizer(cb, 0, false)
	require.NoError(t, err)

	e1, err := quantizer.Encode(v1)
	require.NoError(t, err)
	e2, err := quantizer.Encode(v2)
	require.NoError(t, err)

	qe, err := quantizer.TransformQuery(query)
	require.NoError(t, err)

	est1, bound1, err := quantizer.Estimate(&e1, qe)
	require.NoError(t, err)
	est2, _, err := quantizer.Estimate(&e2, qe)
	require.NoError(t, err)

	require.Less(t, est1, est2, "query should estimate closer to the identical vector")
	require.GreaterOrEqual(t, bound1, float32(0))
}

func TestQuantizer_DimensionMismatch(t *testing.T) {
	cb, err := rabitq.Train([][]float32{{1, 2, 3, 4}}, rabitq.TrainConfig{
		ClusterCount: 1,
		KMeansIters:  1,
		RotatorKind:  rabitq.RotatorFHT,
		Seed:         7,
	})
	require.NoError(t, err)
	quantizer, err := rabitq.NewQuantizer(cb, 2, false)
	require.NoError(t, err)

	_, err = quantizer.Encode([]float32{1, 2, 3})
	require.Error(t, err)
}

func TestNewQuantizer_RejectsOverCap(t *testing.T) {
	cb := &rabitq.Codebook{D: 4, DRot: 4, ClusterCount: 256, Centroids: make([]float32, 256*4)}
	_, err := rabitq.NewQuantizer(cb, 8, false)
	require.Error(t, err)
}
