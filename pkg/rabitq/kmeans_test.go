package rabitq_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
)

func TestKMeansPlusPlus_SeparatesTwoClusters(t *testing.T) {
	vectors := [][]float32{
		{0, 0}, {0.1, 0}, {0, 0.1},
		{10, 10}, {10.1, 10}, {10, 10.1},
	}

	centroids, err := rabitq.KMeansPlusPlus(vectors, 2, rabitq.KMeansConfig{
		NumIterations: 10,
		Metric:        rabitq.SquaredEuclidean,
		RandomSeed:    1,
	})
	require.NoError(t, err)
	require.Len(t, centroids, 2)

	dist := func(a, b []float32) float32 {
		var s float32
		for i := range a {
			d := a[i] - b[i]
			s += d * d
		}
		return s
	}
	require.Greater(t, dist(centroids[0], centroids[1]), float32(50))
}

func TestKMeansPlusPlus_TooFewVectors(t *testing.T) {
	_, err := rabitq.KMeansPlusPlus([][]float32{{1, 2}}, 3, rabitq.KMeansConfig{NumIterations: 1})
	require.Error(t, err)
}
