package rabitq

import (
	"math"
	"math/rand"

	"github.com/therealutkarshpriyadarshi/vector/pkg/zvecerr"
)

// KMeansConfig controls the coarse-clustering stage of training (§4.2 step
// 2). Grounded on internal/quantization.QuantizationConfig and
// internal/quantization.KMeansPlusPlus, generalized to a seeded, metric-aware
// routine shared by the RaBitQ coarse codebook.
type KMeansConfig struct {
	NumIterations int
	Metric        Metric
	RandomSeed    int64
}

// KMeansPlusPlus clusters vectors into k centroids using k-means++
// initialization followed by Lloyd iterations, identical in structure to
// internal/quantization.KMeansPlusPlus but parameterized over rabitq.Metric
// and returning an error typed per §7 instead of a bare fmt.Errorf.
func KMeansPlusPlus(vectors [][]float32, k int, cfg KMeansConfig) ([][]float32, error) {
	if len(vectors) < k {
		return nil, zvecerr.New(zvecerr.InvalidArgument, "not enough vectors for requested cluster count")
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, zvecerr.New(zvecerr.InvalidArgument, "empty training vectors")
	}

	dim := len(vectors[0])
	centroids := make([][]float32, k)
	r := rand.New(rand.NewSource(cfg.RandomSeed))

	firstIdx := r.Intn(len(vectors))
	centroids[0] = append([]float32(nil), vectors[firstIdx]...)

	for c := 1; c < k; c++ {
		distances := make([]float32, len(vectors))
		var total float32
		for i, vec := range vectors {
			minDist := float32(math.MaxFloat32)
			for j := 0; j < c; j++ {
				d := nearestDistance(vec, centroids[j], cfg.Metric)
				if d < minDist {
					minDist = d
				}
			}
			distances[i] = minDist * minDist
			total += distances[i]
		}

		if total > 0 {
			target := r.Float32() * total
			var cumulative float32
			chosen := len(vectors) - 1
			for i, d := range distances {
				cumulative += d
				if cumulative >= target {
					chosen = i
					break
				}
			}
			centroids[c] = append([]float32(nil), vectors[chosen]...)
		} else {
			centroids[c] = append([]float32(nil), vectors[r.Intn(len(vectors))]...)
		}
	}

	for iter := 0; iter < cfg.NumIterations; iter++ {
		clusters := make([][][]float32, k)
		for _, vec := range vectors {
			best := nearestCentroid(vec, centroids, cfg.Metric)
			clusters[best] = append(clusters[best], vec)
		}

		converged := true
		for c := range centroids {
			if len(clusters[c]) == 0 {
				continue
			}
			newCentroid := make([]float32, dim)
			for _, vec := range clusters[c] {
				for d := 0; d < dim; d++ {
					newCentroid[d] += vec[d]
				}
			}
			for d := 0; d < dim; d++ {
				newCentroid[d] /= float32(len(clusters[c]))
			}
			if euclideanF32Scalar(centroids[c], newCentroid) > 1e-6 {
				converged = false
			}
			centroids[c] = newCentroid
		}
		if converged {
			break
		}
	}

	return centroids, nil
}

func nearestDistance(v []float32, c []float32, metric Metric) float32 {
	switch metric {
	case InnerProduct, Cosine:
		return -innerProductF32Scalar(v, c)
	default:
		return euclideanF32Scalar(v, c)
	}
}

func nearestCentroid(v []float32, centroids [][]float32, metric Metric) int {
	best := 0
	bestDist := float32(math.MaxFloat32)
	for i, c := range centroids {
		d := nearestDistance(v, c, metric)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}
