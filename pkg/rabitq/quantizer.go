package rabitq

import (
	"math"

	"github.com/therealutkarshpriyadarshi/vector/pkg/zvecerr"
)

// This file implements the K2 RaBitQ pipeline of §4.2: training a coarse
// codebook plus rotation, encoding vectors into the 1+k bit representation,
// transforming queries into per-cluster estimators, and combining the two
// into an approximate squared distance with an error bound. Grounded on
// pkg/ivf/ivf_pq.go's Train/Encode/Search split (coarse clustering, a
// learned per-vector code, a query-side estimator struct) and on kmeans.go
// and rotator.go above for the two learned pieces.

// EncodedVector is the per-NodeId encoded representation of §3's "Encoded
// node" (the fields K3 and K4 actually need for distance estimation; K3
// owns cluster_id, f_add, f_rescale, err_bound, the two packed codes, and
// the optional raw_copy as opaque node storage, see pkg/hnsw).
type EncodedVector struct {
	ClusterID  uint16
	FAdd       float32
	FRescale   float32
	ErrBound   float32
	OneBitCode []byte
	ExBitsCode []byte
	RawCopy    []float32
}

// Codebook is the immutable, trained artifact of §3: C centroids plus a
// deterministic orthogonal rotator of side D_rot.
type Codebook struct {
	D            int
	DRot         int
	Centroids    []float32 // flattened C x D
	ClusterCount int
	Rotator      Rotator
}

func (cb *Codebook) centroid(j int) []float32 {
	return cb.Centroids[j*cb.D : j*cb.D+cb.D]
}

func padTo(v []float32, n int) []float32 {
	if len(v) == n {
		return v
	}
	out := make([]float32, n)
	copy(out, v)
	return out
}

// TrainConfig controls codebook training (§4.2 steps 1-4).
type TrainConfig struct {
	ClusterCount   int
	KMeansIters    int
	RotatorKind    RotatorKind
	Seed           int64
	Metric         Metric
}

// Train runs coarse KMeans clustering over the sampled training vectors and
// builds a deterministic rotator of the padded dimension, producing the
// codebook every encoder/query-transformer call is parameterized by.
func Train(samples [][]float32, cfg TrainConfig) (*Codebook, error) {
	if len(samples) == 0 {
		return nil, zvecerr.New(zvecerr.InvalidArgument, "empty training sample")
	}
	d := len(samples[0])
	if cfg.ClusterCount < 1 {
		return nil, zvecerr.New(zvecerr.InvalidArgument, "cluster count must be >= 1")
	}
	centroids, err := KMeansPlusPlus(samples, cfg.ClusterCount, KMeansConfig{
		NumIterations: cfg.KMeansIters,
		Metric:        cfg.Metric,
		RandomSeed:    cfg.Seed,
	})
	if err != nil {
		return nil, err
	}
	flat := make([]float32, 0, cfg.ClusterCount*d)
	for _, c := range centroids {
		flat = append(flat, c...)
	}
	dRot := PadDim(d)
	rotator := NewRotator(cfg.RotatorKind, dRot, cfg.Seed)
	return &Codebook{D: d, DRot: dRot, Centroids: flat, ClusterCount: cfg.ClusterCount, Rotator: rotator}, nil
}

// Quantizer binds a trained Codebook to a residual-bit width and a
// keep-raw policy, matching §4.2's per-index quantization settings.
type Quantizer struct {
	Codebook *Codebook
	ExBits   int
	KeepRaw  bool
}

// NewQuantizer validates the (C, k) combination against the 9-bit
// implementation cap of §4.2 ("fails with InvalidArgument if C*(1+k)
// exceeds the implementation cap (9 bits total)").
func NewQuantizer(cb *Codebook, exBits int, keepRaw bool) (*Quantizer, error) {
	if exBits < 0 || exBits > 8 {
		return nil, zvecerr.New(zvecerr.InvalidArgument, "residual bit width must be in [0,8]")
	}
	if cb.ClusterCount*(1+exBits) > 511 {
		return nil, zvecerr.New(zvecerr.InvalidArgument, "cluster count times bits per vector exceeds the implementation cap")
	}
	return &Quantizer{Codebook: cb, ExBits: exBits, KeepRaw: keepRaw}, nil
}

// nearestCentroidIdx assigns x to its coarse cluster by routing through the
// K1 blocked kernel (SquaredEuclideanF32, m=n=1) rather than a private
// scalar helper, so K2's coarse assignment shares the same distance
// primitive the rest of the pipeline exercises in batch form.
func nearestCentroidIdx(cb *Codebook, x []float32) int {
	best := 0
	bestDist := float32(math.MaxFloat32)
	var out [1]float32
	for j := 0; j < cb.ClusterCount; j++ {
		SquaredEuclideanF32(cb.centroid(j), 1, x, 1, len(x), out[:])
		if out[0] < bestDist {
			bestDist = out[0]
			best = j
		}
	}
	return best
}

func maxAbs(v []float32) float32 {
	var m float32
	for _, x := range v {
		a := x
		if a < 0 {
			a = -a
		}
		if a > m {
			m = a
		}
	}
	return m
}

func errBoundHeuristic(scale float32, dRot, exBits int) float32 {
	// §3: "err_bound ... k-dependent worst-case residual for this vector",
	// §9 admits this is empirically calibrated, not proven; halving per
	// additional residual bit matches the halving of per-dimension
	// quantization step that an extra bit buys.
	decay := float32(1.0 / float64(int(1)<<uint(exBits+1)))
	return 2 * scale * decay * float32(math.Sqrt(float64(dRot)))
}

// Encode implements §4.2's per-vector encoding pipeline.
func (q *Quantizer) Encode(x []float32) (EncodedVector, error) {
	cb := q.Codebook
	if len(x) != cb.D {
		return EncodedVector{}, zvecerr.Wrap(zvecerr.Mismatch, "encode", &DimensionMismatchError{Expected: cb.D, Got: len(x)})
	}
	j := nearestCentroidIdx(cb, x)
	paddedX := padTo(x, cb.DRot)
	paddedC := padTo(cb.centroid(j), cb.DRot)
	r := make([]float32, cb.DRot)
	var residualNorm2 float32
	for i := range r {
		r[i] = paddedX[i] - paddedC[i]
		residualNorm2 += r[i] * r[i]
	}
	y := cb.Rotator.Apply(r)

	oneBitCode := packSignBits(y)
	scale := maxAbs(y)
	if scale == 0 {
		scale = 1e-6
	}

	var exBitsCode []byte
	if q.ExBits > 0 {
		codes := make([]uint8, cb.DRot)
		maxCode := float32((int(1) << uint(q.ExBits)) - 1)
		for i, yv := range y {
			sign := float32(1)
			if yv < 0 {
				sign = -1
			}
			u := (yv - scale*sign) / scale // in roughly [-1,1]
			norm := (u + 1) / 2
			if norm < 0 {
				norm = 0
			}
			if norm > 1 {
				norm = 1
			}
			codes[i] = uint8(norm*maxCode + 0.5)
		}
		exBitsCode = packUintBits(codes, q.ExBits)
	}

	var rawCopy []float32
	if q.KeepRaw {
		rawCopy = append([]float32(nil), x...)
	}

	return EncodedVector{
		ClusterID:  uint16(j),
		FAdd:       residualNorm2,
		FRescale:   scale,
		ErrBound:   errBoundHeuristic(scale, cb.DRot, q.ExBits),
		OneBitCode: oneBitCode,
		ExBitsCode: exBitsCode,
		RawCopy:    rawCopy,
	}, nil
}

// ClusterEstimator is the per-cluster half of a QueryEstimator: everything
// needed to combine against one EncodedVector whose ClusterID selects it.
type ClusterEstimator struct {
	SignBits     []byte
	NormS2       float32
	DotQC        float32
	ExQueryCode  []int8
	ExQueryScale float32
}

// QueryEstimator is §4.2's "QueryEntity": one ClusterEstimator per codebook
// cluster, computed once per query and reused against every candidate the
// beam search visits.
type QueryEstimator struct {
	Clusters []ClusterEstimator
}

// TransformQuery implements §4.2's per-query transformation.
func (q *Quantizer) TransformQuery(query []float32) (*QueryEstimator, error) {
	cb := q.Codebook
	if len(query) != cb.D {
		return nil, zvecerr.Wrap(zvecerr.Mismatch, "transform_query", &DimensionMismatchError{Expected: cb.D, Got: len(query)})
	}
	paddedQ := padTo(query, cb.DRot)
	clusters := make([]ClusterEstimator, cb.ClusterCount)
	var dotOut [1]float32
	for j := 0; j < cb.ClusterCount; j++ {
		paddedC := padTo(cb.centroid(j), cb.DRot)
		t := make([]float32, cb.DRot)
		for i := range t {
			t[i] = paddedQ[i] - paddedC[i]
		}
		s := cb.Rotator.Apply(t)

		var normS2 float32
		for _, v := range s {
			normS2 += v * v
		}

		var exCode []int8
		var exScale float32
		if q.ExBits > 0 {
			exScale = maxAbs(s)
			if exScale == 0 {
				exScale = 1e-6
			}
			exCode = make([]int8, cb.DRot)
			for i, v := range s {
				scaled := v / exScale * 127
				if scaled > 127 {
					scaled = 127
				}
				if scaled < -128 {
					scaled = -128
				}
				exCode[i] = int8(scaled)
			}
		}

		InnerProductF32(cb.centroid(j), 1, query, 1, len(query), dotOut[:])

		clusters[j] = ClusterEstimator{
			SignBits:     packSignBits(s),
			NormS2:       normS2,
			DotQC:        dotOut[0],
			ExQueryCode:  exCode,
			ExQueryScale: exScale,
		}
	}
	return &QueryEstimator{Clusters: clusters}, nil
}

func (q *Quantizer) exCorrection(ev *EncodedVector, ce *ClusterEstimator) float32 {
	if q.ExBits == 0 || len(ev.ExBitsCode) == 0 {
		return 0
	}
	vals := unpackUintBits(ev.ExBitsCode, q.Codebook.DRot, q.ExBits)
	maxCode := float32((int(1) << uint(q.ExBits)) - 1)
	var sum float32
	for i, v := range vals {
		u := (float32(v)/maxCode)*2 - 1
		residual := u * ev.FRescale
		qval := float32(ce.ExQueryCode[i]) / 127.0 * ce.ExQueryScale
		sum += residual * qval
	}
	return sum
}

// Reconstruct rebuilds an approximate original-space vector from an encoded
// vector's cluster id, sign bits and residual bits: y_hat is rebuilt
// dimension-by-dimension from the packed codes, then un-rotated and
// re-centered on the cluster's centroid. Used for re-ranking when no
// raw_copy was kept, and for node-to-node distance during graph
// construction (pkg/hnsw's neighbor-selection heuristic needs a distance
// between two already-encoded candidates, not just query-to-candidate).
func (q *Quantizer) Reconstruct(ev *EncodedVector) []float32 {
	cb := q.Codebook
	yHat := make([]float32, cb.DRot)
	maxCode := float32((int(1) << uint(q.ExBits)) - 1)
	var exVals []uint8
	if q.ExBits > 0 && len(ev.ExBitsCode) > 0 {
		exVals = unpackUintBits(ev.ExBitsCode, cb.DRot, q.ExBits)
	}
	for i := range yHat {
		sign := float32(1)
		if unpackBit(ev.OneBitCode, i) == 0 {
			sign = -1
		}
		residual := float32(0)
		if exVals != nil {
			u := (float32(exVals[i])/maxCode)*2 - 1
			residual = u * ev.FRescale
		}
		yHat[i] = ev.FRescale*sign + residual
	}
	r := cb.Rotator.Inverse(yHat)
	paddedC := padTo(cb.centroid(int(ev.ClusterID)), cb.DRot)
	out := make([]float32, cb.D)
	for i := 0; i < cb.D; i++ {
		out[i] = r[i] + paddedC[i]
	}
	return out
}

// Estimate implements §4.2's estimator: given an already-encoded vector and
// a precomputed QueryEstimator, returns the estimated squared distance and
// the vector's stored error bound.
func (q *Quantizer) Estimate(ev *EncodedVector, qe *QueryEstimator) (float32, float32, error) {
	if int(ev.ClusterID) >= len(qe.Clusters) {
		return 0, 0, zvecerr.New(zvecerr.Mismatch, "encoded vector cluster id out of range for this query estimator")
	}
	ce := &qe.Clusters[ev.ClusterID]
	hamming := hammingDistance(ev.OneBitCode, ce.SignBits)
	ip1 := (float32(q.Codebook.DRot) - 2*float32(hamming)) * ev.FRescale
	ipEx := q.exCorrection(ev, ce)
	estDist := ev.FAdd + ce.NormS2 - 2*(ip1+ipEx)
	return estDist, ev.ErrBound, nil
}
