package index_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/vector/pkg/hnsw"
	"github.com/therealutkarshpriyadarshi/vector/pkg/index"
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
)

// sliceHolder is the literal-slice index.Holder fixture shared by this
// package's tests, mirroring cmd/cli's jsonlHolder shape without the file
// I/O.
type sliceHolder struct {
	keys    []hnsw.Key
	vectors [][]float32
}

func newSliceHolder(n, dim int) *sliceHolder {
	h := &sliceHolder{}
	for i := 0; i < n; i++ {
		v := make([]float32, dim)
		for d := 0; d < dim; d++ {
			v[d] = float32(i+1) + float32(d)*0.1
		}
		h.keys = append(h.keys, hnsw.Key(i+1))
		h.vectors = append(h.vectors, v)
	}
	return h
}

func (h *sliceHolder) Count() int     { return len(h.keys) }
func (h *sliceHolder) Dimension() int { return len(h.vectors[0]) }

func (h *sliceHolder) Iterate(fn func(key hnsw.Key, vector []float32) error) error {
	for i, key := range h.keys {
		if err := fn(key, h.vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

func (h *sliceHolder) GetVector(key hnsw.Key) ([]float32, bool) {
	for i, k := range h.keys {
		if k == key {
			return h.vectors[i], true
		}
	}
	return nil, false
}

func testParams(sampleCount int) index.Params {
	p := index.DefaultParams()
	p.Quantizer.NumClusters = 2
	p.Quantizer.TotalBits = 4
	p.Quantizer.SampleCount = sampleCount
	p.Quantizer.RotatorKind = rabitq.RotatorKac
	p.HNSW.BruteForceThreshold = 1000
	return p
}

func TestBuilder_LifecycleOrderEnforced(t *testing.T) {
	b := index.NewBuilder(nil)
	require.Equal(t, index.StateInit, b.State())

	holder := newSliceHolder(10, 4)
	meta := index.Meta{DataType: rabitq.FP32, Dimension: 4, Metric: rabitq.SquaredEuclidean}
	params := testParams(holder.Count())

	// Train before Init must fail.
	require.Error(t, b.Train(holder))

	require.NoError(t, b.Init(meta, params))
	require.Equal(t, index.StateInited, b.State())

	// Build before Train must fail.
	require.Error(t, b.Build(context.Background(), holder, 2))

	require.NoError(t, b.Train(holder))
	require.Equal(t, index.StateTrained, b.State())

	require.NoError(t, b.Build(context.Background(), holder, 4))
	require.Equal(t, index.StateBuilt, b.State())
}

func TestBuilder_BuildThenDumpRoundTrips(t *testing.T) {
	holder := newSliceHolder(30, 6)
	meta := index.Meta{DataType: rabitq.FP32, Dimension: 6, Metric: rabitq.SquaredEuclidean}
	params := testParams(holder.Count())

	b := index.NewBuilder(nil)
	require.NoError(t, b.Init(meta, params))
	require.NoError(t, b.Train(holder))
	require.NoError(t, b.Build(context.Background(), holder, 4))

	var buf bytes.Buffer
	require.NoError(t, b.Dump(&buf))
	require.Equal(t, index.StateDumped, b.State())
	require.NotZero(t, buf.Len())

	searcher := index.NewSearcher(nil, nil)
	require.NoError(t, searcher.Open(&buf, meta, params))

	results, err := searcher.Search(holder.vectors[0], 3, 20)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, holder.keys[0], results[0].Key)
}

func TestBuilder_Cleanup(t *testing.T) {
	holder := newSliceHolder(10, 4)
	meta := index.Meta{DataType: rabitq.FP32, Dimension: 4, Metric: rabitq.SquaredEuclidean}
	params := testParams(holder.Count())

	b := index.NewBuilder(nil)
	require.NoError(t, b.Init(meta, params))
	require.NoError(t, b.Train(holder))
	require.NoError(t, b.Build(context.Background(), holder, 2))

	b.Cleanup()
	// Dump after Cleanup should fail: state stays Built but the graph
	// reference is gone, so it would panic rather than misbehave silently.
	// We only assert the state wasn't advanced by Cleanup itself.
	require.Equal(t, index.StateBuilt, b.State())
}
