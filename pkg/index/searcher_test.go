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

func builtDump(t *testing.T, holder *sliceHolder, meta index.Meta, params index.Params) []byte {
	t.Helper()
	b := index.NewBuilder(nil)
	require.NoError(t, b.Init(meta, params))
	require.NoError(t, b.Train(holder))
	require.NoError(t, b.Build(context.Background(), holder, 2))

	var buf bytes.Buffer
	require.NoError(t, b.Dump(&buf))
	return buf.Bytes()
}

func TestSearcher_OpenAndSearch(t *testing.T) {
	holder := newSliceHolder(40, 6)
	meta := index.Meta{DataType: rabitq.FP32, Dimension: 6, Metric: rabitq.SquaredEuclidean}
	params := testParams(holder.Count())
	dump := builtDump(t, holder, meta, params)

	s := index.NewSearcher(nil, nil)
	require.NoError(t, s.Open(bytes.NewReader(dump), meta, params))
	require.Equal(t, index.StateOpened, s.State())

	results, err := s.Search(holder.vectors[5], 4, 30)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, holder.keys[5], results[0].Key)
}

func TestSearcher_SearchByKeysRestrictsResults(t *testing.T) {
	holder := newSliceHolder(40, 6)
	meta := index.Meta{DataType: rabitq.FP32, Dimension: 6, Metric: rabitq.SquaredEuclidean}
	params := testParams(holder.Count())
	dump := builtDump(t, holder, meta, params)

	s := index.NewSearcher(nil, nil)
	require.NoError(t, s.Open(bytes.NewReader(dump), meta, params))

	allow := map[hnsw.Key]struct{}{holder.keys[10]: {}, holder.keys[11]: {}}

	results, err := s.SearchByKeys(holder.vectors[10], 5, 30, allow)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		_, ok := allow[r.Key]
		require.True(t, ok, "result %d should be restricted to the allowed key set", r.Key)
	}
}

func TestSearcher_ReconstructRequiresLiveKey(t *testing.T) {
	holder := newSliceHolder(15, 4)
	meta := index.Meta{DataType: rabitq.FP32, Dimension: 4, Metric: rabitq.SquaredEuclidean}
	params := testParams(holder.Count())
	dump := builtDump(t, holder, meta, params)

	s := index.NewSearcher(nil, nil)
	require.NoError(t, s.Open(bytes.NewReader(dump), meta, params))

	_, err := s.Reconstruct(holder.keys[0])
	require.NoError(t, err)

	_, err = s.Reconstruct(99999)
	require.Error(t, err)
}

func TestSearcher_ClosedSearcherRejectsSearch(t *testing.T) {
	holder := newSliceHolder(10, 4)
	meta := index.Meta{DataType: rabitq.FP32, Dimension: 4, Metric: rabitq.SquaredEuclidean}
	params := testParams(holder.Count())
	dump := builtDump(t, holder, meta, params)

	s := index.NewSearcher(nil, nil)
	require.NoError(t, s.Open(bytes.NewReader(dump), meta, params))
	require.NoError(t, s.Close())
	require.Equal(t, index.StateClosed, s.State())

	_, err := s.Search(holder.vectors[0], 3, 10)
	require.Error(t, err)
}

func TestSearcher_MetaMismatchRejected(t *testing.T) {
	holder := newSliceHolder(10, 4)
	meta := index.Meta{DataType: rabitq.FP32, Dimension: 4, Metric: rabitq.SquaredEuclidean}
	params := testParams(holder.Count())
	dump := builtDump(t, holder, meta, params)

	wrongMeta := meta
	wrongMeta.Dimension = 8

	s := index.NewSearcher(nil, nil)
	require.Error(t, s.Open(bytes.NewReader(dump), wrongMeta, params))
}
