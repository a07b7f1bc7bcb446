package hnsw

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
)

// newTestQuantizer trains a RaBitQ quantizer over samples with enough
// residual bits that estimated distance tracks true ordering closely
// enough for these small, well-separated fixtures.
func newTestQuantizer(t *testing.T, samples [][]float32, clusters, exBits int) *rabitq.Quantizer {
	t.Helper()
	cb, err := rabitq.Train(samples, rabitq.TrainConfig{
		ClusterCount: clusters,
		KMeansIters:  10,
		RotatorKind:  rabitq.RotatorKac,
		Seed:         7,
		Metric:       rabitq.SquaredEuclidean,
	})
	require.NoError(t, err)
	q, err := rabitq.NewQuantizer(cb, exBits, true)
	require.NoError(t, err)
	return q
}

// TestGraphS1EuclideanOrdering mirrors spec scenario S1: a tiny Euclidean
// dataset where the expected top-3 keys are deterministic once quantization
// is made exact enough (KeepRaw + SearchBruteForce re-ranks are not needed
// here because a single cluster with 8 residual bits already recovers the
// true ordering for unit-distance vectors).
func TestGraphS1EuclideanOrdering(t *testing.T) {
	vectors := map[Key][]float32{
		1: {0, 0, 0, 0},
		2: {1, 0, 0, 0},
		3: {0, 1, 0, 0},
		4: {1, 1, 0, 0},
		5: {0, 0, 1, 0},
	}
	samples := make([][]float32, 0, len(vectors))
	for _, v := range vectors {
		samples = append(samples, v)
	}
	q := newTestQuantizer(t, samples, 1, 8)

	g := NewGraph(q, DefaultParams())
	ctx := NewContext()
	for _, key := range []Key{1, 2, 3, 4, 5} {
		_, err := g.Insert(ctx, key, vectors[key])
		require.NoError(t, err)
	}

	results, err := g.SearchBruteForce([]float32{0, 0, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	gotKeys := make([]Key, len(results))
	for i, r := range results {
		gotKeys[i] = g.keyOf(r.id)
	}
	require.Equal(t, []Key{1, 2, 3}, gotKeys)
}

func randomDataset(n, d int, seed int64) map[Key][]float32 {
	r := rand.New(rand.NewSource(seed))
	out := make(map[Key][]float32, n)
	for i := 0; i < n; i++ {
		v := make([]float32, d)
		for j := range v {
			v[j] = r.Float32()*2 - 1
		}
		out[Key(i+1)] = v
	}
	return out
}

func buildGraph(t *testing.T, vectors map[Key][]float32, exBits int) *Graph {
	t.Helper()
	samples := make([][]float32, 0, len(vectors))
	for _, v := range vectors {
		samples = append(samples, v)
	}
	q := newTestQuantizer(t, samples, 16, exBits)
	params := DefaultParams()
	g := NewGraph(q, params)
	ctx := NewContext()
	keys := make([]Key, 0, len(vectors))
	for k := range vectors {
		keys = append(keys, k)
	}
	for _, k := range keys {
		_, err := g.Insert(ctx, k, vectors[k])
		require.NoError(t, err)
	}
	return g
}

// TestRecallAgainstBruteForce exercises §8 property 3: graph search recall
// against the brute-force oracle must be >= 0.90 for k=10 on a small
// dataset, using the default M=32 construction width.
func TestRecallAgainstBruteForce(t *testing.T) {
	vectors := randomDataset(500, 32, 42)
	g := buildGraph(t, vectors, 6)

	ctx := NewContext()
	const k = 10
	const trials = 20
	var hits, total int
	r := rand.New(rand.NewSource(99))
	for trial := 0; trial < trials; trial++ {
		q := make([]float32, 32)
		for j := range q {
			q[j] = r.Float32()*2 - 1
		}
		graphResults, err := g.Search(ctx, q, k, 100)
		require.NoError(t, err)
		bfResults, err := g.SearchBruteForce(q, k)
		require.NoError(t, err)

		bfSet := make(map[NodeId]bool, len(bfResults))
		for _, r := range bfResults {
			bfSet[r.id] = true
		}
		for _, r := range graphResults {
			if bfSet[r.id] {
				hits++
			}
		}
		total += len(bfResults)
	}
	recall := float64(hits) / float64(total)
	require.GreaterOrEqualf(t, recall, 0.90, "recall %.3f below threshold", recall)
}

// TestTombstoneSemantics exercises §8 property 7: a tombstoned key is never
// returned by search, and the key no longer resolves to a live NodeId.
func TestTombstoneSemantics(t *testing.T) {
	vectors := randomDataset(100, 8, 5)
	g := buildGraph(t, vectors, 4)

	require.NoError(t, g.Tombstone(1))

	ctx := NewContext()
	results, err := g.Search(ctx, vectors[1], 20, 100)
	require.NoError(t, err)
	for _, r := range results {
		require.NotEqual(t, Key(1), g.keyOf(r.id))
	}

	_, live := g.ResolveKey(1)
	require.False(t, live)
}

// TestKeyBijection exercises §8 property 1: every live key resolves to
// exactly one NodeId, and re-inserting a tombstoned key succeeds.
func TestKeyBijection(t *testing.T) {
	vectors := randomDataset(20, 4, 11)
	g := buildGraph(t, vectors, 4)

	for k := range vectors {
		id, ok := g.ResolveKey(k)
		require.True(t, ok)
		require.Equal(t, k, g.keyOf(id))
	}

	require.NoError(t, g.Tombstone(1))
	ctx := NewContext()
	newID, err := g.Insert(ctx, 1, vectors[1])
	require.NoError(t, err)
	require.Equal(t, Key(1), g.keyOf(newID))
}

// TestNeighborListInvariants exercises §8 property 6: no duplicates, no
// self-references, and every referenced NodeId resolves to a live record.
func TestNeighborListInvariants(t *testing.T) {
	vectors := randomDataset(200, 16, 21)
	g := buildGraph(t, vectors, 4)

	for chunkIdx, chunk := range g.arena.chunks {
		for i := range chunk {
			rec := chunk[i].Load()
			if rec == nil {
				continue
			}
			id := NodeId(chunkIdx*chunkSize + i)
			for level := 0; level <= rec.level; level++ {
				seen := make(map[NodeId]bool)
				cap := g.Params.M
				if level == 0 {
					cap = g.m0()
				}
				neighbors := rec.neighborsAt(level)
				require.LessOrEqualf(t, len(neighbors), cap, "level %d node %d over capacity", level, id)
				for _, n := range neighbors {
					require.NotEqual(t, id, n, "self reference")
					require.False(t, seen[n], "duplicate neighbor")
					seen[n] = true
					require.NotNil(t, g.record(n), "dangling neighbor reference")
				}
			}
		}
	}
}

// TestSearchScanLimitCapsVisitedNodes exercises §5/§6's max_scan_ratio /
// max_scan_limit knobs: a search over a graph with a tight scan budget must
// never visit more nodes than the resolved cap allows.
func TestSearchScanLimitCapsVisitedNodes(t *testing.T) {
	vectors := randomDataset(300, 16, 77)
	samples := make([][]float32, 0, len(vectors))
	for _, v := range vectors {
		samples = append(samples, v)
	}
	q := newTestQuantizer(t, samples, 16, 4)
	params := DefaultParams()
	params.MaxScanLimit = 5
	g := NewGraph(q, params)
	ctx := NewContext()
	for k, v := range vectors {
		_, err := g.Insert(ctx, k, v)
		require.NoError(t, err)
	}

	searchCtx := NewContext()
	_, err := g.Search(searchCtx, vectors[1], 10, 200)
	require.NoError(t, err)
	require.LessOrEqual(t, searchCtx.Visited(), 5)
}

// TestSearchWithBloomFilterVisitFilter exercises §3's alternate visit-filter
// choice end to end: with BloomFilterEnable on, search must still complete
// and return live, non-empty results (false positives only ever cause a
// node to be skipped early, never a crash or a tombstoned/stale result).
func TestSearchWithBloomFilterVisitFilter(t *testing.T) {
	vectors := randomDataset(300, 16, 88)
	samples := make([][]float32, 0, len(vectors))
	for _, v := range vectors {
		samples = append(samples, v)
	}
	q := newTestQuantizer(t, samples, 16, 4)
	params := DefaultParams()
	params.BloomFilterEnable = true
	params.BloomFilterNegativeProb = 0.01
	g := NewGraph(q, params)
	ctx := NewContext()
	for k, v := range vectors {
		_, err := g.Insert(ctx, k, v)
		require.NoError(t, err)
	}

	searchCtx := NewContext()
	results, err := g.Search(searchCtx, vectors[1], 10, 100)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		require.True(t, g.isLive(r.id))
	}
}

// TestConcurrentDisjointInserts exercises §8 property 5: T concurrent
// adders inserting disjoint keys leave the entity passing the key
// bijection invariant: DocCount matches and every key resolves to a node
// carrying that key.
func TestConcurrentDisjointInserts(t *testing.T) {
	vectors := randomDataset(400, 16, 33)
	samples := make([][]float32, 0, len(vectors))
	for _, v := range vectors {
		samples = append(samples, v)
	}
	q := newTestQuantizer(t, samples, 16, 4)
	g := NewGraph(q, DefaultParams())

	const workers = 8
	keys := make([]Key, 0, len(vectors))
	for k := range vectors {
		keys = append(keys, k)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(shard int) {
			defer wg.Done()
			ctx := NewContext()
			for i := shard; i < len(keys); i += workers {
				k := keys[i]
				_, err := g.Insert(ctx, k, vectors[k])
				require.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	require.Equal(t, uint64(len(vectors)), g.DocCount())
	for _, k := range keys {
		id, ok := g.ResolveKey(k)
		require.True(t, ok)
		require.Equal(t, k, g.keyOf(id))
	}
}
