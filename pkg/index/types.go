// Package index implements K5, the index lifecycle of spec.md §4.5: the
// Builder (batch), Streamer (durable incremental) and Searcher (read-only)
// roles that share the same pkg/hnsw.Graph + pkg/rabitq.Quantizer entity
// but differ in which operations and concurrency profile they expose.
//
// Grounded on the teacher's pkg/hnsw.Index (the single concrete type the
// teacher exposed for all three roles) split into three narrower types per
// spec.md §4.5, and on the teacher's zap-style WithFields logging idiom
// (pkg/observability) used throughout for progress/warning messages.
package index

import (
	"math"

	"github.com/therealutkarshpriyadarshi/vector/pkg/hnsw"
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
)

// State is one lifecycle stage of §3's "Lifecycles" table.
type State int

const (
	StateInit State = iota
	StateInited
	StateTrained
	StateBuilt
	StateDumped
	StateOpened
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateInited:
		return "Inited"
	case StateTrained:
		return "Trained"
	case StateBuilt:
		return "Built"
	case StateDumped:
		return "Dumped"
	case StateOpened:
		return "Opened"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Meta is the §6 META segment: the identity an index was created with, and
// that a load must match against (Mismatch otherwise).
type Meta struct {
	DataType  rabitq.DataType
	Dimension int
	Metric    rabitq.Metric
}

// QuantizerParams bundles the §6 "quantizer:" configuration table.
type QuantizerParams struct {
	NumClusters int
	TotalBits   int
	SampleCount int
	RotatorKind rabitq.RotatorKind
	KMeansIters int
	Seed        int64
	KeepRaw     bool
}

// DefaultQuantizerParams mirrors §6's bracketed defaults.
func DefaultQuantizerParams() QuantizerParams {
	return QuantizerParams{
		NumClusters: 16,
		TotalBits:   7,
		SampleCount: 200000,
		RotatorKind: rabitq.RotatorKac,
		KMeansIters: 10,
		Seed:        1,
		KeepRaw:     false,
	}
}

// Params bundles everything §6's "builder:"/"streamer:" configuration
// tables control, split between the graph (hnsw.Params) and the quantizer.
type Params struct {
	HNSW             hnsw.Params
	Quantizer        QuantizerParams
	MemoryQuotaBytes uint64 // 0 = unlimited (§6 memory_quota)
	FilterSameKey    bool   // §9 open question: off by default, tombstone-only
	ForcePadding     bool   // §9 force_padding_result_enable, off by default
	CheckCRC         bool   // §6 check_crc_enable, off by default
}

// DefaultParams mirrors §6's bracketed defaults for the options K5 owns.
func DefaultParams() Params {
	return Params{
		HNSW:      hnsw.DefaultParams(),
		Quantizer: DefaultQuantizerParams(),
	}
}

// Holder is the §6 collaborator interface an ingestion layer implements:
// an iterable of (key, vector) pairs plus count()/dimension(), with
// get_vector(key) required only for quantizer training on sampled indices.
type Holder interface {
	Count() int
	Dimension() int
	// Iterate calls fn once per (key, vector) pair in the holder, stopping
	// and propagating the first error fn returns.
	Iterate(fn func(key hnsw.Key, vector []float32) error) error
	// GetVector supports random-access sampling for quantizer training.
	GetVector(key hnsw.Key) ([]float32, bool)
}

// Result is one (key, distance) pair of §6's search return type.
type Result struct {
	Key      hnsw.Key
	Distance float32
}

func toResults(g *hnsw.Graph, items []hnsw.Candidate) []Result {
	out := make([]Result, 0, len(items))
	for _, it := range items {
		out = append(out, Result{Key: g.KeyOf(it.ID), Distance: it.Distance})
	}
	return out
}

// sameKeyFilter returns a stateful hnsw.Context.KeyFilter predicate that
// accepts the first hit for each external key and rejects every later
// duplicate — §9's filter_same_key as a query-side predicate, not a graph
// mutation. Beam search yields candidates to the filter in ascending
// distance order, so "first" is also "nearest".
func sameKeyFilter() func(hnsw.Key) bool {
	seen := make(map[hnsw.Key]struct{})
	return func(key hnsw.Key) bool {
		if _, ok := seen[key]; ok {
			return false
		}
		seen[key] = struct{}{}
		return true
	}
}

// filterSameKeyResults is sameKeyFilter's direct-slice counterpart for
// result paths that never build an hnsw.Context (brute force), applied to
// an already-materialized Result slice in ascending-distance order.
func filterSameKeyResults(results []Result) []Result {
	seen := make(map[hnsw.Key]struct{}, len(results))
	out := results[:0]
	for _, r := range results {
		if _, ok := seen[r.Key]; ok {
			continue
		}
		seen[r.Key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// padResults implements §9's force_padding_result_enable: appends
// (InvalidKey, +Inf) sentinel entries until results reaches k entries, so a
// caller that asked for k results can always index a fixed-width slice even
// when the graph held fewer live, reachable candidates than k.
func padResults(results []Result, k int) []Result {
	for len(results) < k {
		results = append(results, Result{Key: hnsw.InvalidKey, Distance: float32(math.Inf(1))})
	}
	return results
}
