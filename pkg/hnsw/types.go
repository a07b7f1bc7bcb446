// Package hnsw implements the graph entity (K3), the graph algorithm (K4)
// and the per-query context (K6) of the ANN index core: a hierarchical
// navigable small-world graph whose nodes carry RaBitQ-encoded vectors
// (pkg/rabitq) rather than raw floats, with distance supplied by the
// quantizer's estimator.
//
// Grounded on the teacher's own pkg/hnsw (Node/Index/Insert/Search/heaps),
// generalized from a flat map[uint64]*Node keyed by an externally visible
// uint64 id to a chunked, NodeId-addressed arena with a separate Key
// namespace, tombstone-on-delete semantics, and per-level neighbor locks.
package hnsw

import "math"

// NodeId is the internal, monotonically assigned, never-reused dense
// identifier of §3. InvalidNodeId marks "no node" (an empty entry point).
type NodeId uint32

const InvalidNodeId NodeId = math.MaxUint32

// Key is the externally supplied 64-bit primary key of §3.
type Key = uint64

// InvalidKey is the reserved tombstone sentinel.
const InvalidKey Key = 0

// Params bundles the builder/streamer tuning knobs of §6's configuration
// table that affect graph topology and beam search.
type Params struct {
	M                       int
	M0                      int
	EfConstruction          int
	LMax                    int
	DocsHardLimit           uint64
	DocsSoftLimit           uint64
	BruteForceThreshold     uint64
	NeighborPruneMultiplier float64
	LevelSeed               int64

	// MaxScanRatio/MinScanLimit/MaxScanLimit are §6's streamer scan-budget
	// knobs: §5 notes the engine has no cancellation/timeout of its own and
	// "callers are expected to bound ef and max_scan_ratio to guarantee
	// termination" — this is that bound, enforced as a hard cap on the
	// number of nodes a single beam search may visit.
	MaxScanRatio float64 // default 1.0; fraction of doc_count a search may visit
	MinScanLimit int     // default 0; floor under the ratio-derived cap
	MaxScanLimit int     // default 0 = unlimited; ceiling over the ratio-derived cap

	// BloomFilterEnable switches the per-query visit filter from the dense
	// bytemap to a bloom filter sized from BloomFilterNegativeProb (§3).
	BloomFilterEnable       bool
	BloomFilterNegativeProb float64
}

// DefaultParams mirrors §6's bracketed defaults.
func DefaultParams() Params {
	return Params{
		M:                       32,
		M0:                      64, // l0_max_neighbor_cnt_multiplier default 2.0
		EfConstruction:          200,
		LMax:                    32,
		DocsHardLimit:           0,
		DocsSoftLimit:           0,
		BruteForceThreshold:     0,
		NeighborPruneMultiplier: 1.0,
		LevelSeed:               1,
		MaxScanRatio:            1.0,
		MinScanLimit:            0,
		MaxScanLimit:            0,
		BloomFilterEnable:       false,
		BloomFilterNegativeProb: 0.001,
	}
}

// scanLimit resolves the effective visited-node cap for a search over a
// graph holding docCount live nodes (callers pass DocCount()): 0 means
// unbounded.
func (p Params) scanLimit(docCount uint64) int {
	limit := 0
	if p.MaxScanRatio > 0 && p.MaxScanRatio < 1.0 {
		limit = int(float64(docCount) * p.MaxScanRatio)
	}
	if p.MinScanLimit > 0 && limit < p.MinScanLimit {
		limit = p.MinScanLimit
	}
	if p.MaxScanLimit > 0 && (limit == 0 || limit > p.MaxScanLimit) {
		limit = p.MaxScanLimit
	}
	return limit
}
