package hnsw

import (
	"container/heap"
	"math"

	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
)

// Context is the per-query transient state of §4.6 (K6): a visit filter, a
// candidate frontier, a top-k result heap, an optional key filter, and the
// query-side distance estimator, all owned by the caller and reused across
// searches on the same goroutine. Contexts are not safe for concurrent use.
type Context struct {
	// query is the distance-calculator cache of §4.6, bound fresh by Reset.
	query *rabitq.QueryEstimator

	// visitedAt implements the visit filter as a dense generation stamp
	// array: a node is "visited" iff visitedAt[id] == generation. Bumping
	// generation resets the filter in O(1) instead of clearing it (§4.5:
	// "the visit filter is rolled via a generation counter").
	visitedAt  []uint32
	generation uint32

	// bloomEnabled switches the visit filter from the dense bytemap above to
	// a bloom filter sized from a negative-probability target (§3: "either a
	// dense bytemap of size N or a bloom filter sized from negative-
	// probability target"). Off by default; set via configureVisitFilter.
	bloomEnabled bool
	bloomBits    []uint64
	bloomK       int

	candidates minHeap
	topK       maxHeap

	k       int
	ef      int
	keep    int // bounded capacity of topK, = max(ef, k)
	visited int

	// ScanLimit caps the number of nodes a single beam search may visit
	// (§5/§6 max_scan_ratio/min_scan_limit/max_scan_limit); 0 = unbounded.
	ScanLimit int

	// KeyFilter excludes candidates by external key, e.g. tombstones or an
	// ACL predicate (§4.6).
	KeyFilter func(key Key) bool

	// Magic binds this context to the graph instance it was created from;
	// Reset from a different graph should rebuild rather than reuse state
	// sized for the old one.
	Magic uint64
}

// NewContext allocates an empty context. The visit filter grows lazily to
// the graph's doc_count on first use.
func NewContext() *Context {
	return &Context{}
}

// Reset rebinds the context to a new query and search width, bumping the
// visit-filter generation and clearing both heaps. magic should be the
// owning graph's identity so stale contexts from a torn-down graph are
// detected by callers that check ctx.Magic against the new graph.
func (c *Context) Reset(qe *rabitq.QueryEstimator, k, ef int, magic uint64) {
	c.ResetWithScanLimit(qe, k, ef, 0, magic)
}

// ResetWithScanLimit is Reset plus an explicit visited-node cap; scanLimit
// <= 0 means unbounded, matching Reset's behavior.
func (c *Context) ResetWithScanLimit(qe *rabitq.QueryEstimator, k, ef, scanLimit int, magic uint64) {
	c.query = qe
	c.k = k
	c.ef = ef
	c.keep = ef
	if k > c.keep {
		c.keep = k
	}
	c.generation++
	c.candidates = c.candidates[:0]
	c.topK = c.topK[:0]
	c.visited = 0
	c.ScanLimit = scanLimit
	c.bloomEnabled = false
	c.Magic = magic
}

// ResetForSearch is ResetWithScanLimit plus the visit-filter choice of §3:
// when params.BloomFilterEnable is set, the visit filter for this query is a
// bloom filter sized from BloomFilterNegativeProb and docCount rather than
// the dense bytemap. Graph.Search and the insertion path both know their
// own Params, so they call this instead of ResetWithScanLimit directly.
func (c *Context) ResetForSearch(qe *rabitq.QueryEstimator, k, ef, scanLimit int, params Params, docCount uint64, magic uint64) {
	c.ResetWithScanLimit(qe, k, ef, scanLimit, magic)
	if params.BloomFilterEnable {
		c.configureVisitFilter(docCount, params.BloomFilterNegativeProb)
	}
}

// configureVisitFilter switches the visit filter to a bloom filter sized for
// capacity elements at the given false-positive target, clearing any
// previous bloom state. A false positive here means a handful of extra
// nodes get silently skipped as "already visited" — acceptable slack for
// the memory savings at large doc_count, which is exactly the tradeoff §3
// documents.
func (c *Context) configureVisitFilter(capacity uint64, falsePositiveProb float64) {
	c.bloomEnabled = true
	if falsePositiveProb <= 0 || falsePositiveProb >= 1 {
		falsePositiveProb = 0.001
	}
	if capacity == 0 {
		capacity = 1024
	}
	bits, k := bloomParams(capacity, falsePositiveProb)
	words := (bits + 63) / 64
	if cap(c.bloomBits) < words {
		c.bloomBits = make([]uint64, words)
	} else {
		c.bloomBits = c.bloomBits[:words]
		for i := range c.bloomBits {
			c.bloomBits[i] = 0
		}
	}
	c.bloomK = k
}

// bloomParams computes the standard optimal bit-array size and hash-function
// count for a bloom filter holding n elements at false-positive rate p.
func bloomParams(n uint64, p float64) (bits, k int) {
	m := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	if m < 64 {
		m = 64
	}
	bits = int(m)
	k = int(math.Round((m / float64(n)) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return bits, k
}

// bloomHash derives the ith probe bit position from id via double hashing
// (Kirsch-Mitzenmacher): two independent-ish 64-bit mixes combined linearly.
func bloomHash(id NodeId, i int, nbits int) int {
	x := uint64(id) + 1
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	h1 := x
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	h2 := x
	combined := h1 + uint64(i)*h2
	return int(combined % uint64(nbits))
}

// resetVisited bumps the visit-filter generation only, leaving the bound
// query/heaps untouched. Used between per-level beam searches within a
// single insertion: each level has its own neighbor lists, so a node
// visited while exploring level ℓ+1 must remain explorable at level ℓ.
func (c *Context) resetVisited() {
	c.generation++
	c.visited = 0
	if c.bloomEnabled {
		for i := range c.bloomBits {
			c.bloomBits[i] = 0
		}
	}
}

func (c *Context) ensureCapacity(n int) {
	if len(c.visitedAt) >= n {
		return
	}
	grown := make([]uint32, n)
	copy(grown, c.visitedAt)
	c.visitedAt = grown
}

// markVisited marks id visited for the current generation, returning true
// if this call is the one that marked it (i.e. it was previously unvisited
// this generation).
func (c *Context) markVisited(id NodeId) bool {
	if c.bloomEnabled {
		return c.markVisitedBloom(id)
	}
	c.ensureCapacity(int(id) + 1)
	if c.visitedAt[id] == c.generation {
		return false
	}
	c.visitedAt[id] = c.generation
	c.visited++
	return true
}

// markVisitedBloom is markVisited's bloom-filter variant: test all k probe
// bits, and if any is unset this is a new element, so set them all and
// report new; if all are already set, treat id as visited (a false positive
// means this id gets skipped even though it may not truly be visited yet —
// the accepted cost of the filter per §3).
func (c *Context) markVisitedBloom(id NodeId) bool {
	nbits := len(c.bloomBits) * 64
	if nbits == 0 {
		return false
	}
	var positions [16]int
	allSet := true
	for i := 0; i < c.bloomK; i++ {
		pos := bloomHash(id, i, nbits)
		positions[i] = pos
		word := pos / 64
		bit := uint(pos % 64)
		if c.bloomBits[word]&(1<<bit) == 0 {
			allSet = false
		}
	}
	if allSet {
		return false
	}
	for i := 0; i < c.bloomK; i++ {
		word := positions[i] / 64
		bit := uint(positions[i] % 64)
		c.bloomBits[word] |= 1 << bit
	}
	c.visited++
	return true
}

func (c *Context) pushCandidate(item candidateItem) {
	heap.Push(&c.candidates, item)
}

func (c *Context) popCandidate() (candidateItem, bool) {
	if c.candidates.Len() == 0 {
		return candidateItem{}, false
	}
	return heap.Pop(&c.candidates).(candidateItem), true
}

// considerResult offers item to the bounded top-k/beam-width result set,
// evicting the current worst if it is now over capacity.
func (c *Context) considerResult(item candidateItem) {
	if c.topK.Len() < c.keep {
		heap.Push(&c.topK, item)
		return
	}
	worst, ok := c.topK.peek()
	if !ok || item.less(worst) {
		heap.Push(&c.topK, item)
		heap.Pop(&c.topK)
	}
}

// Visited returns the number of distinct nodes visited since the last
// Reset, exposed for the zvec_beam_search_visited_nodes metric.
func (c *Context) Visited() int { return c.visited }
