package hnsw

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
	"github.com/therealutkarshpriyadarshi/vector/pkg/zvecerr"
)

// Graph is the K3 graph entity: a chunked arena of encoded nodes, a
// Key->NodeId index, and the current entry point/max level pair, all bound
// to one trained rabitq.Quantizer. Grounded on the teacher's Index struct
// in pkg/hnsw/index.go, generalized from a flat map[uint64]*Node to the
// NodeId-addressed arena of node.go and from raw-float distance to the
// quantizer's estimator.
type Graph struct {
	arena *arena

	keyMu    sync.RWMutex
	keyIndex map[Key]NodeId

	entryMu    sync.Mutex
	entryPoint NodeId
	maxLevel   int

	nodeCounter atomic.Uint32
	liveCount   atomic.Uint64

	Quantizer *rabitq.Quantizer
	Params    Params

	mlFactor float64

	levelMu  sync.Mutex
	levelGen *rand.Rand
}

// NewGraph builds an empty graph bound to a trained quantizer.
func NewGraph(q *rabitq.Quantizer, params Params) *Graph {
	if params.M <= 1 {
		params.M = 1
	}
	return &Graph{
		arena:      newArena(),
		keyIndex:   make(map[Key]NodeId),
		entryPoint: InvalidNodeId,
		maxLevel:   -1,
		Quantizer:  q,
		Params:     params,
		mlFactor:   1.0 / math.Log(float64(params.M+1)),
		levelGen:   rand.New(rand.NewSource(params.LevelSeed)),
	}
}

// randomLevel draws L = floor(-ln(U)*mL), capped at Params.LMax (§4.4).
func (g *Graph) randomLevel() int {
	g.levelMu.Lock()
	u := g.levelGen.Float64()
	for u <= 0 {
		u = g.levelGen.Float64()
	}
	g.levelMu.Unlock()
	level := int(math.Floor(-math.Log(u) * g.mlFactor))
	if level > g.Params.LMax {
		level = g.Params.LMax
	}
	return level
}

// Reserve preallocates arena chunks to cover n nodes (§4.3 `reserve(n)`).
func (g *Graph) Reserve(n int) {
	g.arena.reserve(n)
}

// DocCount returns the live document count.
func (g *Graph) DocCount() uint64 { return g.liveCount.Load() }

// EntryPoint and MaxLevel return the current graph entry point pair under
// the dedicated entry-point mutex of §5.
func (g *Graph) EntryPoint() (NodeId, int) {
	g.entryMu.Lock()
	defer g.entryMu.Unlock()
	return g.entryPoint, g.maxLevel
}

func (g *Graph) maybeAdvanceEntryPoint(candidate NodeId, level int) {
	g.entryMu.Lock()
	defer g.entryMu.Unlock()
	if level > g.maxLevel {
		g.maxLevel = level
		g.entryPoint = candidate
	}
}

// ResolveKey returns the live NodeId for key, if any.
func (g *Graph) ResolveKey(key Key) (NodeId, bool) {
	g.keyMu.RLock()
	defer g.keyMu.RUnlock()
	id, ok := g.keyIndex[key]
	return id, ok
}

func (g *Graph) record(id NodeId) *nodeRecord {
	if id == InvalidNodeId {
		return nil
	}
	return g.arena.get(id)
}

// GetEncoded returns the encoded vector stored at id (§4.3
// `get_encoded(id)`).
func (g *Graph) GetEncoded(id NodeId) (*rabitq.EncodedVector, error) {
	rec := g.record(id)
	if rec == nil {
		return nil, zvecerr.New(zvecerr.NoExist, "node id not found")
	}
	return &rec.encoded, nil
}

// appendNode is the shared low-level allocation path for AppendWithKey and
// AppendWithID: it checks docs_hard_limit, publishes the node record,
// updates the key index, and sets the entry point when the graph has none.
func (g *Graph) appendNode(id NodeId, key Key, level int, encoded rabitq.EncodedVector) error {
	if g.Params.DocsHardLimit > 0 && g.liveCount.Load() >= g.Params.DocsHardLimit {
		return zvecerr.New(zvecerr.IndexFull, "docs_hard_limit exceeded")
	}
	rec := newNodeRecord(key, level, encoded)
	g.arena.publish(id, rec)

	g.keyMu.Lock()
	if _, exists := g.keyIndex[key]; exists {
		g.keyMu.Unlock()
		return zvecerr.New(zvecerr.DuplicateKey, "key already live")
	}
	g.keyIndex[key] = id
	g.keyMu.Unlock()

	g.liveCount.Add(1)
	// Only the first node becomes the entry point here; a later node that
	// tops the max level is promoted by linkNewNode once it is linked.
	g.entryMu.Lock()
	if g.entryPoint == InvalidNodeId {
		g.entryPoint = id
		g.maxLevel = level
	}
	g.entryMu.Unlock()
	return nil
}

// AppendWithKey implements §4.3's `append_with_key`: encodes vector,
// assigns the next NodeId and a random level, and publishes the node.
func (g *Graph) AppendWithKey(key Key, vector []float32) (NodeId, int, error) {
	if key == InvalidKey {
		return InvalidNodeId, 0, zvecerr.New(zvecerr.InvalidArgument, "key must not be the tombstone sentinel")
	}
	g.keyMu.RLock()
	_, exists := g.keyIndex[key]
	g.keyMu.RUnlock()
	if exists {
		return InvalidNodeId, 0, zvecerr.New(zvecerr.DuplicateKey, "key already live")
	}

	encoded, err := g.Quantizer.Encode(vector)
	if err != nil {
		return InvalidNodeId, 0, err
	}
	level := g.randomLevel()
	id := NodeId(g.nodeCounter.Add(1) - 1)
	if err := g.appendNode(id, key, level, encoded); err != nil {
		return InvalidNodeId, 0, err
	}
	return id, level, nil
}

// AppendWithID implements §4.3's `append_with_id`, used when the ingest
// layer assigns its own dense id (the Streamer case): id must equal the
// next sequential slot. This publishes the node only — it does not link it
// into the graph; InsertWithID (algorithm.go) is the full counterpart to
// Insert/AppendWithKey and is what the Streamer should call.
func (g *Graph) AppendWithID(id NodeId, key Key, vector []float32) error {
	return g.appendWithIDAtLevel(id, key, g.randomLevel(), vector)
}

// appendWithIDAtLevel is AppendWithID with the level pulled out so
// InsertWithID can draw it once and reuse it for both publishing and
// linking.
func (g *Graph) appendWithIDAtLevel(id NodeId, key Key, level int, vector []float32) error {
	next := NodeId(g.nodeCounter.Load())
	if id != next {
		return zvecerr.New(zvecerr.InvalidArgument, "id must equal the next sequential node id")
	}
	encoded, err := g.Quantizer.Encode(vector)
	if err != nil {
		return err
	}
	if err := g.appendNode(id, key, level, encoded); err != nil {
		return err
	}
	g.nodeCounter.Add(1)
	return nil
}

// Tombstone implements §4.3's `tombstone(key)`: the key is removed from the
// index but the node and its neighbor lists remain, so graph traversal
// through it stays connected.
func (g *Graph) Tombstone(key Key) error {
	g.keyMu.Lock()
	id, ok := g.keyIndex[key]
	if !ok {
		g.keyMu.Unlock()
		return zvecerr.New(zvecerr.KeyNotFound, "key not live")
	}
	delete(g.keyIndex, key)
	g.keyMu.Unlock()

	rec := g.record(id)
	if rec != nil {
		rec.tombstoned.Store(true)
	}
	g.liveCount.Add(^uint64(0)) // decrement
	return nil
}

// Neighbors returns a defensive copy of level's neighbor list at id (§4.3
// `neighbors(level, id)`).
func (g *Graph) Neighbors(level int, id NodeId) []NodeId {
	rec := g.record(id)
	if rec == nil {
		return nil
	}
	return rec.neighborsAt(level)
}

// AddNeighborPruned implements §4.3's `add_neighbor`: insert under the
// (level,id) lock, then apply the neighbor-selection heuristic if the list
// now exceeds its cap.
func (g *Graph) AddNeighborPruned(level int, id NodeId, newNeighbor NodeId, cap int) {
	rec := g.record(id)
	if rec == nil {
		return
	}
	rec.addNeighborRaw(level, newNeighbor)
	if rec.neighborCount(level) <= cap {
		return
	}
	g.pruneNeighbors(rec, level, cap)
}

// isLive reports whether id currently resolves to a live (non-tombstoned)
// key. Tombstoned nodes remain traversable but are excluded from results.
func (g *Graph) isLive(id NodeId) bool {
	rec := g.record(id)
	return rec != nil && !rec.tombstoned.Load()
}

func (g *Graph) keyOf(id NodeId) Key {
	rec := g.record(id)
	if rec == nil {
		return InvalidKey
	}
	return rec.key
}
