package hnsw

import (
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
	"github.com/therealutkarshpriyadarshi/vector/pkg/zvecerr"
)

var errInvalidSequentialID = zvecerr.New(zvecerr.InvalidArgument, "id must equal the next sequential node id")

// This file exposes the accessors pkg/index needs to serialize and restore
// a Graph across the segment boundary of §6 ("Dumped byte layout"),
// without handing pkg/index a way to mutate internal state directly.
// Grounded on §4.3's dump/load contract: NODE_KEYS, NODE_LEVELS,
// ENCODED_CHUNKS and NEIGHBORS_L{ℓ} are each just a different projection of
// the same arena this file walks.

// NodeCount returns the number of NodeIds ever allocated (live or
// tombstoned), the upper bound a dump/load pass must iterate.
func (g *Graph) NodeCount() uint32 {
	return g.nodeCounter.Load()
}

// KeyOf is the exported form of keyOf, used by dump to write NODE_KEYS.
func (g *Graph) KeyOf(id NodeId) Key {
	return g.keyOf(id)
}

// IsLive is the exported form of isLive, used by the Searcher/Streamer to
// decide whether a NodeId's key is currently resolvable.
func (g *Graph) IsLive(id NodeId) bool {
	return g.isLive(id)
}

// LevelOf returns the level a node was assigned at insertion (§3).
func (g *Graph) LevelOf(id NodeId) int {
	rec := g.record(id)
	if rec == nil {
		return -1
	}
	return rec.level
}

// GetEncodedRaw returns a copy of the stored EncodedVector for dump, or
// false if id has never been published.
func (g *Graph) GetEncodedRaw(id NodeId) (rabitq.EncodedVector, bool) {
	rec := g.record(id)
	if rec == nil {
		return rabitq.EncodedVector{}, false
	}
	return rec.encoded, true
}

// AppendEncoded restores a node at a caller-chosen NodeId with an
// already-encoded vector (load path: the vector was quantized once at dump
// time, re-encoding it would both waste work and risk drifting from the
// dumped codes under a non-deterministic quantizer path). id must equal the
// next sequential slot, mirroring AppendWithID's contract.
func (g *Graph) AppendEncoded(id NodeId, key Key, level int, encoded rabitq.EncodedVector) error {
	next := NodeId(g.nodeCounter.Load())
	if id != next {
		return errInvalidSequentialID
	}
	if err := g.appendNode(id, key, level, encoded); err != nil {
		return err
	}
	g.nodeCounter.Add(1)
	return nil
}

// SetNeighbors restores level's neighbor list at id verbatim (load path;
// no pruning, the dumped list was already pruned when it was built).
func (g *Graph) SetNeighbors(level int, id NodeId, neighbors []NodeId) {
	rec := g.record(id)
	if rec == nil {
		return
	}
	rec.setNeighbors(level, neighbors)
}

// SetEntryPoint restores the graph's entry point/max level pair verbatim
// (load path).
func (g *Graph) SetEntryPoint(id NodeId, level int) {
	g.entryMu.Lock()
	defer g.entryMu.Unlock()
	g.entryPoint = id
	g.maxLevel = level
}

// MarkTombstoned restores a node's tombstone flag (load path) and drops its
// key from the key index if the key still maps to this node, so a
// tombstoned key resolves to nothing after a reload.
func (g *Graph) MarkTombstoned(id NodeId) {
	rec := g.record(id)
	if rec != nil {
		rec.tombstoned.Store(true)
		g.keyMu.Lock()
		if cur, ok := g.keyIndex[rec.key]; ok && cur == id {
			delete(g.keyIndex, rec.key)
		}
		g.keyMu.Unlock()
	}
}

// SetLiveCount restores the live document counter after a load pass that
// bypassed AppendWithKey/Tombstone's own bookkeeping.
func (g *Graph) SetLiveCount(n uint64) {
	g.liveCount.Store(n)
}
