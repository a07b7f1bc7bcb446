package hnsw

import (
	"sort"

	"github.com/therealutkarshpriyadarshi/vector/pkg/zvecerr"
)

// This file implements K4: level assignment lives in graph.go's
// randomLevel; here are beam search, greedy descent, the insertion
// protocol, neighbor selection, query, and the brute-force fallback.
// Grounded on the teacher's insert.go/search.go (searchLayer,
// searchLayerForQuery, selectNeighbors, pruneNeighbors), generalized from
// raw-vector distance to the quantizer estimator and from a greedy top-M
// selection to the Malkov-Yashunin diversity heuristic §4.4 actually
// specifies.

func (g *Graph) distanceToQuery(ctx *Context, id NodeId) float32 {
	rec := g.record(id)
	est, _, err := g.Quantizer.Estimate(&rec.encoded, ctx.query)
	if err != nil {
		return float32(1e38)
	}
	return est
}

// nodeDistance estimates the distance between two already-encoded nodes by
// dequantizing a into an approximate original-space vector and running it
// back through the query transform against b — the only way to compare two
// candidates that are both already-quantized (§4.4's neighbor-selection
// heuristic needs exactly this).
func (g *Graph) nodeDistance(a, b NodeId) float32 {
	aRec := g.record(a)
	bRec := g.record(b)
	if aRec == nil || bRec == nil {
		return float32(1e38)
	}
	return g.nodeDistanceRec(aRec, bRec)
}

// nodeDistanceRec is nodeDistance taking the "from" record directly,
// avoiding a NodeId->record resolution the caller may already have done
// (pruneNeighbors holds the record of the node being pruned already).
func (g *Graph) nodeDistanceRec(aRec, bRec *nodeRecord) float32 {
	recon := g.Quantizer.Reconstruct(&aRec.encoded)
	qe, err := g.Quantizer.TransformQuery(recon)
	if err != nil {
		return float32(1e38)
	}
	est, _, err := g.Quantizer.Estimate(&bRec.encoded, qe)
	if err != nil {
		return float32(1e38)
	}
	return est
}

// beamSearchLevel is the single beam-search primitive of §4.4, shared by
// insertion and query: explore from entry at level, keeping a bounded
// max-heap of size ef, and return it sorted ascending. The candidate
// frontier and top-k heap live on ctx (§4.6's K6 pooled context) rather than
// as fresh locals, so repeated calls against the same ctx — once per level
// during insertion, once for a query — never allocate a heap backing array
// once the context has grown to its working size.
func (g *Graph) beamSearchLevel(ctx *Context, entry NodeId, ef int, level int) []candidateItem {
	ctx.candidates = ctx.candidates[:0]
	ctx.topK = ctx.topK[:0]

	entryDist := g.distanceToQuery(ctx, entry)
	ctx.markVisited(entry)
	ctx.pushCandidate(candidateItem{id: entry, distance: entryDist})
	ctx.considerResult(candidateItem{id: entry, distance: entryDist})

	for {
		cur, ok := ctx.popCandidate()
		if !ok {
			break
		}
		if ctx.ScanLimit > 0 && ctx.Visited() >= ctx.ScanLimit {
			break
		}
		worst, hasWorst := ctx.topK.peek()
		if hasWorst && ctx.topK.Len() >= ef && cur.distance > worst.distance {
			break
		}

		rec := g.record(cur.id)
		if rec == nil {
			continue
		}
		for _, n := range rec.neighborsAt(level) {
			if ctx.ScanLimit > 0 && ctx.Visited() >= ctx.ScanLimit {
				break
			}
			if !ctx.markVisited(n) {
				continue
			}
			d := g.distanceToQuery(ctx, n)
			worst, hasWorst = ctx.topK.peek()
			if ctx.topK.Len() < ef || !hasWorst || d < worst.distance {
				ctx.pushCandidate(candidateItem{id: n, distance: d})
				ctx.considerResult(candidateItem{id: n, distance: d})
			}
		}
	}

	return sortedAscending(&ctx.topK)
}

// greedyDescend implements §4.4's upper-level descent: repeatedly step to
// the single best neighbor at level until nothing improves.
func (g *Graph) greedyDescend(ctx *Context, entry NodeId, level int) NodeId {
	current := entry
	currentDist := g.distanceToQuery(ctx, current)
	improved := true
	for improved {
		improved = false
		rec := g.record(current)
		if rec == nil {
			break
		}
		for _, n := range rec.neighborsAt(level) {
			d := g.distanceToQuery(ctx, n)
			if d < currentDist {
				currentDist = d
				current = n
				improved = true
			}
		}
	}
	return current
}

// selectNeighborsHeuristic implements the Malkov-Yashunin diversity rule of
// §4.4 step 4: iterate candidates ascending by distance to the query,
// accept a candidate only if no already-accepted neighbor is closer to it
// than the query is.
func (g *Graph) selectNeighborsHeuristic(candidates []candidateItem, m int) []NodeId {
	sorted := make([]candidateItem, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].less(sorted[j]) })

	selected := make([]NodeId, 0, m)
	for _, cand := range sorted {
		if len(selected) >= m {
			break
		}
		diverse := true
		for _, acceptedID := range selected {
			if g.nodeDistance(cand.id, acceptedID) < cand.distance {
				diverse = false
				break
			}
		}
		if diverse {
			selected = append(selected, cand.id)
		}
	}
	// Fall back to filling remaining slots with the closest leftovers if
	// the diversity rule rejected too many candidates, so a node is never
	// left with fewer neighbors than available candidates can support.
	if len(selected) < m {
		have := make(map[NodeId]bool, len(selected))
		for _, id := range selected {
			have[id] = true
		}
		for _, cand := range sorted {
			if len(selected) >= m {
				break
			}
			if !have[cand.id] {
				selected = append(selected, cand.id)
				have[cand.id] = true
			}
		}
	}
	return selected
}

func (g *Graph) m0() int {
	if g.Params.M0 > 0 {
		return g.Params.M0
	}
	return g.Params.M * 2
}

func (g *Graph) pruneNeighbors(rec *nodeRecord, level int, cap int) {
	current := rec.neighborsAt(level)
	candidates := make([]candidateItem, 0, len(current))
	for _, n := range current {
		nRec := g.record(n)
		if nRec == nil {
			candidates = append(candidates, candidateItem{id: n, distance: float32(1e38)})
			continue
		}
		candidates = append(candidates, candidateItem{id: n, distance: g.nodeDistanceRec(rec, nRec)})
	}
	selected := g.selectNeighborsHeuristic(candidates, cap)
	rec.setNeighbors(level, selected)
}

// Insert implements §4.4's full insertion protocol: allocate the node via
// AppendWithKey, then descend/beam-search/link at every level 0..L_new.
func (g *Graph) Insert(ctx *Context, key Key, vector []float32) (NodeId, error) {
	id, level, err := g.AppendWithKey(key, vector)
	if err != nil {
		return InvalidNodeId, err
	}
	if err := g.linkNewNode(ctx, id, level, vector); err != nil {
		return id, err
	}
	return id, nil
}

// InsertWithID implements §4.3's `append_with_id` combined with §4.4's
// linking protocol: used by the Streamer when the ingest layer assigns its
// own 32-bit NodeId rather than letting the graph allocate one. Without
// this, a node added via AppendWithID alone would publish with no neighbor
// edges at all, leaving it unreachable from beam search.
func (g *Graph) InsertWithID(ctx *Context, id NodeId, key Key, vector []float32) error {
	level := g.randomLevel()
	if err := g.appendWithIDAtLevel(id, key, level, vector); err != nil {
		return err
	}
	return g.linkNewNode(ctx, id, level, vector)
}

// linkNewNode runs §4.4 step 2 onward (descend/beam-search/link at every
// level 0..L_new) for a node that has already been published into the
// arena at id/level — shared by Insert and InsertWithID so both paths wire
// the node into the graph identically.
func (g *Graph) linkNewNode(ctx *Context, id NodeId, level int, vector []float32) error {
	qe, err := g.Quantizer.TransformQuery(vector)
	if err != nil {
		return err
	}
	ctx.ResetForSearch(qe, 1, g.Params.EfConstruction, 0, g.Params, g.DocCount(), 0)

	entry, maxLevel := g.EntryPoint()
	if entry == id {
		// first node in the graph, nothing to link.
		return nil
	}

	current := entry
	for lc := maxLevel; lc > level; lc-- {
		current = g.greedyDescend(ctx, current, lc)
	}

	top := level
	if maxLevel < top {
		top = maxLevel
	}
	for lc := top; lc >= 0; lc-- {
		if lc != top {
			ctx.resetVisited()
		}
		candidates := g.beamSearchLevel(ctx, current, g.Params.EfConstruction, lc)

		mLevel := g.Params.M
		if lc == 0 {
			mLevel = g.m0()
		}
		neighbors := g.selectNeighborsHeuristic(candidates, mLevel)

		newRec := g.record(id)
		newRec.setNeighbors(lc, neighbors)
		for _, n := range neighbors {
			g.AddNeighborPruned(lc, n, id, mLevelFor(g, lc))
		}

		if len(candidates) > 0 {
			current = candidates[0].id
		}
	}

	g.maybeAdvanceEntryPoint(id, level)
	return nil
}

func mLevelFor(g *Graph, level int) int {
	if level == 0 {
		return g.m0()
	}
	return g.Params.M
}

// Search implements §4.4's query path: greedy-descend to level 0, beam
// search with ef = max(ef_request, k), then return the top-k.
func (g *Graph) Search(ctx *Context, queryVector []float32, k, ef int) ([]candidateItem, error) {
	entry, maxLevel := g.EntryPoint()
	if entry == InvalidNodeId {
		return nil, zvecerr.New(zvecerr.NoReady, "graph has no entry point")
	}
	if ef < k {
		ef = k
	}

	qe, err := g.Quantizer.TransformQuery(queryVector)
	if err != nil {
		return nil, err
	}
	ctx.ResetForSearch(qe, k, ef, g.Params.scanLimit(g.DocCount()), g.Params, g.DocCount(), 0)

	current := entry
	for lc := maxLevel; lc > 0; lc-- {
		current = g.greedyDescend(ctx, current, lc)
	}

	results := g.beamSearchLevel(ctx, current, ef, 0)

	filtered := results[:0]
	for _, r := range results {
		if ctx.KeyFilter != nil && !ctx.KeyFilter(g.keyOf(r.id)) {
			continue
		}
		if !g.isLive(r.id) {
			continue
		}
		filtered = append(filtered, r)
	}
	if len(filtered) > k {
		filtered = filtered[:k]
	}
	return filtered, nil
}

// SearchBruteForce implements §4.4's brute-force fallback: scan every live
// node directly, ignoring the graph structure. Used below
// bruteforce_threshold and as a correctness oracle in tests.
func (g *Graph) SearchBruteForce(queryVector []float32, k int) ([]candidateItem, error) {
	qe, err := g.Quantizer.TransformQuery(queryVector)
	if err != nil {
		return nil, err
	}
	var all []candidateItem
	for chunkIdx, chunk := range g.arena.chunks {
		for i := range chunk {
			rec := chunk[i].Load()
			if rec == nil || rec.tombstoned.Load() {
				continue
			}
			est, _, err := g.Quantizer.Estimate(&rec.encoded, qe)
			if err != nil {
				continue
			}
			id := NodeId(chunkIdx*chunkSize + i)
			all = append(all, candidateItem{id: id, distance: est})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].less(all[j]) })
	if len(all) > k {
		all = all[:k]
	}
	return all, nil
}
