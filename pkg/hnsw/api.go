package hnsw

// Candidate is the exported (NodeId, distance) pair callers outside this
// package receive from a search; candidateItem itself stays unexported
// since its ordering methods are an internal heap-comparator detail.
type Candidate struct {
	ID       NodeId
	Distance float32
}

func toCandidates(items []candidateItem) []Candidate {
	out := make([]Candidate, len(items))
	for i, it := range items {
		out[i] = Candidate{ID: it.id, Distance: it.distance}
	}
	return out
}

// SearchKNN is Search's exported-result counterpart, the call pkg/index's
// Streamer/Searcher use directly.
func (g *Graph) SearchKNN(ctx *Context, queryVector []float32, k, ef int) ([]Candidate, error) {
	items, err := g.Search(ctx, queryVector, k, ef)
	if err != nil {
		return nil, err
	}
	return toCandidates(items), nil
}

// SearchBruteForceKNN is SearchBruteForce's exported-result counterpart.
func (g *Graph) SearchBruteForceKNN(queryVector []float32, k int) ([]Candidate, error) {
	items, err := g.SearchBruteForce(queryVector, k)
	if err != nil {
		return nil, err
	}
	return toCandidates(items), nil
}
