package index

import (
	"io"
	"sync"

	"github.com/therealutkarshpriyadarshi/vector/pkg/hnsw"
	"github.com/therealutkarshpriyadarshi/vector/pkg/observability"
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
	"github.com/therealutkarshpriyadarshi/vector/pkg/zvecerr"
)

// Searcher implements §4.5's read-only role: a dumped index opened purely
// for queries, with no Add/Delete surface at all. Grounded on the
// teacher's read replica pattern in pkg/hnsw.Index (a loaded index used
// only for Search), narrowed per spec.md §4.5's explicit lifecycle split.
type Searcher struct {
	mu    sync.RWMutex
	state State

	meta   Meta
	params Params

	quantizer *rabitq.Quantizer
	graph     *hnsw.Graph

	ctxPool sync.Pool

	log     *observability.Logger
	metrics *observability.Metrics

	checkpoint string
}

// Checkpoint returns the checkpoint token the opened dump was flushed
// with, or "" if it was a Builder dump with none.
func (s *Searcher) Checkpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoint
}

// NewSearcher constructs a Searcher in state Init.
func NewSearcher(log *observability.Logger, metrics *observability.Metrics) *Searcher {
	if log == nil {
		log = observability.NewDefaultLogger()
	}
	s := &Searcher{state: StateInit, log: log.WithField("component", "index.searcher"), metrics: metrics}
	s.ctxPool.New = func() interface{} { return hnsw.NewContext() }
	return s
}

func (s *Searcher) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Open implements §6's `Searcher.open(reader)`: loads a dumped segment
// stream, verifying it against meta, transitioning Init -> Opened directly
// (a Searcher has no separate Inited stage since it never trains).
func (s *Searcher) Open(r io.Reader, meta Meta, params Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInit {
		return zvecerr.New(zvecerr.InvalidArgument, "Open called outside state Init")
	}
	q, g, checkpoint, err := loadCore(r, meta, params, params.CheckCRC)
	if err != nil {
		return err
	}
	s.meta = meta
	s.params = params
	s.quantizer = q
	s.graph = g
	s.checkpoint = checkpoint
	s.state = StateOpened
	return nil
}

// Search implements §6's `Searcher.search(query, k, ef)`.
func (s *Searcher) Search(query []float32, k, ef int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateOpened {
		return nil, zvecerr.New(zvecerr.NoReady, "Search called outside state Opened")
	}
	if s.params.HNSW.BruteForceThreshold > 0 && s.graph.DocCount() <= s.params.HNSW.BruteForceThreshold {
		return s.searchBruteForceLocked(query, k)
	}

	ctx := s.ctxPool.Get().(*hnsw.Context)
	defer s.ctxPool.Put(ctx)
	if s.params.FilterSameKey {
		ctx.KeyFilter = sameKeyFilter()
		defer func() { ctx.KeyFilter = nil }()
	}
	items, err := s.graph.SearchKNN(ctx, query, k, ef)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordBeamSearchVisited(ctx.Visited())
	}
	results := toResults(s.graph, items)
	if s.params.ForcePadding {
		results = padResults(results, k)
	}
	return results, nil
}

// SearchBruteForce implements §4.4's brute-force path directly, regardless
// of bruteforce_threshold, useful as a correctness check against Search.
func (s *Searcher) SearchBruteForce(query []float32, k int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateOpened {
		return nil, zvecerr.New(zvecerr.NoReady, "SearchBruteForce called outside state Opened")
	}
	return s.searchBruteForceLocked(query, k)
}

func (s *Searcher) searchBruteForceLocked(query []float32, k int) ([]Result, error) {
	items, err := s.graph.SearchBruteForceKNN(query, k)
	if err != nil {
		return nil, err
	}
	results := toResults(s.graph, items)
	if s.params.FilterSameKey {
		results = filterSameKeyResults(results)
	}
	if s.params.ForcePadding {
		results = padResults(results, k)
	}
	return results, nil
}

// SearchByKeys implements §6's filtered-search variant: results are
// restricted to the supplied key set via the graph's KeyFilter hook on the
// pooled Context. The filter is applied to the ef-wide beam result after
// the search, so fewer than k results come back when fewer than k allowed
// keys are among those ef candidates.
func (s *Searcher) SearchByKeys(query []float32, k, ef int, allow map[hnsw.Key]struct{}) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateOpened {
		return nil, zvecerr.New(zvecerr.NoReady, "SearchByKeys called outside state Opened")
	}

	ctx := s.ctxPool.Get().(*hnsw.Context)
	defer s.ctxPool.Put(ctx)

	allowFilter := func(key hnsw.Key) bool {
		_, ok := allow[key]
		return ok
	}
	if s.params.FilterSameKey {
		dedup := sameKeyFilter()
		ctx.KeyFilter = func(key hnsw.Key) bool { return allowFilter(key) && dedup(key) }
	} else {
		ctx.KeyFilter = allowFilter
	}
	defer func() { ctx.KeyFilter = nil }()

	items, err := s.graph.SearchKNN(ctx, query, k, ef)
	if err != nil {
		return nil, err
	}
	results := toResults(s.graph, items)
	if s.params.ForcePadding {
		results = padResults(results, k)
	}
	return results, nil
}

// Reconstruct implements §6's `Searcher.reconstruct(key)`, approximating
// the original vector from its stored code (exact only when keep_raw was
// enabled at train time; otherwise a lossy dequantization, per §4.2).
func (s *Searcher) Reconstruct(key hnsw.Key) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateOpened {
		return nil, zvecerr.New(zvecerr.NoReady, "Reconstruct called outside state Opened")
	}
	id, ok := s.graph.ResolveKey(key)
	if !ok {
		return nil, zvecerr.New(zvecerr.KeyNotFound, "key not live")
	}
	ev, err := s.graph.GetEncoded(id)
	if err != nil {
		return nil, err
	}
	return s.quantizer.Reconstruct(ev), nil
}

// Close releases the graph/quantizer, transitioning Opened -> Closed; a
// closed Searcher cannot be reopened (§3's lifecycle table has no edge
// back out of Closed for this role).
func (s *Searcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpened {
		return zvecerr.New(zvecerr.InvalidArgument, "Close called outside state Opened")
	}
	s.graph = nil
	s.quantizer = nil
	s.state = StateClosed
	return nil
}
