package index

import (
	"bytes"
	"io"
	"sync"

	"github.com/therealutkarshpriyadarshi/vector/pkg/hnsw"
	"github.com/therealutkarshpriyadarshi/vector/pkg/observability"
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
	"github.com/therealutkarshpriyadarshi/vector/pkg/zvecerr"
)

// Streamer implements §4.5's durable incremental role: concurrent adds and
// searches share the graph's own fine-grained locks, while Flush/Dump take
// an exclusive lock to get a consistent snapshot. Grounded on the
// teacher's pkg/hnsw.Index (the single type that mixed insert and search
// in the same lock domain) split out per spec.md §4.5, with the
// docs_soft_limit warning path modeled on pkg/observability's
// WithFields-then-Warn idiom.
type Streamer struct {
	mu    sync.RWMutex
	state State

	meta   Meta
	params Params

	quantizer *rabitq.Quantizer
	graph     *hnsw.Graph

	ctxPool sync.Pool

	log     *observability.Logger
	metrics *observability.Metrics

	softWarned bool
	checkpoint string
}

// Checkpoint returns the most recently flushed checkpoint token, restored
// from the CHECKPOINT segment on Open if the stream had one (§6's "flush's
// checkpoint reads back as X").
func (s *Streamer) Checkpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoint
}

// NewStreamer constructs a Streamer in state Init.
func NewStreamer(log *observability.Logger, metrics *observability.Metrics) *Streamer {
	if log == nil {
		log = observability.NewDefaultLogger()
	}
	s := &Streamer{state: StateInit, log: log.WithField("component", "index.streamer"), metrics: metrics}
	s.ctxPool.New = func() interface{} { return hnsw.NewContext() }
	return s
}

func (s *Streamer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Init transitions Init -> Inited, recording identity and tuning knobs,
// same contract as Builder.Init.
func (s *Streamer) Init(meta Meta, params Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInit {
		return zvecerr.New(zvecerr.InvalidArgument, "Init called outside state Init")
	}
	s.meta = meta
	s.params = params
	s.state = StateInited
	return nil
}

// Open implements §6's load path: either restores a dumped stream from r,
// or — when r is nil — trains a fresh quantizer from scratch using the
// seed holder, then transitions Inited -> Opened.
func (s *Streamer) Open(r io.Reader, seed Holder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInited {
		return zvecerr.New(zvecerr.InvalidArgument, "Open called outside state Inited")
	}

	if r != nil {
		q, g, checkpoint, err := loadCore(r, s.meta, s.params, s.params.CheckCRC)
		if err != nil {
			return err
		}
		s.quantizer = q
		s.graph = g
		s.checkpoint = checkpoint
		s.state = StateOpened
		return nil
	}

	if seed == nil {
		return zvecerr.New(zvecerr.InvalidArgument, "Open requires either a reader or a seed holder")
	}
	samples, err := sampleVectors(seed, s.params.Quantizer.SampleCount)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return zvecerr.New(zvecerr.InvalidArgument, "seed holder produced no training vectors")
	}
	cb, err := rabitq.Train(samples, rabitq.TrainConfig{
		ClusterCount: s.params.Quantizer.NumClusters,
		KMeansIters:  s.params.Quantizer.KMeansIters,
		RotatorKind:  s.params.Quantizer.RotatorKind,
		Seed:         s.params.Quantizer.Seed,
		Metric:       s.meta.Metric,
	})
	if err != nil {
		return err
	}
	q, err := rabitq.NewQuantizer(cb, s.params.Quantizer.TotalBits, s.params.Quantizer.KeepRaw)
	if err != nil {
		return err
	}
	s.quantizer = q
	s.graph = hnsw.NewGraph(q, s.params.HNSW)
	s.state = StateOpened
	return nil
}

func (s *Streamer) checkLimits() {
	soft := s.params.HNSW.DocsSoftLimit
	if soft == 0 {
		soft = s.params.HNSW.DocsHardLimit * 9 / 10
	}
	if soft == 0 {
		return
	}
	if s.graph.DocCount() < soft {
		return
	}
	if s.softWarned {
		return
	}
	s.softWarned = true
	s.log.Warn("docs_soft_limit reached", map[string]interface{}{"docs": s.graph.DocCount()})
	if s.metrics != nil {
		s.metrics.RecordDocsSoftLimitWarning("streamer")
	}
}

// Add implements §6's `Streamer.add(key, vector)`: the graph's own
// per-(level,id) locks make concurrent adds safe under the Streamer's
// shared (read) lock, reserving the exclusive lock for Flush/Dump.
func (s *Streamer) Add(key hnsw.Key, vector []float32) (hnsw.NodeId, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateOpened {
		return hnsw.InvalidNodeId, zvecerr.New(zvecerr.NoReady, "Add called outside state Opened")
	}
	if s.params.HNSW.DocsHardLimit > 0 && s.graph.DocCount() >= s.params.HNSW.DocsHardLimit {
		if s.metrics != nil {
			s.metrics.RecordQuotaRejection("streamer", "docs_hard_limit")
		}
		return hnsw.InvalidNodeId, zvecerr.New(zvecerr.IndexFull, "docs_hard_limit exceeded")
	}
	if s.params.MemoryQuotaBytes > 0 {
		// approximate accounting: each live doc, counting the one being
		// added, roughly costs one encoded vector plus its neighbor lists;
		// a precise accounting would need the arena's actual allocator
		// stats, which pkg/hnsw does not expose (see DESIGN.md).
		estimated := (s.graph.DocCount() + 1) * uint64(s.meta.Dimension) * 2
		if estimated > s.params.MemoryQuotaBytes {
			if s.metrics != nil {
				s.metrics.RecordQuotaRejection("streamer", "memory")
			}
			return hnsw.InvalidNodeId, zvecerr.New(zvecerr.OutOfMemory, "memory_quota exceeded")
		}
	}

	ctx := s.ctxPool.Get().(*hnsw.Context)
	defer s.ctxPool.Put(ctx)
	id, err := s.graph.Insert(ctx, key, vector)
	if err != nil {
		return hnsw.InvalidNodeId, err
	}
	s.checkLimits()
	if s.metrics != nil {
		entry, level := s.graph.EntryPoint()
		_ = entry
		s.metrics.UpdateEntryPointLevel("streamer", level)
	}
	return id, nil
}

// NodeCount returns the number of NodeIds ever allocated (live or
// tombstoned) — the id an AddWithID caller must supply next, since §4.3
// requires add_with_id's id to equal the current sequential slot.
func (s *Streamer) NodeCount() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return 0
	}
	return s.graph.NodeCount()
}

// AddWithID implements §6's `Streamer.add_with_id(id, vector)`: the ingest
// layer assigns its own dense NodeId rather than letting the graph mint
// one, but otherwise goes through the identical quota checks and linking
// protocol as Add.
func (s *Streamer) AddWithID(id hnsw.NodeId, key hnsw.Key, vector []float32) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateOpened {
		return zvecerr.New(zvecerr.NoReady, "AddWithID called outside state Opened")
	}
	if s.params.HNSW.DocsHardLimit > 0 && s.graph.DocCount() >= s.params.HNSW.DocsHardLimit {
		if s.metrics != nil {
			s.metrics.RecordQuotaRejection("streamer", "docs_hard_limit")
		}
		return zvecerr.New(zvecerr.IndexFull, "docs_hard_limit exceeded")
	}
	if s.params.MemoryQuotaBytes > 0 {
		estimated := (s.graph.DocCount() + 1) * uint64(s.meta.Dimension) * 2
		if estimated > s.params.MemoryQuotaBytes {
			if s.metrics != nil {
				s.metrics.RecordQuotaRejection("streamer", "memory")
			}
			return zvecerr.New(zvecerr.OutOfMemory, "memory_quota exceeded")
		}
	}

	ctx := s.ctxPool.Get().(*hnsw.Context)
	defer s.ctxPool.Put(ctx)
	if err := s.graph.InsertWithID(ctx, id, key, vector); err != nil {
		return err
	}
	s.checkLimits()
	if s.metrics != nil {
		_, level := s.graph.EntryPoint()
		s.metrics.UpdateEntryPointLevel("streamer", level)
	}
	return nil
}

// Search implements §6's `Streamer.search(query, k, ef)`, falling back to
// brute force below bruteforce_threshold per §4.4.
func (s *Streamer) Search(query []float32, k, ef int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateOpened {
		return nil, zvecerr.New(zvecerr.NoReady, "Search called outside state Opened")
	}
	if s.params.HNSW.BruteForceThreshold > 0 && s.graph.DocCount() <= s.params.HNSW.BruteForceThreshold {
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

// Delete implements §4.3's tombstone path via the Streamer.
func (s *Streamer) Delete(key hnsw.Key) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateOpened {
		return zvecerr.New(zvecerr.NoReady, "Delete called outside state Opened")
	}
	return s.graph.Tombstone(key)
}

// Flush implements §6's `Streamer.flush(checkpoint_token)`: takes the
// exclusive lock so no Add races the snapshot, and serializes the current
// graph state together with the supplied checkpoint token, without
// changing the Streamer's own lifecycle state (it remains Opened and can
// keep accepting writes afterward).
func (s *Streamer) Flush(w io.Writer, checkpointToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpened {
		return zvecerr.New(zvecerr.NoReady, "Flush called outside state Opened")
	}
	if err := dumpCore(w, s.meta, s.params, s.quantizer, s.graph, checkpointToken); err != nil {
		return err
	}
	s.checkpoint = checkpointToken
	return nil
}

// Dump is Flush's final-snapshot counterpart, used when a Streamer is
// being retired in favor of a Searcher over the same bytes, with no
// checkpoint token attached.
func (s *Streamer) Dump(w io.Writer) error {
	return s.Flush(w, "")
}

// Close releases the graph/quantizer references, transitioning Opened ->
// Inited so a fresh Open can reuse this Streamer instance, matching §3's
// lifecycle table ("Opened -> Inited on close").
func (s *Streamer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpened {
		return zvecerr.New(zvecerr.InvalidArgument, "Close called outside state Opened")
	}
	s.graph = nil
	s.quantizer = nil
	s.state = StateInited
	return nil
}

// FlushToStorage is Flush's StorageBackend-backed counterpart: it dumps
// into memory, re-splits the stream into its tagged segments, and commits
// them through backend (the write-to-temp + rename path lives in
// FileStorageBackend.Commit).
func (s *Streamer) FlushToStorage(backend StorageBackend, checkpointToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpened {
		return zvecerr.New(zvecerr.NoReady, "FlushToStorage called outside state Opened")
	}
	var buf bytes.Buffer
	if err := dumpCore(&buf, s.meta, s.params, s.quantizer, s.graph, ""); err != nil {
		return err
	}
	segs, err := splitSegments(&buf)
	if err != nil {
		return err
	}
	for tag, payload := range segs {
		if err := backend.WriteSegment(tag, payload); err != nil {
			return err
		}
	}
	if err := backend.Commit(checkpointToken); err != nil {
		return err
	}
	s.checkpoint = checkpointToken
	return nil
}

// OpenFromStorage restores a Streamer from a previously committed backend,
// reassembling the original dump stream from its tagged segments and
// feeding it to loadCore. This is S5's "reopen same storage" path.
func (s *Streamer) OpenFromStorage(backend StorageBackend) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInited {
		return zvecerr.New(zvecerr.InvalidArgument, "OpenFromStorage called outside state Inited")
	}
	stream, err := joinSegments(backend, s.params.HNSW.LMax)
	if err != nil {
		return err
	}
	q, g, checkpoint, err := loadCore(bytes.NewReader(stream), s.meta, s.params, s.params.CheckCRC)
	if err != nil {
		return err
	}
	s.quantizer = q
	s.graph = g
	s.checkpoint = checkpoint
	s.state = StateOpened
	return nil
}
