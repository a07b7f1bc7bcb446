package index

import (
	"context"
	"io"
	"sync"

	"github.com/therealutkarshpriyadarshi/vector/pkg/hnsw"
	"github.com/therealutkarshpriyadarshi/vector/pkg/observability"
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
	"github.com/therealutkarshpriyadarshi/vector/pkg/zvecerr"
)

// Builder implements §4.5's batch role: single writer during init/train,
// many reader threads during build, read-only once dumped. Grounded on the
// teacher's pkg/hnsw.Index.Build (a single bulk-load entry point) split
// apart into the explicit init/train/build/dump stages §6 names, with
// worker fan-out modeled on pkg/observability's logger-per-component idiom
// for progress reporting.
type Builder struct {
	mu     sync.Mutex
	state  State
	meta   Meta
	params Params

	quantizer *rabitq.Quantizer
	graph     *hnsw.Graph

	log *observability.Logger
}

// NewBuilder constructs a Builder in state Init.
func NewBuilder(log *observability.Logger) *Builder {
	if log == nil {
		log = observability.NewDefaultLogger()
	}
	return &Builder{state: StateInit, log: log.WithField("component", "index.builder")}
}

func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Init implements §6's `Builder.init(meta, params)`: records the index
// identity and tuning knobs, nothing else, transitioning Init -> Inited.
func (b *Builder) Init(meta Meta, params Params) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateInit {
		return zvecerr.New(zvecerr.InvalidArgument, "Init called outside state Init")
	}
	b.meta = meta
	b.params = params
	b.state = StateInited
	return nil
}

// Train implements §6's `Builder.train(holder)`: samples up to
// quantizer.sample_count vectors from holder and runs K2 training,
// transitioning Inited -> Trained.
func (b *Builder) Train(holder Holder) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateInited {
		return zvecerr.New(zvecerr.InvalidArgument, "Train called outside state Inited")
	}

	samples, err := sampleVectors(holder, b.params.Quantizer.SampleCount)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return zvecerr.New(zvecerr.InvalidArgument, "holder produced no training vectors")
	}

	cb, err := rabitq.Train(samples, rabitq.TrainConfig{
		ClusterCount: b.params.Quantizer.NumClusters,
		KMeansIters:  b.params.Quantizer.KMeansIters,
		RotatorKind:  b.params.Quantizer.RotatorKind,
		Seed:         b.params.Quantizer.Seed,
		Metric:       b.meta.Metric,
	})
	if err != nil {
		return err
	}
	q, err := rabitq.NewQuantizer(cb, b.params.Quantizer.TotalBits, b.params.Quantizer.KeepRaw)
	if err != nil {
		return err
	}

	b.quantizer = q
	b.graph = hnsw.NewGraph(q, b.params.HNSW)
	b.graph.Reserve(holder.Count())
	b.state = StateTrained
	b.log.Info("quantizer trained", map[string]interface{}{
		"clusters": b.params.Quantizer.NumClusters,
		"samples":  len(samples),
	})
	return nil
}

// sampleVectors draws up to n vectors from holder in iteration order, which
// for most Holder implementations is close enough to uniform sampling for
// coarse-clustering purposes; a Holder that cares about sample bias can
// pre-shuffle its own iteration order.
func sampleVectors(holder Holder, n int) ([][]float32, error) {
	if n <= 0 || n >= holder.Count() {
		out := make([][]float32, 0, holder.Count())
		err := holder.Iterate(func(_ hnsw.Key, vector []float32) error {
			out = append(out, vector)
			return nil
		})
		return out, err
	}
	out := make([][]float32, 0, n)
	err := holder.Iterate(func(_ hnsw.Key, vector []float32) error {
		if len(out) >= n {
			return errStopIteration
		}
		out = append(out, vector)
		return nil
	})
	if err == errStopIteration {
		err = nil
	}
	return out, err
}

var errStopIteration = zvecerr.New(zvecerr.Runtime, "sample quota reached")

// Build implements §6's `Builder.build(holder, thread_pool?)`: spawns
// threads workers, each pulling (key, vector) pairs from a shared channel
// and performing the insert protocol of §4.4. Insertion order across
// workers is nondeterministic, matching the teacher's own bulk-load
// parallelism (pkg/hnsw.Index.Build) and §4.5's explicit "many reader
// threads" framing — HNSW's neighbor-selection heuristic tolerates
// insertion-order nondeterminism by design.
func (b *Builder) Build(ctx context.Context, holder Holder, threads int) error {
	b.mu.Lock()
	if b.state != StateTrained {
		b.mu.Unlock()
		return zvecerr.New(zvecerr.InvalidArgument, "Build called outside state Trained")
	}
	graph := b.graph
	b.mu.Unlock()

	if threads < 1 {
		threads = 1
	}

	type pair struct {
		key    hnsw.Key
		vector []float32
	}
	work := make(chan pair, threads*4)
	errs := make(chan error, threads)
	var wg sync.WaitGroup

	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wctx := hnsw.NewContext()
			for p := range work {
				if _, err := graph.Insert(wctx, p.key, p.vector); err != nil {
					select {
					case errs <- err:
					default:
					}
				}
			}
		}()
	}

	feedErr := holder.Iterate(func(key hnsw.Key, vector []float32) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case work <- pair{key: key, vector: vector}:
			return nil
		}
	})
	close(work)
	wg.Wait()
	close(errs)

	if feedErr != nil {
		return feedErr
	}
	for err := range errs {
		if err != nil {
			return err
		}
	}

	b.mu.Lock()
	b.state = StateBuilt
	b.mu.Unlock()
	b.log.Info("build complete", map[string]interface{}{"docs": graph.DocCount()})
	return nil
}

// Dump implements §6's `Builder.dump(writer)`, serializing the §6 segment
// stream, transitioning Built -> Dumped.
func (b *Builder) Dump(w io.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateBuilt {
		return zvecerr.New(zvecerr.InvalidArgument, "Dump called outside state Built")
	}
	if err := dumpCore(w, b.meta, b.params, b.quantizer, b.graph, ""); err != nil {
		return err
	}
	b.state = StateDumped
	return nil
}

// Cleanup releases the built graph and quantizer, returning the Builder to
// a state where it can neither Train nor Build again. Grounded on §6's
// "Builder... read-only once dumped" framing: Cleanup simply drops the
// references so the garbage collector can reclaim the arena once the
// caller has no other reference to it.
func (b *Builder) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.graph = nil
	b.quantizer = nil
}
