package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/vector/pkg/hnsw"
	"github.com/therealutkarshpriyadarshi/vector/pkg/index"
	"github.com/therealutkarshpriyadarshi/vector/pkg/observability"
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "build":
		handleBuild(os.Args[2:])
	case "search":
		handleSearch(os.Args[2:])
	case "insert":
		handleInsert(os.Args[2:])
	case "delete":
		handleDelete(os.Args[2:])
	case "stats":
		handleStats(os.Args[2:])
	case "version":
		fmt.Printf("vector-cli version %s\n", version)
	case "help", "-h", "--help":
		showUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showUsage()
		os.Exit(1)
	}
}

// jsonlHolder implements index.Holder over a JSON-lines file of
// {"key": <uint64>, "vector": [<float32>...]} records, loaded fully into
// memory. Grounded on the teacher's own in-memory ingestion path
// (pkg/hnsw.Index.Build took a slice of vectors directly); this is the
// file-backed equivalent the CLI needs since it has no live ingestion
// source of its own.
type jsonlHolder struct {
	keys    []hnsw.Key
	vectors [][]float32
	byKey   map[hnsw.Key]int
	dim     int
}

type jsonlRecord struct {
	Key    uint64    `json:"key"`
	Vector []float32 `json:"vector"`
}

func loadJSONLHolder(path string) (*jsonlHolder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	h := &jsonlHolder{byKey: make(map[hnsw.Key]int)}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec jsonlRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if h.dim == 0 {
			h.dim = len(rec.Vector)
		} else if len(rec.Vector) != h.dim {
			return nil, fmt.Errorf("line %d: vector has %d dims, expected %d", lineNo, len(rec.Vector), h.dim)
		}
		h.byKey[rec.Key] = len(h.keys)
		h.keys = append(h.keys, rec.Key)
		h.vectors = append(h.vectors, rec.Vector)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}
	return h, nil
}

func (h *jsonlHolder) Count() int     { return len(h.keys) }
func (h *jsonlHolder) Dimension() int { return h.dim }

func (h *jsonlHolder) Iterate(fn func(key hnsw.Key, vector []float32) error) error {
	for i, key := range h.keys {
		if err := fn(key, h.vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

func (h *jsonlHolder) GetVector(key hnsw.Key) ([]float32, bool) {
	i, ok := h.byKey[key]
	if !ok {
		return nil, false
	}
	return h.vectors[i], true
}

func handleBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	var (
		input       = fs.String("input", "", "JSON-lines file of {key, vector} records (required)")
		output      = fs.String("output", "", "path to write the built index to (required)")
		clusters    = fs.Int("clusters", 16, "RaBitQ coarse cluster count")
		totalBits   = fs.Int("bits", 7, "RaBitQ total bits per code (1-9)")
		m           = fs.Int("m", 32, "HNSW M (neighbors per level)")
		efConstruct = fs.Int("ef-construction", 200, "HNSW efConstruction")
		threads     = fs.Int("threads", 4, "worker threads for graph construction")
		rotator     = fs.String("rotator", "kac", "rotator kind: kac or fht")
	)
	fs.Parse(args)

	if *input == "" || *output == "" {
		fmt.Println("Error: -input and -output are required")
		fs.Usage()
		os.Exit(1)
	}

	holder, err := loadJSONLHolder(*input)
	if err != nil {
		fmt.Printf("Error loading input: %v\n", err)
		os.Exit(1)
	}
	if holder.Count() == 0 {
		fmt.Println("Error: input file contained no records")
		os.Exit(1)
	}

	log := observability.NewDefaultLogger()
	builder := index.NewBuilder(log)

	meta := index.Meta{DataType: rabitq.FP32, Dimension: holder.Dimension(), Metric: rabitq.SquaredEuclidean}
	params := index.DefaultParams()
	params.HNSW.M = *m
	params.HNSW.EfConstruction = *efConstruct
	params.Quantizer.NumClusters = *clusters
	params.Quantizer.TotalBits = *totalBits
	params.Quantizer.RotatorKind = rabitq.ParseRotatorKind(*rotator)

	if err := builder.Init(meta, params); err != nil {
		fmt.Printf("Init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Training quantizer on %d vectors (dim=%d)...\n", holder.Count(), holder.Dimension())
	if err := builder.Train(holder); err != nil {
		fmt.Printf("Train failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Building graph with %d threads...\n", *threads)
	start := time.Now()
	if err := builder.Build(context.Background(), holder, *threads); err != nil {
		fmt.Printf("Build failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Build complete in %v\n", time.Since(start))

	f, err := os.Create(*output)
	if err != nil {
		fmt.Printf("Error creating output file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	if err := builder.Dump(f); err != nil {
		fmt.Printf("Dump failed: %v\n", err)
		os.Exit(1)
	}
	builder.Cleanup()
	fmt.Printf("✓ Wrote index to %s\n", *output)
}

func handleSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	var (
		indexPath = fs.String("index", "", "path to built index (required)")
		queryStr  = fs.String("query", "", "query vector as JSON array (required)")
		k         = fs.Int("k", 10, "number of results to return")
		ef        = fs.Int("ef", 50, "HNSW efSearch parameter")
		dim       = fs.Int("dim", 0, "vector dimension (required)")
	)
	fs.Parse(args)

	if *indexPath == "" || *queryStr == "" || *dim == 0 {
		fmt.Println("Error: -index, -query and -dim are required")
		fs.Usage()
		os.Exit(1)
	}

	var query []float32
	if err := json.Unmarshal([]byte(*queryStr), &query); err != nil {
		fmt.Printf("Error parsing query vector: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(*indexPath)
	if err != nil {
		fmt.Printf("Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	searcher := index.NewSearcher(observability.NewDefaultLogger(), nil)
	meta := index.Meta{DataType: rabitq.FP32, Dimension: *dim, Metric: rabitq.SquaredEuclidean}
	if err := searcher.Open(f, meta, index.DefaultParams()); err != nil {
		fmt.Printf("Error opening searcher: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	results, err := searcher.Search(query, *k, *ef)
	if err != nil {
		fmt.Printf("Search failed: %v\n", err)
		os.Exit(1)
	}
	elapsed := time.Since(start)

	fmt.Printf("Found %d results (%.3fms)\n\n", len(results), float64(elapsed.Microseconds())/1000)
	for i, r := range results {
		fmt.Printf("%d. key=%d distance=%.6f\n", i+1, r.Key, r.Distance)
	}
}

func handleInsert(args []string) {
	fs := flag.NewFlagSet("insert", flag.ExitOnError)
	var (
		indexPath = fs.String("index", "", "path to built index (required)")
		key       = fs.Uint64("key", 0, "key of the vector to insert (required, nonzero)")
		vectorStr = fs.String("vector", "", "vector as JSON array (required)")
		dim       = fs.Int("dim", 0, "vector dimension (required)")
	)
	fs.Parse(args)

	if *indexPath == "" || *vectorStr == "" || *dim == 0 || *key == 0 {
		fmt.Println("Error: -index, -key, -vector and -dim are required")
		fs.Usage()
		os.Exit(1)
	}

	var vector []float32
	if err := json.Unmarshal([]byte(*vectorStr), &vector); err != nil {
		fmt.Printf("Error parsing vector: %v\n", err)
		os.Exit(1)
	}

	backend := index.NewFileStorageBackend()
	if err := backend.Open(*indexPath, false); err != nil {
		fmt.Printf("Error opening storage: %v\n", err)
		os.Exit(1)
	}

	streamer := index.NewStreamer(observability.NewDefaultLogger(), nil)
	meta := index.Meta{DataType: rabitq.FP32, Dimension: *dim, Metric: rabitq.SquaredEuclidean}
	if err := streamer.Init(meta, index.DefaultParams()); err != nil {
		fmt.Printf("Init failed: %v\n", err)
		os.Exit(1)
	}
	if err := streamer.OpenFromStorage(backend); err != nil {
		fmt.Printf("Error opening streamer: %v\n", err)
		os.Exit(1)
	}

	id, err := streamer.Add(*key, vector)
	if err != nil {
		fmt.Printf("Insert failed: %v\n", err)
		os.Exit(1)
	}
	if err := streamer.FlushToStorage(backend, fmt.Sprintf("cli-insert-%d", time.Now().Unix())); err != nil {
		fmt.Printf("Flush failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Inserted key=%d (node id=%d)\n", *key, id)
}

func handleDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	var (
		indexPath = fs.String("index", "", "path to built index (required)")
		key       = fs.Uint64("key", 0, "key of the vector to delete (required, nonzero)")
		dim       = fs.Int("dim", 0, "vector dimension (required)")
	)
	fs.Parse(args)

	if *indexPath == "" || *dim == 0 || *key == 0 {
		fmt.Println("Error: -index, -key and -dim are required")
		fs.Usage()
		os.Exit(1)
	}

	backend := index.NewFileStorageBackend()
	if err := backend.Open(*indexPath, false); err != nil {
		fmt.Printf("Error opening storage: %v\n", err)
		os.Exit(1)
	}

	streamer := index.NewStreamer(observability.NewDefaultLogger(), nil)
	meta := index.Meta{DataType: rabitq.FP32, Dimension: *dim, Metric: rabitq.SquaredEuclidean}
	if err := streamer.Init(meta, index.DefaultParams()); err != nil {
		fmt.Printf("Init failed: %v\n", err)
		os.Exit(1)
	}
	if err := streamer.OpenFromStorage(backend); err != nil {
		fmt.Printf("Error opening streamer: %v\n", err)
		os.Exit(1)
	}

	if err := streamer.Delete(*key); err != nil {
		fmt.Printf("Delete failed: %v\n", err)
		os.Exit(1)
	}
	if err := streamer.FlushToStorage(backend, fmt.Sprintf("cli-delete-%d", time.Now().Unix())); err != nil {
		fmt.Printf("Flush failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Deleted key=%d\n", *key)
}

func handleStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	var (
		indexPath = fs.String("index", "", "path to built index (required)")
		dim       = fs.Int("dim", 0, "vector dimension (required)")
	)
	fs.Parse(args)

	if *indexPath == "" || *dim == 0 {
		fmt.Println("Error: -index and -dim are required")
		fs.Usage()
		os.Exit(1)
	}

	f, err := os.Open(*indexPath)
	if err != nil {
		fmt.Printf("Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	searcher := index.NewSearcher(observability.NewDefaultLogger(), nil)
	meta := index.Meta{DataType: rabitq.FP32, Dimension: *dim, Metric: rabitq.SquaredEuclidean}
	if err := searcher.Open(f, meta, index.DefaultParams()); err != nil {
		fmt.Printf("Error opening index: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Index Statistics ===")
	fmt.Printf("State:      %s\n", searcher.State())
	fmt.Printf("Checkpoint: %s\n", searcher.Checkpoint())
}

func showUsage() {
	fmt.Println(`Vector Search CLI - offline build and query tool for an HNSW/RaBitQ index

Usage:
  vector-cli <command> [options]

Commands:
  build   Train a quantizer and build a graph from a JSON-lines vector file
  search  Run a k-NN query against a built index
  insert  Add a single vector to an existing index and persist the result
  delete  Tombstone a key in an existing index and persist the result
  stats   Print an index's lifecycle state and checkpoint
  version Show version
  help    Show this help message

Examples:

  # Build an index from vectors.jsonl (one {"key":..,"vector":[..]} per line)
  vector-cli build -input vectors.jsonl -output index.zvix -m 32 -clusters 16

  # Query it
  vector-cli search -index index.zvix -dim 128 -query '[0.1, 0.2, ...]' -k 10

  # Insert a new vector and persist the update
  vector-cli insert -index index.zvix -dim 128 -key 42 -vector '[0.1, ...]'

  # Remove a vector
  vector-cli delete -index index.zvix -dim 128 -key 42

  # Inspect lifecycle state
  vector-cli stats -index index.zvix -dim 128
`)
}
