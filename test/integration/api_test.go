package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/vector/pkg/api/rest"
	"github.com/therealutkarshpriyadarshi/vector/pkg/hnsw"
	"github.com/therealutkarshpriyadarshi/vector/pkg/index"
	"github.com/therealutkarshpriyadarshi/vector/pkg/observability"
	"github.com/therealutkarshpriyadarshi/vector/pkg/rabitq"
)

// memHolder is an in-memory index.Holder fixture, grounded on the same
// shape as cmd/cli's jsonlHolder but built directly from literal slices
// for test determinism.
type memHolder struct {
	keys    []hnsw.Key
	vectors [][]float32
}

func (h *memHolder) Count() int     { return len(h.keys) }
func (h *memHolder) Dimension() int { return len(h.vectors[0]) }

func (h *memHolder) Iterate(fn func(key hnsw.Key, vector []float32) error) error {
	for i, key := range h.keys {
		if err := fn(key, h.vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

func (h *memHolder) GetVector(key hnsw.Key) ([]float32, bool) {
	for i, k := range h.keys {
		if k == key {
			return h.vectors[i], true
		}
	}
	return nil, false
}

func seedHolder() *memHolder {
	h := &memHolder{}
	for i := uint64(1); i <= 20; i++ {
		v := []float32{float32(i), float32(i) * 0.5, float32(i) * 0.25}
		h.keys = append(h.keys, i)
		h.vectors = append(h.vectors, v)
	}
	return h
}

func setupTestServer(t *testing.T, port int) (*rest.Server, func()) {
	t.Helper()

	seed := seedHolder()
	logger := observability.NewDefaultLogger()
	metrics := observability.NewMetrics()
	streamer := index.NewStreamer(logger, metrics)

	meta := index.Meta{DataType: rabitq.FP32, Dimension: seed.Dimension(), Metric: rabitq.SquaredEuclidean}
	params := index.DefaultParams()
	params.Quantizer.NumClusters = 2
	params.Quantizer.SampleCount = seed.Count()
	params.HNSW.BruteForceThreshold = 1000 // force brute-force path on this tiny fixture

	if err := streamer.Init(meta, params); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := streamer.Open(nil, seed); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := seed.Iterate(func(key hnsw.Key, vector []float32) error {
		_, err := streamer.Add(key, vector)
		return err
	}); err != nil {
		t.Fatalf("seeding streamer failed: %v", err)
	}

	server, err := rest.NewServer(rest.Config{Host: "127.0.0.1", Port: port}, streamer, logger, metrics)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	time.Sleep(100 * time.Millisecond)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Stop(ctx)
	}

	return server, cleanup
}

func baseURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d", port)
}

func TestHealthCheck(t *testing.T) {
	_, cleanup := setupTestServer(t, 18081)
	defer cleanup()

	resp, err := http.Get(baseURL(18081) + "/v1/health")
	if err != nil {
		t.Fatalf("health check request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status=ok, got %v", body["status"])
	}
}

func TestInsertAndSearch(t *testing.T) {
	_, cleanup := setupTestServer(t, 18082)
	defer cleanup()

	insertBody, _ := json.Marshal(map[string]interface{}{
		"key":    uint64(100),
		"vector": []float32{1.0, 2.0, 3.0},
	})
	resp, err := http.Post(baseURL(18082)+"/v1/vectors", "application/json", bytes.NewReader(insertBody))
	if err != nil {
		t.Fatalf("insert request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	searchBody, _ := json.Marshal(map[string]interface{}{
		"vector": []float32{1.0, 2.0, 3.0},
		"k":      5,
	})
	resp, err = http.Post(baseURL(18082)+"/v1/vectors/search", "application/json", bytes.NewReader(searchBody))
	if err != nil {
		t.Fatalf("search request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var results struct {
		Results []struct {
			Key      uint64  `json:"key"`
			Distance float32 `json:"distance"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(results.Results) == 0 {
		t.Fatal("expected at least one search result")
	}
	if results.Results[0].Key != 100 {
		t.Errorf("expected nearest result to be the just-inserted key 100, got %d", results.Results[0].Key)
	}
}

func TestDeleteByPath(t *testing.T) {
	_, cleanup := setupTestServer(t, 18083)
	defer cleanup()

	req, _ := http.NewRequest(http.MethodDelete, baseURL(18083)+"/v1/vectors/5", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success {
		t.Error("expected delete success=true")
	}
}

func TestBatchInsert(t *testing.T) {
	_, cleanup := setupTestServer(t, 18084)
	defer cleanup()

	batch := []map[string]interface{}{
		{"key": uint64(201), "vector": []float32{4, 5, 6}},
		{"key": uint64(202), "vector": []float32{7, 8, 9}},
	}
	body, _ := json.Marshal(batch)
	resp, err := http.Post(baseURL(18084)+"/v1/vectors/batch", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("batch insert request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var results []struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, r := range results {
		if !r.Success {
			t.Errorf("batch item %d failed", i)
		}
	}
}
