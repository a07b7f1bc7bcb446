package observability

import (
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	// Create metrics once for all subtests
	m := NewMetrics()

	t.Run("NewMetrics", func(t *testing.T) {
		if m == nil {
			t.Fatal("NewMetrics returned nil")
		}

		// Verify all metrics are initialized
		if m.RequestsTotal == nil {
			t.Error("RequestsTotal not initialized")
		}
		if m.RequestDuration == nil {
			t.Error("RequestDuration not initialized")
		}
		if m.VectorsInserted == nil {
			t.Error("VectorsInserted not initialized")
		}
		if m.QuantizerErrBound == nil {
			t.Error("QuantizerErrBound not initialized")
		}
	})

	t.Run("RecordRequest", func(t *testing.T) {
		// Test recording a successful request
		duration := 100 * time.Millisecond
		m.RecordRequest("Insert", "success", duration)

		// Test recording a failed request
		m.RecordRequest("Search", "error", 50*time.Millisecond)

		// Test various methods
		methods := []string{"Insert", "Search", "Delete", "BatchInsert"}
		statuses := []string{"success", "error", "timeout"}

		for _, method := range methods {
			for _, status := range statuses {
				m.RecordRequest(method, status, duration)
			}
		}
	})

	t.Run("RecordError", func(t *testing.T) {
		// Test recording different error types
		m.RecordError("Insert", "validation_error")
		m.RecordError("Search", "timeout")
		m.RecordError("Delete", "not_found")
	})

	t.Run("RecordInsert", func(t *testing.T) {
		// Test single insert
		m.RecordInsert("default", 1)

		// Test multiple inserts
		for i := 0; i < 100; i++ {
			m.RecordInsert("default", 1)
		}

		// Test batch inserts
		m.RecordInsert("production", 1000)
		m.RecordInsert("staging", 50)
	})

	t.Run("RecordDelete", func(t *testing.T) {
		// Test single delete
		m.RecordDelete("default", 1)

		// Test multiple deletes
		for i := 0; i < 50; i++ {
			m.RecordDelete("default", 1)
		}

		// Test batch deletes
		m.RecordDelete("production", 100)
	})

	t.Run("RecordSearch", func(t *testing.T) {
		// Test search recording
		m.RecordSearch(50*time.Millisecond, 10)
		m.RecordSearch(100*time.Millisecond, 25)
		m.RecordSearch(25*time.Millisecond, 5)

		// Test with various result sizes
		for i := 1; i <= 100; i += 10 {
			m.RecordSearch(time.Millisecond*time.Duration(i), i)
		}
	})

	t.Run("UpdateIndexSize", func(t *testing.T) {
		// Test updating index size for different namespaces
		m.UpdateIndexSize("default", 1000)
		m.UpdateIndexSize("production", 50000)
		m.UpdateIndexSize("staging", 500)

		// Test updating same namespace
		m.UpdateIndexSize("default", 1500)
		m.UpdateIndexSize("default", 2000)
	})

	t.Run("UpdateIndexMaxLayer", func(t *testing.T) {
		// Test max layer updates
		m.UpdateIndexMaxLayer("default", 5)
		m.UpdateIndexMaxLayer("production", 8)
		m.UpdateIndexMaxLayer("staging", 3)
	})

	t.Run("RecordBatchInsert", func(t *testing.T) {
		// Test batch insert recording
		m.RecordBatchInsert(500*time.Millisecond, 100)
		m.RecordBatchInsert(5*time.Second, 1000)
		m.RecordBatchInsert(200*time.Millisecond, 50)
	})

	t.Run("RecordBatchDelete", func(t *testing.T) {
		// Test batch delete recording
		m.RecordBatchDelete(200*time.Millisecond, 50)
		m.RecordBatchDelete(2*time.Second, 500)
		m.RecordBatchDelete(100*time.Millisecond, 25)
	})

	t.Run("RecordErrBound", func(t *testing.T) {
		m.RecordErrBound(0.001)
		m.RecordErrBound(0.05)
		m.RecordErrBound(1.2)
	})

	t.Run("UpdateEntryPointLevel", func(t *testing.T) {
		m.UpdateEntryPointLevel("default", 0)
		m.UpdateEntryPointLevel("default", 4)
		m.UpdateEntryPointLevel("production", 7)
	})

	t.Run("RecordBeamSearchVisited", func(t *testing.T) {
		for i := 1; i <= 50; i += 5 {
			m.RecordBeamSearchVisited(i)
		}
	})

	t.Run("RecordDocsSoftLimitWarning", func(t *testing.T) {
		m.RecordDocsSoftLimitWarning("default")
		m.RecordDocsSoftLimitWarning("production")
	})

	t.Run("RecordQuotaRejection", func(t *testing.T) {
		m.RecordQuotaRejection("default", "docs_hard_limit")
		m.RecordQuotaRejection("default", "memory")
	})

	t.Run("ConcurrentUpdates", func(t *testing.T) {
		done := make(chan bool, 10)
		for i := 0; i < 10; i++ {
			go func() {
				for j := 0; j < 10; j++ {
					m.RecordInsert("default", 1)
					m.RecordBeamSearchVisited(j)
				}
				done <- true
			}()
		}
		for i := 0; i < 10; i++ {
			<-done
		}
	})
}

func BenchmarkRecordRequest(b *testing.B) {
	m := NewMetrics()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordRequest("Search", "success", time.Millisecond)
	}
}

func BenchmarkRecordSearch(b *testing.B) {
	m := NewMetrics()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordSearch(time.Millisecond, 10)
	}
}

func BenchmarkUpdateIndexSize(b *testing.B) {
	m := NewMetrics()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.UpdateIndexSize("default", i)
	}
}

func BenchmarkConcurrentMetricUpdates(b *testing.B) {
	m := NewMetrics()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.RecordInsert("default", 1)
		}
	})
}
