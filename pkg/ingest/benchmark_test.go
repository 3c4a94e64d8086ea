package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/japaniel/entityscan/pkg/db"
)

func setupBenchmarkDB(b *testing.B) *sql.DB {
	conn, err := db.Open(":memory:")
	if err != nil {
		b.Fatalf("failed to open db: %v", err)
	}
	// Optimize SQLite for performance to focus on application throughput
	_, _ = conn.Exec("PRAGMA synchronous = OFF")
	_, _ = conn.Exec("PRAGMA journal_mode = MEMORY")
	return conn
}

func BenchmarkIngest(b *testing.B) {
	records := makeRecords(1000)
	analyzer := newAnalyzer(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		conn := setupBenchmarkDB(b)
		ig := NewIngester(conn, analyzer)
		ig.Workers = 4
		ig.BatchSize = 100
		b.StartTimer()

		_, err := ig.Ingest(context.Background(), Dataset{Name: fmt.Sprintf("bench_%d", i), Records: records})
		b.StopTimer()
		conn.Close()
		if err != nil {
			b.Fatalf("Ingest failed: %v", err)
		}
	}
}

func BenchmarkIngestConcurrencyScaling(b *testing.B) {
	counts := []int{1, 2, 4, 8}
	records := makeRecords(1000)
	analyzer := newAnalyzer(b)

	for _, workers := range counts {
		b.Run(fmt.Sprintf("Workers_%d", workers), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				conn := setupBenchmarkDB(b)
				ig := NewIngester(conn, analyzer)
				ig.Workers = workers
				ig.BatchSize = 100 // Keep batch size constant
				b.StartTimer()

				_, err := ig.Ingest(context.Background(), Dataset{Name: "bench", Records: records})
				b.StopTimer()
				conn.Close()
				if err != nil {
					b.Fatalf("Ingest failed: %v", err)
				}
			}
		})
	}
}
