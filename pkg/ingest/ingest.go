// Package ingest analyzes whole datasets of records and stores the entities
// found in SQLite, resuming from the last committed record.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/japaniel/entityscan/pkg/analyze"
	"github.com/japaniel/entityscan/pkg/db"
	"github.com/japaniel/entityscan/pkg/emit"
	"github.com/japaniel/entityscan/pkg/notify"
	"github.com/japaniel/entityscan/pkg/resolve"
)

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	// SubmitCtx attempts to enqueue a job but returns promptly if ctx is canceled.
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// RecordAnalyzer is satisfied by *analyze.Analyzer.
type RecordAnalyzer interface {
	Analyze(ctx context.Context, rec analyze.Record) (*analyze.Result, error)
}

// Notifier is told about every successful run. *notify.Publisher implements it.
type Notifier interface {
	Publish(ctx context.Context, ev notify.Event) error
}

// Dataset is a named, ordered list of records. Record positions are the
// checkpoint unit, so the order must be stable between runs.
type Dataset struct {
	Name    string
	Path    string
	Records []analyze.Record
}

// Stats describes one run.
type Stats struct {
	RunID     string
	DatasetID int64
	// Records analyzed and committed by this run.
	Records int
	// Skipped records were committed by an earlier run.
	Skipped int
	// Failed records hit an unavailable stage in strict mode. What they
	// resolved before the failure is committed like any other record.
	Failed   int
	Entities int64
	Took     time.Duration
}

// Ingester analyzes records concurrently and commits them in record order.
type Ingester struct {
	DB            *sql.DB
	Analyzer      RecordAnalyzer
	BatchSize     int
	FlushInterval time.Duration
	Workers       int
	Logger        *zap.Logger
	// Notifier is optional.
	Notifier Notifier
	// OnProgress is called with the number of committed-or-queued records and the total.
	OnProgress func(current, total int)

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

func NewIngester(conn *sql.DB, analyzer RecordAnalyzer) *Ingester {
	return &Ingester{
		DB:            conn,
		Analyzer:      analyzer,
		BatchSize:     50,
		FlushInterval: 100 * time.Millisecond,
		Workers:       4,
		Logger:        zap.NewNop(),
	}
}

// analyzedRecord is the result of one worker job.
type analyzedRecord struct {
	index  int
	id     string
	schema string
	result *analyze.Result
	err    error
}

// run holds the state shared by the producer, the consumer and commits.
type run struct {
	id        string
	datasetID int64
	start     int
	total     int
	entities  atomic.Int64
	records   atomic.Int64
	failed    atomic.Int64
	logger    *zap.Logger
}

// Ingest analyzes the records of ds that no earlier run committed. Each
// record's entities, its document row and the checkpoint are written in the
// same transaction, so an interrupted run resumes exactly after the last
// committed record.
func (ig *Ingester) Ingest(ctx context.Context, ds Dataset) (Stats, error) {
	started := time.Now()
	logger := ig.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &run{id: uuid.NewString(), total: len(ds.Records)}
	r.logger = logger.With(zap.String("run_id", r.id), zap.String("dataset", ds.Name))

	datasetID, err := db.CreateOrGetDataset(ig.DB, ds.Name, ds.Path)
	if err != nil {
		return Stats{RunID: r.id}, fmt.Errorf("dataset %s: %w", ds.Name, err)
	}
	r.datasetID = datasetID

	lastProcessed, err := db.GetDatasetProgress(ig.DB, datasetID)
	if err != nil {
		r.logger.Warn("failed to retrieve progress, starting over", zap.Error(err))
		lastProcessed = -1
	}
	r.start = lastProcessed + 1
	if r.start > 0 {
		r.logger.Info("resuming", zap.Int("from", r.start), zap.Int("total", r.total))
	}

	stats := func() Stats {
		return Stats{
			RunID:     r.id,
			DatasetID: datasetID,
			Records:   int(r.records.Load()),
			Skipped:   min(r.start, r.total),
			Failed:    int(r.failed.Load()),
			Entities:  r.entities.Load(),
			Took:      time.Since(started),
		}
	}
	if r.start >= r.total {
		return stats(), nil
	}

	workers := max(ig.Workers, 1)
	var wp WorkerPoolInterface
	if ig.PoolFactory != nil {
		wp = ig.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2)
	}
	resultCh := make(chan analyzedRecord, workers*2)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bw := NewBatchWriter(ig.DB, ig.BatchSize, ig.FlushInterval)
	bw.Logger = r.logger
	bw.OnError = func(error) { cancel() }

	wp.Start(ctx)

	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- ig.consume(ctx, cancel, r, resultCh, bw)
	}()

	var submitErr error
	for i := r.start; i < r.total; i++ {
		if ctx.Err() != nil {
			break
		}
		idx, rec := i, ds.Records[i]
		job := func(ctx context.Context) error {
			res, err := ig.Analyzer.Analyze(ctx, rec)
			select {
			case resultCh <- analyzedRecord{index: idx, id: rec.ID, schema: rec.Schema, result: res, err: err}:
			case <-ctx.Done():
			}
			return err
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrPoolClosed) {
				break
			}
			submitErr = fmt.Errorf("submit record %d: %w", idx, err)
			cancel()
			break
		}
	}

	// No job can send after the pool is closed.
	wp.Close()
	close(resultCh)

	consumerErr := <-consumerDone
	closeErr := bw.Close()

	err = errors.Join(submitErr, consumerErr, closeErr)
	if err == nil && ctx.Err() != nil {
		// cancelled by the caller; the consumer may have seen the closed
		// channel first
		err = ctx.Err()
	}
	s := stats()
	if err != nil {
		r.logger.Warn("run stopped", zap.Error(err), zap.Int("committed", s.Records))
		return s, err
	}

	r.logger.Info("run finished",
		zap.Int("records", s.Records),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed", s.Failed),
		zap.Int64("entities", s.Entities),
		zap.Duration("took", s.Took),
	)
	ig.notify(ctx, ds.Name, s, r.logger)
	return s, nil
}

// consume restores record order and hands each record to the batch writer.
func (ig *Ingester) consume(ctx context.Context, cancel context.CancelFunc, r *run, resultCh <-chan analyzedRecord, bw *BatchWriter) error {
	buffer := make(map[int]analyzedRecord)
	next := r.start
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-resultCh:
			if !ok {
				return nil
			}
			if res.err != nil {
				if !errors.Is(res.err, resolve.ErrStageUnavailable) || res.result == nil {
					cancel()
					return fmt.Errorf("analyze record %d (%s): %w", res.index, res.id, res.err)
				}
				r.logger.Warn("record partially resolved",
					zap.Int("index", res.index),
					zap.String("id", res.id),
					zap.Error(res.err),
				)
				r.failed.Add(1)
			}
			buffer[res.index] = res

			for {
				item, ok := buffer[next]
				if !ok {
					break
				}
				delete(buffer, next)
				if err := bw.Submit(ig.commit(r, item)); err != nil {
					cancel()
					return err
				}
				if ig.OnProgress != nil && (next+1)%max(ig.BatchSize, 1) == 0 {
					ig.OnProgress(next+1, r.total)
				}
				next++
			}
			if next == r.total && ig.OnProgress != nil {
				ig.OnProgress(r.total, r.total)
			}
		}
	}
}

func (ig *Ingester) commit(r *run, item analyzedRecord) WriteFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		var entities []*emit.Entity
		if item.result != nil {
			entities = item.result.All()
		}
		for _, e := range entities {
			if _, err := db.UpsertEntity(tx, r.datasetID, e); err != nil {
				return fmt.Errorf("record %d: %w", item.index, err)
			}
		}
		schema := item.schema
		if schema == "" {
			schema = analyze.DefaultSchema
		}
		if err := db.RecordDocument(tx, r.datasetID, item.id, schema, len(entities)); err != nil {
			return err
		}
		// Checkpoint progress for this record
		if err := db.UpdateDatasetProgress(tx, r.datasetID, item.index); err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}
		r.entities.Add(int64(len(entities)))
		r.records.Add(1)
		return nil
	}
}

func (ig *Ingester) notify(ctx context.Context, dataset string, s Stats, logger *zap.Logger) {
	if ig.Notifier == nil {
		return
	}
	counts, err := db.CountEntitiesBySchema(ig.DB, s.DatasetID)
	if err != nil {
		logger.Warn("failed to count entities", zap.Error(err))
	}
	ev := notify.Event{
		RunID:            s.RunID,
		Dataset:          dataset,
		Records:          s.Records,
		Skipped:          s.Skipped,
		Entities:         s.Entities,
		EntitiesBySchema: counts,
		FinishedAt:       time.Now().UTC(),
		TookMS:           s.Took.Milliseconds(),
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := ig.Notifier.Publish(ctx, ev); err != nil {
		logger.Warn("failed to announce run", zap.Error(err))
	}
}
