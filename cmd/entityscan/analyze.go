package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/japaniel/entityscan/pkg/analyze"
	"github.com/japaniel/entityscan/pkg/db"
	"github.com/japaniel/entityscan/pkg/source"
)

type analyzeOptions struct {
	url     string
	html    string
	pageURL string
	output  string
	store   bool
	dataset string
}

func analyzeCommand(a *app) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [records.jsonl]",
		Short: "Analyze records and print the entities found as JSON lines",
		Long: `Analyze reads JSON line records from a file or stdin, a web page (--url)
or a saved HTML file (--html), and prints every entity found, followed by the
analyzed document, as one JSON object per line.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return a.runAnalyze(cmd, path, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.url, "url", "", "Fetch and analyze a web page")
	f.StringVar(&opts.html, "html", "", "Analyze a saved HTML file")
	f.StringVar(&opts.pageURL, "page-url", "", "URL the --html file was saved from")
	f.StringVarP(&opts.output, "output", "o", "", "Write entities to this file instead of stdout")
	f.BoolVar(&opts.store, "store", false, "Also store the entities in the database")
	f.StringVar(&opts.dataset, "dataset", "", "Dataset name used with --store (default: input file name)")
	cmd.MarkFlagsMutuallyExclusive("url", "html")
	addPipelineFlags(a, cmd)
	return cmd
}

type analyzeStats struct {
	records  int
	failed   int
	entities int
}

func (a *app) runAnalyze(cmd *cobra.Command, path string, opts *analyzeOptions) error {
	ctx := cmd.Context()
	if path != "" && (opts.url != "" || opts.html != "") {
		return errors.New("a records file cannot be combined with --url or --html")
	}

	analyzer, tracer, err := a.newAnalyzer(ctx)
	if err != nil {
		return err
	}

	records, closeInput, err := a.openRecords(ctx, cmd.InOrStdin(), path, opts)
	if err != nil {
		return err
	}
	defer closeInput()

	out := cmd.OutOrStdout()
	if opts.output != "" {
		file, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		out = file
	}

	var st *store
	if opts.store {
		name := opts.dataset
		if name == "" {
			name = datasetName(path, opts)
		}
		st, err = openStore(a.settings.DB.Path, name, path)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	stats, err := a.analyzeAll(ctx, analyzer, records, out, st)
	a.logger.Info("analysis finished",
		zap.Int("records", stats.records),
		zap.Int("failed", stats.failed),
		zap.Int("entities", stats.entities),
	)
	if a.settings.Trace {
		tracer.LogSummary("pipeline summary")
	}
	if err != nil {
		return err
	}
	if stats.failed > 0 {
		return fmt.Errorf("%d of %d records failed", stats.failed, stats.records)
	}
	return nil
}

// analyzeAll writes the entities of every record to out. A record that fails
// is logged and skipped; cancellation stops the run.
func (a *app) analyzeAll(ctx context.Context, analyzer *analyze.Analyzer, records iter.Seq2[analyze.Record, error], out io.Writer, st *store) (analyzeStats, error) {
	var stats analyzeStats
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	for rec, err := range records {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.records++
		if err != nil {
			stats.failed++
			a.logger.Warn("skipping record", zap.Error(err))
			continue
		}

		res, err := analyzer.Analyze(ctx, rec)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			stats.failed++
			a.logger.Warn("failed to analyze record", zap.String("id", rec.ID), zap.Error(err))
			continue
		}

		entities := res.All()
		for _, e := range entities {
			if err := enc.Encode(e); err != nil {
				return stats, fmt.Errorf("write entity %s: %w", e.ID, err)
			}
		}
		stats.entities += len(entities)
		if st != nil {
			if err := st.save(ctx, rec, res); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

// openRecords picks the record source. The returned close function is
// always safe to call.
func (a *app) openRecords(ctx context.Context, stdin io.Reader, path string, opts *analyzeOptions) (iter.Seq2[analyze.Record, error], func(), error) {
	noop := func() {}
	switch {
	case opts.url != "":
		fetcher := source.NewFetcher(a.logger)
		rec, err := fetcher.Record(ctx, opts.url)
		if err != nil {
			return nil, noop, err
		}
		return single(rec), noop, nil
	case opts.html != "":
		content, err := os.ReadFile(opts.html)
		if err != nil {
			return nil, noop, fmt.Errorf("read html: %w", err)
		}
		rec, err := source.FromHTML(content, opts.pageURL)
		if err != nil {
			return nil, noop, err
		}
		return single(rec), noop, nil
	case path == "" || path == "-":
		return source.Records(stdin), noop, nil
	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, noop, fmt.Errorf("open records: %w", err)
		}
		return source.Records(file), func() { file.Close() }, nil
	}
}

func single(rec analyze.Record) iter.Seq2[analyze.Record, error] {
	return func(yield func(analyze.Record, error) bool) {
		yield(rec, nil)
	}
}

func datasetName(path string, opts *analyzeOptions) string {
	switch {
	case opts.url != "":
		return "web"
	case opts.html != "":
		return filepath.Base(opts.html)
	case path == "" || path == "-":
		return "stdin"
	default:
		return filepath.Base(path)
	}
}

// store keeps analyzed records of one dataset in SQLite.
type store struct {
	conn      *sql.DB
	datasetID int64
}

func openStore(dbPath, dataset, path string) (*store, error) {
	conn, err := db.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	id, err := db.CreateOrGetDataset(conn, dataset, path)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &store{conn: conn, datasetID: id}, nil
}

func (s *store) save(ctx context.Context, rec analyze.Record, res *analyze.Result) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	entities := res.All()
	for _, e := range entities {
		if _, err := db.UpsertEntity(tx, s.datasetID, e); err != nil {
			return err
		}
	}
	schema := rec.Schema
	if schema == "" {
		schema = analyze.DefaultSchema
	}
	if err := db.RecordDocument(tx, s.datasetID, rec.ID, schema, len(entities)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *store) Close() error {
	return s.conn.Close()
}
