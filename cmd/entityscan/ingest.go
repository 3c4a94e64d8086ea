package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/japaniel/entityscan/pkg/analyze"
	"github.com/japaniel/entityscan/pkg/db"
	"github.com/japaniel/entityscan/pkg/ingest"
	"github.com/japaniel/entityscan/pkg/notify"
	"github.com/japaniel/entityscan/pkg/source"
)

var ingestKeys = map[string]string{
	"ingest.workers":        "ingest-workers",
	"ingest.batch_size":     "batch-size",
	"ingest.flush_interval": "flush-interval",
	"nats.url":              "nats-url",
	"nats.subject":          "nats-subject",
}

func ingestCommand(a *app) *cobra.Command {
	var dataset string
	cmd := &cobra.Command{
		Use:   "ingest <records.jsonl>",
		Short: "Analyze a dataset into the database, resuming where the last run stopped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIngest(cmd, args[0], dataset)
		},
	}
	f := cmd.Flags()
	f.StringVar(&dataset, "dataset", "", "Dataset name (default: file name)")
	f.Int("ingest-workers", a.v.GetInt("ingest.workers"), "Records analyzed concurrently")
	f.Int("batch-size", a.v.GetInt("ingest.batch_size"), "Records committed per transaction")
	f.Duration("flush-interval", a.v.GetDuration("ingest.flush_interval"), "Commit a partial batch after this long")
	f.String("nats-url", a.v.GetString("nats.url"), "Announce finished runs on this NATS server")
	f.String("nats-subject", a.v.GetString("nats.subject"), "NATS subject for run announcements")
	addPipelineFlags(a, cmd)
	a.bindOnRun(cmd, ingestKeys)
	return cmd
}

func (a *app) runIngest(cmd *cobra.Command, path, dataset string) error {
	ctx := cmd.Context()
	s := a.settings
	if dataset == "" {
		dataset = filepath.Base(path)
	}

	records, err := readDataset(path)
	if err != nil {
		return err
	}
	a.logger.Info("loaded dataset", zap.String("dataset", dataset), zap.Int("records", len(records)))

	analyzer, tracer, err := a.newAnalyzer(ctx)
	if err != nil {
		return err
	}

	conn, err := db.Open(s.DB.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	ig := ingest.NewIngester(conn, analyzer)
	ig.Workers = s.Ingest.Workers
	ig.BatchSize = s.Ingest.BatchSize
	ig.FlushInterval = s.Ingest.FlushInterval
	ig.Logger = a.logger
	ig.OnProgress = func(current, total int) {
		a.logger.Info("progress", zap.Int("current", current), zap.Int("total", total))
	}

	if s.NATS.URL != "" {
		pub, err := notify.Connect(s.NATS.URL, s.NATS.Subject, a.logger)
		if err != nil {
			// Announcements are optional; the run itself does not need NATS.
			a.logger.Warn("failed to connect to NATS, runs will not be announced", zap.Error(err))
		} else {
			defer pub.Close()
			ig.Notifier = pub
		}
	}

	stats, err := ig.Ingest(ctx, ingest.Dataset{Name: dataset, Path: path, Records: records})
	if s.Trace {
		tracer.LogSummary("pipeline summary")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d records (%d skipped, %d partially resolved), %d entities in %s\n",
		stats.Records, stats.Skipped, stats.Failed, stats.Entities, stats.Took.Round(time.Millisecond))
	return nil
}

// readDataset loads every record of a JSON lines file. Record positions are
// checkpoints, so a malformed line fails the whole dataset.
func readDataset(path string) ([]analyze.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	var records []analyze.Record
	for rec, err := range source.Records(file) {
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
