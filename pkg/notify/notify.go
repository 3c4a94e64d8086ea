// Package notify announces finished dataset runs on a NATS subject.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject is used when none is configured.
const DefaultSubject = "entityscan.dataset.analyzed"

// Event describes a completed ingest run.
type Event struct {
	RunID            string         `json:"run_id"`
	Dataset          string         `json:"dataset"`
	Records          int            `json:"records"`
	Skipped          int            `json:"skipped"`
	Entities         int64          `json:"entities"`
	EntitiesBySchema map[string]int `json:"entities_by_schema,omitempty"`
	FinishedAt       time.Time      `json:"finished_at"`
	TookMS           int64          `json:"took_ms"`
}

type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// Publisher sends events to the NATS bus.
type Publisher struct {
	nc      conn
	subject string
	logger  *zap.Logger
}

// Connect dials url. The connection retries in the background, so a NATS
// server that is not up yet does not fail the call.
func Connect(url, subject string, logger *zap.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("entityscan"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newPublisher(nc, subject, logger), nil
}

func newPublisher(nc conn, subject string, logger *zap.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, subject: subject, logger: logger.With(zap.String("component", "notify"))}
}

// Publish sends ev and waits until the server has it or ctx is done.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", p.subject, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}
	p.logger.Info("run announced",
		zap.String("subject", p.subject),
		zap.String("run_id", ev.RunID),
		zap.String("dataset", ev.Dataset),
	)
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
