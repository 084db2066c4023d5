package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"techdigest/internal/core"
)

// Pipeline groups the three batch stages. Each stage is a one-shot pass over the store.
type Pipeline struct {
	Ingester  *Ingester
	Scorer    *Scorer
	Deliverer *Deliverer

	log *slog.Logger
}

// RunResult collects the stage results of a full run
type RunResult struct {
	Ingest    IngestResult
	Relevance RelevanceResult
	Delivery  DeliveryResult
	Duration  time.Duration
}

// Gather runs the ingestion stage
func (p *Pipeline) Gather(ctx context.Context) (IngestResult, error) {
	if p.Ingester == nil {
		return IngestResult{}, fmt.Errorf("%w: ingestion stage is not configured", core.ErrConfiguration)
	}
	return p.Ingester.Run(ctx)
}

// Process runs the relevance stage
func (p *Pipeline) Process(ctx context.Context) (RelevanceResult, error) {
	if p.Scorer == nil {
		return RelevanceResult{}, fmt.Errorf("%w: relevance stage requires an LLM oracle", core.ErrConfiguration)
	}
	return p.Scorer.Run(ctx)
}

// Send runs the delivery stage
func (p *Pipeline) Send(ctx context.Context) (DeliveryResult, error) {
	if p.Deliverer == nil {
		return DeliveryResult{}, fmt.Errorf("%w: delivery stage requires a mailer", core.ErrConfiguration)
	}
	return p.Deliverer.Run(ctx)
}

// RunAll runs gather, process and send in order, stopping at the first stage error
func (p *Pipeline) RunAll(ctx context.Context) (RunResult, error) {
	start := time.Now()
	var result RunResult
	var err error

	if result.Ingest, err = p.Gather(ctx); err != nil {
		return result, fmt.Errorf("gather: %w", err)
	}
	if result.Relevance, err = p.Process(ctx); err != nil {
		return result, fmt.Errorf("process: %w", err)
	}
	if result.Delivery, err = p.Send(ctx); err != nil {
		return result, fmt.Errorf("send: %w", err)
	}

	result.Duration = time.Since(start)
	p.log.Info("Pipeline run complete", "duration", result.Duration)
	return result, nil
}
