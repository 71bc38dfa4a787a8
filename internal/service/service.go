// Package service is the orchestration layer: it loads feedback, drives the
// triage pipeline across the worker pool, and lands results in the store.
package service

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/triagehq/triage-cli/internal/config"
	"github.com/triagehq/triage-cli/internal/ingest"
	"github.com/triagehq/triage-cli/internal/model"
	"github.com/triagehq/triage-cli/internal/pipeline"
	"github.com/triagehq/triage-cli/internal/results"
	"github.com/triagehq/triage-cli/internal/rules"
	"github.com/triagehq/triage-cli/internal/scheduler"
	"github.com/triagehq/triage-cli/internal/store"
	"github.com/triagehq/triage-cli/pkg/anthropic"
)

// ProgressFunc receives mapped progress (0-100) and a status message.
type ProgressFunc func(progress int, message string)

// Service wires ingestion, the pipeline, and the store into run-level
// operations. The client is expected to already carry rate limiting
// (internal/oracle.Guard in production wiring).
type Service struct {
	cfg    *config.Config
	store  store.Store
	rules  *rules.Manager
	client anthropic.Client
}

// New creates a Service.
func New(cfg *config.Config, st store.Store, rulesMgr *rules.Manager, client anthropic.Client) *Service {
	return &Service{cfg: cfg, store: st, rules: rulesMgr, client: client}
}

// Run executes one full triage pass: load feedback, process every record
// through the pipeline with bounded parallelism, merge results into the
// store, and return the run summary. onProgress may be nil.
func (s *Service) Run(ctx context.Context, onProgress ProgressFunc) (model.Summary, error) {
	records, err := ingest.LoadAll(
		filepath.Join(s.cfg.Data.Dir, s.cfg.Data.ReviewsCSV),
		filepath.Join(s.cfg.Data.Dir, s.cfg.Data.EmailsCSV),
	)
	if err != nil {
		return model.Summary{}, eris.Wrap(err, "service: load feedback")
	}
	if len(records) == 0 {
		zap.L().Warn("no feedback records found; nothing to process")
		return model.Summary{Status: "no_data"}, nil
	}

	runID := model.NewRunID()
	log := zap.L().With(zap.String("run_id", runID))
	log.Info("starting triage run", zap.Int("records", len(records)))

	pipe := pipeline.New(s.client, pipeline.Options{
		Model:        s.cfg.Anthropic.Model,
		MaxTokens:    s.cfg.Anthropic.MaxTokens,
		MaxRetries:   s.cfg.Pipeline.MaxRetries,
		RetryBackoff: s.cfg.Pipeline.RetryBackoffDuration(),
		RulesPrompt:  rules.FormatPrompt(s.rules.Get()),
	})

	agg := results.NewAggregator(runID, s.cfg.Anthropic.Model)
	total := len(records)

	hooks := scheduler.Hooks{
		OnOutcome:       agg.Record,
		OnWorkerFailure: agg.RecordWorkerFailure,
		OnFlush: func(completed, tot int) {
			// Incremental flush keeps the metrics row live during the
			// run; a failed flush must not sink the run itself.
			if err := s.store.UpsertMetrics(ctx, agg.Metrics(total)); err != nil {
				log.Warn("incremental metrics flush failed", zap.Error(err))
			}
		},
	}
	if onProgress != nil {
		hooks.OnProgress = onProgress
	}

	if err := scheduler.Run(ctx, records, pipe.ProcessOne, scheduler.Options{
		Workers:    s.cfg.Pipeline.Workers,
		FlushEvery: s.cfg.Pipeline.FlushEvery,
	}, hooks); err != nil {
		return model.Summary{}, eris.Wrap(err, "service: run cancelled")
	}

	s.land(ctx, agg, log)

	summary := s.finalize(ctx, agg, runID, total, log)
	log.Info("triage run complete",
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int("tickets", summary.Tickets),
	)
	return summary, nil
}

// land merges the run's tickets and audit entries into the store. Write
// failures are logged, never fatal: the run still finishes with the metrics
// it computed in memory.
func (s *Service) land(ctx context.Context, agg *results.Aggregator, log *zap.Logger) {
	added, err := s.store.MergeTickets(ctx, agg.Tickets())
	if err != nil {
		log.Error("merging tickets into store failed", zap.Error(eris.Wrap(err, "service: merge tickets")))
	} else {
		log.Info("tickets merged into store", zap.Int("added", added))
	}

	if err := s.store.AppendErrors(ctx, agg.Errors()); err != nil {
		log.Error("appending audit log failed", zap.Error(eris.Wrap(err, "service: append errors")))
	}
}

// finalize writes the terminal metrics row and builds the summary. When the
// run produced no tickets of its own, metrics are computed over the
// persisted table so the row still reflects reality.
func (s *Service) finalize(ctx context.Context, agg *results.Aggregator, runID string, total int, log *zap.Logger) model.Summary {
	summary := agg.Summary(total)

	if summary.Tickets == 0 {
		persisted, err := s.store.ReadTickets(ctx)
		if err != nil {
			log.Warn("reading persisted tickets for metrics failed", zap.Error(err))
		} else if len(persisted) > 0 {
			m := model.CalculateMetrics(runID, persisted)
			m.ItemsProcessed = summary.Processed
			m.ItemsFailed = summary.Failed
			m.ItemsTotal = total
			m.ProgressPercent = 100
			summary.Metrics = m
		}
	}

	if err := s.store.UpsertMetrics(ctx, summary.Metrics); err != nil {
		log.Warn("final metrics write failed", zap.Error(err))
	}
	return summary
}
