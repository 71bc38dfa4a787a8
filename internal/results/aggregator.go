// Package results accumulates per-item outcomes into run-level state and
// owns the merge semantics used when writing into shared stores.
package results

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/triagehq/triage-cli/internal/model"
	"github.com/triagehq/triage-cli/pkg/anthropic"
)

// Aggregator collects tickets, audit-log entries, and token accounting as
// workers complete. One coarse mutex guards everything; contention is
// bounded by the worker pool size and is not worth finer locking.
type Aggregator struct {
	mu sync.Mutex

	runID string
	model string

	tickets []model.Ticket
	ids     map[string]struct{}
	errors  []model.ProcessingError
	usage   model.TokenUsage

	processed int
	failed    int
}

// NewAggregator returns an aggregator for one run. The model name feeds the
// cost estimate in Metrics.
func NewAggregator(runID, modelName string) *Aggregator {
	return &Aggregator{runID: runID, model: modelName, ids: make(map[string]struct{})}
}

// Record accumulates the outcome of one processed record. A fallback
// outcome counts as handled, not dropped, but is also recorded in the audit
// log: taking the fallback path is itself a warning-class event.
func (a *Aggregator) Record(rec model.FeedbackRecord, out model.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.processed++
	// Ids are minted here, at creation: a within-run collision gets a
	// fresh id so downstream merging only ever has to drop true
	// duplicates, never reassign.
	for {
		if _, dup := a.ids[out.Ticket.TicketID]; !dup {
			break
		}
		fresh := out.Ticket.Regenerate()
		zap.L().Warn("ticket id collision at creation",
			zap.String("ticket_id", out.Ticket.TicketID),
			zap.String("reassigned", fresh.TicketID),
		)
		out.Ticket = fresh
	}
	a.ids[out.Ticket.TicketID] = struct{}{}
	a.tickets = append(a.tickets, out.Ticket)
	a.usage.Add(out.TokenUsage)

	if out.Status != model.OutcomeFallback {
		return
	}
	a.failed++
	a.errors = append(a.errors, model.ProcessingError{
		SourceID:      rec.SourceID,
		SourceType:    rec.SourceType,
		ErrorType:     "Fallback_" + out.ErrorType,
		ErrorMessage:  out.ErrorMessage,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		RetryAttempts: out.RetryAttempts,
	})
}

// RecordWorkerFailure logs an item that failed outside the retry/fallback
// controller and therefore produced no ticket.
func (a *Aggregator) RecordWorkerFailure(rec model.FeedbackRecord, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.failed++
	a.errors = append(a.errors, model.ProcessingError{
		SourceID:     rec.SourceID,
		SourceType:   rec.SourceType,
		ErrorType:    "ProcessingError",
		ErrorMessage: err.Error(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
	zap.L().Error("item failed without a ticket",
		zap.String("source_id", rec.SourceID),
		zap.Error(err),
	)
}

// Tickets returns a copy of the tickets collected so far.
func (a *Aggregator) Tickets() []model.Ticket {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.Ticket(nil), a.tickets...)
}

// Errors returns a copy of the audit-log entries collected so far.
func (a *Aggregator) Errors() []model.ProcessingError {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.ProcessingError(nil), a.errors...)
}

// Counts returns how many items completed and how many of those failed
// (took the fallback path or worse).
func (a *Aggregator) Counts() (processed, failed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processed, a.failed
}

// Metrics builds the live metrics row for this run: category counts over
// the tickets collected so far plus progress and oracle accounting.
// Safe to call mid-run; it is the payload of every incremental flush.
func (a *Aggregator) Metrics(itemsTotal int) model.RunMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	m := model.CalculateMetrics(a.runID, a.tickets)
	m.ItemsProcessed = a.processed
	m.ItemsFailed = a.failed
	m.ItemsTotal = itemsTotal
	if itemsTotal > 0 {
		m.ProgressPercent = 100 * float64(a.processed) / float64(itemsTotal)
	}

	m.TotalTokens = a.usage.InputTokens + a.usage.OutputTokens
	m.EstimatedCostUSD = anthropic.TokenUsage{
		InputTokens:              int64(a.usage.InputTokens),
		OutputTokens:             int64(a.usage.OutputTokens),
		CacheCreationInputTokens: int64(a.usage.CacheCreationTokens),
		CacheReadInputTokens:     int64(a.usage.CacheReadTokens),
	}.EstimateCost(a.model)
	return m
}

// Summary finalizes the run result. Status is "completed" whenever any
// record was submitted; "no_data" runs never reach the aggregator.
func (a *Aggregator) Summary(itemsTotal int) model.Summary {
	metrics := a.Metrics(itemsTotal)

	a.mu.Lock()
	defer a.mu.Unlock()
	return model.Summary{
		Status:    "completed",
		Processed: a.processed,
		Failed:    a.failed,
		Tickets:   len(a.tickets),
		Metrics:   metrics,
	}
}
