// Package monitoring builds point-in-time health snapshots over the ticket
// store, the audit log, and the job database.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/triagehq/triage-cli/internal/jobs"
	"github.com/triagehq/triage-cli/internal/model"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Ticket table.
	TicketsTotal      int            `json:"tickets_total"`
	TicketsByCategory map[string]int `json:"tickets_by_category"`
	TicketsByStatus   map[string]int `json:"tickets_by_status"`
	AvgConfidence     float64        `json:"avg_confidence"`

	// Fallback health: fraction of tickets minted by the fallback path.
	FallbackTickets int     `json:"fallback_tickets"`
	FallbackRate    float64 `json:"fallback_rate"`

	// Audit log and run history.
	ErrorsTotal int               `json:"errors_total"`
	RunsTotal   int               `json:"runs_total"`
	LastRun     *model.RunMetrics `json:"last_run,omitempty"`

	// Job queue.
	JobsByStatus map[string]int `json:"jobs_by_status"`

	// Metadata.
	CollectedAt time.Time `json:"collected_at"`
}

// ResultSource abstracts the store reads the collector needs.
type ResultSource interface {
	ReadTickets(ctx context.Context) ([]model.Ticket, error)
	ReadMetrics(ctx context.Context) ([]model.RunMetrics, error)
	ReadErrors(ctx context.Context) ([]model.ProcessingError, error)
}

// JobCounter abstracts the job store methods needed by the collector.
type JobCounter interface {
	CountByStatus(ctx context.Context) (map[jobs.Status]int, error)
}

// Collector gathers metrics from the result store and job database.
type Collector struct {
	source ResultSource
	jobs   JobCounter
}

// NewCollector creates a metrics collector. jobCounter may be nil when no
// job database is in play (one-shot CLI runs).
func NewCollector(source ResultSource, jobCounter JobCounter) *Collector {
	return &Collector{source: source, jobs: jobCounter}
}

// Collect gathers a snapshot of system metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		TicketsByCategory: map[string]int{},
		TicketsByStatus:   map[string]int{},
		JobsByStatus:      map[string]int{},
		CollectedAt:       time.Now().UTC(),
	}

	tickets, err := c.source.ReadTickets(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: read tickets")
	}
	snap.TicketsTotal = len(tickets)

	var confSum float64
	var confN int
	for _, t := range tickets {
		snap.TicketsByCategory[string(t.Category)]++
		snap.TicketsByStatus[string(t.Status)]++
		if t.Category == model.CategoryFailed {
			snap.FallbackTickets++
		}
		if t.Confidence > 0 {
			confSum += t.Confidence
			confN++
		}
	}
	if confN > 0 {
		snap.AvgConfidence = confSum / float64(confN)
	}
	if snap.TicketsTotal > 0 {
		snap.FallbackRate = float64(snap.FallbackTickets) / float64(snap.TicketsTotal)
	}

	errs, err := c.source.ReadErrors(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: read errors")
	}
	snap.ErrorsTotal = len(errs)

	runs, err := c.source.ReadMetrics(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: read metrics")
	}
	snap.RunsTotal = len(runs)
	if len(runs) > 0 {
		last := runs[len(runs)-1]
		for _, r := range runs {
			if r.Timestamp > last.Timestamp {
				last = r
			}
		}
		snap.LastRun = &last
	}

	if c.jobs != nil {
		counts, err := c.jobs.CountByStatus(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: count jobs")
		}
		for st, n := range counts {
			snap.JobsByStatus[string(st)] = n
		}
	}

	return snap, nil
}
