package monitoring

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagehq/triage-cli/internal/jobs"
	"github.com/triagehq/triage-cli/internal/model"
)

// fakeSource implements ResultSource over fixed slices.
type fakeSource struct {
	tickets []model.Ticket
	metrics []model.RunMetrics
	errs    []model.ProcessingError
	fail    error
}

func (f *fakeSource) ReadTickets(ctx context.Context) ([]model.Ticket, error) {
	return f.tickets, f.fail
}

func (f *fakeSource) ReadMetrics(ctx context.Context) ([]model.RunMetrics, error) {
	return f.metrics, f.fail
}

func (f *fakeSource) ReadErrors(ctx context.Context) ([]model.ProcessingError, error) {
	return f.errs, f.fail
}

// fakeJobs implements JobCounter.
type fakeJobs struct {
	counts map[jobs.Status]int
}

func (f *fakeJobs) CountByStatus(ctx context.Context) (map[jobs.Status]int, error) {
	return f.counts, nil
}

func snapTicket(category model.Category, status model.TicketStatus, confidence float64) model.Ticket {
	return model.Ticket{
		TicketID:   model.NewRunID(),
		Category:   category,
		Status:     status,
		Confidence: confidence,
	}
}

func TestCollector_Collect(t *testing.T) {
	source := &fakeSource{
		tickets: []model.Ticket{
			snapTicket(model.CategoryBug, model.StatusPending, 0.9),
			snapTicket(model.CategoryBug, model.StatusApproved, 0.7),
			snapTicket(model.CategoryPraise, model.StatusPending, 0.8),
			snapTicket(model.CategoryFailed, model.StatusPending, 0),
		},
		metrics: []model.RunMetrics{
			{RunID: "run-1", Timestamp: "2026-08-28T10:00:00Z", EstimatedCostUSD: 0.12},
			{RunID: "run-2", Timestamp: "2026-08-29T10:00:00Z", EstimatedCostUSD: 0.34},
		},
		errs: []model.ProcessingError{
			{SourceID: "r1", ErrorType: "Fallback_OracleTransportError"},
		},
	}
	jc := &fakeJobs{counts: map[jobs.Status]int{
		jobs.StatusCompleted: 2,
		jobs.StatusFailed:    1,
	}}

	snap, err := NewCollector(source, jc).Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, snap.TicketsTotal)
	assert.Equal(t, 2, snap.TicketsByCategory["Bug"])
	assert.Equal(t, 1, snap.TicketsByCategory["Failed"])
	assert.Equal(t, 3, snap.TicketsByStatus["pending"])
	assert.InDelta(t, 0.8, snap.AvgConfidence, 1e-9, "fallback ticket excluded from average")
	assert.Equal(t, 1, snap.FallbackTickets)
	assert.InDelta(t, 0.25, snap.FallbackRate, 1e-9)
	assert.Equal(t, 1, snap.ErrorsTotal)
	assert.Equal(t, 2, snap.RunsTotal)
	require.NotNil(t, snap.LastRun)
	assert.Equal(t, "run-2", snap.LastRun.RunID, "latest run by timestamp")
	assert.Equal(t, 2, snap.JobsByStatus["completed"])
	assert.Equal(t, 1, snap.JobsByStatus["failed"])
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_EmptyStore(t *testing.T) {
	snap, err := NewCollector(&fakeSource{}, nil).Collect(context.Background())
	require.NoError(t, err)

	assert.Zero(t, snap.TicketsTotal)
	assert.Zero(t, snap.FallbackRate)
	assert.Nil(t, snap.LastRun)
	assert.Empty(t, snap.JobsByStatus)
}

func TestCollector_SourceError(t *testing.T) {
	source := &fakeSource{fail: eris.New("disk gone")}

	_, err := NewCollector(source, nil).Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: read tickets")
}
