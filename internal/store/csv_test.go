package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triagehq/triage-cli/internal/model"
)

func newTestCSVStore(t *testing.T) *CSVStore {
	t.Helper()
	s, err := NewCSV(t.TempDir())
	require.NoError(t, err)
	return s
}

func csvTicket(id string) model.Ticket {
	return model.Ticket{
		TicketID:    id,
		SourceID:    "rev-" + id,
		SourceType:  model.SourceAppStoreReview,
		Title:       "Checkout button unresponsive",
		Category:    model.CategoryBug,
		Priority:    model.PriorityHigh,
		Description: "The checkout button does nothing when tapped on Android 14.",
		Confidence:  0.88,
		Status:      model.StatusPending,
		CreatedAt:   "2026-08-29T09:00:00Z",
	}
}

func TestCSVStore_EmptyReads(t *testing.T) {
	s := newTestCSVStore(t)
	ctx := context.Background()

	tickets, err := s.ReadTickets(ctx)
	require.NoError(t, err)
	assert.Empty(t, tickets)

	metrics, err := s.ReadMetrics(ctx)
	require.NoError(t, err)
	assert.Empty(t, metrics)

	errs, err := s.ReadErrors(ctx)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestCSVStore_MergeAndReadTickets(t *testing.T) {
	s := newTestCSVStore(t)
	ctx := context.Background()

	added, err := s.MergeTickets(ctx, []model.Ticket{csvTicket("a"), csvTicket("b")})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	tickets, err := s.ReadTickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "a", tickets[0].TicketID)
	assert.Equal(t, model.CategoryBug, tickets[0].Category)
	assert.Equal(t, 0.88, tickets[0].Confidence)
}

func TestCSVStore_MergePersistedWins(t *testing.T) {
	s := newTestCSVStore(t)
	ctx := context.Background()

	first := csvTicket("dup")
	first.Title = "Original persisted title"
	_, err := s.MergeTickets(ctx, []model.Ticket{first})
	require.NoError(t, err)

	second := csvTicket("dup")
	second.Title = "Colliding incoming title"
	added, err := s.MergeTickets(ctx, []model.Ticket{second})
	require.NoError(t, err)
	assert.Equal(t, 0, added, "colliding ticket dropped")

	tickets, err := s.ReadTickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "dup", tickets[0].TicketID)
	assert.Equal(t, "Original persisted title", tickets[0].Title)
}

func TestCSVStore_MergeSameBatchTwiceIdempotent(t *testing.T) {
	s := newTestCSVStore(t)
	ctx := context.Background()

	batch := []model.Ticket{csvTicket("a"), csvTicket("b")}
	added, err := s.MergeTickets(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = s.MergeTickets(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, added, "re-merge inserts nothing")

	tickets, err := s.ReadTickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "a", tickets[0].TicketID)
	assert.Equal(t, "b", tickets[1].TicketID)
}

func TestCSVStore_UpdateTicket(t *testing.T) {
	s := newTestCSVStore(t)
	ctx := context.Background()

	_, err := s.MergeTickets(ctx, []model.Ticket{csvTicket("a")})
	require.NoError(t, err)

	updated := csvTicket("a")
	updated.Status = model.StatusApproved
	updated.Priority = model.PriorityCritical
	require.NoError(t, s.UpdateTicket(ctx, updated))

	tickets, err := s.ReadTickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, model.StatusApproved, tickets[0].Status)
	assert.Equal(t, model.PriorityCritical, tickets[0].Priority)
}

func TestCSVStore_UpdateTicket_NotFound(t *testing.T) {
	s := newTestCSVStore(t)

	err := s.UpdateTicket(context.Background(), csvTicket("ghost"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestCSVStore_ReplaceTickets(t *testing.T) {
	s := newTestCSVStore(t)
	ctx := context.Background()

	_, err := s.MergeTickets(ctx, []model.Ticket{csvTicket("a"), csvTicket("b"), csvTicket("c")})
	require.NoError(t, err)

	require.NoError(t, s.ReplaceTickets(ctx, []model.Ticket{csvTicket("a")}))

	tickets, err := s.ReadTickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "a", tickets[0].TicketID)
}

func TestCSVStore_UpsertMetrics(t *testing.T) {
	s := newTestCSVStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertMetrics(ctx, model.RunMetrics{RunID: "run-1", ItemsProcessed: 5, ItemsTotal: 10}))
	require.NoError(t, s.UpsertMetrics(ctx, model.RunMetrics{RunID: "run-1", ItemsProcessed: 10, ItemsTotal: 10}))
	require.NoError(t, s.UpsertMetrics(ctx, model.RunMetrics{RunID: "run-2", ItemsProcessed: 1, ItemsTotal: 3}))

	rows, err := s.ReadMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "run-1", rows[0].RunID)
	assert.Equal(t, 10, rows[0].ItemsProcessed, "same run updated in place")
	assert.Equal(t, "run-2", rows[1].RunID)
}

func TestCSVStore_AppendErrors(t *testing.T) {
	s := newTestCSVStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendErrors(ctx, []model.ProcessingError{
		{SourceID: "r1", SourceType: model.SourceEmail, ErrorType: "Fallback_OracleTransportError", ErrorMessage: "timeout", Timestamp: "2026-08-29T09:00:00Z", RetryAttempts: 3},
	}))
	require.NoError(t, s.AppendErrors(ctx, []model.ProcessingError{
		{SourceID: "r2", SourceType: model.SourceAppStoreReview, ErrorType: "ProcessingError", ErrorMessage: "worker panic", Timestamp: "2026-08-29T09:01:00Z"},
	}))

	errs, err := s.ReadErrors(ctx)
	require.NoError(t, err)
	require.Len(t, errs, 2, "log is append-only")
	assert.Equal(t, "r1", errs[0].SourceID)
	assert.Equal(t, "r2", errs[1].SourceID)
}

func TestCSVStore_ConcurrentMerges(t *testing.T) {
	s := newTestCSVStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Every batch carries the same "shared" id, so the final
			// set must be the deduplicated union of all batches.
			batch := []model.Ticket{
				csvTicket("shared"),
				csvTicket(fmt.Sprintf("t-%02d-a", n)),
				csvTicket(fmt.Sprintf("t-%02d-b", n)),
			}
			_, err := s.MergeTickets(ctx, batch)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	tickets, err := s.ReadTickets(ctx)
	require.NoError(t, err)
	assert.Len(t, tickets, 21, "deduplicated union, nothing lost or duplicated")

	shared := 0
	for _, tk := range tickets {
		if tk.TicketID == "shared" {
			shared++
		}
	}
	assert.Equal(t, 1, shared)
}

func TestCSVStore_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := NewCSV(dir)
	require.NoError(t, err)

	_, err = s.MergeTickets(context.Background(), []model.Ticket{csvTicket("a")})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, ticketsFile+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestNewCSV_EmptyDir(t *testing.T) {
	_, err := NewCSV("")
	require.Error(t, err)
}
