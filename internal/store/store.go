// Package store persists tickets, run metrics, and the processing-error
// audit log. Two backends exist: CSV files for local runs and postgres for
// shared deployments. Both honor the same merge contract: tickets are
// deduplicated by ticket_id with the already-persisted row winning, metrics
// are upserted by run_id, and the error log is append-only.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/triagehq/triage-cli/internal/config"
	"github.com/triagehq/triage-cli/internal/model"
)

// Store defines the persistence interface for triage results.
type Store interface {
	// Tickets
	ReadTickets(ctx context.Context) ([]model.Ticket, error)
	MergeTickets(ctx context.Context, incoming []model.Ticket) (added int, err error)
	UpdateTicket(ctx context.Context, ticket model.Ticket) error
	ReplaceTickets(ctx context.Context, tickets []model.Ticket) error

	// Run metrics
	ReadMetrics(ctx context.Context) ([]model.RunMetrics, error)
	UpsertMetrics(ctx context.Context, m model.RunMetrics) error

	// Audit log (append-only)
	ReadErrors(ctx context.Context) ([]model.ProcessingError, error)
	AppendErrors(ctx context.Context, errs []model.ProcessingError) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ErrTicketNotFound is returned by UpdateTicket when no row matches.
var ErrTicketNotFound = eris.New("store: ticket not found")

// New builds the store selected by cfg.Store.Driver.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "csv":
		return NewCSV(cfg.OutputDir)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
