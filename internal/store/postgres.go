package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/triagehq/triage-cli/internal/db"
	"github.com/triagehq/triage-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Tests use this with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS tickets (
	ticket_id         TEXT PRIMARY KEY,
	source_id         TEXT NOT NULL,
	source_type       TEXT NOT NULL,
	title             TEXT NOT NULL,
	category          TEXT NOT NULL,
	priority          TEXT NOT NULL,
	description       TEXT NOT NULL,
	technical_details TEXT NOT NULL DEFAULT '',
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	status            TEXT NOT NULL DEFAULT 'pending',
	created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tickets_source_id ON tickets(source_id);
CREATE INDEX IF NOT EXISTS idx_tickets_category ON tickets(category);
CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);

CREATE TABLE IF NOT EXISTS run_metrics (
	run_id             TEXT PRIMARY KEY,
	ts                 TEXT NOT NULL,
	total_processed    INTEGER NOT NULL DEFAULT 0,
	bugs_found         INTEGER NOT NULL DEFAULT 0,
	features_found     INTEGER NOT NULL DEFAULT 0,
	praise_found       INTEGER NOT NULL DEFAULT 0,
	complaints_found   INTEGER NOT NULL DEFAULT 0,
	spam_found         INTEGER NOT NULL DEFAULT 0,
	failed_found       INTEGER NOT NULL DEFAULT 0,
	avg_confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
	items_processed    INTEGER NOT NULL DEFAULT 0,
	items_failed       INTEGER NOT NULL DEFAULT 0,
	items_total        INTEGER NOT NULL DEFAULT 0,
	progress_percent   DOUBLE PRECISION NOT NULL DEFAULT 0,
	total_tokens       INTEGER NOT NULL DEFAULT 0,
	estimated_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS processing_errors (
	id             BIGSERIAL PRIMARY KEY,
	source_id      TEXT NOT NULL,
	source_type    TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	error_message  TEXT NOT NULL,
	ts             TEXT NOT NULL,
	retry_attempts INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_processing_errors_source_id ON processing_errors(source_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

const ticketColumns = `ticket_id, source_id, source_type, title, category, priority, description, technical_details, confidence, status, created_at`

func (s *PostgresStore) ReadTickets(ctx context.Context) ([]model.Ticket, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets ORDER BY created_at, ticket_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read tickets")
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.TicketID, &t.SourceID, &t.SourceType, &t.Title,
			&t.Category, &t.Priority, &t.Description, &t.TechnicalDetails,
			&t.Confidence, &t.Status, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ticket")
		}
		tickets = append(tickets, t)
	}
	return tickets, eris.Wrap(rows.Err(), "postgres: read tickets iterate")
}

const insertTicketSQL = `INSERT INTO tickets (` + ticketColumns + `)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	 ON CONFLICT (ticket_id) DO NOTHING`

// MergeTickets inserts with ON CONFLICT DO NOTHING so persisted rows always
// win: a colliding incoming ticket is silently dropped, and re-merging the
// same batch inserts nothing new.
func (s *PostgresStore) MergeTickets(ctx context.Context, incoming []model.Ticket) (int, error) {
	added := 0
	for _, t := range incoming {
		tag, err := s.pool.Exec(ctx, insertTicketSQL, ticketArgs(t)...)
		if err != nil {
			return added, eris.Wrapf(err, "postgres: merge ticket %s", t.TicketID)
		}
		if tag.RowsAffected() == 0 {
			zap.L().Warn("ticket id collision during merge, dropping incoming row",
				zap.String("ticket_id", t.TicketID),
			)
			continue
		}
		added++
	}
	return added, nil
}

func ticketArgs(t model.Ticket) []any {
	return []any{
		t.TicketID, t.SourceID, string(t.SourceType), t.Title, string(t.Category),
		string(t.Priority), t.Description, t.TechnicalDetails, t.Confidence,
		string(t.Status), t.CreatedAt,
	}
}

func (s *PostgresStore) UpdateTicket(ctx context.Context, ticket model.Ticket) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tickets SET title = $2, category = $3, priority = $4, description = $5,
		        technical_details = $6, confidence = $7, status = $8
		 WHERE ticket_id = $1`,
		ticket.TicketID, ticket.Title, string(ticket.Category), string(ticket.Priority),
		ticket.Description, ticket.TechnicalDetails, ticket.Confidence, string(ticket.Status),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update ticket %s", ticket.TicketID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrTicketNotFound, "postgres: update %s", ticket.TicketID)
	}
	return nil
}

func (s *PostgresStore) ReplaceTickets(ctx context.Context, tickets []model.Ticket) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: replace tickets begin")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM tickets`); err != nil {
		return eris.Wrap(err, "postgres: replace tickets clear")
	}
	for _, t := range tickets {
		if _, err := tx.Exec(ctx, insertTicketSQL, ticketArgs(t)...); err != nil {
			return eris.Wrapf(err, "postgres: replace insert %s", t.TicketID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: replace tickets commit")
}

func (s *PostgresStore) ReadMetrics(ctx context.Context) ([]model.RunMetrics, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, ts, total_processed, bugs_found, features_found, praise_found,
		        complaints_found, spam_found, failed_found, avg_confidence,
		        items_processed, items_failed, items_total, progress_percent,
		        total_tokens, estimated_cost_usd
		 FROM run_metrics ORDER BY ts`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read metrics")
	}
	defer rows.Close()

	var all []model.RunMetrics
	for rows.Next() {
		var m model.RunMetrics
		if err := rows.Scan(&m.RunID, &m.Timestamp, &m.TotalProcessed, &m.BugsFound,
			&m.FeaturesFound, &m.PraiseFound, &m.ComplaintsFound, &m.SpamFound,
			&m.FailedFound, &m.AvgConfidence, &m.ItemsProcessed, &m.ItemsFailed,
			&m.ItemsTotal, &m.ProgressPercent, &m.TotalTokens, &m.EstimatedCostUSD); err != nil {
			return nil, eris.Wrap(err, "postgres: scan metrics")
		}
		all = append(all, m)
	}
	return all, eris.Wrap(rows.Err(), "postgres: read metrics iterate")
}

func (s *PostgresStore) UpsertMetrics(ctx context.Context, m model.RunMetrics) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_metrics (run_id, ts, total_processed, bugs_found, features_found,
		        praise_found, complaints_found, spam_found, failed_found, avg_confidence,
		        items_processed, items_failed, items_total, progress_percent,
		        total_tokens, estimated_cost_usd)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (run_id) DO UPDATE SET
		   ts = $2, total_processed = $3, bugs_found = $4, features_found = $5,
		   praise_found = $6, complaints_found = $7, spam_found = $8, failed_found = $9,
		   avg_confidence = $10, items_processed = $11, items_failed = $12,
		   items_total = $13, progress_percent = $14, total_tokens = $15,
		   estimated_cost_usd = $16`,
		m.RunID, m.Timestamp, m.TotalProcessed, m.BugsFound, m.FeaturesFound,
		m.PraiseFound, m.ComplaintsFound, m.SpamFound, m.FailedFound, m.AvgConfidence,
		m.ItemsProcessed, m.ItemsFailed, m.ItemsTotal, m.ProgressPercent,
		m.TotalTokens, m.EstimatedCostUSD,
	)
	return eris.Wrapf(err, "postgres: upsert metrics %s", m.RunID)
}

func (s *PostgresStore) ReadErrors(ctx context.Context) ([]model.ProcessingError, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_id, source_type, error_type, error_message, ts, retry_attempts
		 FROM processing_errors ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: read errors")
	}
	defer rows.Close()

	var all []model.ProcessingError
	for rows.Next() {
		var e model.ProcessingError
		if err := rows.Scan(&e.SourceID, &e.SourceType, &e.ErrorType,
			&e.ErrorMessage, &e.Timestamp, &e.RetryAttempts); err != nil {
			return nil, eris.Wrap(err, "postgres: scan error entry")
		}
		all = append(all, e)
	}
	return all, eris.Wrap(rows.Err(), "postgres: read errors iterate")
}

func (s *PostgresStore) AppendErrors(ctx context.Context, errs []model.ProcessingError) error {
	if len(errs) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(errs))
	for _, e := range errs {
		rows = append(rows, []any{
			e.SourceID, string(e.SourceType), e.ErrorType, e.ErrorMessage, e.Timestamp, e.RetryAttempts,
		})
	}
	_, err := db.CopyFrom(ctx, s.pool, "processing_errors",
		[]string{"source_id", "source_type", "error_type", "error_message", "ts", "retry_attempts"},
		rows,
	)
	return eris.Wrap(err, "postgres: append errors")
}
