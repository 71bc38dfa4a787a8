package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/triagehq/triage-cli/internal/model"
	"github.com/triagehq/triage-cli/internal/results"
)

const (
	ticketsFile = "tickets.csv"
	metricsFile = "metrics.csv"
	errorsFile  = "processing_errors.csv"
)

// csvMu serializes all CSV store writes process-wide. Every mutation is a
// read-merge-write over a whole file, so two stores pointed at the same
// output directory must not interleave.
var csvMu sync.Mutex

// CSVStore persists results as CSV files under one output directory.
type CSVStore struct {
	dir string
}

// NewCSV creates the output directory if needed and returns a store over it.
func NewCSV(dir string) (*CSVStore, error) {
	if dir == "" {
		return nil, eris.New("csv: output directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "csv: create output dir %s", dir)
	}
	return &CSVStore{dir: dir}, nil
}

func (s *CSVStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// readFile unmarshals a whole CSV file into out. A missing file is an empty
// table, not an error.
func readFile[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "csv: read %s", path)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var rows []T
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "csv: parse %s", path)
	}
	return rows, nil
}

// writeFile marshals rows and replaces the file via a temp-file rename so a
// crash mid-write never leaves a truncated table behind.
func writeFile[T any](path string, rows []T) error {
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrapf(err, "csv: marshal %s", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "csv: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "csv: replace %s", path)
	}
	return nil
}

func (s *CSVStore) ReadTickets(ctx context.Context) ([]model.Ticket, error) {
	csvMu.Lock()
	defer csvMu.Unlock()
	return readFile[model.Ticket](s.path(ticketsFile))
}

func (s *CSVStore) MergeTickets(ctx context.Context, incoming []model.Ticket) (int, error) {
	if len(incoming) == 0 {
		return 0, nil
	}
	csvMu.Lock()
	defer csvMu.Unlock()

	existing, err := readFile[model.Ticket](s.path(ticketsFile))
	if err != nil {
		return 0, err
	}
	merged := results.MergeTickets(existing, incoming)
	if err := writeFile(s.path(ticketsFile), merged); err != nil {
		return 0, err
	}

	added := len(merged) - len(existing)
	zap.L().Debug("merged tickets",
		zap.Int("existing", len(existing)),
		zap.Int("incoming", len(incoming)),
		zap.Int("added", added),
	)
	return added, nil
}

func (s *CSVStore) UpdateTicket(ctx context.Context, ticket model.Ticket) error {
	csvMu.Lock()
	defer csvMu.Unlock()

	existing, err := readFile[model.Ticket](s.path(ticketsFile))
	if err != nil {
		return err
	}
	for i, t := range existing {
		if t.TicketID == ticket.TicketID {
			existing[i] = ticket
			return writeFile(s.path(ticketsFile), existing)
		}
	}
	return eris.Wrapf(ErrTicketNotFound, "csv: update %s", ticket.TicketID)
}

func (s *CSVStore) ReplaceTickets(ctx context.Context, tickets []model.Ticket) error {
	csvMu.Lock()
	defer csvMu.Unlock()
	return writeFile(s.path(ticketsFile), tickets)
}

func (s *CSVStore) ReadMetrics(ctx context.Context) ([]model.RunMetrics, error) {
	csvMu.Lock()
	defer csvMu.Unlock()
	return readFile[model.RunMetrics](s.path(metricsFile))
}

func (s *CSVStore) UpsertMetrics(ctx context.Context, m model.RunMetrics) error {
	csvMu.Lock()
	defer csvMu.Unlock()

	rows, err := readFile[model.RunMetrics](s.path(metricsFile))
	if err != nil {
		return err
	}
	return writeFile(s.path(metricsFile), results.UpsertMetrics(rows, m))
}

func (s *CSVStore) ReadErrors(ctx context.Context) ([]model.ProcessingError, error) {
	csvMu.Lock()
	defer csvMu.Unlock()
	return readFile[model.ProcessingError](s.path(errorsFile))
}

func (s *CSVStore) AppendErrors(ctx context.Context, errs []model.ProcessingError) error {
	if len(errs) == 0 {
		return nil
	}
	csvMu.Lock()
	defer csvMu.Unlock()

	existing, err := readFile[model.ProcessingError](s.path(errorsFile))
	if err != nil {
		return err
	}
	return writeFile(s.path(errorsFile), append(existing, errs...))
}

// Migrate is a no-op for the CSV backend; files are created on first write.
func (s *CSVStore) Migrate(ctx context.Context) error { return nil }

func (s *CSVStore) Close() error { return nil }
