package service

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/triagehq/triage-cli/internal/model"
	"github.com/triagehq/triage-cli/internal/store"
)

// TicketFilter selects tickets by exact field match. Empty fields match
// everything.
type TicketFilter struct {
	Category string `json:"category,omitempty"`
	Priority string `json:"priority,omitempty"`
	Status   string `json:"status,omitempty"`
}

func (f TicketFilter) matches(t model.Ticket) bool {
	if f.Category != "" && !strings.EqualFold(f.Category, string(t.Category)) {
		return false
	}
	if f.Priority != "" && !strings.EqualFold(f.Priority, string(t.Priority)) {
		return false
	}
	if f.Status != "" && !strings.EqualFold(f.Status, string(t.Status)) {
		return false
	}
	return true
}

// ListTickets returns persisted tickets matching the filter.
func (s *Service) ListTickets(ctx context.Context, filter TicketFilter) ([]model.Ticket, error) {
	all, err := s.store.ReadTickets(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "service: list tickets")
	}
	out := make([]model.Ticket, 0, len(all))
	for _, t := range all {
		if filter.matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetTicket returns one ticket by id.
func (s *Service) GetTicket(ctx context.Context, id string) (model.Ticket, error) {
	all, err := s.store.ReadTickets(ctx)
	if err != nil {
		return model.Ticket{}, eris.Wrap(err, "service: get ticket")
	}
	for _, t := range all {
		if t.TicketID == id {
			return t, nil
		}
	}
	return model.Ticket{}, eris.Wrapf(store.ErrTicketNotFound, "service: get %s", id)
}

// TicketPatch carries the editable fields of a ticket. Nil fields are left
// unchanged.
type TicketPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// UpdateTicket applies a patch to an existing ticket, validates the result,
// and persists it.
func (s *Service) UpdateTicket(ctx context.Context, id string, patch TicketPatch) (model.Ticket, error) {
	ticket, err := s.GetTicket(ctx, id)
	if err != nil {
		return model.Ticket{}, err
	}

	if patch.Title != nil {
		ticket.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		ticket.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Category != nil {
		ticket.Category = model.Category(*patch.Category)
	}
	if patch.Priority != nil {
		ticket.Priority = model.Priority(*patch.Priority)
	}
	if patch.Status != nil {
		ticket.Status = model.TicketStatus(*patch.Status)
	}

	if err := ticket.Validate(); err != nil {
		return model.Ticket{}, eris.Wrapf(err, "service: update %s", id)
	}
	if err := s.store.UpdateTicket(ctx, ticket); err != nil {
		return model.Ticket{}, err
	}
	return ticket, nil
}

// Deduplicate collapses ticket rows sharing a ticket_id, keeping the first
// occurrence of each. Returns how many rows were removed.
func (s *Service) Deduplicate(ctx context.Context) (int, error) {
	all, err := s.store.ReadTickets(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "service: deduplicate read")
	}

	seen := make(map[string]struct{}, len(all))
	unique := make([]model.Ticket, 0, len(all))
	for _, t := range all {
		if _, dup := seen[t.TicketID]; dup {
			continue
		}
		seen[t.TicketID] = struct{}{}
		unique = append(unique, t)
	}

	removed := len(all) - len(unique)
	if removed == 0 {
		return 0, nil
	}
	if err := s.store.ReplaceTickets(ctx, unique); err != nil {
		return 0, eris.Wrap(err, "service: deduplicate write")
	}
	zap.L().Info("removed duplicate tickets", zap.Int("removed", removed))
	return removed, nil
}

// Metrics returns all persisted run metrics rows.
func (s *Service) Metrics(ctx context.Context) ([]model.RunMetrics, error) {
	rows, err := s.store.ReadMetrics(ctx)
	return rows, eris.Wrap(err, "service: read metrics")
}

// Errors returns the processing-error audit log.
func (s *Service) Errors(ctx context.Context) ([]model.ProcessingError, error) {
	errs, err := s.store.ReadErrors(ctx)
	return errs, eris.Wrap(err, "service: read errors")
}
