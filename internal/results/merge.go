package results

import (
	"go.uber.org/zap"

	"github.com/triagehq/triage-cli/internal/model"
)

// MergeTickets folds incoming tickets into an already-persisted set,
// deduplicating by ticket_id. The policy is deliberately asymmetric:
// persisted rows always win, and an incoming ticket whose id collides with
// an existing one is dropped, never overwritten or reassigned. That makes
// re-merging the same batch a no-op. Ids are minted (and re-minted on
// within-run collisions) where tickets are created, not here.
func MergeTickets(existing, incoming []model.Ticket) []model.Ticket {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := append([]model.Ticket(nil), existing...)
	for _, t := range existing {
		seen[t.TicketID] = struct{}{}
	}

	for _, t := range incoming {
		if _, dup := seen[t.TicketID]; dup {
			zap.L().Warn("ticket id collision during merge, dropping incoming row",
				zap.String("ticket_id", t.TicketID),
			)
			continue
		}
		seen[t.TicketID] = struct{}{}
		merged = append(merged, t)
	}
	return merged
}

// UpsertMetrics replaces the row matching m's run_id, or appends when the
// run has no row yet. Rows for other runs pass through untouched.
func UpsertMetrics(rows []model.RunMetrics, m model.RunMetrics) []model.RunMetrics {
	out := make([]model.RunMetrics, 0, len(rows)+1)
	replaced := false
	for _, row := range rows {
		if row.RunID == m.RunID {
			out = append(out, m)
			replaced = true
			continue
		}
		out = append(out, row)
	}
	if !replaced {
		out = append(out, m)
	}
	return out
}
