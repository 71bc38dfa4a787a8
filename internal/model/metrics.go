package model

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeStatus is the terminal state of one item's trip through the
// retry/fallback controller.
type OutcomeStatus string

const (
	OutcomeSuccess  OutcomeStatus = "success"
	OutcomeFallback OutcomeStatus = "fallback"
)

// Outcome is the result of processing one feedback record. Every submitted
// record yields exactly one Outcome carrying a valid Ticket: the fallback
// path is unconditionally guaranteed to produce one.
type Outcome struct {
	Status        OutcomeStatus `json:"status"`
	Ticket        Ticket        `json:"ticket"`
	Verdict       *ReviewVerdict `json:"verdict,omitempty"`
	RetryAttempts int           `json:"retry_attempts,omitempty"`
	ErrorType     string        `json:"error_type,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	TokenUsage    TokenUsage    `json:"token_usage"`
}

// TokenUsage accumulates oracle token consumption across stages.
type TokenUsage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
}

// Add accumulates another usage into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.CacheReadTokens += other.CacheReadTokens
}

// ProcessingError is one append-only audit log entry. An entry is recorded
// whenever an item exhausts its retries, even when the fallback ticket
// succeeds (fallback use is itself a warning-class error), and whenever a
// worker fails outside the controller.
type ProcessingError struct {
	SourceID      string     `json:"source_id" csv:"source_id"`
	SourceType    SourceType `json:"source_type" csv:"source_type"`
	ErrorType     string     `json:"error_type" csv:"error_type"`
	ErrorMessage  string     `json:"error_message" csv:"error_message"`
	Timestamp     string     `json:"timestamp" csv:"timestamp"`
	RetryAttempts int        `json:"retry_attempts" csv:"retry_attempts"`
}

// RunMetrics is one row of the metrics table. During a run the row for the
// current run_id is updated in place (items_processed etc. reflect live
// progress); at completion it is finalized. Rows for other runs are never
// touched.
type RunMetrics struct {
	RunID           string  `json:"run_id" csv:"run_id"`
	Timestamp       string  `json:"timestamp" csv:"timestamp"`
	TotalProcessed  int     `json:"total_processed" csv:"total_processed"`
	BugsFound       int     `json:"bugs_found" csv:"bugs_found"`
	FeaturesFound   int     `json:"features_found" csv:"features_found"`
	PraiseFound     int     `json:"praise_found" csv:"praise_found"`
	ComplaintsFound int     `json:"complaints_found" csv:"complaints_found"`
	SpamFound       int     `json:"spam_found" csv:"spam_found"`
	FailedFound     int     `json:"failed_found" csv:"failed_found"`
	AvgConfidence   float64 `json:"avg_confidence" csv:"avg_confidence"`

	// Live progress, written incrementally during a run.
	ItemsProcessed  int     `json:"items_processed" csv:"items_processed"`
	ItemsFailed     int     `json:"items_failed" csv:"items_failed"`
	ItemsTotal      int     `json:"items_total" csv:"items_total"`
	ProgressPercent float64 `json:"progress_percent" csv:"progress_percent"`

	// Oracle accounting.
	TotalTokens      int     `json:"total_tokens" csv:"total_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd" csv:"estimated_cost_usd"`
}

// NewRunID mints a run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// CalculateMetrics computes category counts and average confidence over a
// set of tickets. Zero-confidence entries (fallback tickets) are excluded
// from the confidence average, matching the audit semantics of the metrics
// table.
func CalculateMetrics(runID string, tickets []Ticket) RunMetrics {
	m := RunMetrics{
		RunID:          runID,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		TotalProcessed: len(tickets),
	}

	var confSum float64
	var confN int
	for _, t := range tickets {
		switch t.Category {
		case CategoryBug:
			m.BugsFound++
		case CategoryFeatureRequest:
			m.FeaturesFound++
		case CategoryPraise:
			m.PraiseFound++
		case CategoryComplaint:
			m.ComplaintsFound++
		case CategorySpam:
			m.SpamFound++
		case CategoryFailed:
			m.FailedFound++
		}
		if t.Confidence > 0 {
			confSum += t.Confidence
			confN++
		}
	}
	if confN > 0 {
		m.AvgConfidence = confSum / float64(confN)
	}
	return m
}

// Summary is the top-level result of a run. Fallback items count as
// handled, not failed: status is "completed" whenever at least one record
// was submitted, regardless of how many took the fallback path.
type Summary struct {
	Status    string     `json:"status"` // "completed" or "no_data"
	Processed int        `json:"processed"`
	Failed    int        `json:"failed"`
	Tickets   int        `json:"tickets"`
	Metrics   RunMetrics `json:"metrics"`
}
