package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// SourceType identifies where a feedback record came from.
type SourceType string

const (
	SourceAppStoreReview SourceType = "app_store_review"
	SourceEmail          SourceType = "email"
)

// ValidSourceType reports whether s is a recognized source type.
func ValidSourceType(s SourceType) bool {
	switch s {
	case SourceAppStoreReview, SourceEmail:
		return true
	}
	return false
}

// FeedbackRecord is the canonical shape of one piece of user feedback,
// regardless of source. It is immutable once constructed: the pipeline
// consumes it read-only.
type FeedbackRecord struct {
	SourceID   string     `json:"source_id"`
	SourceType SourceType `json:"source_type"`
	Text       string     `json:"text"`

	// Review-specific fields.
	Platform   string `json:"platform,omitempty"`
	Rating     int    `json:"rating,omitempty"` // 1-5, 0 when absent
	AppVersion string `json:"app_version,omitempty"`
	UserName   string `json:"user_name,omitempty"`
	Date       string `json:"date,omitempty"`

	// Email-specific fields.
	Subject     string `json:"subject,omitempty"`
	SenderEmail string `json:"sender_email,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	Priority    string `json:"priority,omitempty"` // user-indicated, advisory
}

// NewFeedbackRecord validates and constructs a FeedbackRecord. The text is
// trimmed; empty or whitespace-only text and unrecognized source types are
// rejected with a ValidationError.
func NewFeedbackRecord(r FeedbackRecord) (FeedbackRecord, error) {
	if !ValidSourceType(r.SourceType) {
		return FeedbackRecord{}, NewValidationError(eris.Errorf("model: unrecognized source type %q", r.SourceType))
	}
	r.Text = strings.TrimSpace(r.Text)
	if r.Text == "" {
		return FeedbackRecord{}, NewValidationError(eris.New("model: feedback text is empty or whitespace only"))
	}
	if r.SourceID == "" {
		return FeedbackRecord{}, NewValidationError(eris.New("model: feedback source_id is empty"))
	}
	if r.Rating != 0 && (r.Rating < 1 || r.Rating > 5) {
		return FeedbackRecord{}, NewValidationError(eris.Errorf("model: rating %d outside 1-5", r.Rating))
	}
	return r, nil
}

// ValidationError marks a malformed input row. Callers skip-and-log;
// a validation failure is never fatal to the batch.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError wraps err as a ValidationError.
func NewValidationError(err error) *ValidationError {
	return &ValidationError{Err: err}
}
