package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Category classifies a piece of feedback.
type Category string

const (
	CategoryBug            Category = "Bug"
	CategoryFeatureRequest Category = "Feature Request"
	CategoryPraise         Category = "Praise"
	CategoryComplaint      Category = "Complaint"
	CategorySpam           Category = "Spam"
	// CategoryFailed marks fallback tickets that need manual review.
	CategoryFailed Category = "Failed"
)

// ClassifiableCategories are the values the classification stage may return.
// Failed is reserved for the fallback path and is never a valid
// classification result.
func ClassifiableCategories() []Category {
	return []Category{CategoryBug, CategoryFeatureRequest, CategoryPraise, CategoryComplaint, CategorySpam}
}

// ValidTicketCategory reports whether c is allowed on a persisted ticket.
func ValidTicketCategory(c Category) bool {
	switch c {
	case CategoryBug, CategoryFeatureRequest, CategoryPraise, CategoryComplaint, CategorySpam, CategoryFailed:
		return true
	}
	return false
}

// Priority is the triage priority of a ticket.
type Priority string

const (
	PriorityCritical Priority = "Critical"
	PriorityHigh     Priority = "High"
	PriorityMedium   Priority = "Medium"
	PriorityLow      Priority = "Low"
)

// ValidPriority reports whether p is a recognized priority.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// TicketStatus is the review status of a ticket.
type TicketStatus string

const (
	StatusPending  TicketStatus = "pending"
	StatusApproved TicketStatus = "approved"
	StatusRejected TicketStatus = "rejected"
)

// ValidTicketStatus reports whether s is a recognized ticket status.
func ValidTicketStatus(s TicketStatus) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// ClassificationResult is the output of the classify stage.
type ClassificationResult struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// BugAnalysis is the output of the analyze stage for Bug feedback.
type BugAnalysis struct {
	StepsToReproduce      string `json:"steps_to_reproduce,omitempty"`
	Platform              string `json:"platform,omitempty"`
	AppVersion            string `json:"app_version,omitempty"`
	DeviceModel           string `json:"device_model,omitempty"`
	Severity              string `json:"severity"` // Critical|High|Medium|Low
	AffectedFunctionality string `json:"affected_functionality,omitempty"`
}

// FeatureAnalysis is the output of the analyze stage for Feature Request
// feedback.
type FeatureAnalysis struct {
	FeatureSummary           string `json:"feature_summary"`
	UserPainPoint            string `json:"user_pain_point,omitempty"`
	Impact                   string `json:"impact"` // High|Medium|Low
	SimilarFeatures          string `json:"similar_features,omitempty"`
	ImplementationComplexity string `json:"implementation_complexity,omitempty"`
}

// ReviewVerdict is the advisory output of the quality-review stage.
type ReviewVerdict struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// Ticket is a structured, prioritized work item produced from one feedback
// record. TicketID is always generated locally (never trusted from the
// oracle) so identifiers cannot collide across runs.
type Ticket struct {
	TicketID         string       `json:"ticket_id" csv:"ticket_id"`
	SourceID         string       `json:"source_id" csv:"source_id"`
	SourceType       SourceType   `json:"source_type" csv:"source_type"`
	Title            string       `json:"title" csv:"title"`
	Category         Category     `json:"category" csv:"category"`
	Priority         Priority     `json:"priority" csv:"priority"`
	Description      string       `json:"description" csv:"description"`
	TechnicalDetails string       `json:"technical_details,omitempty" csv:"technical_details"`
	Confidence       float64      `json:"confidence" csv:"confidence"`
	Status           TicketStatus `json:"status" csv:"status"`
	CreatedAt        string       `json:"created_at" csv:"created_at"` // RFC 3339
}

// TicketDraft carries the oracle-produced fields of a ticket before local
// validation stamps identity and timestamps onto it.
type TicketDraft struct {
	Title            string   `json:"title"`
	Category         Category `json:"category"`
	Priority         Priority `json:"priority"`
	Description      string   `json:"description"`
	TechnicalDetails string   `json:"technical_details,omitempty"`
}

const (
	titleMinLen       = 5
	titleMaxLen       = 200
	descriptionMinLen = 10
)

// NewTicket validates a draft against the ticket field invariants and mints
// a Ticket with a fresh locally generated id and timestamp. All invariants
// are enforced here, at construction, never deferred to persistence.
func NewTicket(record FeedbackRecord, draft TicketDraft, confidence float64) (Ticket, error) {
	title := strings.TrimSpace(draft.Title)
	if len(title) < titleMinLen || len(title) > titleMaxLen {
		return Ticket{}, eris.Errorf("model: ticket title length %d outside [%d,%d]", len(title), titleMinLen, titleMaxLen)
	}
	if !ValidTicketCategory(draft.Category) {
		return Ticket{}, eris.Errorf("model: invalid ticket category %q", draft.Category)
	}
	if !ValidPriority(draft.Priority) {
		return Ticket{}, eris.Errorf("model: invalid ticket priority %q", draft.Priority)
	}
	if len(strings.TrimSpace(draft.Description)) < descriptionMinLen {
		return Ticket{}, eris.Errorf("model: ticket description shorter than %d chars", descriptionMinLen)
	}
	if confidence < 0 || confidence > 1 {
		return Ticket{}, eris.Errorf("model: confidence %.3f outside [0,1]", confidence)
	}

	return Ticket{
		TicketID:         uuid.New().String(),
		SourceID:         record.SourceID,
		SourceType:       record.SourceType,
		Title:            title,
		Category:         draft.Category,
		Priority:         draft.Priority,
		Description:      strings.TrimSpace(draft.Description),
		TechnicalDetails: draft.TechnicalDetails,
		Confidence:       confidence,
		Status:           StatusPending,
		CreatedAt:        time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Validate checks a ticket read back from a store or an update request.
func (t Ticket) Validate() error {
	if t.TicketID == "" {
		return eris.New("model: ticket_id is empty")
	}
	if strings.TrimSpace(t.Title) == "" {
		return eris.New("model: ticket title is blank")
	}
	if !ValidTicketCategory(t.Category) {
		return eris.Errorf("model: invalid ticket category %q", t.Category)
	}
	if !ValidPriority(t.Priority) {
		return eris.Errorf("model: invalid ticket priority %q", t.Priority)
	}
	if !ValidTicketStatus(t.Status) {
		return eris.Errorf("model: invalid ticket status %q", t.Status)
	}
	if t.Confidence < 0 || t.Confidence > 1 {
		return eris.Errorf("model: confidence %.3f outside [0,1]", t.Confidence)
	}
	return nil
}

// Regenerate returns a copy of t with a fresh ticket_id. Used at creation
// time when a run mints a colliding identifier: the newer ticket is
// re-minted, the one already recorded is never touched.
func (t Ticket) Regenerate() Ticket {
	t.TicketID = uuid.New().String()
	return t
}
