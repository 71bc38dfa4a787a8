package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/triagehq/triage-cli/internal/model"
	"github.com/triagehq/triage-cli/internal/resilience"
	"github.com/triagehq/triage-cli/pkg/anthropic"
)

// extractText concatenates all text content blocks from a message response.
func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// parseClassification validates the classify stage output. Any violation of
// the classification contract (unparseable JSON, category outside the
// allowed set, confidence outside [0,1]) is a ContractError and counts as a
// stage failure.
func parseClassification(text string) (model.ClassificationResult, error) {
	var result model.ClassificationResult
	if err := json.Unmarshal([]byte(cleanJSON(text)), &result); err != nil {
		return result, resilience.NewContractError("classify", eris.Wrap(err, "unparseable JSON"))
	}

	valid := false
	for _, c := range model.ClassifiableCategories() {
		if result.Category == c {
			valid = true
			break
		}
	}
	if !valid {
		return result, resilience.NewContractError("classify", eris.Errorf("category %q outside allowed set", result.Category))
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return result, resilience.NewContractError("classify", eris.Errorf("confidence %.3f outside [0,1]", result.Confidence))
	}
	return result, nil
}

// parseBugAnalysis validates analyze stage output for Bug feedback.
func parseBugAnalysis(text string) (model.BugAnalysis, error) {
	var result model.BugAnalysis
	if err := json.Unmarshal([]byte(cleanJSON(text)), &result); err != nil {
		return result, resilience.NewContractError("analyze", eris.Wrap(err, "unparseable JSON"))
	}
	return result, nil
}

// parseFeatureAnalysis validates analyze stage output for Feature Request
// feedback.
func parseFeatureAnalysis(text string) (model.FeatureAnalysis, error) {
	var result model.FeatureAnalysis
	if err := json.Unmarshal([]byte(cleanJSON(text)), &result); err != nil {
		return result, resilience.NewContractError("analyze", eris.Wrap(err, "unparseable JSON"))
	}
	return result, nil
}

// parseDraft validates compose stage output. Field-level invariants (title
// length, description length, category, priority) are enforced later by
// model.NewTicket; here we only require structurally valid JSON with the
// required fields present.
func parseDraft(stage, text string) (model.TicketDraft, error) {
	var draft model.TicketDraft
	if err := json.Unmarshal([]byte(cleanJSON(text)), &draft); err != nil {
		return draft, resilience.NewContractError(stage, eris.Wrap(err, "unparseable JSON"))
	}
	if strings.TrimSpace(draft.Title) == "" {
		return draft, resilience.NewContractError(stage, eris.New("draft missing title"))
	}
	if strings.TrimSpace(draft.Description) == "" {
		return draft, resilience.NewContractError(stage, eris.New("draft missing description"))
	}
	return draft, nil
}

// parseVerdict validates quality-review stage output.
func parseVerdict(text string) (model.ReviewVerdict, error) {
	cleaned := cleanJSON(text)

	// json.Unmarshal into a struct with a bool field will not tell us
	// whether "approved" was present, so probe with a map first.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &probe); err != nil {
		return model.ReviewVerdict{}, resilience.NewContractError("review", eris.Wrap(err, "unparseable JSON"))
	}
	if _, ok := probe["approved"]; !ok {
		return model.ReviewVerdict{}, resilience.NewContractError("review", eris.New("missing approved field"))
	}

	var verdict model.ReviewVerdict
	if err := json.Unmarshal([]byte(cleaned), &verdict); err != nil {
		return model.ReviewVerdict{}, resilience.NewContractError("review", eris.Wrap(err, "invalid verdict"))
	}
	return verdict, nil
}
