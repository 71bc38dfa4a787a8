package pipeline

import (
	"fmt"
	"strings"

	"github.com/triagehq/triage-cli/internal/model"
)

// System prompts are static per run so every worker after the first hits
// the warm prompt cache.

const classifySystemText = `You are a feedback classification specialist. Classify user feedback into exactly one category:
- Bug: Technical issues, crashes, errors, broken functionality
- Feature Request: New functionality suggestions, enhancements
- Praise: Positive feedback, compliments
- Complaint: Non-technical dissatisfaction, pricing issues
- Spam: Irrelevant or promotional content

Return a valid JSON object:
{"category": "<Bug|Feature Request|Praise|Complaint|Spam>", "confidence": <0.0-1.0>, "reasoning": "<brief explanation>"}`

const analyzeSystemText = `You are a technical analyst for user feedback. Analyze the feedback according to its classification.

IF classified as "Bug", return JSON:
{"steps_to_reproduce": "<steps if mentioned>", "platform": "<platform/OS>", "app_version": "<version>", "device_model": "<device if mentioned>", "severity": "<Critical|High|Medium|Low>", "affected_functionality": "<what is broken>"}
Severity guide: Critical (data loss, security, app unusable), High (major feature broken), Medium (minor bug, workaround exists), Low (cosmetic issue, edge case).

IF classified as "Feature Request", return JSON:
{"feature_summary": "<requested feature>", "user_pain_point": "<motivation>", "impact": "<High|Medium|Low>", "similar_features": "<existing features if any>", "implementation_complexity": "<estimate>"}

IF classified as "Praise", "Complaint", or "Spam", return JSON:
{"summary": "<one-sentence summary>"}`

const composeSystemText = `You are a ticket writer. Create a structured, actionable ticket from classified and analyzed user feedback.

Rules:
- Title: "[Category] Brief description", between 5 and 200 characters
- Priority: Critical, High, Medium, or Low, based on severity/impact
- Description: detailed, at least 10 characters
- technical_details: for bugs, include platform, steps to reproduce, severity; for features, impact and pain point

Return a valid JSON object:
{"title": "<string>", "category": "<from classification>", "priority": "<Critical|High|Medium|Low>", "description": "<string>", "technical_details": "<string>"}`

const reviewSystemText = `You are a quality reviewer for triage tickets. Review the ticket for:
- Title is descriptive and actionable
- Priority matches severity/impact and follows the priority assignment rules if provided
- Description is complete
- Technical details present for bugs
- Proper categorization
- No critical information missing

Return a valid JSON object:
{"approved": <true|false>, "feedback": "<if not approved, what needs revision>"}`

const fallbackSystemText = `You create minimal fallback tickets for feedback that failed normal processing. The ticket routes the item to manual review.

Rules:
- category must be exactly "Failed"
- priority must be exactly "Medium"
- title: brief and descriptive, based on the feedback
- description: summarize the original feedback in 2-3 sentences and note that it requires manual review

Return a valid JSON object:
{"title": "<string>", "category": "Failed", "priority": "Medium", "description": "<string>"}`

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func ratingOrNA(r int) string {
	if r == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d", r)
}

func buildClassifyPrompt(rec model.FeedbackRecord) string {
	var b strings.Builder
	b.WriteString("Classify the following user feedback.\n\n")
	if rec.Subject != "" {
		b.WriteString("Subject: " + rec.Subject + "\n")
	}
	b.WriteString("Feedback Text: " + rec.Text + "\n")
	b.WriteString("Source Type: " + string(rec.SourceType) + "\n")
	b.WriteString("Rating: " + ratingOrNA(rec.Rating) + "\n")
	b.WriteString("Platform: " + orNA(rec.Platform) + "\n")
	return b.String()
}

func buildAnalyzePrompt(rec model.FeedbackRecord, cls model.ClassificationResult) string {
	var b strings.Builder
	b.WriteString("Classification: " + string(cls.Category) + "\n")
	fmt.Fprintf(&b, "Classification Confidence: %.2f\n", cls.Confidence)
	if cls.Reasoning != "" {
		b.WriteString("Classification Reasoning: " + cls.Reasoning + "\n")
	}
	b.WriteString("\nOriginal Feedback: " + rec.Text + "\n")
	b.WriteString("Source: " + string(rec.SourceType) + " - " + rec.SourceID + "\n")
	b.WriteString("Platform: " + orNA(rec.Platform) + "\n")
	b.WriteString("App Version: " + orNA(rec.AppVersion) + "\n")
	return b.String()
}

func buildComposePrompt(rec model.FeedbackRecord, cls model.ClassificationResult, analysis string, rulesPrompt string) string {
	var b strings.Builder
	b.WriteString("Create a ticket from this feedback.\n\n")
	b.WriteString("Classification: " + string(cls.Category) + "\n")
	b.WriteString("Source: " + string(rec.SourceType) + " - " + rec.SourceID + "\n")
	if analysis != "" {
		b.WriteString("\nAnalysis:\n" + analysis + "\n")
	}
	b.WriteString("\nOriginal Feedback: " + rec.Text + "\n")
	if rulesPrompt != "" {
		b.WriteString(rulesPrompt)
	}
	return b.String()
}

func buildReviewPrompt(ticket model.Ticket, rulesPrompt string) string {
	var b strings.Builder
	b.WriteString("Review the following ticket.\n\n")
	b.WriteString("Title: " + ticket.Title + "\n")
	b.WriteString("Category: " + string(ticket.Category) + "\n")
	b.WriteString("Priority: " + string(ticket.Priority) + "\n")
	b.WriteString("Description: " + ticket.Description + "\n")
	if ticket.TechnicalDetails != "" {
		b.WriteString("Technical Details: " + ticket.TechnicalDetails + "\n")
	}
	if rulesPrompt != "" {
		b.WriteString(rulesPrompt)
	}
	return b.String()
}

func buildFallbackPrompt(rec model.FeedbackRecord, errorMessage string) string {
	var b strings.Builder
	b.WriteString("Create a minimal fallback ticket for the following feedback that failed normal processing.\n\n")
	b.WriteString("Original Feedback Text: " + rec.Text + "\n")
	b.WriteString("Source ID: " + rec.SourceID + "\n")
	b.WriteString("Source Type: " + string(rec.SourceType) + "\n")
	b.WriteString("Error Reason: " + errorMessage + "\n")
	return b.String()
}
