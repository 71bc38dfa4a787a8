package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/triagehq/triage-cli/internal/model"
	"github.com/triagehq/triage-cli/pkg/anthropic"
)

// call sends a single stage request and returns the response text and
// token usage.
func (p *Pipeline) call(ctx context.Context, system string, user string) (string, anthropic.TokenUsage, error) {
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(system),
		Messages:  []anthropic.Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", anthropic.TokenUsage{}, err
	}
	return extractText(resp), resp.Usage, nil
}

// classify runs the classification stage.
func (p *Pipeline) classify(ctx context.Context, rec model.FeedbackRecord) (model.ClassificationResult, anthropic.TokenUsage, error) {
	text, usage, err := p.call(ctx, classifySystemText, buildClassifyPrompt(rec))
	if err != nil {
		return model.ClassificationResult{}, usage, err
	}
	cls, err := parseClassification(text)
	return cls, usage, err
}

// analyze runs the analysis stage and renders the validated result as a
// context block for the compose stage. Bug and Feature Request outputs are
// schema-checked; other categories pass through as minimal analysis.
func (p *Pipeline) analyze(ctx context.Context, rec model.FeedbackRecord, cls model.ClassificationResult) (string, anthropic.TokenUsage, error) {
	text, usage, err := p.call(ctx, analyzeSystemText, buildAnalyzePrompt(rec, cls))
	if err != nil {
		return "", usage, err
	}

	switch cls.Category {
	case model.CategoryBug:
		bug, err := parseBugAnalysis(text)
		if err != nil {
			return "", usage, err
		}
		return formatBugAnalysis(bug), usage, nil
	case model.CategoryFeatureRequest:
		feat, err := parseFeatureAnalysis(text)
		if err != nil {
			return "", usage, err
		}
		return formatFeatureAnalysis(feat), usage, nil
	default:
		return strings.TrimSpace(text), usage, nil
	}
}

// compose runs the ticket composition stage and returns the oracle's draft.
func (p *Pipeline) compose(ctx context.Context, rec model.FeedbackRecord, cls model.ClassificationResult, analysis string) (model.TicketDraft, anthropic.TokenUsage, error) {
	text, usage, err := p.call(ctx, composeSystemText, buildComposePrompt(rec, cls, analysis, p.rulesPrompt))
	if err != nil {
		return model.TicketDraft{}, usage, err
	}
	draft, err := parseDraft("compose", text)
	return draft, usage, err
}

// review runs the quality-review stage. The verdict is advisory: it is
// recorded on the outcome but a rejection does not block the ticket.
func (p *Pipeline) review(ctx context.Context, ticket model.Ticket) (model.ReviewVerdict, anthropic.TokenUsage, error) {
	text, usage, err := p.call(ctx, reviewSystemText, buildReviewPrompt(ticket, p.rulesPrompt))
	if err != nil {
		return model.ReviewVerdict{}, usage, err
	}
	verdict, err := parseVerdict(text)
	return verdict, usage, err
}

func formatBugAnalysis(a model.BugAnalysis) string {
	var b strings.Builder
	if a.Severity != "" {
		b.WriteString("Severity: " + a.Severity + "\n")
	}
	if a.StepsToReproduce != "" {
		b.WriteString("Steps to Reproduce: " + a.StepsToReproduce + "\n")
	}
	if a.Platform != "" {
		b.WriteString("Platform: " + a.Platform + "\n")
	}
	if a.AppVersion != "" {
		b.WriteString("App Version: " + a.AppVersion + "\n")
	}
	if a.DeviceModel != "" {
		b.WriteString("Device Model: " + a.DeviceModel + "\n")
	}
	if a.AffectedFunctionality != "" {
		b.WriteString("Affected Functionality: " + a.AffectedFunctionality + "\n")
	}
	return b.String()
}

func formatFeatureAnalysis(a model.FeatureAnalysis) string {
	var b strings.Builder
	if a.FeatureSummary != "" {
		b.WriteString("Feature Summary: " + a.FeatureSummary + "\n")
	}
	if a.UserPainPoint != "" {
		b.WriteString("User Pain Point: " + a.UserPainPoint + "\n")
	}
	if a.Impact != "" {
		b.WriteString("Impact: " + a.Impact + "\n")
	}
	if a.SimilarFeatures != "" {
		b.WriteString("Similar Features: " + a.SimilarFeatures + "\n")
	}
	if a.ImplementationComplexity != "" {
		fmt.Fprintf(&b, "Implementation Complexity: %s\n", a.ImplementationComplexity)
	}
	return b.String()
}
