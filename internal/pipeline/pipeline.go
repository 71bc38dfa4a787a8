// Package pipeline runs each feedback record through the four-stage triage
// sequence (classify, analyze, compose, review) with bounded retry and a
// two-layer fallback that guarantees every record yields a ticket.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/triagehq/triage-cli/internal/model"
	"github.com/triagehq/triage-cli/internal/resilience"
	"github.com/triagehq/triage-cli/pkg/anthropic"
)

// Options configures a Pipeline.
type Options struct {
	// Model is the oracle model ID used for every stage.
	Model string
	// MaxTokens caps each stage response. Default: 2048.
	MaxTokens int64
	// MaxRetries is the number of full-sequence attempts before falling
	// back. Default: 3.
	MaxRetries int
	// RetryBackoff is the initial delay between attempts. Zero (the
	// default) retries immediately.
	RetryBackoff time.Duration
	// RulesPrompt is the rendered priority-rules fragment injected into the
	// compose and review stages. Empty disables rule injection.
	RulesPrompt string
}

// Pipeline processes feedback records against an oracle client.
type Pipeline struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	rulesPrompt string
	retry       resilience.RetryConfig
}

// New creates a Pipeline.
func New(client anthropic.Client, opts Options) *Pipeline {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Pipeline{
		client:      client,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		rulesPrompt: opts.RulesPrompt,
		retry: resilience.RetryConfig{
			MaxAttempts:    opts.MaxRetries,
			InitialBackoff: opts.RetryBackoff,
		},
	}
}

// attemptResult carries one successful full-sequence pass.
type attemptResult struct {
	ticket  model.Ticket
	verdict model.ReviewVerdict
}

// attempt runs the full four-stage sequence once. Token usage is
// accumulated into total even when a stage fails partway through.
func (p *Pipeline) attempt(ctx context.Context, rec model.FeedbackRecord, total *anthropic.TokenUsage) (attemptResult, error) {
	cls, usage, err := p.classify(ctx, rec)
	total.Add(usage)
	if err != nil {
		return attemptResult{}, err
	}

	analysis, usage, err := p.analyze(ctx, rec, cls)
	total.Add(usage)
	if err != nil {
		return attemptResult{}, err
	}

	draft, usage, err := p.compose(ctx, rec, cls, analysis)
	total.Add(usage)
	if err != nil {
		return attemptResult{}, err
	}

	// The composed category must match the classification; a disagreement
	// is a compose-stage contract violation.
	if draft.Category != cls.Category {
		return attemptResult{}, resilience.NewContractError("compose",
			eris.Errorf("ticket category %q does not match classification %q", draft.Category, cls.Category))
	}

	ticket, err := model.NewTicket(rec, draft, cls.Confidence)
	if err != nil {
		return attemptResult{}, resilience.NewContractError("compose", err)
	}

	verdict, usage, err := p.review(ctx, ticket)
	total.Add(usage)
	if err != nil {
		return attemptResult{}, err
	}
	if !verdict.Approved {
		zap.L().Warn("quality review rejected ticket",
			zap.String("source_id", rec.SourceID),
			zap.String("ticket_id", ticket.TicketID),
			zap.String("feedback", verdict.Feedback),
		)
	}

	return attemptResult{ticket: ticket, verdict: verdict}, nil
}

// ProcessOne runs one record through the pipeline with retry and fallback.
// It always returns an Outcome carrying a valid ticket: when every attempt
// and the oracle fallback fail, a pure-local ticket is synthesized.
func (p *Pipeline) ProcessOne(ctx context.Context, rec model.FeedbackRecord) model.Outcome {
	var total anthropic.TokenUsage

	retryCfg := p.retry
	retryCfg.OnRetry = resilience.RetryLogger("triage", rec.SourceID)

	res, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (attemptResult, error) {
		return p.attempt(ctx, rec, &total)
	})
	if err == nil {
		total.LogCost(p.model, "triage")
		return model.Outcome{
			Status:     model.OutcomeSuccess,
			Ticket:     res.ticket,
			Verdict:    &res.verdict,
			TokenUsage: toUsage(total),
		}
	}

	zap.L().Warn("all attempts failed, using fallback",
		zap.String("source_id", rec.SourceID),
		zap.Int("attempts", retryCfg.MaxAttempts),
		zap.Error(err),
	)

	ticket := p.fallback(ctx, rec, err, &total)
	total.LogCost(p.model, "fallback")

	return model.Outcome{
		Status:        model.OutcomeFallback,
		Ticket:        ticket,
		RetryAttempts: retryCfg.MaxAttempts,
		ErrorType:     resilience.ErrorType(err),
		ErrorMessage:  err.Error(),
		TokenUsage:    toUsage(total),
	}
}

// fallback builds the guaranteed ticket. Layer one asks the oracle for a
// minimal Failed ticket; layer two synthesizes one locally when even that
// call fails. The second layer cannot fail.
func (p *Pipeline) fallback(ctx context.Context, rec model.FeedbackRecord, procErr error, total *anthropic.TokenUsage) model.Ticket {
	text, usage, err := p.call(ctx, fallbackSystemText, buildFallbackPrompt(rec, procErr.Error()))
	total.Add(usage)
	if err == nil {
		draft, perr := parseDraft("fallback", text)
		if perr == nil {
			// Category, priority, and technical details are forced locally;
			// the oracle only contributes title and description.
			draft.Category = model.CategoryFailed
			draft.Priority = model.PriorityMedium
			draft.TechnicalDetails = "Processing error: " + procErr.Error()
			if ticket, terr := model.NewTicket(rec, draft, 0); terr == nil {
				return ticket
			}
		}
		err = perr
	}

	zap.L().Warn("oracle fallback failed, synthesizing ticket locally",
		zap.String("source_id", rec.SourceID),
		zap.Error(err),
	)
	return p.localFallback(rec, procErr, err)
}

// localFallback mints a ticket without any oracle involvement.
func (p *Pipeline) localFallback(rec model.FeedbackRecord, procErr, fallbackErr error) model.Ticket {
	title := "[Failed] Review needed: " + truncate(rec.Text, 50) + "..."
	description := "This feedback could not be automatically processed and requires manual review. " +
		"Original feedback: " + truncate(rec.Text, 200) + "..."
	details := "Processing error: " + procErr.Error()
	if fallbackErr != nil {
		title = "[Failed] Manual review required: " + rec.SourceID
		description = "This feedback could not be processed automatically. " +
			"Original text: " + truncate(rec.Text, 300) + "..."
		details += ". Fallback error: " + fallbackErr.Error()
	}

	ticket, err := model.NewTicket(rec, model.TicketDraft{
		Title:            truncate(title, 200),
		Category:         model.CategoryFailed,
		Priority:         model.PriorityMedium,
		Description:      description,
		TechnicalDetails: details,
	}, 0)
	if err != nil {
		// Unreachable given the constants above, but never return an
		// unvalidated ticket.
		zap.L().Error("local fallback ticket invalid", zap.Error(err))
		ticket, _ = model.NewTicket(rec, model.TicketDraft{
			Title:       "[Failed] Manual review required",
			Category:    model.CategoryFailed,
			Priority:    model.PriorityMedium,
			Description: "This feedback could not be processed automatically.",
		}, 0)
	}
	return ticket
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func toUsage(u anthropic.TokenUsage) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:         int(u.InputTokens),
		OutputTokens:        int(u.OutputTokens),
		CacheCreationTokens: int(u.CacheCreationInputTokens),
		CacheReadTokens:     int(u.CacheReadInputTokens),
	}
}

