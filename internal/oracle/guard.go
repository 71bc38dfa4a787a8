// Package oracle hardens the raw Anthropic client for pipeline use: calls
// go through a rate limiter and a circuit breaker, and failures come back
// classified so the retry layer can tell transport faults from contract
// violations.
package oracle

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/triagehq/triage-cli/internal/resilience"
	"github.com/triagehq/triage-cli/pkg/anthropic"
)

// Options configures the guard.
type Options struct {
	// RequestsPerSecond caps the sustained request rate. Default: 5.
	RequestsPerSecond float64
	// Burst is the limiter burst size. Default: 5.
	Burst int
	// Breaker overrides the default circuit breaker config.
	Breaker *resilience.CircuitBreakerConfig
}

// Guard wraps an anthropic.Client with rate limiting and a circuit breaker.
// It satisfies anthropic.Client so the pipeline stages use it transparently.
type Guard struct {
	client  anthropic.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// NewGuard wraps client with the given options.
func NewGuard(client anthropic.Client, opts Options) *Guard {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 5
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	if opts.Breaker != nil {
		breakerCfg = *opts.Breaker
	}
	if breakerCfg.ShouldTrip == nil {
		// Contract violations are oracle-output problems, not availability
		// problems; only transport faults count toward opening the circuit.
		breakerCfg.ShouldTrip = resilience.IsTransient
	}
	if breakerCfg.OnStateChange == nil {
		breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("oracle circuit state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}

	return &Guard{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		breaker: resilience.NewCircuitBreaker(breakerCfg),
	}
}

// CreateMessage sends a message through the rate limiter and circuit
// breaker. SDK failures come back classified as TransportErrors when they
// are retryable.
func (g *Guard) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := g.client.CreateMessage(ctx, req)
		if err != nil {
			return nil, classify(err)
		}
		return resp, nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, resilience.NewTransportError(err, 0)
	}
	return resp, err
}

// BreakerState exposes the circuit state for the monitoring snapshot.
func (g *Guard) BreakerState() resilience.CircuitState {
	return g.breaker.State()
}

// classify wraps retryable SDK failures as TransportErrors so the
// retry and fallback layers treat them uniformly.
func classify(err error) error {
	if code, ok := anthropic.APIStatusCode(err); ok {
		if resilience.IsTransientHTTPStatus(code) {
			return resilience.NewTransportError(err, code)
		}
		return err
	}
	if resilience.IsTransient(err) {
		return resilience.NewTransportError(err, 0)
	}
	return err
}
