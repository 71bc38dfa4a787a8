package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/triagehq/triage-cli/internal/resilience"
	"github.com/triagehq/triage-cli/pkg/anthropic"
	anthropicmocks "github.com/triagehq/triage-cli/pkg/anthropic/mocks"
)

func TestGuardPassesThroughSuccess(t *testing.T) {
	mc := new(anthropicmocks.MockClient)
	resp := &anthropic.MessageResponse{
		ID:      "msg_1",
		Content: []anthropic.ContentBlock{{Type: "text", Text: "ok"}},
	}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(resp, nil)

	g := NewGuard(mc, Options{RequestsPerSecond: 100, Burst: 10})
	got, err := g.CreateMessage(context.Background(), anthropic.MessageRequest{
		Model:    "claude-haiku-4-5-20251001",
		Messages: []anthropic.Message{{Role: "user", Content: "hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "msg_1", got.ID)
	mc.AssertExpectations(t)
}

func TestGuardClassifiesTransientMessages(t *testing.T) {
	mc := new(anthropicmocks.MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, eris.New("anthropic: overloaded_error"))

	g := NewGuard(mc, Options{RequestsPerSecond: 100, Burst: 10})
	_, err := g.CreateMessage(context.Background(), anthropic.MessageRequest{})

	require.Error(t, err)
	var te *resilience.TransportError
	assert.ErrorAs(t, err, &te)
}

func TestGuardLeavesContractErrorsAlone(t *testing.T) {
	mc := new(anthropicmocks.MockClient)
	contractErr := resilience.NewContractError("classify", eris.New("bad json"))
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, contractErr)

	g := NewGuard(mc, Options{RequestsPerSecond: 100, Burst: 10})
	_, err := g.CreateMessage(context.Background(), anthropic.MessageRequest{})

	require.Error(t, err)
	var te *resilience.TransportError
	assert.False(t, errors.As(err, &te), "contract errors must not be reclassified as transport")
}

func TestGuardCircuitOpensOnTransportFaults(t *testing.T) {
	mc := new(anthropicmocks.MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, eris.New("i/o timeout"))

	g := NewGuard(mc, Options{
		RequestsPerSecond: 1000,
		Burst:             100,
		Breaker:           &resilience.CircuitBreakerConfig{FailureThreshold: 2},
	})

	_, err := g.CreateMessage(context.Background(), anthropic.MessageRequest{})
	require.Error(t, err)
	_, err = g.CreateMessage(context.Background(), anthropic.MessageRequest{})
	require.Error(t, err)

	assert.Equal(t, resilience.CircuitOpen, g.BreakerState())

	// Further calls fail fast without touching the client, still classified
	// as transport faults so the fallback path engages.
	_, err = g.CreateMessage(context.Background(), anthropic.MessageRequest{})
	require.Error(t, err)
	var te *resilience.TransportError
	assert.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	mc.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestGuardContractErrorsDoNotTripCircuit(t *testing.T) {
	mc := new(anthropicmocks.MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, resilience.NewContractError("compose", eris.New("missing title")))

	g := NewGuard(mc, Options{
		RequestsPerSecond: 1000,
		Burst:             100,
		Breaker:           &resilience.CircuitBreakerConfig{FailureThreshold: 2},
	})

	for i := 0; i < 5; i++ {
		_, err := g.CreateMessage(context.Background(), anthropic.MessageRequest{})
		require.Error(t, err)
	}

	assert.Equal(t, resilience.CircuitClosed, g.BreakerState())
	mc.AssertNumberOfCalls(t, "CreateMessage", 5)
}

func TestGuardRespectsContextCancellation(t *testing.T) {
	mc := new(anthropicmocks.MockClient)

	g := NewGuard(mc, Options{RequestsPerSecond: 100, Burst: 10})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.CreateMessage(ctx, anthropic.MessageRequest{})
	require.Error(t, err)
	mc.AssertNotCalled(t, "CreateMessage")
}
