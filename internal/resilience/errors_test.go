package resilience

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transport error", NewTransportError(eris.New("503"), 503), true},
		{"wrapped transport error", fmt.Errorf("call failed: %w", NewTransportError(eris.New("boom"), 0)), true},
		{"connection reset syscall", syscall.ECONNRESET, true},
		{"connection refused syscall", syscall.ECONNREFUSED, true},
		{"reset by peer message", eris.New("read tcp: connection reset by peer"), true},
		{"overloaded message", eris.New("api error: overloaded_error"), true},
		{"rate limit message", eris.New("rate limit exceeded"), true},
		{"contract error", NewContractError("classify", eris.New("bad json")), false},
		{"plain error", eris.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestContractErrorMessage(t *testing.T) {
	err := NewContractError("compose", eris.New("title too short"))
	assert.Equal(t, "compose: title too short", err.Error())

	bare := &ContractError{Err: eris.New("bad")}
	assert.Equal(t, "bad", bare.Error())
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"contract", NewContractError("review", eris.New("missing verdict")), "OracleContractError"},
		{"transport", NewTransportError(eris.New("timeout"), 504), "OracleTransportError"},
		{"wrapped contract", fmt.Errorf("stage: %w", NewContractError("analyze", eris.New("x"))), "OracleContractError"},
		{"transient by message", eris.New("i/o timeout"), "OracleTransportError"},
		{"generic", eris.New("boom"), "ProcessingError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorType(tt.err))
		})
	}
}
