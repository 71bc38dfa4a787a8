// Package resilience provides the error taxonomy, retry, and circuit
// breaker patterns for oracle calls.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransportError wraps a failed or timed-out oracle call (network faults,
// 429/5xx responses). Transport errors are safe to retry.
type TransportError struct {
	Err        error
	StatusCode int
}

func (e *TransportError) Error() string { return e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err as a TransportError with an optional HTTP
// status code.
func NewTransportError(err error, statusCode int) *TransportError {
	return &TransportError{Err: err, StatusCode: statusCode}
}

// ContractError marks oracle output that violates a stage's schema:
// unparseable JSON, a category outside the allowed set, confidence outside
// [0,1], or a draft missing required fields. Contract violations count as
// stage failures and are retried like transport faults.
type ContractError struct {
	Stage string
	Err   error
}

func (e *ContractError) Error() string {
	if e.Stage != "" {
		return e.Stage + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *ContractError) Unwrap() error { return e.Err }

// NewContractError wraps err as a ContractError for the named stage.
func NewContractError(stage string, err error) *ContractError {
	return &ContractError{Stage: stage, Err: err}
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransportError, or matches common transient network patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
		"overloaded",
		"rate limit",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// ErrorType returns the audit-log name for an error: "OracleContractError"
// for schema violations, "OracleTransportError" for transport faults, and
// the generic "ProcessingError" otherwise.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	var ce *ContractError
	if errors.As(err, &ce) {
		return "OracleContractError"
	}
	var te *TransportError
	if errors.As(err, &te) {
		return "OracleTransportError"
	}
	if IsTransient(err) {
		return "OracleTransportError"
	}
	return "ProcessingError"
}
