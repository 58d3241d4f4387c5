package errors

import (
	"fmt"
)

// ErrorCode represents different categories of errors
type ErrorCode string

const (
	// ErrCodeTransport indicates a failed or non-success upstream exchange
	ErrCodeTransport ErrorCode = "TRANSPORT"

	// ErrCodeDecode indicates an upstream payload that could not be interpreted
	ErrCodeDecode ErrorCode = "DECODE"

	// ErrCodeValidation indicates an endpoint that reports the wrong chain
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeRetriesExhausted indicates every attempt against the primary failed
	ErrCodeRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"

	// ErrCodeSnapshot indicates snapshot load or save errors
	ErrCodeSnapshot ErrorCode = "SNAPSHOT"

	// ErrCodeConfig indicates configuration errors
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeInternal indicates internal system errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Severity represents the severity level of an error
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// ChainError is the error type produced by the gateway core. Message holds the
// text that is safe to hand back to a client.
type ChainError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Chain    string                 `json:"chain,omitempty"`
	Severity Severity               `json:"severity"`
	Cause    error                  `json:"-"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// NewChainError creates a new ChainError
func NewChainError(code ErrorCode, chain, message string, cause error) *ChainError {
	return &ChainError{
		Code:     code,
		Message:  message,
		Chain:    chain,
		Severity: determineSeverity(code),
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *ChainError) Error() string {
	if e.Chain != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Chain, e.Code, e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message)
}

// Unwrap returns the underlying cause
func (e *ChainError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *ChainError) WithContext(key string, value interface{}) *ChainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsRetryable reports whether another attempt against the same endpoint may succeed
func (e *ChainError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeTransport, ErrCodeDecode:
		return true
	default:
		return false
	}
}

func determineSeverity(code ErrorCode) Severity {
	switch code {
	case ErrCodeInternal:
		return SeverityCritical
	case ErrCodeSnapshot, ErrCodeRetriesExhausted:
		return SeverityHigh
	case ErrCodeTransport, ErrCodeDecode:
		return SeverityMedium
	case ErrCodeValidation, ErrCodeConfig:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// NewTransportError creates an error for a failed upstream exchange. The raw
// response body becomes the message.
func NewTransportError(chain, url, statusText, body string, cause error) *ChainError {
	return NewChainError(ErrCodeTransport, chain, body, cause).
		WithContext("url", url).
		WithContext("status", statusText)
}

// NewDecodeError creates an error for an unparseable upstream payload
func NewDecodeError(chain, message string, cause error) *ChainError {
	return NewChainError(ErrCodeDecode, chain, message, cause)
}

// NewChainIDMismatchError creates a validation error naming both chain ids
func NewChainIDMismatchError(expected, actual, url string) *ChainError {
	msg := fmt.Sprintf("chain id mismatch: expected %s, got %s", expected, actual)
	return NewChainError(ErrCodeValidation, expected, msg, nil).
		WithContext("expected", expected).
		WithContext("actual", actual).
		WithContext("url", url)
}

// NewRetriesExhaustedError wraps the last attempt's error. The message is
// taken from that error so the attempt count never reaches clients.
func NewRetriesExhaustedError(chain string, attempts int, last error) *ChainError {
	msg := "request failed"
	if last != nil {
		msg = ClientMessage(last)
	}
	return NewChainError(ErrCodeRetriesExhausted, chain, msg, last).
		WithContext("attempts", attempts)
}

// NewSnapshotError creates a snapshot store error
func NewSnapshotError(chain, message string, cause error) *ChainError {
	return NewChainError(ErrCodeSnapshot, chain, message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(chain, message string) *ChainError {
	return NewChainError(ErrCodeConfig, chain, message, nil)
}

// NewInternalError creates an internal error
func NewInternalError(chain, message string, cause error) *ChainError {
	return NewChainError(ErrCodeInternal, chain, message, cause)
}
