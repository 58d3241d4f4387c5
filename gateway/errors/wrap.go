package errors

import "errors"

// Is checks if an error is of a specific type
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// As checks if an error can be assigned to a target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsChainError checks if an error is a ChainError with specific code
func IsChainError(err error, code ErrorCode) bool {
	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		return chainErr.Code == code
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		return chainErr.IsRetryable()
	}
	return false
}

// ClientMessage returns the message of the outermost ChainError in the chain,
// or the plain error text when none is present.
func ClientMessage(err error) string {
	if err == nil {
		return ""
	}
	var chainErr *ChainError
	if errors.As(err, &chainErr) && chainErr.Message != "" {
		return chainErr.Message
	}
	return err.Error()
}
