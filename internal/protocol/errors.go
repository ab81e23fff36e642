package protocol

import (
	"errors"
	"fmt"
)

// ConfigError reports a graph or deployment mismatch detected by a protocol
// instance. Configuration errors are fatal to the local protocol instance:
// they cannot be repaired locally and must never be silently ignored.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Message is a human-readable description.
	Message string

	// Instance is the protocol instance that detected the error.
	Instance string
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeUnknownConnection indicates a barrier or message on an unconfigured upstream.
	ErrCodeUnknownConnection ConfigErrorCode = "UNKNOWN_CONNECTION"

	// ErrCodeUnknownInstance indicates a name outside the agreed instance set.
	ErrCodeUnknownInstance ConfigErrorCode = "UNKNOWN_INSTANCE"

	// ErrCodeVectorLength indicates a piggybacked vector of the wrong size.
	ErrCodeVectorLength ConfigErrorCode = "VECTOR_LENGTH"

	// ErrCodeNotInitialized indicates use before InitializeClocks.
	ErrCodeNotInitialized ConfigErrorCode = "NOT_INITIALIZED"

	// ErrCodeDuplicateInstance indicates a repeated name in the instance set.
	ErrCodeDuplicateInstance ConfigErrorCode = "DUPLICATE_INSTANCE"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Instance != "" {
		return fmt.Sprintf("%s: %s (instance=%s)", e.Code, e.Message, e.Instance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newConfigError(code ConfigErrorCode, instance, format string, args ...any) *ConfigError {
	return &ConfigError{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Instance: instance,
	}
}

// IsConfigError reports whether err is a ConfigError, optionally of one of the given codes.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error, codes ...ConfigErrorCode) bool {
	var ce *ConfigError
	if !errors.As(err, &ce) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if ce.Code == c {
			return true
		}
	}
	return false
}
