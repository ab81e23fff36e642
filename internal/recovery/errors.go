package recovery

import (
	"errors"
	"fmt"
)

// ContractError reports checkpoint metadata or graph input that violates the
// calculator's contract. It is fatal for the failure episode: the caller must
// fix the deployment or the metadata, there is nothing to retry.
type ContractError struct {
	// Code identifies the error category.
	Code ContractErrorCode

	// Message is a human-readable description.
	Message string

	// Instance is the instance the violation concerns, if any.
	Instance string
}

// ContractErrorCode categorizes contract violations.
type ContractErrorCode string

const (
	// ErrCodeUnknownInstance: a name appears in metadata or the failed set but not in the graph.
	ErrCodeUnknownInstance ContractErrorCode = "UNKNOWN_INSTANCE"

	// ErrCodeMissingHistory: a graph instance has no checkpoint at all.
	ErrCodeMissingHistory ContractErrorCode = "MISSING_HISTORY"

	// ErrCodeIndexGap: an owner's sequence indices are not 0..n-1 in order.
	ErrCodeIndexGap ContractErrorCode = "INDEX_GAP"

	// ErrCodeDuplicateID: two records share an identifier.
	ErrCodeDuplicateID ContractErrorCode = "DUPLICATE_ID"

	// ErrCodeUndeclaredDependency: a record depends on an instance without a direct edge into its owner.
	ErrCodeUndeclaredDependency ContractErrorCode = "UNDECLARED_DEPENDENCY"

	// ErrCodeDanglingDependency: a dependency names a checkpoint that is not in the neighbor's history.
	ErrCodeDanglingDependency ContractErrorCode = "DANGLING_DEPENDENCY"

	// ErrCodeNoValidCheckpoint: independent mode exhausted an instance's history.
	ErrCodeNoValidCheckpoint ContractErrorCode = "NO_VALID_CHECKPOINT"

	// ErrCodeNoConsistentRound: coordinated mode found no complete, consistent round.
	ErrCodeNoConsistentRound ContractErrorCode = "NO_CONSISTENT_ROUND"
)

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e.Instance != "" {
		return fmt.Sprintf("%s: %s (instance=%s)", e.Code, e.Message, e.Instance)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func contractErr(code ContractErrorCode, instance, format string, args ...any) *ContractError {
	return &ContractError{Code: code, Message: fmt.Sprintf(format, args...), Instance: instance}
}

// IsContractError reports whether err is a ContractError, optionally of one of the given codes.
func IsContractError(err error, codes ...ContractErrorCode) bool {
	var ce *ContractError
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
