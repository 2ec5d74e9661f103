// Package chainerr defines the outcome taxonomy organize() and its
// collaborators report (spec §7), plus the typed RuleError used for
// context-free and context-dependent header rejections.
package chainerr

import (
	"errors"
	"fmt"
)

// OutcomeCode is the abstract outcome kind reported through a result
// handler, matching spec §7's taxonomy exactly. It is distinct from the
// Go `error` used internally to carry a RuleError's code and message; the
// organizer's public contract is one OutcomeCode per call, never a bare
// error.
type OutcomeCode int

const (
	// Success: header integrated into the candidate chain.
	Success OutcomeCode = iota

	// DuplicateBlock: header already known, in the pool or the index.
	DuplicateBlock

	// OrphanBlock: branch could not be anchored to an indexed ancestor.
	OrphanBlock

	// InvalidProofOfWork: hash(header) > target(bits).
	InvalidProofOfWork

	// InvalidTimestamp: timestamp is too far in the future, or does not
	// exceed the median time past.
	InvalidTimestamp

	// InvalidBits: bits are outside the proof-of-work limit, or do not
	// match the retarget-derived required value.
	InvalidBits

	// InvalidVersion: version is rejected by an active version-gated
	// soft-fork rule.
	InvalidVersion

	// CheckpointMismatch: header at a checkpointed height does not match
	// the pinned hash.
	CheckpointMismatch

	// InsufficientWork: branch is valid but does not beat the current
	// chain's accumulated work.
	InsufficientWork

	// OperationFailed: index read failure during work accounting.
	OperationFailed

	// ServiceStopped: organizer was stopped during the call.
	ServiceStopped

	// StoreCorrupted: reorganize failed mid-write. Fatal; the caller must
	// halt and request repair.
	StoreCorrupted
)

// String renders the outcome the way it would appear in a log line.
func (c OutcomeCode) String() string {
	switch c {
	case Success:
		return "success"
	case DuplicateBlock:
		return "duplicate_block"
	case OrphanBlock:
		return "orphan_block"
	case InvalidProofOfWork:
		return "invalid_proof_of_work"
	case InvalidTimestamp:
		return "invalid_timestamp"
	case InvalidBits:
		return "invalid_bits"
	case InvalidVersion:
		return "invalid_version"
	case CheckpointMismatch:
		return "checkpoint_mismatch"
	case InsufficientWork:
		return "insufficient_work"
	case OperationFailed:
		return "operation_failed"
	case ServiceStopped:
		return "service_stopped"
	case StoreCorrupted:
		return "store_corrupted"
	default:
		return "unknown_outcome"
	}
}

// Fatal reports whether this outcome indicates the index may be
// inconsistent and requires operator intervention.
func (c OutcomeCode) Fatal() bool {
	return c == StoreCorrupted
}

// RuleError pairs a rejection outcome with a human-readable detail,
// mirroring btcd/blockchain's ruleError/ErrorCode pattern. It carries the
// rejection-family outcomes (InvalidProofOfWork ... CheckpointMismatch) and
// also the non-rejection outcomes that need a detail, such as
// ServiceStopped and OperationFailed.
type RuleError struct {
	Code        OutcomeCode
	Description string
}

func (e RuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// New constructs a RuleError for the given outcome code and detail.
func New(code OutcomeCode, description string) error {
	return RuleError{Code: code, Description: description}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(code OutcomeCode, format string, args ...interface{}) error {
	return RuleError{Code: code, Description: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the OutcomeCode from err if it is (or wraps) a RuleError,
// otherwise returns OperationFailed as the generic fallback used for
// unexpected collaborator failures (e.g. an index read error).
func CodeOf(err error) OutcomeCode {
	if err == nil {
		return Success
	}
	var re RuleError
	if errors.As(err, &re) {
		return re.Code
	}
	return OperationFailed
}
